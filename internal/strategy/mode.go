package strategy

import (
	"strings"

	"lpmaker-go/internal/market"
)

// Mode controls which side of the book a pair provides liquidity on and when it re-centres.
type Mode string

const (
	// ModeBoth re-centres when price leaves the range in either direction.
	ModeBoth Mode = "both"
	// ModeLeft re-centres only when price falls below the range.
	ModeLeft Mode = "left"
	// ModeRight re-centres only when price rises above the range.
	ModeRight Mode = "right"
	// ModeView tracks analytics without submitting liquidity changes.
	ModeView Mode = "view"
)

// ParseMode maps a configured mode string onto a Mode, defaulting to both.
func ParseMode(raw string) Mode {
	m, _ := LookupMode(raw)
	return m
}

// LookupMode is ParseMode that also reports whether raw named a known mode. Empty input means both.
func LookupMode(raw string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "both", "mode_both", "modeboth":
		return ModeBoth, true
	case "left", "mode_left", "modeleft", "bid":
		return ModeLeft, true
	case "right", "mode_right", "moderight", "ask":
		return ModeRight, true
	case "view", "mode_view", "modeview", "watch", "readonly":
		return ModeView, true
	default:
		return ModeBoth, false
	}
}

// Submits reports whether the mode sends liquidity changes at all.
func (m Mode) Submits() bool { return m != ModeView }

// Rebalances reports whether price leaving r should re-centre the position rather than close it.
func (m Mode) Rebalances(r market.BinRange, price float64) bool {
	switch m {
	case ModeBoth:
		return price < r.Lower() || price > r.Upper()
	case ModeLeft:
		return price < r.Lower()
	case ModeRight:
		return price > r.Upper()
	default:
		return false
	}
}
