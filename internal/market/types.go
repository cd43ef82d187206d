// Package market standardizes the payloads shared between data collection, analytics, and strategy layers.
package market

import (
	"math"
	"time"
)

// Quote is a single top-of-book sample.
type Quote struct {
	Timestamp time.Time
	Bid       float64
	Ask       float64
	Stale     bool
	Filled    bool // synthesized by gap filling
}

// Mid returns the midpoint of bid and ask.
func (q Quote) Mid() float64 { return (q.Bid + q.Ask) / 2 }

// Spread returns the absolute ask-bid difference.
func (q Quote) Spread() float64 { return q.Ask - q.Bid }

// RelativeSpread returns the spread as a fraction of mid, or 0 when mid is not positive.
func (q Quote) RelativeSpread() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 0
	}
	return q.Spread() / mid
}

// Valid reports whether 0 < bid <= ask < inf.
func (q Quote) Valid() bool {
	if math.IsNaN(q.Bid) || math.IsNaN(q.Ask) || math.IsInf(q.Bid, 0) || math.IsInf(q.Ask, 0) {
		return false
	}
	return q.Bid > 0 && q.Ask > 0 && q.Bid <= q.Ask
}

// Trade side markers.
const (
	SideSell    = -1
	SideUnknown = 0
	SideBuy     = 1
)

// Trade is an executed swap against the pool or venue.
type Trade struct {
	Timestamp time.Time
	Price     float64
	Size      float64
	Side      int     // +1 buy, -1 sell (aggressor), 0 unknown
	BidPrice  float64 // optional quote at execution time
	AskPrice  float64
}

// Aggressor names the trade side.
func (t Trade) Aggressor() string {
	switch {
	case t.Side > 0:
		return "buyer"
	case t.Side < 0:
		return "seller"
	default:
		return "unknown"
	}
}

// Level is one price level of an order book.
type Level struct {
	Price float64
	Size  float64
}

// OrderBook holds bids (descending) and asks (ascending).
type OrderBook struct {
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

// Clone returns a deep copy of the book.
func (b OrderBook) Clone() OrderBook {
	return OrderBook{
		Bids:      append([]Level(nil), b.Bids...),
		Asks:      append([]Level(nil), b.Asks...),
		Timestamp: b.Timestamp,
	}
}

// Snapshot is the read-only per-cycle market input for one pair.
type Snapshot struct {
	Pair        string
	Quotes      []Quote
	Trades      []Trade
	Book        OrderBook
	ActivePrice float64
	Timestamp   time.Time
}

// VolatilityMetrics summarizes realized volatility; every field is non-negative.
type VolatilityMetrics struct {
	Current   float64
	MovingAvg float64
	Forecast  float64
}

// BinRange is a contiguous span of bins around a center price.
// Width is relative to CenterPrice and always equals BinCount times the bin step.
type BinRange struct {
	CenterPrice float64
	Width       float64
	BinCount    int
}

// Lower returns the lower price bound of the range.
func (r BinRange) Lower() float64 { return r.CenterPrice * (1 - r.Width/2) }

// Upper returns the upper price bound of the range.
func (r BinRange) Upper() float64 { return r.CenterPrice * (1 + r.Width/2) }

// Contains reports whether price sits inside the range bounds.
func (r BinRange) Contains(price float64) bool {
	return price >= r.Lower() && price <= r.Upper()
}

// PositionState enumerates the lifecycle of a liquidity position.
type PositionState int

const (
	Pending PositionState = iota
	Active
	Exiting
	Closed
)

func (s PositionState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Exiting:
		return "exiting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText lets states serialize by name.
func (s PositionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *PositionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*s = Pending
	case "active":
		*s = Active
	case "exiting":
		*s = Exiting
	case "closed":
		*s = Closed
	default:
		*s = Pending
	}
	return nil
}

// Position is a liquidity position owned by the position manager.
type Position struct {
	ID             string        `json:"id"`
	Pair           string        `json:"pair"`
	Range          BinRange      `json:"range"`
	EntryPrice     float64       `json:"entry_price"`
	TargetSpread   float64       `json:"target_spread"`
	ExpectedProfit float64       `json:"expected_profit"`
	Notional       float64       `json:"notional"`
	State          PositionState `json:"state"`
	Fees           float64       `json:"fees"`
	Rebalances     int           `json:"rebalances"`
	OpenedAt       time.Time     `json:"opened_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// DataQualityReport aggregates the outcome of quality checks over a quote series.
type DataQualityReport struct {
	StaleCount        int
	UsableCount       int
	SuspiciousSpreads []bool
	PriceJumps        []int
	Sufficient        bool
}

// SuspiciousCount returns how many quotes carry a suspicious spread flag.
func (r DataQualityReport) SuspiciousCount() int {
	n := 0
	for _, s := range r.SuspiciousSpreads {
		if s {
			n++
		}
	}
	return n
}

// Mids extracts quote midpoints.
func Mids(quotes []Quote) []float64 {
	out := make([]float64, len(quotes))
	for i, q := range quotes {
		out[i] = q.Mid()
	}
	return out
}

// RelativeSpreads extracts quote spreads relative to mid.
func RelativeSpreads(quotes []Quote) []float64 {
	out := make([]float64, len(quotes))
	for i, q := range quotes {
		out[i] = q.RelativeSpread()
	}
	return out
}
