// Package risk caps how much capital the maker commits to liquidity.
package risk

// Limits bounds deployed notional. Zero disables a limit.
type Limits struct {
	MaxNotionalPerPosition float64 `yaml:"max_notional_per_position"`
	MaxPortfolioNotional   float64 `yaml:"max_portfolio_notional"`
}

// Allow reports whether a new deposit of notional fits given what is already deployed.
func (l Limits) Allow(notional, deployed float64) bool {
	if notional <= 0 {
		return false
	}
	if l.MaxNotionalPerPosition > 0 && notional > l.MaxNotionalPerPosition {
		return false
	}
	if l.MaxPortfolioNotional > 0 && deployed+notional > l.MaxPortfolioNotional {
		return false
	}
	return true
}

// Headroom returns how much more notional the portfolio limit admits, or -1 when unlimited.
func (l Limits) Headroom(deployed float64) float64 {
	if l.MaxPortfolioNotional <= 0 {
		return -1
	}
	if room := l.MaxPortfolioNotional - deployed; room > 0 {
		return room
	}
	return 0
}
