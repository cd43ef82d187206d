package market

import "errors"

var (
	// ErrInsufficientData reports a window below its minimum sample count.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrStaleData reports an input batch that is entirely past its freshness threshold.
	ErrStaleData = errors.New("stale data")
	// ErrDataQuality reports crossed markets, invalid prices, oversized gaps, or excessive missing data.
	ErrDataQuality = errors.New("data quality")
	// ErrTimeSeries reports normalization or seasonality failures on degenerate input.
	ErrTimeSeries = errors.New("time series")
)
