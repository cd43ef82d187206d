// Package collect ingests raw quotes, trades, and depth snapshots and turns them into validated series.
package collect

import (
	"time"

	"github.com/rs/zerolog"
)

type options struct {
	log zerolog.Logger
	now func() time.Time
}

// Option configures collector construction parameters.
type Option func(*options)

// WithLogger routes collector warnings to the supplied logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock overrides the wall clock used for staleness and history cutoffs.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
