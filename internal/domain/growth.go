package domain

import "log/slog"

const (
	// DefaultWarnThreshold is the computable-set count that first triggers a
	// growth warning on a fresh collection
	DefaultWarnThreshold = 100
	// rebuildWarnThreshold is used after a universe change forces a rebuild
	rebuildWarnThreshold = 10
)

// GrowthWarning reports that the number of unresolved computable sets of a
// collection crossed its adaptive threshold. It is advisory only.
type GrowthWarning struct {
	Sets          int
	Threshold     int
	NextThreshold int
}

// Option configures a LabelCollection
type Option func(*LabelCollection)

// WithGrowthHandler routes growth warnings to fn instead of the logger
func WithGrowthHandler(fn func(GrowthWarning)) Option {
	return func(c *LabelCollection) {
		c.onGrowth = fn
	}
}

// WithLogger sets the logger used for default growth warnings
func WithLogger(logger *slog.Logger) Option {
	return func(c *LabelCollection) {
		c.logger = logger
	}
}

// WithWarnThreshold overrides the initial growth warning threshold
func WithWarnThreshold(n int) Option {
	return func(c *LabelCollection) {
		if n > 0 {
			c.warnThreshold = n
		}
	}
}

func (c *LabelCollection) logGrowth(w GrowthWarning) {
	c.logger.Warn("computable set count is growing fast, closure may become expensive",
		"sets", w.Sets,
		"threshold", w.Threshold,
		"next_threshold", w.NextThreshold,
	)
}
