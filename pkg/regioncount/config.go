package regioncount

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

const (
	// DefaultBoundTimeout is the budget of each of the two box
	// optimization calls of bound discovery.
	DefaultBoundTimeout = 15 * time.Second
	// DefaultReportEvery is the number of attempts between two
	// statistics snapshots.
	DefaultReportEvery = 5000
)

// Config controls a counting run.
type Config struct {
	// MaxSamples is the number of samples to attempt.
	MaxSamples int
	// MaxTime is the wall-clock budget of the run, measured from
	// its start. Zero means no limit.
	MaxTime time.Duration
	// BoundTimeout bounds each box optimization call. Zero selects
	// DefaultBoundTimeout.
	BoundTimeout time.Duration
	// ReportEvery is the snapshot period in attempts. Zero selects
	// DefaultReportEvery.
	ReportEvery int
	// Seed seeds the sampler. Zero seeds it from the clock.
	Seed uint64
	// TrackDistinct enables counting of distinct satisfying
	// samples.
	TrackDistinct bool
}

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var errs []error
	if c.MaxSamples < 0 {
		errs = append(errs, fmt.Errorf("max samples must not be negative, got %d", c.MaxSamples))
	}
	if c.MaxTime < 0 {
		errs = append(errs, fmt.Errorf("max time must not be negative, got %s", c.MaxTime))
	}
	if c.BoundTimeout < 0 {
		errs = append(errs, fmt.Errorf("bound timeout must not be negative, got %s", c.BoundTimeout))
	}
	if c.ReportEvery < 0 {
		errs = append(errs, fmt.Errorf("report period must not be negative, got %d", c.ReportEvery))
	}
	return utilerrors.NewAggregate(errs)
}

func (c Config) withDefaults() Config {
	if c.BoundTimeout == 0 {
		c.BoundTimeout = DefaultBoundTimeout
	}
	if c.ReportEvery == 0 {
		c.ReportEvery = DefaultReportEvery
	}
	return c
}
