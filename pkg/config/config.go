// Package config loads the counting options of the regioncount command
// from a YAML or JSON file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/regioncount/regioncount/pkg/regioncount"
)

const (
	DefaultMaxSamples  = 1000000
	DefaultMetricsAddr = ""
)

// File is the on-disk configuration. Fields left out of the file keep
// their defaults.
type File struct {
	MaxSamples    int             `json:"maxSamples"`
	MaxTime       metav1.Duration `json:"maxTime"`
	BoundTimeout  metav1.Duration `json:"boundTimeout"`
	ReportEvery   int             `json:"reportEvery"`
	Seed          uint64          `json:"seed"`
	TrackDistinct bool            `json:"trackDistinct"`
	// MetricsAddr is the listen address of the metrics endpoint.
	// Empty disables it.
	MetricsAddr string `json:"metricsAddr"`
	Profiling   bool   `json:"profiling"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		MaxSamples:   DefaultMaxSamples,
		BoundTimeout: metav1.Duration{Duration: regioncount.DefaultBoundTimeout},
		ReportEvery:  regioncount.DefaultReportEvery,
		MetricsAddr:  DefaultMetricsAddr,
	}
}

// Load reads the file at path over the defaults and validates the
// result.
func Load(path string) (File, error) {
	f := Default()
	data, err := os.ReadFile(os.ExpandEnv(path))
	if err != nil {
		return f, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, errors.Wrapf(err, "decoding config %s", path)
	}
	if err := f.Validate(); err != nil {
		return f, errors.Wrapf(err, "invalid config %s", path)
	}
	return f, nil
}

// Validate reports every invalid field of f.
func (f File) Validate() error {
	var errs []error
	if err := f.Counting().Validate(); err != nil {
		errs = append(errs, err)
	}
	if f.Profiling && f.MetricsAddr == "" {
		errs = append(errs, fmt.Errorf("profiling requires a metrics address"))
	}
	return utilerrors.Flatten(utilerrors.NewAggregate(errs))
}

// Counting returns the options of a counting run.
func (f File) Counting() regioncount.Config {
	return regioncount.Config{
		MaxSamples:    f.MaxSamples,
		MaxTime:       f.MaxTime.Duration,
		BoundTimeout:  f.BoundTimeout.Duration,
		ReportEvery:   f.ReportEvery,
		Seed:          f.Seed,
		TrackDistinct: f.TrackDistinct,
	}
}

// Duration wraps d for assignment to a File field.
func Duration(d time.Duration) metav1.Duration {
	return metav1.Duration{Duration: d}
}
