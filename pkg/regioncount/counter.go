// Package regioncount estimates the number of models of a bit-vector
// formula by sampling uniformly inside a region that bounds its
// solutions.
package regioncount

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/mitchellh/hashstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/regioncount/regioncount/pkg/bv"
	"github.com/regioncount/regioncount/pkg/smtlib"
	"github.com/regioncount/regioncount/pkg/solver"
	"github.com/regioncount/regioncount/pkg/variables"
)

// State is a phase of a counting run.
type State string

const (
	StateInit             State = "INIT"
	StateBounding         State = "BOUNDING"
	StateSampling         State = "SAMPLING"
	StateStoppedByCount   State = "STOPPED_BY_COUNT"
	StateStoppedByTimeout State = "STOPPED_BY_TIMEOUT"
	StateStoppedByCancel  State = "STOPPED_BY_CANCEL"
	StateStoppedByError   State = "STOPPED_BY_ERROR"
)

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateStoppedByCount, StateStoppedByTimeout, StateStoppedByCancel, StateStoppedByError:
		return true
	}
	return false
}

// Backend is the solving capability a Counter depends on.
type Backend interface {
	MinimizeAll(ctx context.Context, constraint *bv.Term, objectives []*bv.Term, timeout time.Duration) ([]solver.Extremum, error)
	MaximizeAll(ctx context.Context, constraint *bv.Term, objectives []*bv.Term, timeout time.Duration) ([]solver.Extremum, error)
	Evaluate(formula *bv.Term, m bv.Model) (bool, error)
}

type errInconsistentBackend struct {
	want, got int
}

func (e errInconsistentBackend) Error() string {
	return fmt.Sprintf("backend returned %d extrema for %d objectives", e.got, e.want)
}

// Result is the terminal state of a run.
type Result struct {
	State     State
	Variables []*bv.Term
	Bounds    Bounds
	Stats     Stats
}

// Estimate approximates the number of models of the formula as the
// success rate scaled to the volume of the region.
func (r *Result) Estimate() *big.Float {
	if r.Stats.Attempted == 0 {
		return new(big.Float)
	}
	e := new(big.Float).SetInt(r.Bounds.Volume())
	e.Mul(e, new(big.Float).SetUint64(r.Stats.Succeeded))
	return e.Quo(e, new(big.Float).SetUint64(r.Stats.Attempted))
}

// Counter runs the region counting procedure. All state of a run is
// local to it, so a Counter may be reused for any number of runs.
type Counter struct {
	backend  Backend
	config   Config
	log      logrus.FieldLogger
	reporter Reporter
	clock    clock.PassiveClock
}

type Option func(c *Counter)

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Counter) {
		c.log = log
	}
}

func WithReporter(r Reporter) Option {
	return func(c *Counter) {
		c.reporter = r
	}
}

func WithClock(clk clock.PassiveClock) Option {
	return func(c *Counter) {
		c.clock = clk
	}
}

// NewCounter returns a Counter using backend for bound discovery and
// evaluation.
func NewCounter(backend Backend, config Config, options ...Option) (*Counter, error) {
	if backend == nil {
		return nil, errors.New("a backend is required")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	c := &Counter{
		backend:  backend,
		config:   config.withDefaults(),
		log:      logrus.New(),
		reporter: nopReporter{},
		clock:    clock.RealClock{},
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// Run counts the models of the formula in the SMT-LIB file at path.
// Failing to read or parse the file is the only error reported
// before sampling starts.
func (c *Counter) Run(ctx context.Context, path string) (*Result, error) {
	start := c.clock.Now()
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "input file")
	}
	script, err := smtlib.ParseFile(path)
	if err != nil {
		return nil, err
	}
	formula, err := script.Formula()
	if err != nil {
		return nil, errors.Wrapf(err, "building formula of %s", path)
	}
	c.log.WithFields(logrus.Fields{
		"path":       path,
		"assertions": len(script.Assertions),
	}).Info("parse finished")
	return c.count(ctx, formula, start)
}

// Count counts the models of formula. The time budget runs from the
// call.
func (c *Counter) Count(ctx context.Context, formula *bv.Term) (*Result, error) {
	return c.count(ctx, formula, c.clock.Now())
}

func (c *Counter) count(ctx context.Context, formula *bv.Term, start time.Time) (*Result, error) {
	res := &Result{State: StateInit}

	vars, err := variables.Extract(formula)
	degraded := err != nil
	if degraded {
		c.log.WithError(err).Warn("variable extraction failed, continuing without variables")
		vars = nil
	}
	c.log.WithField("variables", len(vars)).Info("variable extraction finished")
	res.Variables = vars

	res.State = StateBounding
	boundStart := c.clock.Now()
	res.Bounds = c.ComputeBounds(ctx, formula, vars)
	res.Stats.BoundTime = c.clock.Since(boundStart)
	c.log.WithFields(logrus.Fields{
		"fixed":       res.Bounds.FixedCount(),
		"log2-volume": res.Bounds.Log2Volume(),
		"duration":    res.Stats.BoundTime,
	}).Info("bound discovery finished")

	res.State = StateSampling
	seed := c.config.Seed
	if seed == 0 {
		seed = uint64(start.UnixNano())
	}
	sampler := NewSampler(res.Bounds, seed)
	var (
		sample   []uint64
		model    = make(bv.Model, len(vars))
		distinct sets.Set[uint64]
		limit    = uint64(c.config.MaxSamples)
		period   = uint64(c.config.ReportEvery)
	)
	if c.config.TrackDistinct {
		distinct = sets.New[uint64]()
	}

	sampleStart := c.clock.Now()
	for res.Stats.Attempted < limit {
		if res.Stats.Attempted%period == 0 {
			c.reporter.Report(Snapshot{State: res.State, Stats: res.Stats})
		}
		now := c.clock.Now()
		res.Stats.SampleTime = now.Sub(sampleStart)
		if c.config.MaxTime > 0 && now.Sub(start) >= c.config.MaxTime {
			c.log.WithField("attempted", res.Stats.Attempted).Info("stopping: timeout")
			return c.stop(res, StateStoppedByTimeout), nil
		}
		if ctx.Err() != nil {
			c.log.WithField("attempted", res.Stats.Attempted).Info("stopping: cancelled")
			return c.stop(res, StateStoppedByCancel), nil
		}

		sample = sampler.Draw(sample)
		for i, v := range vars {
			model[v.Name] = sample[i]
		}
		ok, err := c.evaluate(formula, model)
		res.Stats.Attempted++
		if err != nil {
			// Without variables nothing is bound, so every sample
			// fails instead of ending the run.
			if degraded {
				continue
			}
			res.Stats.SampleTime = c.clock.Since(sampleStart)
			res.State = StateStoppedByError
			return res, errors.Wrapf(err, "evaluating sample %d", res.Stats.Attempted)
		}
		if !ok {
			continue
		}
		res.Stats.Succeeded++
		if distinct != nil {
			h, err := hashstructure.Hash(sample, nil)
			if err != nil {
				c.log.WithError(err).Debug("cannot hash sample")
				continue
			}
			distinct.Insert(h)
			res.Stats.Distinct = distinct.Len()
		}
	}

	res.Stats.SampleTime = c.clock.Since(sampleStart)
	res.State = StateStoppedByCount
	c.log.WithField("attempted", res.Stats.Attempted).Info("sampling finished")
	return res, nil
}

// stop moves res to a terminal state of an early stop and emits the
// final snapshot.
func (c *Counter) stop(res *Result, state State) *Result {
	res.State = state
	c.reporter.Report(Snapshot{State: state, Stats: res.Stats, Final: true})
	return res
}

// evaluate calls the backend, turning a panic into an error so that
// none escapes the sampling loop.
func (c *Counter) evaluate(formula *bv.Term, m bv.Model) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("evaluation panicked: %v", r)
		}
	}()
	return c.backend.Evaluate(formula, m)
}
