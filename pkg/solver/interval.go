package solver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/regioncount/regioncount/pkg/bv"
)

var (
	// ErrInfeasible marks a bound of a query whose precondition is
	// unsatisfiable.
	ErrInfeasible = errors.New("infeasible")
	// ErrTimeout marks a bound that could not be established in
	// time.
	ErrTimeout = errors.New("timeout")
)

// Bound is one side of an Interval: either a value, or the reason no
// value could be established.
type Bound struct {
	Value uint64
	Err   error
}

func (b Bound) String() string {
	if b.Err != nil {
		switch {
		case errors.Is(b.Err, ErrInfeasible):
			return "infeasible"
		case errors.Is(b.Err, ErrTimeout):
			return "timeout"
		}
		return "error"
	}
	return strconv.FormatUint(b.Value, 10)
}

// Interval is a sound over-approximation of the values a query takes
// under a precondition.
type Interval struct {
	Lo, Hi Bound
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s]", i.Lo, i.Hi)
}

// Interval computes the range of query over the assignments satisfying
// pre. The two sides are computed by independent calls, each bounded
// by timeout; the failure of one does not affect the other.
func (o *Optimizer) Interval(ctx context.Context, pre, query *bv.Term, timeout time.Duration) Interval {
	return Interval{
		Lo: o.bound(ctx, Minimize, pre, query, timeout),
		Hi: o.bound(ctx, Maximize, pre, query, timeout),
	}
}

func (o *Optimizer) bound(ctx context.Context, dir Direction, pre, query *bv.Term, timeout time.Duration) Bound {
	if query != nil && query.Sort.IsBool() {
		return Bound{Err: errors.Errorf("query must be a bit-vector term, got %s", query.Sort)}
	}
	exts, err := o.optimize(ctx, dir, pre, []*bv.Term{query}, timeout)
	if err != nil {
		o.log.WithError(err).WithField("direction", dir).Warn("interval bound failed")
		return Bound{Err: err}
	}
	switch ext := exts[0]; ext.Status {
	case Optimal, Bounded:
		return Bound{Value: ext.Value}
	case Infeasible:
		return Bound{Err: ErrInfeasible}
	}
	return Bound{Err: ErrTimeout}
}
