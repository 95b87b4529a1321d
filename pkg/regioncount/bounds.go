package regioncount

import (
	"context"
	"math"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/regioncount/regioncount/pkg/bv"
	"github.com/regioncount/regioncount/pkg/solver"
)

// Bounds is the region to sample from: one closed interval per
// variable, indexed like the variables of the run.
type Bounds struct {
	Lower []uint64
	Upper []uint64
	// Widths holds the number of bits of each variable.
	Widths []uint
}

// fullBounds returns the region covering the whole range of every
// variable.
func fullBounds(vars []*bv.Term) Bounds {
	b := Bounds{
		Lower:  make([]uint64, len(vars)),
		Upper:  make([]uint64, len(vars)),
		Widths: make([]uint, len(vars)),
	}
	for i, v := range vars {
		b.Widths[i] = v.Sort.Bits()
		b.Upper[i] = bv.Mask(b.Widths[i])
	}
	return b
}

func (b Bounds) Len() int {
	return len(b.Lower)
}

// Fixed reports whether variable i can take a single value only.
func (b Bounds) Fixed(i int) bool {
	return b.Lower[i] == b.Upper[i]
}

// FixedCount returns the number of fixed variables.
func (b Bounds) FixedCount() int {
	n := 0
	for i := range b.Lower {
		if b.Fixed(i) {
			n++
		}
	}
	return n
}

// Volume returns the number of points in the region.
func (b Bounds) Volume() *big.Int {
	v := big.NewInt(1)
	span := new(big.Int)
	for i := range b.Lower {
		span.SetUint64(b.Upper[i] - b.Lower[i])
		span.Add(span, big.NewInt(1))
		v.Mul(v, span)
	}
	return v
}

// Log2Volume returns the base 2 logarithm of Volume.
func (b Bounds) Log2Volume() float64 {
	var l float64
	for i := range b.Lower {
		span := b.Upper[i] - b.Lower[i]
		if span == math.MaxUint64 {
			l += 64
			continue
		}
		l += math.Log2(float64(span) + 1)
	}
	return l
}

// ComputeBounds asks the backend for the minimum and the maximum of
// every variable under formula, one box call per direction. A
// variable whose extremum is not established in a direction falls
// back to the end of its range in that direction.
func (c *Counter) ComputeBounds(ctx context.Context, formula *bv.Term, vars []*bv.Term) Bounds {
	b := fullBounds(vars)
	if len(vars) == 0 {
		return b
	}

	mins, err := c.backend.MinimizeAll(ctx, formula, vars, c.config.BoundTimeout)
	c.apply(solver.Minimize, vars, mins, err, b.Lower)
	maxs, err := c.backend.MaximizeAll(ctx, formula, vars, c.config.BoundTimeout)
	c.apply(solver.Maximize, vars, maxs, err, b.Upper)

	for i := range vars {
		if b.Lower[i] > b.Upper[i] {
			c.log.WithField("variable", vars[i].Name).Warnf("crossed bounds [%d, %d], using the full range", b.Lower[i], b.Upper[i])
			b.Lower[i], b.Upper[i] = 0, bv.Mask(b.Widths[i])
		}
	}
	return b
}

func (c *Counter) apply(dir solver.Direction, vars []*bv.Term, exts []solver.Extremum, err error, dst []uint64) {
	log := c.log.WithField("direction", dir)
	if err == nil && len(exts) != len(vars) {
		err = errInconsistentBackend{want: len(vars), got: len(exts)}
	}
	if err != nil {
		log.WithError(err).Warn("box optimization failed, using fallback bounds")
		return
	}
	for i, e := range exts {
		if !e.Status.HasValue() {
			log.WithFields(logrus.Fields{
				"variable": vars[i].Name,
				"status":   e.Status,
			}).Debug("no bound established, using fallback")
			continue
		}
		dst[i] = e.Value & bv.Mask(vars[i].Sort.Bits())
	}
}
