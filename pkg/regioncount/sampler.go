package regioncount

import (
	"math"
	"math/rand/v2"
)

// Sampler draws points uniformly from a region. Fixed variables are
// always assigned their single value.
type Sampler struct {
	bounds Bounds
	rng    *rand.Rand
}

// NewSampler returns a Sampler over b seeded with seed.
func NewSampler(b Bounds, seed uint64) *Sampler {
	return &Sampler{
		bounds: b,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Draw fills dst with one point of the region, reallocating it when
// it is too short, and returns it.
func (s *Sampler) Draw(dst []uint64) []uint64 {
	n := s.bounds.Len()
	if cap(dst) < n {
		dst = make([]uint64, n)
	}
	dst = dst[:n]
	for i := range dst {
		lo, hi := s.bounds.Lower[i], s.bounds.Upper[i]
		switch span := hi - lo; {
		case span == 0:
			dst[i] = lo
		case span == math.MaxUint64:
			dst[i] = s.rng.Uint64()
		default:
			dst[i] = lo + s.rng.Uint64N(span+1)
		}
	}
	return dst
}
