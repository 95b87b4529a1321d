package regioncount

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplerStaysInRegion(t *testing.T) {
	b := Bounds{
		Lower:  []uint64{7, 3, 0, 0, 100},
		Upper:  []uint64{7, 5, 1, math.MaxUint64, 1 << 40},
		Widths: []uint{8, 4, 1, 64, 48},
	}
	s := NewSampler(b, 42)

	seen := make([]map[uint64]bool, b.Len())
	for i := range seen {
		seen[i] = make(map[uint64]bool)
	}
	var sample []uint64
	for n := 0; n < 10000; n++ {
		sample = s.Draw(sample)
		require.Len(t, sample, b.Len())
		for i, v := range sample {
			require.GreaterOrEqual(t, v, b.Lower[i])
			require.LessOrEqual(t, v, b.Upper[i])
			seen[i][v] = true
		}
	}

	assert.Equal(t, map[uint64]bool{7: true}, seen[0], "fixed variable must always take its value")
	assert.Equal(t, map[uint64]bool{3: true, 4: true, 5: true}, seen[1], "both ends of a closed range are drawn")
	assert.Equal(t, map[uint64]bool{0: true, 1: true}, seen[2])
	assert.Greater(t, len(seen[3]), 9000)
}

func TestSamplerDeterministic(t *testing.T) {
	b := Bounds{Lower: []uint64{0, 10}, Upper: []uint64{1000, 20}}
	a1 := NewSampler(b, 9).Draw(nil)
	a2 := NewSampler(b, 9).Draw(nil)
	assert.Equal(t, a1, a2)
}

func TestSamplerEmptyRegion(t *testing.T) {
	s := NewSampler(Bounds{}, 1)
	assert.Empty(t, s.Draw(nil))
}

func TestBoundsVolume(t *testing.T) {
	for _, tt := range []struct {
		name   string
		bounds Bounds
		volume string
		log2   float64
		fixed  int
	}{
		{
			name:   "empty product",
			bounds: Bounds{},
			volume: "1",
			log2:   0,
		},
		{
			name:   "small",
			bounds: Bounds{Lower: []uint64{0, 0, 7}, Upper: []uint64{3, 3, 7}},
			volume: "16",
			log2:   4,
			fixed:  1,
		},
		{
			name:   "full 64 bit ranges",
			bounds: Bounds{Lower: []uint64{0, 0}, Upper: []uint64{math.MaxUint64, math.MaxUint64}},
			volume: "340282366920938463463374607431768211456",
			log2:   128,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			expected, ok := new(big.Int).SetString(tt.volume, 10)
			require.True(t, ok)
			assert.Equal(t, 0, expected.Cmp(tt.bounds.Volume()))
			assert.InDelta(t, tt.log2, tt.bounds.Log2Volume(), 1e-9)
			assert.Equal(t, tt.fixed, tt.bounds.FixedCount())
		})
	}
}
