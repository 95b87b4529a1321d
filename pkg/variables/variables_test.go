package variables

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regioncount/regioncount/pkg/bv"
	"github.com/regioncount/regioncount/pkg/smtlib"
)

func parse(t *testing.T, src string) *bv.Term {
	t.Helper()
	s, err := smtlib.Parse(src)
	require.NoError(t, err)
	f, err := s.Formula()
	require.NoError(t, err)
	return f
}

func TestExtract(t *testing.T) {
	type tc struct {
		Name     string
		Source   string
		Expected []string
	}

	for _, tt := range []tc{
		{
			Name:     "no assertions",
			Source:   `(declare-const x (_ BitVec 8))`,
			Expected: []string{},
		},
		{
			Name: "ordered by name not by appearance",
			Source: `
(declare-const zeta (_ BitVec 8))
(declare-const alpha (_ BitVec 8))
(declare-const mid Bool)
(assert (or mid (bvult zeta alpha)))`,
			Expected: []string{"alpha", "mid", "zeta"},
		},
		{
			Name: "shared sub-terms and repeated symbols",
			Source: `
(declare-const b (_ BitVec 4))
(declare-const a (_ BitVec 4))
(assert (let ((s (bvadd a b))) (and (= s s) (bvult s a) (bvugt b (bvmul s s)))))`,
			Expected: []string{"a", "b"},
		},
		{
			Name: "declared but unused symbols are not variables",
			Source: `
(declare-const used (_ BitVec 4))
(declare-const unused (_ BitVec 4))
(assert (= used #x1))`,
			Expected: []string{"used"},
		},
		{
			Name: "literals are not variables",
			Source: `
(assert (= #x1 (_ bv1 4)))`,
			Expected: []string{},
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			vars, err := Extract(parse(t, tt.Source))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.Expected, Names(vars)); diff != "" {
				t.Errorf("unexpected variables (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	f := parse(t, `
(declare-const y (_ BitVec 16))
(declare-const x (_ BitVec 8))
(declare-const w Bool)
(assert (=> w (= ((_ zero_extend 8) x) y)))`)

	first, err := Extract(f)
	require.NoError(t, err)
	second, err := Extract(f)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"w", "x", "y"}, Names(first))
	assert.Equal(t, uint(16), first[2].Sort.Width)
}

func TestExtractMalformed(t *testing.T) {
	x8, err := bv.Var("x", bv.BitVec(8))
	require.NoError(t, err)
	x4, err := bv.Var("x", bv.BitVec(4))
	require.NoError(t, err)

	for _, f := range []*bv.Term{
		nil,
		{Op: bv.OpAnd, Args: []*bv.Term{nil}},
		{Op: bv.OpInvalid},
		{Op: bv.OpDistinct, Args: []*bv.Term{x8, {Op: bv.OpZeroExtend, Lo: 4, Sort: bv.BitVec(8), Args: []*bv.Term{x4}}}},
	} {
		vars, err := Extract(f)
		assert.Error(t, err)
		assert.Nil(t, vars)
	}
}

func TestDifference(t *testing.T) {
	f := parse(t, `
(declare-const a (_ BitVec 8))
(declare-const b (_ BitVec 8))
(declare-const c (_ BitVec 8))
(assert (= a b c))`)
	all, err := Extract(f)
	require.NoError(t, err)

	g := parse(t, `
(declare-const b (_ BitVec 8))
(assert (= b #x00))`)
	some, err := Extract(g)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, Names(Difference(all, some)))
	assert.Empty(t, Difference(some, all))
	assert.Equal(t, []string{"a", "b", "c"}, Names(Difference(all, nil)))
}
