package solver

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regioncount/regioncount/pkg/bv"
	"github.com/regioncount/regioncount/pkg/smtlib"
)

func script(t *testing.T, src string) (*smtlib.Script, *bv.Term) {
	t.Helper()
	s, err := smtlib.Parse(src)
	require.NoError(t, err)
	f, err := s.Formula()
	require.NoError(t, err)
	return s, f
}

func terms(t *testing.T, s *smtlib.Script, texts ...string) []*bv.Term {
	t.Helper()
	var out []*bv.Term
	for _, text := range texts {
		term, err := s.ParseTerm(text)
		require.NoError(t, err)
		out = append(out, term)
	}
	return out
}

func newOptimizer(t testing.TB, options ...Option) *Optimizer {
	o, err := New(options...)
	require.NoError(t, err)
	return o
}

// TestTranslationAgreesWithEvaluation pins both operands of every
// operator and checks that the solver's only model agrees with the
// evaluator.
func TestTranslationAgreesWithEvaluation(t *testing.T) {
	const w = 3
	x, err := bv.Var("x", bv.BitVec(w))
	require.NoError(t, err)
	y, err := bv.Var("y", bv.BitVec(w))
	require.NoError(t, err)

	apply := func(op bv.Op, params []uint, args ...*bv.Term) *bv.Term {
		r, err := bv.Apply(op, params, args...)
		require.NoError(t, err)
		return r
	}
	derived := func(f func(a, b *bv.Term) (*bv.Term, error)) *bv.Term {
		r, err := f(x, y)
		require.NoError(t, err)
		return r
	}

	cases := map[string]*bv.Term{
		"bvadd":         apply(bv.OpBVAdd, nil, x, y),
		"bvsub":         apply(bv.OpBVSub, nil, x, y),
		"bvmul":         apply(bv.OpBVMul, nil, x, y),
		"bvudiv":        apply(bv.OpBVUDiv, nil, x, y),
		"bvurem":        apply(bv.OpBVURem, nil, x, y),
		"bvshl":         apply(bv.OpBVShl, nil, x, y),
		"bvlshr":        apply(bv.OpBVLShr, nil, x, y),
		"bvashr":        apply(bv.OpBVAShr, nil, x, y),
		"bvand":         apply(bv.OpBVAnd, nil, x, y),
		"bvor":          apply(bv.OpBVOr, nil, x, y),
		"bvxor":         apply(bv.OpBVXor, nil, x, y),
		"bvneg":         apply(bv.OpBVNeg, nil, x),
		"bvnot":         apply(bv.OpBVNot, nil, y),
		"bvcomp":        apply(bv.OpBVComp, nil, x, y),
		"concat":        apply(bv.OpConcat, nil, x, y),
		"extract":       apply(bv.OpExtract, []uint{2, 1}, x),
		"sign_extend":   apply(bv.OpSignExtend, []uint{2}, x),
		"zero_extend":   apply(bv.OpZeroExtend, []uint{2}, y),
		"rotate_left":   apply(bv.OpRotateLeft, []uint{1}, x),
		"rotate_right":  apply(bv.OpRotateRight, []uint{2}, x),
		"bvult":         apply(bv.OpULT, nil, x, y),
		"bvule":         apply(bv.OpULE, nil, x, y),
		"bvslt":         apply(bv.OpSLT, nil, x, y),
		"bvsge":         apply(bv.OpSGE, nil, x, y),
		"distinct":      apply(bv.OpDistinct, nil, x, y),
		"ite":           apply(bv.OpIte, nil, apply(bv.OpUGT, nil, x, y), x, y),
		"bvsdiv":        derived(bv.SDiv),
		"bvsrem":        derived(bv.SRem),
		"bvsmod":        derived(bv.SMod),
		"implies chain": apply(bv.OpImplies, nil, apply(bv.OpEq, nil, x, y), apply(bv.OpULT, nil, x, y), apply(bv.OpSGT, nil, x, y)),
	}

	o := newOptimizer(t)
	for name, term := range cases {
		t.Run(name, func(t *testing.T) {
			for a := uint64(0); a < 1<<w; a++ {
				for b := uint64(0); b < 1<<w; b++ {
					ca, err := bv.Const(a, w)
					require.NoError(t, err)
					cb, err := bv.Const(b, w)
					require.NoError(t, err)
					pin := apply(bv.OpAnd, nil, apply(bv.OpEq, nil, x, ca), apply(bv.OpEq, nil, y, cb))

					expected, err := bv.Value(term, bv.Model{"x": a, "y": b})
					require.NoError(t, err)

					exts, err := o.MinimizeAll(context.Background(), pin, []*bv.Term{term}, 0)
					require.NoError(t, err)
					require.Len(t, exts, 1)
					assert.Equal(t, Extremum{Status: Optimal, Value: expected}, exts[0], "x=%d y=%d", a, b)
				}
			}
		})
	}
}

func TestBoxOptimization(t *testing.T) {
	type expected struct {
		min []Extremum
		max []Extremum
	}
	for _, tt := range []struct {
		name       string
		src        string
		objectives []string
		expected   expected
	}{
		{
			name: "sum without overflow",
			src: `
(declare-const x (_ BitVec 4))
(declare-const y (_ BitVec 4))
(assert (= (bvadd ((_ zero_extend 1) x) ((_ zero_extend 1) y)) (_ bv3 5)))`,
			objectives: []string{"x", "y"},
			expected: expected{
				min: []Extremum{{Optimal, 0}, {Optimal, 0}},
				max: []Extremum{{Optimal, 3}, {Optimal, 3}},
			},
		},
		{
			name: "pinned variable",
			src: `
(declare-const z (_ BitVec 8))
(declare-const w (_ BitVec 8))
(assert (= z #x07))
(assert (bvult w z))`,
			objectives: []string{"w", "z"},
			expected: expected{
				min: []Extremum{{Optimal, 0}, {Optimal, 7}},
				max: []Extremum{{Optimal, 6}, {Optimal, 7}},
			},
		},
		{
			name: "signed range",
			src: `
(declare-const x (_ BitVec 8))
(assert (bvslt x #x00))`,
			objectives: []string{"x"},
			expected: expected{
				min: []Extremum{{Optimal, 0x80}},
				max: []Extremum{{Optimal, 0xff}},
			},
		},
		{
			name: "unsatisfiable",
			src: `
(declare-const x (_ BitVec 8))
(assert (bvult x #x03))
(assert (bvugt x #x05))`,
			objectives: []string{"x"},
			expected: expected{
				min: []Extremum{{Status: Infeasible}},
				max: []Extremum{{Status: Infeasible}},
			},
		},
		{
			name: "unconstrained objective",
			src: `
(declare-const x (_ BitVec 16))
(assert (= x x))`,
			objectives: []string{"x"},
			expected: expected{
				min: []Extremum{{Optimal, 0}},
				max: []Extremum{{Optimal, 0xffff}},
			},
		},
		{
			name: "bool objective",
			src: `
(declare-const p Bool)
(declare-const x (_ BitVec 2))
(assert (=> p (= x #b11)))
(assert (= x #b01))`,
			objectives: []string{"p"},
			expected: expected{
				min: []Extremum{{Optimal, 0}},
				max: []Extremum{{Optimal, 0}},
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s, f := script(t, tt.src)
			objs := terms(t, s, tt.objectives...)
			o := newOptimizer(t)

			min, err := o.MinimizeAll(context.Background(), f, objs, 15*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.expected.min, min)

			max, err := o.MaximizeAll(context.Background(), f, objs, 15*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.expected.max, max)
		})
	}
}

func TestOptimizeCancelled(t *testing.T) {
	s, f := script(t, `
(declare-const x (_ BitVec 8))
(assert (bvugt x #x10))`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exts, err := newOptimizer(t).MinimizeAll(ctx, f, terms(t, s, "x"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{Status: Unknown}}, exts)
	assert.False(t, exts[0].Status.HasValue())
}

func TestOptimizeRejectsMalformedInput(t *testing.T) {
	s, f := script(t, `(declare-const x (_ BitVec 8)) (assert (= x #x01))`)
	o := newOptimizer(t)

	_, err := o.MinimizeAll(context.Background(), terms(t, s, "x")[0], nil, 0)
	assert.Error(t, err)

	_, err = o.MaximizeAll(context.Background(), f, []*bv.Term{nil}, 0)
	assert.Error(t, err)
}

func TestLoggingTracer(t *testing.T) {
	s, f := script(t, `
(declare-const x (_ BitVec 8))
(assert (bvuge x #x05))`)
	var buf bytes.Buffer
	o := newOptimizer(t, WithTracer(LoggingTracer{Writer: &buf}))

	exts, err := o.MinimizeAll(context.Background(), f, terms(t, s, "x"), 0)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{Optimal, 5}}, exts)
	assert.Contains(t, buf.String(), "Objective: x\nDirection: min\n")
}

func TestPositionLoosen(t *testing.T) {
	for _, tt := range []struct {
		dir      Direction
		model    uint64
		open     uint
		expected uint64
	}{
		{dir: Minimize, model: 0xb6, open: 4, expected: 0xb0},
		{dir: Maximize, model: 0xb6, open: 4, expected: 0xbf},
		{dir: Minimize, model: 0xb6, open: 8, expected: 0},
		{dir: Maximize, model: 0xb6, open: 8, expected: 0xff},
		{dir: Maximize, model: 0xb6, open: 0, expected: 0xb6},
	} {
		t.Run(fmt.Sprintf("%s/%d", tt.dir, tt.open), func(t *testing.T) {
			p := &position{dir: tt.dir, lits: make(bits, 8), model: tt.model}
			assert.Equal(t, tt.expected, p.loosen(tt.open))
		})
	}
}

func TestEvaluate(t *testing.T) {
	_, f := script(t, `
(declare-const x (_ BitVec 8))
(assert (= (bvand x #x0f) #x03))`)
	o := newOptimizer(t)

	for _, tt := range []struct {
		x        uint64
		expected bool
	}{
		{x: 0x03, expected: true},
		{x: 0xf3, expected: true},
		{x: 0x04, expected: false},
	} {
		ok, err := o.Evaluate(f, bv.Model{"x": tt.x})
		require.NoError(t, err)
		assert.Equal(t, tt.expected, ok)
	}
	assert.Len(t, o.programs, 1)

	_, err := o.Evaluate(f, bv.Model{})
	assert.Error(t, err)

	c, err := bv.Const(1, 8)
	require.NoError(t, err)
	_, err = o.Evaluate(c, bv.Model{})
	assert.Error(t, err)
}

func TestInterval(t *testing.T) {
	for _, tt := range []struct {
		name     string
		src      string
		query    string
		expected string
	}{
		{
			name: "bounded query",
			src: `
(declare-const x (_ BitVec 8))
(assert (bvult x #x10))`,
			query:    "(bvadd x #x01)",
			expected: "[1, 16]",
		},
		{
			name: "infeasible precondition",
			src: `
(declare-const x (_ BitVec 8))
(assert (distinct x x))`,
			query:    "x",
			expected: "[infeasible, infeasible]",
		},
		{
			name: "bool query",
			src: `
(declare-const x (_ BitVec 8))`,
			query:    "(= x #x00)",
			expected: "[error, error]",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s, f := script(t, tt.src)
			q := terms(t, s, tt.query)[0]
			i := newOptimizer(t).Interval(context.Background(), f, q, time.Second)
			assert.Equal(t, tt.expected, i.String())
		})
	}
}
