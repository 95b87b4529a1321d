package solver

import (
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/pkg/errors"

	"github.com/regioncount/regioncount/pkg/bv"
)

// bits holds the literals of a bit-vector, least significant first.
// A Bool is a single bit.
type bits []z.Lit

// blaster translates terms into an And-Inverter circuit. Every
// distinct sub-term is translated once; free constants with the same
// name share their literals.
type blaster struct {
	c     *logic.C
	memo  map[*bv.Term]bits
	vars  map[string]bits
	sorts map[string]bv.Sort
}

func newBlaster() *blaster {
	return &blaster{
		c:     logic.NewCCap(1024),
		memo:  make(map[*bv.Term]bits),
		vars:  make(map[string]bits),
		sorts: make(map[string]bv.Sort),
	}
}

func (b *blaster) constant(v uint64, w uint) bits {
	out := make(bits, w)
	for i := range out {
		if v>>uint(i)&1 == 1 {
			out[i] = b.c.T
		} else {
			out[i] = b.c.F
		}
	}
	return out
}

func (b *blaster) blast(t *bv.Term) (bits, error) {
	if t == nil {
		return nil, errors.New("cannot translate a nil term")
	}
	if out, ok := b.memo[t]; ok {
		return out, nil
	}

	if t.Op == bv.OpVar {
		if s, ok := b.sorts[t.Name]; ok {
			if s != t.Sort {
				return nil, errors.Errorf("variable %q used with sorts %s and %s", t.Name, s, t.Sort)
			}
			b.memo[t] = b.vars[t.Name]
			return b.vars[t.Name], nil
		}
		out := make(bits, t.Sort.Bits())
		for i := range out {
			out[i] = b.c.Lit()
		}
		b.sorts[t.Name] = t.Sort
		b.vars[t.Name] = out
		b.memo[t] = out
		return out, nil
	}

	args := make([]bits, len(t.Args))
	for i, a := range t.Args {
		r, err := b.blast(a)
		if err != nil {
			return nil, err
		}
		args[i] = r
	}
	out, err := b.apply(t, args)
	if err != nil {
		return nil, err
	}
	b.memo[t] = out
	return out, nil
}

func (b *blaster) apply(t *bv.Term, args []bits) (bits, error) {
	c := b.c
	switch t.Op {
	case bv.OpTrue:
		return bits{c.T}, nil
	case bv.OpFalse:
		return bits{c.F}, nil
	case bv.OpConst:
		return b.constant(t.Value, t.Sort.Width), nil
	}
	if len(args) == 0 {
		return nil, errors.Errorf("operator %s has no arguments", t.Op)
	}

	switch t.Op {
	case bv.OpNot:
		return bits{args[0][0].Not()}, nil
	case bv.OpAnd:
		ms := make([]z.Lit, len(args))
		for i, a := range args {
			ms[i] = a[0]
		}
		return bits{c.Ands(ms...)}, nil
	case bv.OpOr:
		ms := make([]z.Lit, len(args))
		for i, a := range args {
			ms[i] = a[0]
		}
		return bits{c.Ors(ms...)}, nil
	case bv.OpXor:
		r := args[0][0]
		for _, a := range args[1:] {
			r = c.Xor(r, a[0])
		}
		return bits{r}, nil
	case bv.OpImplies:
		r := args[len(args)-1][0]
		for i := len(args) - 2; i >= 0; i-- {
			r = c.Implies(args[i][0], r)
		}
		return bits{r}, nil
	case bv.OpEq:
		ms := make([]z.Lit, 0, len(args)-1)
		for _, a := range args[1:] {
			ms = append(ms, b.equal(args[0], a))
		}
		return bits{c.Ands(ms...)}, nil
	case bv.OpDistinct:
		var ms []z.Lit
		for i := range args {
			for j := i + 1; j < len(args); j++ {
				ms = append(ms, b.equal(args[i], args[j]).Not())
			}
		}
		return bits{c.Ands(ms...)}, nil
	case bv.OpIte:
		return b.mux(args[0][0], args[1], args[2]), nil

	case bv.OpBVNot:
		return b.not(args[0]), nil
	case bv.OpBVNeg:
		return b.add(b.not(args[0]), b.constant(0, uint(len(args[0]))), c.T), nil
	case bv.OpBVAnd, bv.OpBVOr, bv.OpBVXor:
		r := args[0]
		for _, a := range args[1:] {
			r = b.bitwise(t.Op, r, a)
		}
		return r, nil
	case bv.OpBVAdd:
		r := args[0]
		for _, a := range args[1:] {
			r = b.add(r, a, c.F)
		}
		return r, nil
	case bv.OpBVSub:
		r := args[0]
		for _, a := range args[1:] {
			r = b.add(r, b.not(a), c.T)
		}
		return r, nil
	case bv.OpBVMul:
		r := args[0]
		for _, a := range args[1:] {
			r = b.mul(r, a)
		}
		return r, nil
	case bv.OpBVUDiv:
		q, _ := b.divmod(args[0], args[1])
		return q, nil
	case bv.OpBVURem:
		_, r := b.divmod(args[0], args[1])
		return r, nil
	case bv.OpBVShl, bv.OpBVLShr, bv.OpBVAShr:
		return b.shift(t.Op, args[0], args[1]), nil
	case bv.OpBVComp:
		return bits{b.equal(args[0], args[1])}, nil
	case bv.OpConcat:
		var out bits
		for i := len(args) - 1; i >= 0; i-- {
			out = append(out, args[i]...)
		}
		return out, nil
	case bv.OpExtract:
		return append(bits(nil), args[0][t.Lo:t.Hi+1]...), nil
	case bv.OpZeroExtend, bv.OpSignExtend:
		a := args[0]
		fill := c.F
		if t.Op == bv.OpSignExtend {
			fill = a[len(a)-1]
		}
		out := append(bits(nil), a...)
		for i := uint(0); i < t.Lo; i++ {
			out = append(out, fill)
		}
		return out, nil
	case bv.OpRotateLeft, bv.OpRotateRight:
		a := args[0]
		w := uint(len(a))
		out := make(bits, w)
		for i := uint(0); i < w; i++ {
			if t.Op == bv.OpRotateLeft {
				out[i] = a[(i+w-t.Lo)%w]
			} else {
				out[i] = a[(i+t.Lo)%w]
			}
		}
		return out, nil

	case bv.OpULT:
		return bits{b.ult(args[0], args[1])}, nil
	case bv.OpULE:
		return bits{b.ult(args[1], args[0]).Not()}, nil
	case bv.OpUGT:
		return bits{b.ult(args[1], args[0])}, nil
	case bv.OpUGE:
		return bits{b.ult(args[0], args[1]).Not()}, nil
	case bv.OpSLT:
		return bits{b.ult(flipSign(args[0]), flipSign(args[1]))}, nil
	case bv.OpSLE:
		return bits{b.ult(flipSign(args[1]), flipSign(args[0])).Not()}, nil
	case bv.OpSGT:
		return bits{b.ult(flipSign(args[1]), flipSign(args[0]))}, nil
	case bv.OpSGE:
		return bits{b.ult(flipSign(args[0]), flipSign(args[1])).Not()}, nil
	}
	return nil, errors.Errorf("cannot translate operator %s", t.Op)
}

func flipSign(a bits) bits {
	out := append(bits(nil), a...)
	out[len(out)-1] = out[len(out)-1].Not()
	return out
}

func (b *blaster) not(a bits) bits {
	out := make(bits, len(a))
	for i, m := range a {
		out[i] = m.Not()
	}
	return out
}

func (b *blaster) bitwise(op bv.Op, x, y bits) bits {
	out := make(bits, len(x))
	for i := range x {
		switch op {
		case bv.OpBVAnd:
			out[i] = b.c.And(x[i], y[i])
		case bv.OpBVOr:
			out[i] = b.c.Or(x[i], y[i])
		default:
			out[i] = b.c.Xor(x[i], y[i])
		}
	}
	return out
}

func (b *blaster) equal(x, y bits) z.Lit {
	ms := make([]z.Lit, len(x))
	for i := range x {
		ms[i] = b.c.Xor(x[i], y[i]).Not()
	}
	return b.c.Ands(ms...)
}

func (b *blaster) mux(cond z.Lit, x, y bits) bits {
	out := make(bits, len(x))
	for i := range x {
		out[i] = b.c.Choice(cond, x[i], y[i])
	}
	return out
}

// add is a ripple-carry adder; the carry out is dropped.
func (b *blaster) add(x, y bits, carry z.Lit) bits {
	c := b.c
	out := make(bits, len(x))
	for i := range x {
		s := c.Xor(x[i], y[i])
		out[i] = c.Xor(s, carry)
		carry = c.Or(c.And(x[i], y[i]), c.And(carry, s))
	}
	return out
}

func (b *blaster) mul(x, y bits) bits {
	w := len(x)
	acc := b.constant(0, uint(w))
	for i := 0; i < w; i++ {
		partial := make(bits, w)
		for j := 0; j < w; j++ {
			if j < i {
				partial[j] = b.c.F
				continue
			}
			partial[j] = b.c.And(y[i], x[j-i])
		}
		acc = b.add(acc, partial, b.c.F)
	}
	return acc
}

// ult reports x < y, unsigned.
func (b *blaster) ult(x, y bits) z.Lit {
	c := b.c
	lt := c.F
	for i := range x {
		lt = c.Choice(c.Xor(x[i], y[i]), y[i], lt)
	}
	return lt
}

// divmod is restoring division. A zero divisor yields an all-ones
// quotient and the dividend as remainder.
func (b *blaster) divmod(x, y bits) (bits, bits) {
	c := b.c
	w := len(x)
	q := make(bits, w)
	r := b.constant(0, uint(w))
	divisor := append(append(bits(nil), y...), c.F)
	for i := w - 1; i >= 0; i-- {
		shifted := append(bits{x[i]}, r...)
		ge := b.ult(shifted, divisor).Not()
		diff := b.add(shifted, b.not(divisor), c.T)
		q[i] = ge
		r = b.mux(ge, diff, shifted)[:w]
	}
	return q, r
}

func (b *blaster) shift(op bv.Op, x, amount bits) bits {
	c := b.c
	w := len(x)
	fill := c.F
	if op == bv.OpBVAShr {
		fill = x[w-1]
	}

	cur := x
	overflow := c.F
	for k := range amount {
		if k >= 7 || 1<<uint(k) >= w {
			overflow = c.Or(overflow, amount[k])
			continue
		}
		dist := 1 << uint(k)
		moved := make(bits, w)
		for i := 0; i < w; i++ {
			var src int
			if op == bv.OpBVShl {
				src = i - dist
			} else {
				src = i + dist
			}
			if src < 0 || src >= w {
				moved[i] = fill
				continue
			}
			moved[i] = cur[src]
		}
		cur = b.mux(amount[k], moved, cur)
	}

	filled := make(bits, w)
	for i := range filled {
		filled[i] = fill
	}
	return b.mux(overflow, filled, cur)
}
