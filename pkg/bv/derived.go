package bv

// The operators below have no primitive Op. They are expanded into
// primitive terms following their SMT-LIB definitions.

// builder keeps the first error of a chain of applications so that
// expansions read like the definitions they follow.
type builder struct {
	err error
}

func (b *builder) app(op Op, params []uint, args ...*Term) *Term {
	if b.err != nil {
		return nil
	}
	t, err := Apply(op, params, args...)
	if err != nil {
		b.err = err
	}
	return t
}

func (b *builder) constant(v uint64, w uint) *Term {
	if b.err != nil {
		return nil
	}
	t, err := Const(v, w)
	if err != nil {
		b.err = err
	}
	return t
}

func (b *builder) msbIsZero(t *Term) *Term {
	if b.err != nil {
		return nil
	}
	if t == nil || t.Sort.IsBool() {
		b.err = sortErrorf(OpExtract, "signed operators need bit-vector arguments")
		return nil
	}
	w := t.Sort.Width
	return b.app(OpEq, nil, b.app(OpExtract, []uint{w - 1, w - 1}, t), b.constant(0, 1))
}

// Nand returns (bvnand s t).
func Nand(s, t *Term) (*Term, error) {
	var b builder
	r := b.app(OpBVNot, nil, b.app(OpBVAnd, nil, s, t))
	return r, b.err
}

// Nor returns (bvnor s t).
func Nor(s, t *Term) (*Term, error) {
	var b builder
	r := b.app(OpBVNot, nil, b.app(OpBVOr, nil, s, t))
	return r, b.err
}

// Xnor returns (bvxnor s t).
func Xnor(s, t *Term) (*Term, error) {
	var b builder
	r := b.app(OpBVNot, nil, b.app(OpBVXor, nil, s, t))
	return r, b.err
}

// Repeat returns ((_ repeat n) t).
func Repeat(n uint, t *Term) (*Term, error) {
	if n == 0 {
		return nil, sortErrorf(OpConcat, "repeat count must be positive")
	}
	if n == 1 {
		return t, nil
	}
	args := make([]*Term, n)
	for i := range args {
		args[i] = t
	}
	return Apply(OpConcat, nil, args...)
}

// SDiv returns (bvsdiv s t).
func SDiv(s, t *Term) (*Term, error) {
	var b builder
	ms, mt := b.msbIsZero(s), b.msbIsZero(t)
	negS, negT := b.app(OpBVNeg, nil, s), b.app(OpBVNeg, nil, t)
	r := b.app(OpIte, nil, b.app(OpAnd, nil, ms, mt),
		b.app(OpBVUDiv, nil, s, t),
		b.app(OpIte, nil, b.app(OpAnd, nil, b.app(OpNot, nil, ms), mt),
			b.app(OpBVNeg, nil, b.app(OpBVUDiv, nil, negS, t)),
			b.app(OpIte, nil, b.app(OpAnd, nil, ms, b.app(OpNot, nil, mt)),
				b.app(OpBVNeg, nil, b.app(OpBVUDiv, nil, s, negT)),
				b.app(OpBVUDiv, nil, negS, negT))))
	return r, b.err
}

// SRem returns (bvsrem s t). The sign follows the dividend.
func SRem(s, t *Term) (*Term, error) {
	var b builder
	ms, mt := b.msbIsZero(s), b.msbIsZero(t)
	negS, negT := b.app(OpBVNeg, nil, s), b.app(OpBVNeg, nil, t)
	r := b.app(OpIte, nil, ms,
		b.app(OpIte, nil, mt,
			b.app(OpBVURem, nil, s, t),
			b.app(OpBVURem, nil, s, negT)),
		b.app(OpIte, nil, mt,
			b.app(OpBVNeg, nil, b.app(OpBVURem, nil, negS, t)),
			b.app(OpBVNeg, nil, b.app(OpBVURem, nil, negS, negT))))
	return r, b.err
}

// SMod returns (bvsmod s t). The sign follows the divisor.
func SMod(s, t *Term) (*Term, error) {
	var b builder
	ms, mt := b.msbIsZero(s), b.msbIsZero(t)
	absS := b.app(OpIte, nil, ms, s, b.app(OpBVNeg, nil, s))
	absT := b.app(OpIte, nil, mt, t, b.app(OpBVNeg, nil, t))
	u := b.app(OpBVURem, nil, absS, absT)
	var zero *Term
	if s != nil && !s.Sort.IsBool() {
		zero = b.constant(0, s.Sort.Width)
	}
	r := b.app(OpIte, nil, b.app(OpEq, nil, u, zero),
		u,
		b.app(OpIte, nil, b.app(OpAnd, nil, ms, mt),
			u,
			b.app(OpIte, nil, b.app(OpAnd, nil, b.app(OpNot, nil, ms), mt),
				b.app(OpBVAdd, nil, b.app(OpBVNeg, nil, u), t),
				b.app(OpIte, nil, b.app(OpAnd, nil, ms, b.app(OpNot, nil, mt)),
					b.app(OpBVAdd, nil, u, t),
					b.app(OpBVNeg, nil, u)))))
	return r, b.err
}
