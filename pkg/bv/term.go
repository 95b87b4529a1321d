package bv

import (
	"fmt"

	"github.com/pkg/errors"
)

// MaxWidth is the widest bit-vector sort a Term may have. Values of
// every sort fit in a uint64.
const MaxWidth = 64

// Op identifies the operator at the root of a Term.
type Op uint8

const (
	OpInvalid Op = iota
	OpTrue
	OpFalse
	OpConst
	OpVar

	OpNot
	OpAnd
	OpOr
	OpXor
	OpImplies
	OpEq
	OpDistinct
	OpIte

	OpBVNot
	OpBVNeg
	OpBVAnd
	OpBVOr
	OpBVXor
	OpBVAdd
	OpBVSub
	OpBVMul
	OpBVUDiv
	OpBVURem
	OpBVShl
	OpBVLShr
	OpBVAShr
	OpBVComp
	OpConcat
	OpExtract
	OpZeroExtend
	OpSignExtend
	OpRotateLeft
	OpRotateRight

	OpULT
	OpULE
	OpUGT
	OpUGE
	OpSLT
	OpSLE
	OpSGT
	OpSGE

	numOps
)

var opNames = [numOps]string{
	OpInvalid:     "invalid",
	OpTrue:        "true",
	OpFalse:       "false",
	OpConst:       "const",
	OpVar:         "var",
	OpNot:         "not",
	OpAnd:         "and",
	OpOr:          "or",
	OpXor:         "xor",
	OpImplies:     "=>",
	OpEq:          "=",
	OpDistinct:    "distinct",
	OpIte:         "ite",
	OpBVNot:       "bvnot",
	OpBVNeg:       "bvneg",
	OpBVAnd:       "bvand",
	OpBVOr:        "bvor",
	OpBVXor:       "bvxor",
	OpBVAdd:       "bvadd",
	OpBVSub:       "bvsub",
	OpBVMul:       "bvmul",
	OpBVUDiv:      "bvudiv",
	OpBVURem:      "bvurem",
	OpBVShl:       "bvshl",
	OpBVLShr:      "bvlshr",
	OpBVAShr:      "bvashr",
	OpBVComp:      "bvcomp",
	OpConcat:      "concat",
	OpExtract:     "extract",
	OpZeroExtend:  "zero_extend",
	OpSignExtend:  "sign_extend",
	OpRotateLeft:  "rotate_left",
	OpRotateRight: "rotate_right",
	OpULT:         "bvult",
	OpULE:         "bvule",
	OpUGT:         "bvugt",
	OpUGE:         "bvuge",
	OpSLT:         "bvslt",
	OpSLE:         "bvsle",
	OpSGT:         "bvsgt",
	OpSGE:         "bvsge",
}

func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Indexed reports whether the operator takes numeric indices, as in
// ((_ extract 7 4) x).
func (o Op) Indexed() bool {
	switch o {
	case OpExtract, OpZeroExtend, OpSignExtend, OpRotateLeft, OpRotateRight:
		return true
	}
	return false
}

// Sort is either Bool (zero Width) or a bit-vector of Width bits.
type Sort struct {
	Width uint
}

// BoolSort is the sort of formulas.
var BoolSort = Sort{}

// BitVec returns the bit-vector sort of the given width.
func BitVec(width uint) Sort {
	return Sort{Width: width}
}

func (s Sort) IsBool() bool {
	return s.Width == 0
}

// Bits returns the number of bits needed to hold a value of the
// sort. Bool values occupy a single bit.
func (s Sort) Bits() uint {
	if s.IsBool() {
		return 1
	}
	return s.Width
}

func (s Sort) String() string {
	if s.IsBool() {
		return "Bool"
	}
	return fmt.Sprintf("(_ BitVec %d)", s.Width)
}

// Mask returns the value with the low w bits set.
func Mask(w uint) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<w - 1
}

// MaxValue is the largest unsigned value representable in the sort.
func (s Sort) MaxValue() uint64 {
	return Mask(s.Bits())
}

// Term is a node of an immutable formula DAG. Terms are built with
// the constructors in this package and are never modified
// afterwards, so sub-terms may be freely shared.
type Term struct {
	Op   Op
	Sort Sort
	Args []*Term

	// Value holds the constant of an OpConst term.
	Value uint64
	// Name holds the symbol of an OpVar term.
	Name string
	// Hi and Lo hold the indices of extract. Lo also holds the
	// amount of zero_extend, sign_extend and the rotations.
	Hi, Lo uint
}

var (
	trueTerm  = &Term{Op: OpTrue}
	falseTerm = &Term{Op: OpFalse}
)

// True returns the Boolean constant true.
func True() *Term {
	return trueTerm
}

// False returns the Boolean constant false.
func False() *Term {
	return falseTerm
}

// Bool returns the Boolean constant b.
func Bool(b bool) *Term {
	if b {
		return trueTerm
	}
	return falseTerm
}

// Const returns the bit-vector constant v of the given width. Bits
// of v above the width are discarded.
func Const(v uint64, width uint) (*Term, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	return &Term{Op: OpConst, Sort: BitVec(width), Value: v & Mask(width)}, nil
}

// Var returns a free constant symbol of the given sort.
func Var(name string, sort Sort) (*Term, error) {
	if name == "" {
		return nil, errors.New("variable name must not be empty")
	}
	if !sort.IsBool() {
		if err := checkWidth(sort.Width); err != nil {
			return nil, errors.Wrapf(err, "variable %s", name)
		}
	}
	return &Term{Op: OpVar, Sort: sort, Name: name}, nil
}

// IsVar reports whether t is a free constant symbol.
func (t *Term) IsVar() bool {
	return t != nil && t.Op == OpVar
}

func checkWidth(w uint) error {
	if w == 0 || w > MaxWidth {
		return errors.Errorf("bit-vector width %d out of range [1, %d]", w, MaxWidth)
	}
	return nil
}

// SortError reports an operator applied to arguments of the wrong
// sort or arity.
type SortError struct {
	Op  Op
	Msg string
}

func (e *SortError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func sortErrorf(op Op, format string, args ...interface{}) error {
	return &SortError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Apply builds the application of op to args, checking sorts.
// Indexed operators take their indices from params: extract takes
// (hi, lo), the others a single amount.
func Apply(op Op, params []uint, args ...*Term) (*Term, error) {
	for i, a := range args {
		if a == nil {
			return nil, sortErrorf(op, "argument %d is nil", i)
		}
	}
	if op.Indexed() {
		return applyIndexed(op, params, args)
	}
	if len(params) != 0 {
		return nil, sortErrorf(op, "operator takes no indices")
	}

	t := &Term{Op: op, Args: args}
	switch op {
	case OpNot:
		if err := arity(op, args, 1, 1); err != nil {
			return nil, err
		}
		if err := allBool(op, args); err != nil {
			return nil, err
		}
	case OpAnd, OpOr:
		if err := arity(op, args, 1, -1); err != nil {
			return nil, err
		}
		if err := allBool(op, args); err != nil {
			return nil, err
		}
	case OpXor, OpImplies:
		if err := arity(op, args, 2, -1); err != nil {
			return nil, err
		}
		if err := allBool(op, args); err != nil {
			return nil, err
		}
	case OpEq, OpDistinct:
		if err := arity(op, args, 2, -1); err != nil {
			return nil, err
		}
		if err := sameSort(op, args); err != nil {
			return nil, err
		}
	case OpIte:
		if err := arity(op, args, 3, 3); err != nil {
			return nil, err
		}
		if !args[0].Sort.IsBool() {
			return nil, sortErrorf(op, "condition must be Bool, got %s", args[0].Sort)
		}
		if err := sameSort(op, args[1:]); err != nil {
			return nil, err
		}
		t.Sort = args[1].Sort
	case OpBVNot, OpBVNeg:
		if err := arity(op, args, 1, 1); err != nil {
			return nil, err
		}
		if err := allBitVec(op, args); err != nil {
			return nil, err
		}
		t.Sort = args[0].Sort
	case OpBVAnd, OpBVOr, OpBVXor, OpBVAdd, OpBVSub, OpBVMul:
		if err := arity(op, args, 2, -1); err != nil {
			return nil, err
		}
		if err := allBitVec(op, args); err != nil {
			return nil, err
		}
		if err := sameSort(op, args); err != nil {
			return nil, err
		}
		t.Sort = args[0].Sort
	case OpBVUDiv, OpBVURem, OpBVShl, OpBVLShr, OpBVAShr:
		if err := arity(op, args, 2, 2); err != nil {
			return nil, err
		}
		if err := allBitVec(op, args); err != nil {
			return nil, err
		}
		if err := sameSort(op, args); err != nil {
			return nil, err
		}
		t.Sort = args[0].Sort
	case OpBVComp:
		if err := arity(op, args, 2, 2); err != nil {
			return nil, err
		}
		if err := allBitVec(op, args); err != nil {
			return nil, err
		}
		if err := sameSort(op, args); err != nil {
			return nil, err
		}
		t.Sort = BitVec(1)
	case OpULT, OpULE, OpUGT, OpUGE, OpSLT, OpSLE, OpSGT, OpSGE:
		if err := arity(op, args, 2, 2); err != nil {
			return nil, err
		}
		if err := allBitVec(op, args); err != nil {
			return nil, err
		}
		if err := sameSort(op, args); err != nil {
			return nil, err
		}
	case OpConcat:
		if err := arity(op, args, 2, -1); err != nil {
			return nil, err
		}
		if err := allBitVec(op, args); err != nil {
			return nil, err
		}
		var w uint
		for _, a := range args {
			w += a.Sort.Width
		}
		if w > MaxWidth {
			return nil, sortErrorf(op, "result width %d exceeds %d", w, MaxWidth)
		}
		t.Sort = BitVec(w)
	default:
		return nil, sortErrorf(op, "not an applicable operator")
	}
	return t, nil
}

func applyIndexed(op Op, params []uint, args []*Term) (*Term, error) {
	if err := arity(op, args, 1, 1); err != nil {
		return nil, err
	}
	if err := allBitVec(op, args); err != nil {
		return nil, err
	}
	w := args[0].Sort.Width
	t := &Term{Op: op, Args: args}
	switch op {
	case OpExtract:
		if len(params) != 2 {
			return nil, sortErrorf(op, "expected 2 indices, got %d", len(params))
		}
		hi, lo := params[0], params[1]
		if hi < lo || hi >= w {
			return nil, sortErrorf(op, "indices %d %d invalid for width %d", hi, lo, w)
		}
		t.Hi, t.Lo = hi, lo
		t.Sort = BitVec(hi - lo + 1)
	case OpZeroExtend, OpSignExtend:
		if len(params) != 1 {
			return nil, sortErrorf(op, "expected 1 index, got %d", len(params))
		}
		if w+params[0] > MaxWidth {
			return nil, sortErrorf(op, "result width %d exceeds %d", w+params[0], MaxWidth)
		}
		t.Lo = params[0]
		t.Sort = BitVec(w + params[0])
	case OpRotateLeft, OpRotateRight:
		if len(params) != 1 {
			return nil, sortErrorf(op, "expected 1 index, got %d", len(params))
		}
		t.Lo = params[0] % w
		t.Sort = args[0].Sort
	}
	return t, nil
}

func arity(op Op, args []*Term, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return sortErrorf(op, "wrong number of arguments: %d", len(args))
	}
	return nil
}

func allBool(op Op, args []*Term) error {
	for i, a := range args {
		if !a.Sort.IsBool() {
			return sortErrorf(op, "argument %d must be Bool, got %s", i, a.Sort)
		}
	}
	return nil
}

func allBitVec(op Op, args []*Term) error {
	for i, a := range args {
		if a.Sort.IsBool() {
			return sortErrorf(op, "argument %d must be a bit-vector, got Bool", i)
		}
	}
	return nil
}

func sameSort(op Op, args []*Term) error {
	for i := 1; i < len(args); i++ {
		if args[i].Sort != args[0].Sort {
			return sortErrorf(op, "argument sorts differ: %s and %s", args[0].Sort, args[i].Sort)
		}
	}
	return nil
}

// And returns the conjunction of fs. The conjunction of no formulas
// is true and that of a single formula is the formula itself.
func And(fs ...*Term) (*Term, error) {
	switch len(fs) {
	case 0:
		return True(), nil
	case 1:
		if fs[0] == nil {
			return nil, sortErrorf(OpAnd, "argument 0 is nil")
		}
		if err := allBool(OpAnd, fs); err != nil {
			return nil, err
		}
		return fs[0], nil
	}
	return Apply(OpAnd, nil, fs...)
}
