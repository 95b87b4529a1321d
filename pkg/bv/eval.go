package bv

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Model binds variable names to concrete values. Bool variables are
// bound to 0 or 1.
type Model map[string]uint64

// UnboundVariableError is returned when a formula is evaluated under
// a Model that does not bind one of its variables.
type UnboundVariableError struct {
	Name string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("variable %q is not bound by the model", e.Name)
}

// node is one instruction of a compiled Program. Arguments refer to
// earlier instructions, so evaluation is a single forward pass.
type node struct {
	op     Op
	width  uint // zero for Bool results
	args   []int
	value  uint64
	hi, lo uint
	// argWidth is the width of the first argument, needed by
	// operators whose semantics depend on it.
	argWidth uint
	slot     int
}

// Program is a formula compiled for repeated evaluation over a fixed
// order of variables. A Program is not safe for concurrent use.
type Program struct {
	nodes []node
	names []string
	regs  []uint64
}

// Compile translates the formula rooted at t into a Program. Every
// shared sub-term is compiled once. Variables are ordered by name.
func Compile(t *Term) (*Program, error) {
	if t == nil {
		return nil, errors.New("cannot compile a nil term")
	}
	c := compiler{
		index: make(map[*Term]int),
		slots: make(map[string]int),
	}
	if _, err := c.compile(t); err != nil {
		return nil, err
	}

	// Renumber slots so that they follow name order.
	names := make([]string, 0, len(c.slots))
	for name := range c.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	renumber := make([]int, len(names))
	for i, name := range names {
		renumber[c.slots[name]] = i
	}
	for i := range c.nodes {
		if c.nodes[i].op == OpVar {
			c.nodes[i].slot = renumber[c.nodes[i].slot]
		}
	}

	return &Program{
		nodes: c.nodes,
		names: names,
		regs:  make([]uint64, len(c.nodes)),
	}, nil
}

type compiler struct {
	nodes []node
	index map[*Term]int
	slots map[string]int
	sorts map[string]Sort
}

func (c *compiler) compile(t *Term) (int, error) {
	if i, ok := c.index[t]; ok {
		return i, nil
	}
	n := node{
		op:    t.Op,
		width: t.Sort.Width,
		value: t.Value,
		hi:    t.Hi,
		lo:    t.Lo,
	}
	switch t.Op {
	case OpTrue, OpFalse, OpConst:
	case OpVar:
		if c.sorts == nil {
			c.sorts = make(map[string]Sort)
		}
		if s, ok := c.sorts[t.Name]; ok && s != t.Sort {
			return 0, errors.Errorf("variable %q used with sorts %s and %s", t.Name, s, t.Sort)
		}
		c.sorts[t.Name] = t.Sort
		slot, ok := c.slots[t.Name]
		if !ok {
			slot = len(c.slots)
			c.slots[t.Name] = slot
		}
		n.slot = slot
	default:
		if t.Op == OpInvalid || t.Op >= numOps {
			return 0, errors.Errorf("cannot compile operator %s", t.Op)
		}
		if len(t.Args) == 0 {
			return 0, errors.Errorf("operator %s has no arguments", t.Op)
		}
		n.args = make([]int, len(t.Args))
		for i, a := range t.Args {
			if a == nil {
				return 0, errors.Errorf("operator %s has a nil argument", t.Op)
			}
			j, err := c.compile(a)
			if err != nil {
				return 0, err
			}
			n.args[i] = j
		}
		n.argWidth = t.Args[0].Sort.Width
	}
	c.nodes = append(c.nodes, n)
	i := len(c.nodes) - 1
	c.index[t] = i
	return i, nil
}

// Vars returns the names of the variables of the program, in the
// order expected by Eval.
func (p *Program) Vars() []string {
	return p.names
}

// Eval evaluates the program with values[i] bound to the i-th
// variable of Vars. Values are truncated to the width of their
// variable.
func (p *Program) Eval(values []uint64) (uint64, error) {
	if len(values) != len(p.names) {
		return 0, errors.Errorf("expected %d values, got %d", len(p.names), len(values))
	}
	for i := range p.nodes {
		n := &p.nodes[i]
		if n.op == OpVar {
			p.regs[i] = values[n.slot] & Mask(bitsOf(n.width))
			continue
		}
		p.regs[i] = p.step(n)
	}
	return p.regs[len(p.regs)-1], nil
}

// EvalModel evaluates the program under the bindings of m.
func (p *Program) EvalModel(m Model) (uint64, error) {
	values := make([]uint64, len(p.names))
	for i, name := range p.names {
		v, ok := m[name]
		if !ok {
			return 0, &UnboundVariableError{Name: name}
		}
		values[i] = v
	}
	return p.Eval(values)
}

// Satisfied evaluates a Bool program under m.
func (p *Program) Satisfied(m Model) (bool, error) {
	v, err := p.EvalModel(m)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Evaluate reports whether formula is true under m. Every variable of
// formula must be bound by m.
func Evaluate(formula *Term, m Model) (bool, error) {
	if formula == nil {
		return false, errors.New("cannot evaluate a nil formula")
	}
	if !formula.Sort.IsBool() {
		return false, errors.Errorf("cannot evaluate a term of sort %s as a formula", formula.Sort)
	}
	p, err := Compile(formula)
	if err != nil {
		return false, err
	}
	return p.Satisfied(m)
}

// Value evaluates a term of any sort under m.
func Value(t *Term, m Model) (uint64, error) {
	p, err := Compile(t)
	if err != nil {
		return 0, err
	}
	return p.EvalModel(m)
}

func bitsOf(w uint) uint {
	if w == 0 {
		return 1
	}
	return w
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func toSigned(v uint64, w uint) int64 {
	shift := 64 - w
	return int64(v<<shift) >> shift
}

func (p *Program) arg(n *node, i int) uint64 {
	return p.regs[n.args[i]]
}

func (p *Program) step(n *node) uint64 {
	m := Mask(n.width)
	switch n.op {
	case OpTrue:
		return 1
	case OpFalse:
		return 0
	case OpConst:
		return n.value

	case OpNot:
		return p.arg(n, 0) ^ 1
	case OpAnd:
		for i := range n.args {
			if p.arg(n, i) == 0 {
				return 0
			}
		}
		return 1
	case OpOr:
		for i := range n.args {
			if p.arg(n, i) != 0 {
				return 1
			}
		}
		return 0
	case OpXor:
		var r uint64
		for i := range n.args {
			r ^= p.arg(n, i)
		}
		return r
	case OpImplies:
		// Right associative: a => b => c is a => (b => c).
		r := p.arg(n, len(n.args)-1)
		for i := len(n.args) - 2; i >= 0; i-- {
			r = b2u(p.arg(n, i) == 0 || r != 0)
		}
		return r
	case OpEq:
		for i := 1; i < len(n.args); i++ {
			if p.arg(n, i) != p.arg(n, 0) {
				return 0
			}
		}
		return 1
	case OpDistinct:
		for i := range n.args {
			for j := i + 1; j < len(n.args); j++ {
				if p.arg(n, i) == p.arg(n, j) {
					return 0
				}
			}
		}
		return 1
	case OpIte:
		if p.arg(n, 0) != 0 {
			return p.arg(n, 1)
		}
		return p.arg(n, 2)

	case OpBVNot:
		return ^p.arg(n, 0) & m
	case OpBVNeg:
		return -p.arg(n, 0) & m
	case OpBVAnd:
		r := p.arg(n, 0)
		for i := 1; i < len(n.args); i++ {
			r &= p.arg(n, i)
		}
		return r
	case OpBVOr:
		r := p.arg(n, 0)
		for i := 1; i < len(n.args); i++ {
			r |= p.arg(n, i)
		}
		return r
	case OpBVXor:
		r := p.arg(n, 0)
		for i := 1; i < len(n.args); i++ {
			r ^= p.arg(n, i)
		}
		return r
	case OpBVAdd:
		r := p.arg(n, 0)
		for i := 1; i < len(n.args); i++ {
			r += p.arg(n, i)
		}
		return r & m
	case OpBVSub:
		r := p.arg(n, 0)
		for i := 1; i < len(n.args); i++ {
			r -= p.arg(n, i)
		}
		return r & m
	case OpBVMul:
		r := p.arg(n, 0)
		for i := 1; i < len(n.args); i++ {
			r *= p.arg(n, i)
		}
		return r & m
	case OpBVUDiv:
		a, b := p.arg(n, 0), p.arg(n, 1)
		if b == 0 {
			return m
		}
		return a / b
	case OpBVURem:
		a, b := p.arg(n, 0), p.arg(n, 1)
		if b == 0 {
			return a
		}
		return a % b
	case OpBVShl:
		a, b := p.arg(n, 0), p.arg(n, 1)
		if b >= uint64(n.width) {
			return 0
		}
		return (a << b) & m
	case OpBVLShr:
		a, b := p.arg(n, 0), p.arg(n, 1)
		if b >= uint64(n.width) {
			return 0
		}
		return a >> b
	case OpBVAShr:
		a, b := p.arg(n, 0), p.arg(n, 1)
		s := toSigned(a, n.width)
		if b >= uint64(n.width) {
			b = uint64(n.width - 1)
		}
		return uint64(s>>b) & m
	case OpBVComp:
		return b2u(p.arg(n, 0) == p.arg(n, 1))
	case OpConcat:
		var r uint64
		for i := range n.args {
			w := p.nodes[n.args[i]].width
			r = r<<w | p.arg(n, i)
		}
		return r & m
	case OpExtract:
		return (p.arg(n, 0) >> n.lo) & m
	case OpZeroExtend:
		return p.arg(n, 0)
	case OpSignExtend:
		return uint64(toSigned(p.arg(n, 0), n.argWidth)) & m
	case OpRotateLeft:
		a, k := p.arg(n, 0), n.lo
		if k == 0 {
			return a
		}
		return (a<<k | a>>(n.width-k)) & m
	case OpRotateRight:
		a, k := p.arg(n, 0), n.lo
		if k == 0 {
			return a
		}
		return (a>>k | a<<(n.width-k)) & m

	case OpULT:
		return b2u(p.arg(n, 0) < p.arg(n, 1))
	case OpULE:
		return b2u(p.arg(n, 0) <= p.arg(n, 1))
	case OpUGT:
		return b2u(p.arg(n, 0) > p.arg(n, 1))
	case OpUGE:
		return b2u(p.arg(n, 0) >= p.arg(n, 1))
	case OpSLT:
		return b2u(toSigned(p.arg(n, 0), n.argWidth) < toSigned(p.arg(n, 1), n.argWidth))
	case OpSLE:
		return b2u(toSigned(p.arg(n, 0), n.argWidth) <= toSigned(p.arg(n, 1), n.argWidth))
	case OpSGT:
		return b2u(toSigned(p.arg(n, 0), n.argWidth) > toSigned(p.arg(n, 1), n.argWidth))
	case OpSGE:
		return b2u(toSigned(p.arg(n, 0), n.argWidth) >= toSigned(p.arg(n, 1), n.argWidth))
	}
	panic(fmt.Sprintf("bv: unhandled operator %s", n.op))
}
