package smtlib

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/regioncount/regioncount/pkg/bv"
)

// Script is the result of parsing an SMT-LIB script: its declared
// symbols and its assertions, in input order.
type Script struct {
	Logic      string
	Decls      []*bv.Term
	Assertions []*bv.Term

	symbols map[string]*bv.Term
	macros  map[string]*macro
}

type param struct {
	name string
	sort bv.Sort
}

// macro is a define-fun with parameters; applications are expanded
// by parsing the body with the parameters bound to the arguments.
type macro struct {
	params []param
	sort   bv.Sort
	body   *sexpr
}

type sexpr struct {
	tok    token
	list   []*sexpr
	isList bool
	pos    Position
}

func (e *sexpr) symbol() (string, bool) {
	if e.isList || e.tok.kind != tokSymbol {
		return "", false
	}
	return e.tok.text, true
}

func readAll(src string) ([]*sexpr, error) {
	l := newLexer(src)
	var (
		top   []*sexpr
		stack []*sexpr
	)
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokEOF:
			if len(stack) > 0 {
				return nil, syntaxErrorf(stack[len(stack)-1].pos, "unbalanced parenthesis")
			}
			return top, nil
		case tokLParen:
			stack = append(stack, &sexpr{isList: true, pos: tok.pos})
			continue
		case tokRParen:
			if len(stack) == 0 {
				return nil, syntaxErrorf(tok.pos, "unexpected )")
			}
			e := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				top = append(top, e)
			} else {
				parent := stack[len(stack)-1]
				parent.list = append(parent.list, e)
			}
			continue
		}
		e := &sexpr{tok: tok, pos: tok.pos}
		if len(stack) == 0 {
			top = append(top, e)
		} else {
			parent := stack[len(stack)-1]
			parent.list = append(parent.list, e)
		}
	}
}

// ParseFile reads and parses the SMT-LIB script at path.
func ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	s, err := Parse(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return s, nil
}

// Parse parses an SMT-LIB script restricted to quantifier-free
// bit-vector logic.
func Parse(src string) (*Script, error) {
	cmds, err := readAll(src)
	if err != nil {
		return nil, err
	}
	s := &Script{
		symbols: make(map[string]*bv.Term),
		macros:  make(map[string]*macro),
	}
	for _, cmd := range cmds {
		done, err := s.command(cmd)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}
	return s, nil
}

// Formula returns the conjunction of all assertions of the script.
func (s *Script) Formula() (*bv.Term, error) {
	return bv.And(s.Assertions...)
}

// Lookup returns the declared or defined constant with the given
// name.
func (s *Script) Lookup(name string) (*bv.Term, bool) {
	t, ok := s.symbols[name]
	return t, ok
}

// ParseTerm parses a single term in the scope of the script's
// declarations and definitions.
func (s *Script) ParseTerm(text string) (*bv.Term, error) {
	es, err := readAll(text)
	if err != nil {
		return nil, err
	}
	if len(es) != 1 {
		return nil, errors.Errorf("expected exactly one term, got %d", len(es))
	}
	return s.term(es[0], nil)
}

func (s *Script) command(e *sexpr) (bool, error) {
	if !e.isList || len(e.list) == 0 {
		return false, syntaxErrorf(e.pos, "expected a command")
	}
	name, ok := e.list[0].symbol()
	if !ok {
		return false, syntaxErrorf(e.pos, "expected a command name")
	}
	args := e.list[1:]

	switch name {
	case "set-logic":
		if len(args) != 1 {
			return false, syntaxErrorf(e.pos, "set-logic expects one argument")
		}
		s.Logic, _ = args[0].symbol()
	case "set-info", "set-option", "check-sat", "check-sat-assuming", "get-model",
		"get-value", "get-info", "get-option", "get-assertions", "get-assignment",
		"get-unsat-core", "echo", "reset-assertions":
	case "exit":
		return true, nil
	case "declare-const":
		if len(args) != 2 {
			return false, syntaxErrorf(e.pos, "declare-const expects a name and a sort")
		}
		return false, s.declare(args[0], args[1])
	case "declare-fun":
		if len(args) != 3 {
			return false, syntaxErrorf(e.pos, "declare-fun expects a name, argument sorts and a sort")
		}
		if !args[1].isList || len(args[1].list) != 0 {
			return false, syntaxErrorf(args[1].pos, "only zero-arity functions are supported")
		}
		return false, s.declare(args[0], args[2])
	case "define-fun":
		if len(args) != 4 {
			return false, syntaxErrorf(e.pos, "define-fun expects a name, parameters, a sort and a body")
		}
		return false, s.define(args[0], args[1], args[2], args[3])
	case "assert":
		if len(args) != 1 {
			return false, syntaxErrorf(e.pos, "assert expects one term")
		}
		t, err := s.term(args[0], nil)
		if err != nil {
			return false, err
		}
		if !t.Sort.IsBool() {
			return false, syntaxErrorf(args[0].pos, "asserted term has sort %s, expected Bool", t.Sort)
		}
		s.Assertions = append(s.Assertions, t)
	default:
		return false, syntaxErrorf(e.pos, "unsupported command %s", name)
	}
	return false, nil
}

func (s *Script) checkFresh(e *sexpr) (string, error) {
	name, ok := e.symbol()
	if !ok {
		return "", syntaxErrorf(e.pos, "expected a symbol")
	}
	if _, ok := s.symbols[name]; ok {
		return "", syntaxErrorf(e.pos, "symbol %s already declared", name)
	}
	if _, ok := s.macros[name]; ok {
		return "", syntaxErrorf(e.pos, "symbol %s already defined", name)
	}
	return name, nil
}

func (s *Script) declare(nameExpr, sortExpr *sexpr) error {
	name, err := s.checkFresh(nameExpr)
	if err != nil {
		return err
	}
	sort, err := parseSort(sortExpr)
	if err != nil {
		return err
	}
	v, err := bv.Var(name, sort)
	if err != nil {
		return syntaxErrorf(nameExpr.pos, "%v", err)
	}
	s.symbols[name] = v
	s.Decls = append(s.Decls, v)
	return nil
}

func (s *Script) define(nameExpr, paramsExpr, sortExpr, body *sexpr) error {
	name, err := s.checkFresh(nameExpr)
	if err != nil {
		return err
	}
	sort, err := parseSort(sortExpr)
	if err != nil {
		return err
	}
	if !paramsExpr.isList {
		return syntaxErrorf(paramsExpr.pos, "expected a parameter list")
	}

	m := &macro{sort: sort, body: body}
	bindings := make(map[string]*bv.Term, len(paramsExpr.list))
	for _, p := range paramsExpr.list {
		if !p.isList || len(p.list) != 2 {
			return syntaxErrorf(p.pos, "expected (name sort)")
		}
		pname, ok := p.list[0].symbol()
		if !ok {
			return syntaxErrorf(p.pos, "expected a parameter name")
		}
		psort, err := parseSort(p.list[1])
		if err != nil {
			return err
		}
		placeholder, err := bv.Var(pname, psort)
		if err != nil {
			return syntaxErrorf(p.pos, "%v", err)
		}
		m.params = append(m.params, param{name: pname, sort: psort})
		bindings[pname] = placeholder
	}

	// Check the body once against placeholder parameters.
	t, err := s.term(body, &scope{vars: bindings})
	if err != nil {
		return err
	}
	if t.Sort != sort {
		return syntaxErrorf(body.pos, "body of %s has sort %s, declared %s", name, t.Sort, sort)
	}
	if len(m.params) == 0 {
		s.symbols[name] = t
		return nil
	}
	s.macros[name] = m
	return nil
}

func parseSort(e *sexpr) (bv.Sort, error) {
	if name, ok := e.symbol(); ok {
		if name == "Bool" {
			return bv.BoolSort, nil
		}
		return bv.Sort{}, syntaxErrorf(e.pos, "unsupported sort %s", name)
	}
	if e.isList && len(e.list) == 3 {
		if u, _ := e.list[0].symbol(); u == "_" {
			if b, _ := e.list[1].symbol(); b == "BitVec" {
				w, err := numeral(e.list[2])
				if err != nil {
					return bv.Sort{}, err
				}
				if w == 0 || w > bv.MaxWidth {
					return bv.Sort{}, syntaxErrorf(e.pos, "bit-vector width %d out of range [1, %d]", w, bv.MaxWidth)
				}
				return bv.BitVec(w), nil
			}
		}
	}
	return bv.Sort{}, syntaxErrorf(e.pos, "unsupported sort")
}

func numeral(e *sexpr) (uint, error) {
	if e.isList || e.tok.kind != tokNumeral {
		return 0, syntaxErrorf(e.pos, "expected a numeral")
	}
	n, err := strconv.ParseUint(e.tok.text, 10, 32)
	if err != nil {
		return 0, syntaxErrorf(e.pos, "numeral %s out of range", e.tok.text)
	}
	return uint(n), nil
}

type scope struct {
	vars   map[string]*bv.Term
	parent *scope
}

func (sc *scope) lookup(name string) (*bv.Term, bool) {
	for ; sc != nil; sc = sc.parent {
		if t, ok := sc.vars[name]; ok {
			return t, true
		}
	}
	return nil, false
}

var builtins = map[string]bv.Op{
	"not":      bv.OpNot,
	"and":      bv.OpAnd,
	"or":       bv.OpOr,
	"xor":      bv.OpXor,
	"=>":       bv.OpImplies,
	"=":        bv.OpEq,
	"distinct": bv.OpDistinct,
	"ite":      bv.OpIte,
	"bvnot":    bv.OpBVNot,
	"bvneg":    bv.OpBVNeg,
	"bvand":    bv.OpBVAnd,
	"bvor":     bv.OpBVOr,
	"bvxor":    bv.OpBVXor,
	"bvadd":    bv.OpBVAdd,
	"bvsub":    bv.OpBVSub,
	"bvmul":    bv.OpBVMul,
	"bvudiv":   bv.OpBVUDiv,
	"bvurem":   bv.OpBVURem,
	"bvshl":    bv.OpBVShl,
	"bvlshr":   bv.OpBVLShr,
	"bvashr":   bv.OpBVAShr,
	"bvcomp":   bv.OpBVComp,
	"concat":   bv.OpConcat,
	"bvult":    bv.OpULT,
	"bvule":    bv.OpULE,
	"bvugt":    bv.OpUGT,
	"bvuge":    bv.OpUGE,
	"bvslt":    bv.OpSLT,
	"bvsle":    bv.OpSLE,
	"bvsgt":    bv.OpSGT,
	"bvsge":    bv.OpSGE,
}

var indexed = map[string]bv.Op{
	"extract":      bv.OpExtract,
	"zero_extend":  bv.OpZeroExtend,
	"sign_extend":  bv.OpSignExtend,
	"rotate_left":  bv.OpRotateLeft,
	"rotate_right": bv.OpRotateRight,
}

var derived = map[string]func(a, b *bv.Term) (*bv.Term, error){
	"bvnand": bv.Nand,
	"bvnor":  bv.Nor,
	"bvxnor": bv.Xnor,
	"bvsdiv": bv.SDiv,
	"bvsrem": bv.SRem,
	"bvsmod": bv.SMod,
}

func (s *Script) term(e *sexpr, sc *scope) (*bv.Term, error) {
	if !e.isList {
		return s.atom(e, sc)
	}
	if len(e.list) == 0 {
		return nil, syntaxErrorf(e.pos, "empty term")
	}

	head := e.list[0]
	if name, ok := head.symbol(); ok {
		switch name {
		case "_":
			return indexedConst(e)
		case "let":
			return s.let(e, sc)
		case "!":
			if len(e.list) < 2 {
				return nil, syntaxErrorf(e.pos, "annotation without a term")
			}
			return s.term(e.list[1], sc)
		}
	}

	args := make([]*bv.Term, 0, len(e.list)-1)
	for _, a := range e.list[1:] {
		t, err := s.term(a, sc)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}

	if head.isList {
		return applyIndexed(head, args)
	}

	name, ok := head.symbol()
	if !ok {
		return nil, syntaxErrorf(head.pos, "expected a function symbol")
	}
	if op, ok := builtins[name]; ok {
		t, err := bv.Apply(op, nil, args...)
		if err != nil {
			return nil, syntaxErrorf(e.pos, "%v", err)
		}
		return t, nil
	}
	if fn, ok := derived[name]; ok {
		if len(args) != 2 {
			return nil, syntaxErrorf(e.pos, "%s expects 2 arguments, got %d", name, len(args))
		}
		t, err := fn(args[0], args[1])
		if err != nil {
			return nil, syntaxErrorf(e.pos, "%v", err)
		}
		return t, nil
	}
	if m, ok := s.macros[name]; ok {
		return s.expand(e, name, m, args)
	}
	return nil, syntaxErrorf(head.pos, "unknown function %s", name)
}

func (s *Script) atom(e *sexpr, sc *scope) (*bv.Term, error) {
	switch e.tok.kind {
	case tokSymbol:
		name := e.tok.text
		if t, ok := sc.lookup(name); ok {
			return t, nil
		}
		switch name {
		case "true":
			return bv.True(), nil
		case "false":
			return bv.False(), nil
		}
		if t, ok := s.symbols[name]; ok {
			return t, nil
		}
		return nil, syntaxErrorf(e.pos, "unknown symbol %s", name)
	case tokBinary:
		return literal(e, e.tok.text, 2, uint(len(e.tok.text)))
	case tokHex:
		return literal(e, e.tok.text, 16, 4*uint(len(e.tok.text)))
	case tokNumeral:
		return nil, syntaxErrorf(e.pos, "integer literal %s not supported, use (_ bv%s w)", e.tok.text, e.tok.text)
	}
	return nil, syntaxErrorf(e.pos, "unexpected %q in term", e.tok.text)
}

func literal(e *sexpr, digits string, base int, width uint) (*bv.Term, error) {
	if width > bv.MaxWidth {
		return nil, syntaxErrorf(e.pos, "literal wider than %d bits", bv.MaxWidth)
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return nil, syntaxErrorf(e.pos, "bad literal: %v", err)
	}
	t, err := bv.Const(v, width)
	if err != nil {
		return nil, syntaxErrorf(e.pos, "%v", err)
	}
	return t, nil
}

// indexedConst parses (_ bvN w).
func indexedConst(e *sexpr) (*bv.Term, error) {
	if len(e.list) != 3 {
		return nil, syntaxErrorf(e.pos, "malformed indexed constant")
	}
	name, ok := e.list[1].symbol()
	if !ok || !strings.HasPrefix(name, "bv") {
		return nil, syntaxErrorf(e.pos, "expected (_ bvN w)")
	}
	v, err := strconv.ParseUint(name[2:], 10, 64)
	if err != nil {
		return nil, syntaxErrorf(e.list[1].pos, "bad constant %s", name)
	}
	w, err := numeral(e.list[2])
	if err != nil {
		return nil, err
	}
	if w < 64 && v>>w != 0 {
		return nil, syntaxErrorf(e.pos, "constant %d does not fit in %d bits", v, w)
	}
	t, err := bv.Const(v, w)
	if err != nil {
		return nil, syntaxErrorf(e.pos, "%v", err)
	}
	return t, nil
}

func applyIndexed(head *sexpr, args []*bv.Term) (*bv.Term, error) {
	if len(head.list) < 3 {
		return nil, syntaxErrorf(head.pos, "malformed indexed operator")
	}
	if u, _ := head.list[0].symbol(); u != "_" {
		return nil, syntaxErrorf(head.pos, "expected an indexed operator")
	}
	name, ok := head.list[1].symbol()
	if !ok {
		return nil, syntaxErrorf(head.pos, "expected an operator name")
	}
	params := make([]uint, 0, len(head.list)-2)
	for _, p := range head.list[2:] {
		n, err := numeral(p)
		if err != nil {
			return nil, err
		}
		params = append(params, n)
	}

	if name == "repeat" {
		if len(params) != 1 || len(args) != 1 {
			return nil, syntaxErrorf(head.pos, "repeat expects one index and one argument")
		}
		t, err := bv.Repeat(params[0], args[0])
		if err != nil {
			return nil, syntaxErrorf(head.pos, "%v", err)
		}
		return t, nil
	}
	op, ok := indexed[name]
	if !ok {
		return nil, syntaxErrorf(head.pos, "unknown indexed operator %s", name)
	}
	t, err := bv.Apply(op, params, args...)
	if err != nil {
		return nil, syntaxErrorf(head.pos, "%v", err)
	}
	return t, nil
}

func (s *Script) let(e *sexpr, sc *scope) (*bv.Term, error) {
	if len(e.list) != 3 || !e.list[1].isList {
		return nil, syntaxErrorf(e.pos, "malformed let")
	}
	inner := &scope{vars: make(map[string]*bv.Term, len(e.list[1].list)), parent: sc}
	for _, b := range e.list[1].list {
		if !b.isList || len(b.list) != 2 {
			return nil, syntaxErrorf(b.pos, "expected (name term) binding")
		}
		name, ok := b.list[0].symbol()
		if !ok {
			return nil, syntaxErrorf(b.pos, "expected a binding name")
		}
		// Bindings are parallel: each is parsed in the outer scope.
		t, err := s.term(b.list[1], sc)
		if err != nil {
			return nil, err
		}
		inner.vars[name] = t
	}
	return s.term(e.list[2], inner)
}

func (s *Script) expand(e *sexpr, name string, m *macro, args []*bv.Term) (*bv.Term, error) {
	if len(args) != len(m.params) {
		return nil, syntaxErrorf(e.pos, "%s expects %d arguments, got %d", name, len(m.params), len(args))
	}
	bindings := make(map[string]*bv.Term, len(args))
	for i, p := range m.params {
		if args[i].Sort != p.sort {
			return nil, syntaxErrorf(e.list[i+1].pos, "argument %s of %s has sort %s, expected %s", p.name, name, args[i].Sort, p.sort)
		}
		bindings[p.name] = args[i]
	}
	return s.term(m.body, &scope{vars: bindings})
}
