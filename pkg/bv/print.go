package bv

import (
	"fmt"
	"strings"
)

// String renders t in SMT-LIB syntax. Shared sub-terms are printed
// at every occurrence.
func (t *Term) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *Term) write(sb *strings.Builder) {
	switch t.Op {
	case OpTrue, OpFalse:
		sb.WriteString(t.Op.String())
		return
	case OpConst:
		fmt.Fprintf(sb, "(_ bv%d %d)", t.Value, t.Sort.Width)
		return
	case OpVar:
		sb.WriteString(QuoteSymbol(t.Name))
		return
	}

	sb.WriteByte('(')
	switch t.Op {
	case OpExtract:
		fmt.Fprintf(sb, "(_ extract %d %d)", t.Hi, t.Lo)
	case OpZeroExtend, OpSignExtend, OpRotateLeft, OpRotateRight:
		fmt.Fprintf(sb, "(_ %s %d)", t.Op, t.Lo)
	default:
		sb.WriteString(t.Op.String())
	}
	for _, a := range t.Args {
		sb.WriteByte(' ')
		if a == nil {
			sb.WriteString("<nil>")
			continue
		}
		a.write(sb)
	}
	sb.WriteByte(')')
}

// QuoteSymbol returns name as an SMT-LIB symbol, quoting it with bars
// when it is not a simple symbol.
func QuoteSymbol(name string) string {
	if name == "" {
		return "||"
	}
	for i, r := range name {
		if isSimpleSymbolRune(r) {
			if i == 0 && r >= '0' && r <= '9' {
				return "|" + name + "|"
			}
			continue
		}
		return "|" + name + "|"
	}
	return name
}

func isSimpleSymbolRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("~!@$%^&*_-+=<>.?/", r)
}
