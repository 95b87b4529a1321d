package smtlib

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokSymbol
	tokKeyword
	tokNumeral
	tokBinary
	tokHex
	tokString
)

// Position locates a token in the input, counting from 1.
type Position struct {
	Line, Col int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

type token struct {
	kind tokenKind
	text string
	pos  Position
}

// SyntaxError reports malformed input at a position.
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func syntaxErrorf(pos Position, format string, args ...interface{}) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) peekByte() byte {
	if l.off < len(l.src) {
		return l.src[l.off]
	}
	return 0
}

func (l *lexer) advance() byte {
	c := l.src[l.off]
	l.off++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) skipSpace() {
	for l.off < len(l.src) {
		c := l.peekByte()
		switch {
		case c == ';':
			for l.off < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			l.advance()
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	pos := Position{Line: l.line, Col: l.col}
	if l.off >= len(l.src) {
		return token{kind: tokEOF, pos: pos}, nil
	}

	c := l.peekByte()
	switch {
	case c == '(':
		l.advance()
		return token{kind: tokLParen, text: "(", pos: pos}, nil
	case c == ')':
		l.advance()
		return token{kind: tokRParen, text: ")", pos: pos}, nil
	case c == '|':
		l.advance()
		start := l.off
		for l.off < len(l.src) && l.peekByte() != '|' {
			if l.peekByte() == '\\' {
				return token{}, syntaxErrorf(pos, "backslash in quoted symbol")
			}
			l.advance()
		}
		if l.off >= len(l.src) {
			return token{}, syntaxErrorf(pos, "unterminated quoted symbol")
		}
		text := l.src[start:l.off]
		l.advance()
		return token{kind: tokSymbol, text: text, pos: pos}, nil
	case c == '"':
		l.advance()
		var sb strings.Builder
		for {
			if l.off >= len(l.src) {
				return token{}, syntaxErrorf(pos, "unterminated string literal")
			}
			ch := l.advance()
			if ch == '"' {
				if l.peekByte() == '"' {
					l.advance()
					sb.WriteByte('"')
					continue
				}
				break
			}
			sb.WriteByte(ch)
		}
		return token{kind: tokString, text: sb.String(), pos: pos}, nil
	case c == '#':
		l.advance()
		if l.off >= len(l.src) {
			return token{}, syntaxErrorf(pos, "unexpected end of input after #")
		}
		kind := tokBinary
		valid := func(r byte) bool { return r == '0' || r == '1' }
		switch l.advance() {
		case 'b':
		case 'x':
			kind = tokHex
			valid = func(r byte) bool { return unicode.Is(unicode.ASCII_Hex_Digit, rune(r)) }
		default:
			return token{}, syntaxErrorf(pos, "expected #b or #x literal")
		}
		start := l.off
		for l.off < len(l.src) && valid(l.peekByte()) {
			l.advance()
		}
		if l.off == start {
			return token{}, syntaxErrorf(pos, "empty bit-vector literal")
		}
		return token{kind: kind, text: l.src[start:l.off], pos: pos}, nil
	case c >= '0' && c <= '9':
		start := l.off
		for l.off < len(l.src) && l.peekByte() >= '0' && l.peekByte() <= '9' {
			l.advance()
		}
		return token{kind: tokNumeral, text: l.src[start:l.off], pos: pos}, nil
	case c == ':':
		l.advance()
		start := l.off
		for l.off < len(l.src) && isSymbolByte(l.peekByte()) {
			l.advance()
		}
		return token{kind: tokKeyword, text: l.src[start:l.off], pos: pos}, nil
	case isSymbolByte(c):
		start := l.off
		for l.off < len(l.src) && isSymbolByte(l.peekByte()) {
			l.advance()
		}
		return token{kind: tokSymbol, text: l.src[start:l.off], pos: pos}, nil
	}
	return token{}, syntaxErrorf(pos, "unexpected character %q", c)
}

func isSymbolByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("~!@$%^&*_-+=<>.?/", c) >= 0
}
