package spec

import (
	"fmt"
	"strings"
)

// Lexer scans rule-language source into tokens.
type Lexer struct {
	input string
	pos   int
	line  int
	col   int
	toks  []Token
	err   *Error
}

// NewLexer returns a new Lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

// Tokenize scans the whole input. Lexical errors (unterminated strings,
// stray bytes) are returned; the token slice is valid up to the error.
func (l *Lexer) Tokenize() ([]Token, error) {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()

		case c == '/' && l.peek(1) == '/':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}

		case c == '/' && l.peek(1) == '*':
			l.lexBlockComment()

		case isDigit(c):
			l.lexNumber()

		case isIdentStart(c):
			l.lexIdent()

		case c == '"':
			l.lexString()

		default:
			l.lexOperator()
		}
		if l.err != nil {
			return l.toks, l.err
		}
	}
	l.add(TokenEOF, "")
	return l.toks, nil
}

func (l *Lexer) peek(n int) byte {
	if l.pos+n < len(l.input) {
		return l.input[l.pos+n]
	}
	return 0
}

func (l *Lexer) advance() {
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func (l *Lexer) add(t TokenType, v string) {
	l.toks = append(l.toks, Token{Type: t, Value: v, Pos: Pos{Line: l.line, Col: l.col - len(v)}})
}

func (l *Lexer) fail(format string, args ...any) {
	l.err = &Error{Pos: Pos{Line: l.line, Col: l.col}, Msg: fmt.Sprintf(format, args...)}
}

func (l *Lexer) lexBlockComment() {
	start := Pos{Line: l.line, Col: l.col}
	l.advance()
	l.advance()
	for l.pos < len(l.input) {
		if l.input[l.pos] == '*' && l.peek(1) == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.err = &Error{Pos: start, Msg: "unterminated block comment"}
}

func (l *Lexer) lexNumber() {
	start := l.pos
	if l.input[l.pos] == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X') {
		l.advance()
		l.advance()
		for l.pos < len(l.input) && isHexDigit(l.input[l.pos]) {
			l.advance()
		}
	} else {
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.advance()
		}
	}
	l.add(TokenNumber, l.input[start:l.pos])
}

func (l *Lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.advance()
	}
	word := l.input[start:l.pos]
	if keywords[word] {
		l.add(TokenKeyword, word)
	} else {
		l.add(TokenIdent, word)
	}
}

func (l *Lexer) lexString() {
	start := Pos{Line: l.line, Col: l.col}
	l.advance() // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '"' {
			l.advance()
			l.toks = append(l.toks, Token{Type: TokenString, Value: sb.String(), Pos: start})
			return
		}
		if c == '\n' {
			break
		}
		if c == '\\' && l.peek(1) == '"' {
			l.advance()
			c = '"'
		}
		sb.WriteByte(c)
		l.advance()
	}
	l.err = &Error{Pos: start, Msg: "unterminated string literal"}
}

func (l *Lexer) lexOperator() {
	two := ""
	if l.pos+1 < len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}
	three := ""
	if l.pos+2 < len(l.input) {
		three = l.input[l.pos : l.pos+3]
	}

	emit := func(t TokenType, v string) {
		for range v {
			l.advance()
		}
		l.add(t, v)
	}

	if three == "<=>" {
		emit(TokenIff, three)
		return
	}
	switch two {
	case "==":
		emit(TokenEq, two)
		return
	case "!=":
		emit(TokenNeq, two)
		return
	case "<=":
		emit(TokenLe, two)
		return
	case ">=":
		emit(TokenGe, two)
		return
	case "&&":
		emit(TokenAnd, two)
		return
	case "||":
		emit(TokenOr, two)
		return
	case "=>":
		emit(TokenImplies, two)
		return
	}

	var single = map[byte]TokenType{
		'(': TokenLParen, ')': TokenRParen,
		'{': TokenLBrace, '}': TokenRBrace,
		'[': TokenLBracket, ']': TokenRBracket,
		',': TokenComma, ';': TokenSemi, '.': TokenDot,
		'@': TokenAt, '?': TokenQuestion, ':': TokenColon,
		'=': TokenAssign, '<': TokenLt, '>': TokenGt, '!': TokenNot,
		'+': TokenPlus, '-': TokenMinus, '*': TokenStar, '/': TokenSlash,
	}
	c := l.input[l.pos]
	if t, ok := single[c]; ok {
		emit(t, string(c))
		return
	}
	l.fail("unexpected character %q", string(c))
}

func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
