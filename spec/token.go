package spec

import "fmt"

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenKeyword

	TokenLParen
	TokenRParen
	TokenLBrace
	TokenRBrace
	TokenLBracket
	TokenRBracket
	TokenComma
	TokenSemi
	TokenDot
	TokenAt
	TokenQuestion
	TokenColon

	TokenAssign  // =
	TokenEq      // ==
	TokenNeq     // !=
	TokenLt      // <
	TokenLe      // <=
	TokenGt      // >
	TokenGe      // >=
	TokenAnd     // &&
	TokenOr      // ||
	TokenNot     // !
	TokenImplies // =>
	TokenIff     // <=>
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
)

// Pos is a line/column position in the source (1-based).
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Token is a lexed token with its source position.
type Token struct {
	Type  TokenType
	Value string
	Pos   Pos
}

func (t Token) String() string {
	return fmt.Sprintf("%q@%s", t.Value, t.Pos)
}

// keywords of the rule language. Sort names are lexed as identifiers and
// recognized by the parser so user identifiers never collide with them.
var keywords = map[string]bool{
	"methods":          true,
	"returns":          true,
	"envfree":          true,
	"rule":             true,
	"invariant":        true,
	"ghost":            true,
	"hook":             true,
	"Sstore":           true,
	"KEY":              true,
	"init_state":       true,
	"axiom":            true,
	"require":          true,
	"assert":           true,
	"requireInvariant": true,
	"function":         true,
	"if":               true,
	"else":             true,
	"true":             true,
	"false":            true,
}

// Error is a positioned load error naming the offending construct.
type Error struct {
	Pos       Pos
	Construct string
	Msg       string
}

func (e *Error) Error() string {
	if e.Construct == "" {
		return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: in %s: %s", e.Pos, e.Construct, e.Msg)
}
