package spec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert := require.New(t)

	toks, err := NewLexer(`rule foo(address to) { require to != 0; }`).Tokenize()
	assert.NoError(err)

	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	assert.Equal([]TokenType{
		TokenKeyword, TokenIdent, TokenLParen, TokenIdent, TokenIdent, TokenRParen,
		TokenLBrace, TokenKeyword, TokenIdent, TokenNeq, TokenNumber, TokenSemi,
		TokenRBrace, TokenEOF,
	}, types)
}

func TestTokenizeOperators(t *testing.T) {
	assert := require.New(t)

	toks, err := NewLexer(`a <=> b => c == d <= e`).Tokenize()
	assert.NoError(err)

	var ops []TokenType
	for _, tok := range toks {
		if tok.Type != TokenIdent && tok.Type != TokenEOF {
			ops = append(ops, tok.Type)
		}
	}
	assert.Equal([]TokenType{TokenIff, TokenImplies, TokenEq, TokenLe}, ops)
}

func TestTokenizePositions(t *testing.T) {
	assert := require.New(t)

	toks, err := NewLexer("rule r()\n{ assert true; }").Tokenize()
	assert.NoError(err)

	assert.Equal(Pos{Line: 1, Col: 1}, toks[0].Pos)
	assert.Equal("r", toks[1].Value)
	assert.Equal(Pos{Line: 1, Col: 6}, toks[1].Pos)
	// "assert" on line 2
	assert.Equal("assert", toks[5].Value)
	assert.Equal(2, toks[5].Pos.Line)
}

func TestTokenizeComments(t *testing.T) {
	assert := require.New(t)

	toks, err := NewLexer(`
// a line comment
ghost /* inline */ mathint sum
`).Tokenize()
	assert.NoError(err)
	assert.Equal("ghost", toks[0].Value)
	assert.Equal("mathint", toks[1].Value)
	assert.Equal("sum", toks[2].Value)
}

func TestTokenizeStringsAndNumbers(t *testing.T) {
	assert := require.New(t)

	toks, err := NewLexer(`assert x == 0x2a, "forty two";`).Tokenize()
	assert.NoError(err)
	assert.Equal(TokenNumber, toks[3].Type)
	assert.Equal("0x2a", toks[3].Value)
	assert.Equal(TokenString, toks[5].Type)
	assert.Equal("forty two", toks[5].Value)

	_, err = NewLexer(`assert x, "unterminated`).Tokenize()
	assert.Error(err)
}

func TestTokenizeUnexpectedRune(t *testing.T) {
	assert := require.New(t)
	_, err := NewLexer("rule r() { assert § true; }").Tokenize()
	assert.Error(err)
	perr, ok := err.(*Error)
	assert.True(ok)
	assert.Equal(1, perr.Pos.Line)
}
