package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lexAll(input string) []Token {
	l := NewLexer(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenIllegal {
			return toks
		}
	}
}

func TestLexer_BasicTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "simple equality",
			input: "(a=b)",
			expected: []Token{
				{Type: TokenLParen, Literal: "(", Pos: 0},
				{Type: TokenAttr, Literal: "a", Pos: 1},
				{Type: TokenEq, Literal: "=", Pos: 2},
				{Type: TokenValue, Literal: "b", Pos: 3},
				{Type: TokenRParen, Literal: ")", Pos: 4},
				{Type: TokenEOF, Literal: "", Pos: 5},
			},
		},
		{
			name:  "two-character operators",
			input: "(&(x~=1)(y>=2))",
			expected: []Token{
				{Type: TokenLParen, Literal: "(", Pos: 0},
				{Type: TokenAnd, Literal: "&", Pos: 1},
				{Type: TokenLParen, Literal: "(", Pos: 2},
				{Type: TokenAttr, Literal: "x", Pos: 3},
				{Type: TokenApprox, Literal: "~=", Pos: 4},
				{Type: TokenValue, Literal: "1", Pos: 6},
				{Type: TokenRParen, Literal: ")", Pos: 7},
				{Type: TokenLParen, Literal: "(", Pos: 8},
				{Type: TokenAttr, Literal: "y", Pos: 9},
				{Type: TokenGte, Literal: ">=", Pos: 10},
				{Type: TokenValue, Literal: "2", Pos: 12},
				{Type: TokenRParen, Literal: ")", Pos: 13},
				{Type: TokenRParen, Literal: ")", Pos: 14},
				{Type: TokenEOF, Literal: "", Pos: 15},
			},
		},
		{
			name:  "escapes stay in the value literal",
			input: `(a=\)x)`,
			expected: []Token{
				{Type: TokenLParen, Literal: "(", Pos: 0},
				{Type: TokenAttr, Literal: "a", Pos: 1},
				{Type: TokenEq, Literal: "=", Pos: 2},
				{Type: TokenValue, Literal: `\)x`, Pos: 3},
				{Type: TokenRParen, Literal: ")", Pos: 6},
				{Type: TokenEOF, Literal: "", Pos: 7},
			},
		},
		{
			name:  "not with less-or-equal",
			input: "(!(n<=3))",
			expected: []Token{
				{Type: TokenLParen, Literal: "(", Pos: 0},
				{Type: TokenNot, Literal: "!", Pos: 1},
				{Type: TokenLParen, Literal: "(", Pos: 2},
				{Type: TokenAttr, Literal: "n", Pos: 3},
				{Type: TokenLte, Literal: "<=", Pos: 4},
				{Type: TokenValue, Literal: "3", Pos: 6},
				{Type: TokenRParen, Literal: ")", Pos: 7},
				{Type: TokenRParen, Literal: ")", Pos: 8},
				{Type: TokenEOF, Literal: "", Pos: 9},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, lexAll(tt.input))
		})
	}
}

func TestLexer_AttributeWhitespace(t *testing.T) {
	toks := lexAll("( service.ranking =  1 )")
	assert.Equal(t, TokenAttr, toks[1].Type)
	assert.Equal(t, "service.ranking", toks[1].Literal)
	assert.Equal(t, TokenValue, toks[3].Type)
	assert.Equal(t, "  1 ", toks[3].Literal)
}

func TestLexer_Illegal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		literal string
		pos     int
	}{
		{"unescaped paren in value", "(a=b(c)", "(", 4},
		{"dangling backslash", `(a=b\`, `\`, 5},
		{"unterminated value", "(a=bc", "bc", 5},
		{"lone tilde", "(a~b)", "~", 2},
		{"missing operator", "(a)", ")", 2},
		{"operator where attribute expected", "(=b)", "=", 1},
		{"garbage at top level", "a=b", "a", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := lexAll(tt.input)
			last := toks[len(toks)-1]
			assert.Equal(t, TokenIllegal, last.Type)
			assert.Equal(t, tt.literal, last.Literal)
			assert.Equal(t, tt.pos, last.Pos)
		})
	}
}

func TestTokenType_String(t *testing.T) {
	assert.Equal(t, "~=", TokenApprox.String())
	assert.Equal(t, "EOF", TokenEOF.String())
	assert.Equal(t, "UNKNOWN", TokenType(99).String())
	assert.True(t, TokenGte.IsComparisonOp())
	assert.False(t, TokenNot.IsComparisonOp())
}
