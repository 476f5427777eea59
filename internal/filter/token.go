// Package filter implements the attribute filter language shared by the
// registry and its consumers: composable criteria that serialize to the
// canonical prefix form, e.g. (&(objectClass=Store)(!(region=eu*))), and a
// parser/evaluator for that form.
package filter

// TokenType represents the type of lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal

	// Delimiters
	TokenLParen // (
	TokenRParen // )

	// Composite operators
	TokenAnd // &
	TokenOr  // |
	TokenNot // !

	// Leaf parts
	TokenAttr  // attribute name
	TokenValue // raw value, escapes preserved

	// Comparison operators
	TokenEq     // =
	TokenApprox // ~=
	TokenLte    // <=
	TokenGte    // >=
)

// String returns the string representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenIllegal:
		return "ILLEGAL"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenAnd:
		return "&"
	case TokenOr:
		return "|"
	case TokenNot:
		return "!"
	case TokenAttr:
		return "ATTR"
	case TokenValue:
		return "VALUE"
	case TokenEq:
		return "="
	case TokenApprox:
		return "~="
	case TokenLte:
		return "<="
	case TokenGte:
		return ">="
	default:
		return "UNKNOWN"
	}
}

// IsComparisonOp returns true if the token type is a comparison operator.
func (t TokenType) IsComparisonOp() bool {
	switch t {
	case TokenEq, TokenApprox, TokenLte, TokenGte:
		return true
	}
	return false
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // Position in input for error reporting
}
