// Package filter implements the LDAP-style filter language used to select
// services by their properties.
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

	// Item parts
	TokenAttr  // attribute name
	TokenValue // raw value text, escapes preserved

	// Comparison operators
	TokenEq     // =
	TokenApprox // ~=
	TokenGte    // >=
	TokenLte    // <=
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
	case TokenGte:
		return ">="
	case TokenLte:
		return "<="
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset in input
}

// IsComparisonOp returns true if the token type is a comparison operator.
func (t TokenType) IsComparisonOp() bool {
	switch t {
	case TokenEq, TokenApprox, TokenGte, TokenLte:
		return true
	}
	return false
}

// IsCompositeOp returns true for &, | and !.
func (t TokenType) IsCompositeOp() bool {
	return t == TokenAnd || t == TokenOr || t == TokenNot
}
