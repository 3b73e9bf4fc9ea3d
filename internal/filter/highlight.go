package filter

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Highlight applies syntax highlighting to filter text.
// Whitespace between tokens is preserved, and malformed input is highlighted
// up to the point the lexer can follow it.
func Highlight(text string) string {
	if text == "" {
		return ""
	}

	lexer := NewLexer(text)
	var result strings.Builder
	lastPos := 0

	for {
		tok := lexer.NextToken()
		if tok.Type == TokenEOF {
			break
		}

		// Preserve whitespace between tokens
		if tok.Pos > lastPos {
			result.WriteString(text[lastPos:tok.Pos])
		}

		if tok.Literal != "" {
			result.WriteString(tokenStyle(tok.Type).Render(tok.Literal))
		}
		lastPos = tok.Pos + len(tok.Literal)
	}

	// Append any trailing content (whitespace after last token)
	if lastPos < len(text) {
		result.WriteString(text[lastPos:])
	}

	return result.String()
}

// tokenStyle returns the appropriate style for a token type.
func tokenStyle(t TokenType) lipgloss.Style {
	switch t {
	case TokenAnd, TokenOr, TokenNot:
		return KeywordStyle
	case TokenEq, TokenApprox, TokenGte, TokenLte:
		return OperatorStyle
	case TokenLParen, TokenRParen:
		return ParenStyle
	case TokenAttr:
		return AttrStyle
	case TokenValue:
		return ValueStyle
	case TokenIllegal:
		return IllegalStyle
	default:
		return DefaultStyle
	}
}
