package filter

import "strings"

// Lexer tokenizes filter text.
//
// The lexer is context-sensitive: once it has emitted a comparison operator
// the next token is always a raw TokenValue running up to the next unescaped
// ')'. Whitespace inside that value is kept.
type Lexer struct {
	input       string
	pos         int  // offset of ch
	readPos     int  // offset of the next character
	ch          byte // current character under examination
	expectValue bool
}

// NewLexer creates a new lexer for the input string.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	if l.expectValue {
		l.expectValue = false
		return l.readValue()
	}

	l.skipWhitespace()

	tok := Token{Pos: l.pos}
	if l.atEOF() {
		tok.Type = TokenEOF
		return tok
	}

	switch l.ch {
	case '(':
		tok.Type = TokenLParen
		tok.Literal = "("
	case ')':
		tok.Type = TokenRParen
		tok.Literal = ")"
	case '&':
		tok.Type = TokenAnd
		tok.Literal = "&"
	case '|':
		tok.Type = TokenOr
		tok.Literal = "|"
	case '!':
		tok.Type = TokenNot
		tok.Literal = "!"
	case '=':
		tok.Type = TokenEq
		tok.Literal = "="
		l.expectValue = true
	case '~', '>', '<':
		if l.peekChar() != '=' {
			tok.Type = TokenIllegal
			tok.Literal = string(l.ch)
			break
		}
		first := l.ch
		l.readChar()
		tok.Literal = string(first) + "="
		switch first {
		case '~':
			tok.Type = TokenApprox
		case '>':
			tok.Type = TokenGte
		default:
			tok.Type = TokenLte
		}
		l.expectValue = true
	default:
		tok.Type = TokenAttr
		tok.Literal = l.readAttr()
		return tok
	}

	l.readChar()
	return tok
}

// readChar reads the next character and advances position.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// skipWhitespace advances past whitespace characters.
func (l *Lexer) skipWhitespace() {
	for isSpace(l.ch) && !l.atEOF() {
		l.readChar()
	}
}

// readAttr reads an attribute name up to the operator or a parenthesis.
// Trailing whitespace is dropped, inner whitespace is kept.
func (l *Lexer) readAttr() string {
	start := l.pos
	for !l.atEOF() && !isAttrDelimiter(l.ch) {
		l.readChar()
	}
	return strings.TrimRight(l.input[start:l.pos], " \t\r\n")
}

// readValue reads raw value text up to the next unescaped ')'.
func (l *Lexer) readValue() Token {
	start := l.pos
	for !l.atEOF() && l.ch != ')' {
		if l.ch == '\\' {
			l.readChar()
			if l.atEOF() {
				break
			}
		}
		l.readChar()
	}
	return Token{Type: TokenValue, Literal: l.input[start:l.pos], Pos: start}
}

func isAttrDelimiter(c byte) bool {
	switch c {
	case '(', ')', '=', '<', '>', '~':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
