package filter

import (
	"fmt"
	"strings"
)

// Parser parses filter tokens into an AST.
type Parser struct {
	input   string
	lexer   *Lexer
	current Token
	peek    Token
}

// NewParser creates a parser for the input.
func NewParser(input string) *Parser {
	p := &Parser{input: input, lexer: NewLexer(input)}
	// Prime the parser with two tokens
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the whole input as a single filter.
func (p *Parser) Parse() (Expr, error) {
	if p.current.Type == TokenEOF {
		return nil, p.errorf(p.current.Pos, "empty filter")
	}

	expr, err := p.parseFilter()
	if err != nil {
		return nil, err
	}

	// Should be at EOF now
	if p.current.Type != TokenEOF {
		return nil, p.errorf(p.current.Pos, "unexpected %q after filter", p.current.Literal)
	}

	return expr, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) errorf(pos int, format string, args ...any) error {
	return &MalformedError{Input: p.input, Offset: pos, Msg: fmt.Sprintf(format, args...)}
}

// parseFilter parses a parenthesized filter.
// filter = "(" filtercomp ")"
func (p *Parser) parseFilter() (Expr, error) {
	if p.current.Type != TokenLParen {
		return nil, p.errorf(p.current.Pos, "expected '(', got %q", p.current.Literal)
	}
	p.nextToken() // consume (

	expr, err := p.parseFilterComp()
	if err != nil {
		return nil, err
	}

	if p.current.Type != TokenRParen {
		if p.current.Type == TokenEOF {
			return nil, p.errorf(p.current.Pos, "missing ')'")
		}
		return nil, p.errorf(p.current.Pos, "expected ')', got %q", p.current.Literal)
	}
	p.nextToken() // consume )

	return expr, nil
}

// parseFilterComp parses the body of a filter.
// filtercomp = "&" filter+ | "|" filter+ | "!" filter | item
func (p *Parser) parseFilterComp() (Expr, error) {
	switch p.current.Type {
	case TokenAnd, TokenOr:
		op := p.current
		p.nextToken() // consume & or |
		operands, err := p.parseFilterList(op)
		if err != nil {
			return nil, err
		}
		if op.Type == TokenAnd {
			return &AndExpr{Operands: operands}, nil
		}
		return &OrExpr{Operands: operands}, nil

	case TokenNot:
		p.nextToken() // consume !
		expr, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: expr}, nil

	case TokenAttr:
		return p.parseItem()

	case TokenEOF:
		return nil, p.errorf(p.current.Pos, "unexpected end of filter")

	case TokenIllegal:
		return nil, p.errorf(p.current.Pos, "unknown operator %q", p.current.Literal)

	default:
		if p.current.Type.IsComparisonOp() {
			return nil, p.errorf(p.current.Pos, "missing attribute before %q", p.current.Literal)
		}
		return nil, p.errorf(p.current.Pos, "expected attribute or operator, got %q", p.current.Literal)
	}
}

// parseFilterList parses one or more filters following & or |.
func (p *Parser) parseFilterList(op Token) ([]Expr, error) {
	var operands []Expr
	for p.current.Type == TokenLParen {
		expr, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		operands = append(operands, expr)
	}
	if len(operands) == 0 {
		return nil, p.errorf(p.current.Pos, "expected '(' after %q", op.Literal)
	}
	return operands, nil
}

// parseItem parses a simple comparison.
// item = attr ("=" | "~=" | ">=" | "<=") value
func (p *Parser) parseItem() (Expr, error) {
	attr := p.current.Literal
	p.nextToken() // consume attribute

	if p.current.Type == TokenIllegal {
		return nil, p.errorf(p.current.Pos, "unknown operator %q", p.current.Literal)
	}
	if !p.current.Type.IsComparisonOp() {
		return nil, p.errorf(p.current.Pos, "missing operator after attribute %q", attr)
	}
	op := p.current.Type
	p.nextToken() // consume operator

	// The lexer always emits a value token after an operator.
	raw := p.current.Literal
	pos := p.current.Pos
	p.nextToken() // consume value

	if op == TokenEq {
		return p.parseEqValue(attr, raw, pos)
	}

	value, err := unescape(raw)
	if err != nil {
		return nil, p.errorf(pos+err.offset, "%s", err.msg)
	}
	if value == "" {
		return nil, p.errorf(pos, "empty value for %q", op.String())
	}
	return &CompareExpr{Attr: attr, Op: op, Value: value}, nil
}

// parseEqValue turns the value of an '=' item into a comparison, presence
// test or substring match depending on its unescaped '*' characters.
func (p *Parser) parseEqValue(attr, raw string, pos int) (Expr, error) {
	parts, err := splitSubstring(raw)
	if err != nil {
		return nil, p.errorf(pos+err.offset, "%s", err.msg)
	}

	switch {
	case len(parts) == 1:
		return &CompareExpr{Attr: attr, Op: TokenEq, Value: parts[0]}, nil
	case len(parts) == 2 && parts[0] == "" && parts[1] == "":
		return &PresentExpr{Attr: attr}, nil
	default:
		return &SubstringExpr{
			Attr:    attr,
			Initial: parts[0],
			Any:     parts[1 : len(parts)-1],
			Final:   parts[len(parts)-1],
		}, nil
	}
}

type valueError struct {
	offset int
	msg    string
}

// splitSubstring unescapes raw and splits it on unescaped '*'.
func splitSubstring(raw string) ([]string, *valueError) {
	var parts []string
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; c {
		case '\\':
			i++
			if i >= len(raw) {
				return nil, &valueError{offset: i - 1, msg: "dangling escape"}
			}
			sb.WriteByte(raw[i])
		case '*':
			parts = append(parts, sb.String())
			sb.Reset()
		case '(':
			return nil, &valueError{offset: i, msg: "unescaped '(' in value"}
		default:
			sb.WriteByte(c)
		}
	}
	return append(parts, sb.String()), nil
}

// unescape removes escapes from raw. '*' has no special meaning here.
func unescape(raw string) (string, *valueError) {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; c {
		case '\\':
			i++
			if i >= len(raw) {
				return "", &valueError{offset: i - 1, msg: "dangling escape"}
			}
			sb.WriteByte(raw[i])
		case '(':
			return "", &valueError{offset: i, msg: "unescaped '(' in value"}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}
