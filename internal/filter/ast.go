package filter

import "strings"

// Node is the interface for all AST nodes.
type Node interface {
	node()
	String() string
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr()
}

// AndExpr represents "(&(f1)(f2)...)".
type AndExpr struct {
	Operands []Expr
}

func (a *AndExpr) node() {}
func (a *AndExpr) expr() {}

func (a *AndExpr) String() string { return renderComposite('&', a.Operands) }

// OrExpr represents "(|(f1)(f2)...)".
type OrExpr struct {
	Operands []Expr
}

func (o *OrExpr) node() {}
func (o *OrExpr) expr() {}

func (o *OrExpr) String() string { return renderComposite('|', o.Operands) }

// NotExpr represents "(!(f))".
type NotExpr struct {
	Expr Expr
}

func (n *NotExpr) node() {}
func (n *NotExpr) expr() {}

func (n *NotExpr) String() string { return "(!" + n.Expr.String() + ")" }

// CompareExpr represents "(attr op value)". Value is unescaped.
type CompareExpr struct {
	Attr  string
	Op    TokenType // TokenEq, TokenApprox, TokenGte or TokenLte
	Value string
}

func (c *CompareExpr) node() {}
func (c *CompareExpr) expr() {}

func (c *CompareExpr) String() string {
	return "(" + c.Attr + c.Op.String() + escapeValue(c.Value) + ")"
}

// PresentExpr represents "(attr=*)".
type PresentExpr struct {
	Attr string
}

func (p *PresentExpr) node() {}
func (p *PresentExpr) expr() {}

func (p *PresentExpr) String() string { return "(" + p.Attr + "=*)" }

// SubstringExpr represents "(attr=initial*any*...*final)".
// Initial and Final may be empty; Any holds the inner segments.
type SubstringExpr struct {
	Attr    string
	Initial string
	Any     []string
	Final   string
}

func (s *SubstringExpr) node() {}
func (s *SubstringExpr) expr() {}

func (s *SubstringExpr) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(s.Attr)
	sb.WriteString("=")
	sb.WriteString(escapeValue(s.Initial))
	sb.WriteString("*")
	for _, part := range s.Any {
		sb.WriteString(escapeValue(part))
		sb.WriteString("*")
	}
	sb.WriteString(escapeValue(s.Final))
	sb.WriteString(")")
	return sb.String()
}

func renderComposite(op byte, operands []Expr) string {
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteByte(op)
	for _, operand := range operands {
		sb.WriteString(operand.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// escapeValue escapes the characters that are significant inside a value.
func escapeValue(v string) string {
	if !strings.ContainsAny(v, `\()*`) {
		return v
	}
	var sb strings.Builder
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '\\', '(', ')', '*':
			sb.WriteByte('\\')
		}
		sb.WriteByte(v[i])
	}
	return sb.String()
}
