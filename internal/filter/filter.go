package filter

import (
	"github.com/zjrosen/svcreg/internal/properties"
)

// Filter is a compiled filter. It is immutable and safe for concurrent use.
// A nil *Filter matches every dictionary.
type Filter struct {
	text      string
	canonical string
	expr      Expr
}

// Compile parses text into a Filter. Errors match ErrMalformed and can be
// unwrapped to *MalformedError for the failing offset.
func Compile(text string) (*Filter, error) {
	expr, err := NewParser(text).Parse()
	if err != nil {
		return nil, err
	}
	return &Filter{text: text, canonical: expr.String(), expr: expr}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Filter {
	f, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return f
}

// Match reports whether props satisfies the filter.
func (f *Filter) Match(props *properties.Dictionary) bool {
	if f == nil {
		return true
	}
	return eval(f.expr, props)
}

// Expr returns the root of the parsed expression.
func (f *Filter) Expr() Expr {
	if f == nil {
		return nil
	}
	return f.expr
}

// Text returns the text the filter was compiled from.
func (f *Filter) Text() string {
	if f == nil {
		return ""
	}
	return f.text
}

// String returns the canonical form. Compiling it yields an equivalent filter.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.canonical
}
