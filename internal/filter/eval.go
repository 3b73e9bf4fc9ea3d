package filter

import (
	"cmp"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/zjrosen/svcreg/internal/properties"
)

// eval reports whether expr holds for the dictionary. Items naming a
// missing attribute evaluate to false.
func eval(expr Expr, props *properties.Dictionary) bool {
	switch e := expr.(type) {
	case *AndExpr:
		for _, operand := range e.Operands {
			if !eval(operand, props) {
				return false
			}
		}
		return true

	case *OrExpr:
		for _, operand := range e.Operands {
			if eval(operand, props) {
				return true
			}
		}
		return false

	case *NotExpr:
		return !eval(e.Expr, props)

	case *PresentExpr:
		v, ok := props.Get(e.Attr)
		return ok && !v.IsNull()

	case *CompareExpr:
		v, ok := props.Get(e.Attr)
		return ok && compareValue(e.Op, v, e.Value)

	case *SubstringExpr:
		v, ok := props.Get(e.Attr)
		return ok && substringValue(e, v)

	default:
		return false
	}
}

// compareValue applies a comparison operator to a property value.
// Lists match when any element matches; null never matches. Only int and
// float values compare numerically, so the string "007" never equals 7.
func compareValue(op TokenType, v properties.Value, lit string) bool {
	switch v.Kind() {
	case properties.KindNull:
		return false
	case properties.KindList:
		for _, item := range v.Items() {
			if compareValue(op, item, lit) {
				return true
			}
		}
		return false
	}

	s := v.String()
	if isNumeric(v.Kind()) {
		if c, ok := compareNumeric(s, lit); ok {
			return applyOp(op, c)
		}
	}
	if op == TokenApprox {
		return strings.EqualFold(stripSpace(s), stripSpace(lit))
	}
	return applyOp(op, compareFold(s, lit))
}

func isNumeric(k properties.Kind) bool {
	return k == properties.KindInt || k == properties.KindFloat
}

func applyOp(op TokenType, c int) bool {
	switch op {
	case TokenEq, TokenApprox:
		return c == 0
	case TokenGte:
		return c >= 0
	case TokenLte:
		return c <= 0
	default:
		return false
	}
}

// compareNumeric compares a and b as numbers when both parse as one.
// Integers compare exactly, everything else as float64.
func compareNumeric(a, b string) (int, bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if x, err := strconv.ParseInt(a, 10, 64); err == nil {
		if y, err := strconv.ParseInt(b, 10, 64); err == nil {
			return cmp.Compare(x, y), true
		}
	}
	x, ok := parseFinite(a)
	if !ok {
		return 0, false
	}
	y, ok := parseFinite(b)
	if !ok {
		return 0, false
	}
	return cmp.Compare(x, y), true
}

// parseFinite parses s as a float, rejecting NaN and infinities so words
// like "nan" or "inf" stay strings.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func substringValue(e *SubstringExpr, v properties.Value) bool {
	switch v.Kind() {
	case properties.KindNull:
		return false
	case properties.KindList:
		for _, item := range v.Items() {
			if substringValue(e, item) {
				return true
			}
		}
		return false
	}
	return matchSegments(strings.ToLower(v.String()), e)
}

// matchSegments matches s against initial*any*...*final, case-folded.
func matchSegments(s string, e *SubstringExpr) bool {
	initial := strings.ToLower(e.Initial)
	if !strings.HasPrefix(s, initial) {
		return false
	}
	s = s[len(initial):]

	for _, part := range e.Any {
		part = strings.ToLower(part)
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}

	return strings.HasSuffix(s, strings.ToLower(e.Final))
}
