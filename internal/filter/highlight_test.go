package filter

import (
	"regexp"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// ansiRegex matches ANSI escape sequences
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI removes all ANSI escape codes from a string
func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

func init() {
	// Force ANSI color output in tests (lipgloss disables colors when no TTY)
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"simple comparison", "(objectClass=Runnable)"},
		{"composite", "(&(a=1)(|(b>=2)(!(c=*))))"},
		{"whitespace preserved", "  ( & ( a = b c ) )  "},
		{"escapes", `(path=a\*b\))`},
		{"malformed", "(a>5"},
		{"unterminated", "(&(a="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Highlight(tt.input)
			assert.Equal(t, tt.input, stripANSI(out))
			assert.True(t, ansiRegex.MatchString(out), "expected ANSI codes in %q", out)
		})
	}
}

func TestHighlight_Empty(t *testing.T) {
	assert.Equal(t, "", Highlight(""))
}

func TestHighlight_TokenStyles(t *testing.T) {
	assert.Equal(t, KeywordStyle, tokenStyle(TokenAnd))
	assert.Equal(t, OperatorStyle, tokenStyle(TokenApprox))
	assert.Equal(t, AttrStyle, tokenStyle(TokenAttr))
	assert.Equal(t, ValueStyle, tokenStyle(TokenValue))
	assert.Equal(t, IllegalStyle, tokenStyle(TokenIllegal))
	assert.Equal(t, DefaultStyle, tokenStyle(TokenEOF))
}

// Highlighting never adds or loses visible characters, whatever the input.
func TestHighlight_PreservesTextProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		input := rapid.StringMatching(`[()&|!=~<>*\\ a-z0-9]{0,24}`).Draw(t, "input")
		if got := stripANSI(Highlight(input)); got != input {
			t.Fatalf("Highlight(%q) stripped to %q", input, got)
		}
	})
}
