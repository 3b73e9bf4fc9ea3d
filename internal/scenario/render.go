package scenario

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// RenderOptions controls transcript output.
type RenderOptions struct {
	Color bool
	// Diff prints property diffs under MODIFIED events, when recorded.
	Diff bool
}

// Render writes a human-readable report of res.
func Render(w io.Writer, res *Result, opts RenderOptions) error {
	p := &printer{w: w, color: opts.Color}

	if res.Name != "" {
		p.line(p.style(HeaderStyle, res.Name))
		p.line("")
	}

	p.line(p.style(HeaderStyle, "events"))
	rows := make([][]string, 0, len(res.Transcript))
	for _, e := range res.Transcript {
		rows = append(rows, []string{
			strconv.Itoa(e.Step),
			e.Listener,
			e.Kind.String(),
			fmt.Sprintf("%s (#%d)", e.Service, e.ServiceID),
		})
	}
	widths := columnWidths([]string{"step", "listener", "event", "service"}, rows)
	header := p.row(widths, []string{"step", "listener", "event", "service"})
	p.line(p.style(MutedStyle, strings.TrimRight(header, " ")))
	for i, row := range rows {
		cells := append([]string(nil), row...)
		cells[2] = p.style(kindStyle(res.Transcript[i].Kind), row[2])
		p.line(p.row(widths, cells))

		if opts.Diff {
			for _, d := range Changed(res.Transcript[i].Diff) {
				text := d.String()
				switch d.Op {
				case DiffInsert:
					text = p.style(InsertStyle, text)
				case DiffDelete:
					text = p.style(DeleteStyle, text)
				}
				p.line("      " + text)
			}
		}
	}

	if len(res.Lookups) > 0 {
		p.line("")
		p.line(p.style(HeaderStyle, "lookups"))
		for _, l := range res.Lookups {
			query := strings.TrimSpace(l.Type + " " + l.Filter)
			if query == "" {
				query = "*"
			}
			if l.Err != nil {
				p.line(fmt.Sprintf("  %s -> %s", query, p.style(FailStyle, l.Err.Error())))
				continue
			}
			found := make([]string, len(l.Services))
			for i, name := range l.Services {
				found[i] = fmt.Sprintf("%s(%d)", name, l.Rankings[i])
			}
			p.line(fmt.Sprintf("  %s -> [%s]", query, strings.Join(found, ", ")))
		}
	}

	if len(res.Faults) > 0 {
		p.line("")
		p.line(p.style(HeaderStyle, "faults"))
		for _, f := range res.Faults {
			p.line("  " + p.style(MutedStyle, f.String()))
		}
	}

	p.line("")
	if res.Passed() {
		p.line(p.style(PassStyle, "PASS"))
	} else {
		for _, m := range res.Mismatches {
			p.line(p.style(FailStyle, "FAIL ") + m)
		}
	}
	return p.err
}

type printer struct {
	w     io.Writer
	color bool
	err   error
}

func (p *printer) line(s string) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, strings.TrimRight(s, " "))
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// row pads every cell to its column width. Widths are display widths with
// escape sequences ignored, so styled cells and wide runes stay aligned.
func (p *printer) row(widths []int, cells []string) string {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		fill := strings.Repeat(" ", max(0, widths[i]-ansi.StringWidth(cell)))
		if i == 0 {
			b.WriteString(fill + cell)
		} else {
			b.WriteString(cell + fill)
		}
	}
	return b.String()
}

func columnWidths(header []string, rows [][]string) []int {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	return widths
}
