package scenario

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/svcreg/internal/properties"
)

// DiffOp marks a line in a property diff.
type DiffOp int

const (
	DiffEqual DiffOp = iota
	DiffInsert
	DiffDelete
)

// DiffLine is one "key=value" line of a property diff.
type DiffLine struct {
	Op   DiffOp
	Text string
}

func (l DiffLine) String() string {
	switch l.Op {
	case DiffInsert:
		return "+ " + l.Text
	case DiffDelete:
		return "- " + l.Text
	default:
		return "  " + l.Text
	}
}

// Diff compares two property snapshots line by line, one line per key in
// sorted key order. Unchanged lines are included.
func Diff(old, new *properties.Dictionary) []DiffLine {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(old.Lines(), new.Lines())
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []DiffLine
	for _, d := range diffs {
		op := DiffEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = DiffInsert
		case diffmatchpatch.DiffDelete:
			op = DiffDelete
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			line = strings.TrimSuffix(line, "\n")
			if line == "" {
				continue
			}
			out = append(out, DiffLine{Op: op, Text: line})
		}
	}
	return out
}

// Changed returns only the inserted and deleted lines.
func Changed(lines []DiffLine) []DiffLine {
	var out []DiffLine
	for _, l := range lines {
		if l.Op != DiffEqual {
			out = append(out, l)
		}
	}
	return out
}
