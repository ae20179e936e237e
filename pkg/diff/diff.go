// Package diff emits line-oriented diffs between the existing
// destination content and the rendered candidate. Only deletions and
// insertions are shown; equal lines are omitted. This is observability
// output, not part of the reconciliation contract.
package diff

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"
)

var (
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	insertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// Lines returns the delete/insert lines between a and b, prefixed with
// "- " and "+ ". An empty slice means the inputs are line-identical.
func Lines(a, b string) []string {
	aLines := difflib.SplitLines(a)
	bLines := difflib.SplitLines(b)

	var out []string
	matcher := difflib.NewMatcher(aLines, bLines)
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'd' || op.Tag == 'r' {
			for _, line := range aLines[op.I1:op.I2] {
				out = append(out, "- "+strings.TrimSuffix(line, "\n"))
			}
		}
		if op.Tag == 'i' || op.Tag == 'r' {
			for _, line := range bLines[op.J1:op.J2] {
				out = append(out, "+ "+strings.TrimSuffix(line, "\n"))
			}
		}
	}
	return out
}

// Emit logs the delete/insert lines at info level, colorized when
// stderr is a terminal.
func Emit(logger zerolog.Logger, a, b string) {
	color := isatty.IsTerminal(os.Stderr.Fd())
	for _, line := range Lines(a, b) {
		logger.Info().Msg(colorize(line, color))
	}
}

func colorize(line string, color bool) string {
	if !color {
		return line
	}
	switch {
	case strings.HasPrefix(line, "- "):
		return deleteStyle.Render(line)
	case strings.HasPrefix(line, "+ "):
		return insertStyle.Render(line)
	default:
		return line
	}
}
