package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"tangled/internal/learn"
	"tangled/internal/stats"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	countStyle = lipgloss.NewStyle().Faint(true)
)

// reporter shows training progress: a bar when w is a terminal, the
// per-generation table otherwise.
type reporter struct {
	w     io.Writer
	bar   *progress.Model
	table *stats.TableLogger
	drawn bool
}

func newReporter(w io.Writer, validation bool) *reporter {
	r := &reporter{w: w}
	if isTerminal(w) {
		bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
		r.bar = &bar
		return r
	}
	r.table = stats.NewTableLogger(w, validation)
	return r
}

func (r *reporter) hooks() []learn.Hook {
	if r.table == nil {
		return nil
	}
	return []learn.Hook{r.table}
}

func (r *reporter) progress(done, total uint64) {
	if r.bar == nil {
		return
	}
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}
	fmt.Fprintf(r.w, "\r%s %s %s", labelStyle.Render("training"), r.bar.ViewAs(pct),
		countStyle.Render(fmt.Sprintf("%d/%d", done, total)))
	r.drawn = true
}

// finish ends the bar line and reports a table write error, if any.
func (r *reporter) finish() error {
	if r.drawn {
		fmt.Fprintln(r.w)
	}
	if r.table != nil {
		return r.table.Err()
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
