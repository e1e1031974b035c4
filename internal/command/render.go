package command

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/joeycumines/plancoord/internal/coordinator"
	"github.com/joeycumines/plancoord/internal/scenario"
	"github.com/joeycumines/plancoord/internal/telemetry"
	"golang.org/x/term"
)

// colorEnabled decides whether output to w is styled. mode is the "color"
// option: always, never, or auto (a terminal, and NO_COLOR unset).
func colorEnabled(mode string, w io.Writer) bool {
	switch strings.ToLower(mode) {
	case "always":
		return true
	case "never":
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

type palette struct {
	cell    lipgloss.Style
	header  lipgloss.Style
	border  lipgloss.Style
	running lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newPalette(color bool) palette {
	cell := lipgloss.NewStyle().Padding(0, 1)
	p := palette{
		cell:    cell,
		header:  cell,
		border:  lipgloss.NewStyle(),
		running: cell,
		success: cell,
		failure: cell,
		muted:   cell,
	}
	if !color {
		return p
	}
	p.header = cell.Bold(true)
	p.border = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	p.running = cell.Foreground(lipgloss.Color("4"))
	p.success = cell.Foreground(lipgloss.Color("2")).Bold(true)
	p.failure = cell.Foreground(lipgloss.Color("1")).Bold(true)
	p.muted = cell.Foreground(lipgloss.Color("245"))
	return p
}

func (p palette) status(s coordinator.Status) lipgloss.Style {
	switch s {
	case coordinator.StatusSuccess:
		return p.success
	case coordinator.StatusFailure:
		return p.failure
	default:
		return p.running
	}
}

const (
	colTick = iota
	colState
	colResult
	colPhase
	colStep
	colEvents
)

// renderTrace writes one table row per tick.
func renderTrace(w io.Writer, report *scenario.Report, color bool) {
	p := newPalette(color)

	rows := make([][]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		rows = append(rows, []string{
			strconv.FormatUint(row.Tick, 10),
			report.Vocabulary.Format(row.State),
			row.Result.String(),
			row.Phase.String(),
			row.Step,
			formatTags(row.Tags),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.border).
		Headers("TICK", "STATE", "RESULT", "PHASE", "STEP", "EVENTS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return p.header
			case row < 0 || row >= len(report.Rows):
				return p.cell
			case col == colResult:
				return p.status(report.Rows[row].Result.Status)
			case col == colEvents || col == colTick:
				return p.muted
			default:
				return p.cell
			}
		})

	_, _ = fmt.Fprintln(w, t.String())
}

func formatTags(tags []telemetry.Tag) string {
	parts := make([]string, len(tags))
	for i, tag := range tags {
		parts[i] = strings.TrimPrefix(string(tag), "plan.")
	}
	return strings.Join(parts, " ")
}

// renderSummary writes the outcome and counters.
func renderSummary(w io.Writer, report *scenario.Report, rec *telemetry.Recorder, color bool) {
	p := newPalette(color)

	outcome := "no ticks run"
	style := p.failure
	if n := len(report.Rows); n > 0 {
		last := report.Rows[n-1].Result
		outcome = last.String()
		style = p.status(last.Status)
	}

	_, _ = fmt.Fprintf(w, "run %s %q (%s, agent %s): %s after %d tick(s)\n",
		report.RunID, report.Name, report.Planner, report.Agent,
		style.UnsetPadding().Render(outcome), len(report.Rows))

	cs := report.Coordinator
	_, _ = fmt.Fprintf(w, "  planner calls %d, plan starts %d, restarts %d, no-progress %d, failures %d\n",
		cs.PlanCalls, cs.PlanStarts, cs.Restarts, cs.NoProgress, cs.Failures)

	rs := report.Runtime
	_, _ = fmt.Fprintf(w, "  runtime started %d, replaced %d, preempted %d, succeeded %d, failed %d\n",
		rs.Started, rs.Replaced, rs.Preempted, rs.Succeeded, rs.Failed)

	_, _ = fmt.Fprintf(w, "  final state %s\n", report.Vocabulary.Format(report.Final))

	if rec != nil {
		_, _ = fmt.Fprintf(w, "  events recorded %d (dropped %d)\n", len(rec.Events()), rec.Dropped())
	}
}
