package main

import (
	"context"
	"fmt"
	"strings"

	"tourcharge/cmd/tourcharge/ui"
	"tourcharge/internal/batch"
	"tourcharge/internal/types"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// tailLines is how many recent entry outcomes stay visible above the bar.
const tailLines = 8

var styles = ui.DefaultStyles()

type entryMsg struct {
	done  int
	total int
	res   types.Result
}

type batchDoneMsg struct {
	result *types.BatchResult
	err    error
}

// runModel is the live progress screen for a batch run. The batch runs on
// its own goroutine; the model only renders what it is sent.
type runModel struct {
	bar    progress.Model
	cancel context.CancelFunc

	total    int
	done     int
	failed   int
	tail     []string
	stopping bool

	result *types.BatchResult
	err    error
}

func newRunModel(total int, cancel context.CancelFunc) runModel {
	return runModel{
		bar:    progress.New(progress.WithDefaultGradient()),
		cancel: cancel,
		total:  total,
	}
}

func (m runModel) Init() tea.Cmd { return nil }

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w := msg.Width - 6
		if w > 60 {
			w = 60
		}
		if w > 10 {
			m.bar.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The entry in flight finishes; the limiter stops the next one.
			m.stopping = true
			m.cancel()
		}
		return m, nil

	case entryMsg:
		m.done = msg.done
		m.total = msg.total
		if !msg.res.Succeeded() {
			m.failed++
		}
		m.tail = append(m.tail, entryLine(msg.res))
		if len(m.tail) > tailLines {
			m.tail = m.tail[len(m.tail)-tailLines:]
		}
		return m, nil

	case batchDoneMsg:
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m runModel) View() string {
	var b strings.Builder
	b.WriteString("\n  " + styles.Title.Render("tourcharge run") + "\n\n")
	for _, line := range m.tail {
		b.WriteString("  " + line + "\n")
	}
	if len(m.tail) > 0 {
		b.WriteString("\n")
	}

	frac := 0.0
	if m.total > 0 {
		frac = float64(m.done) / float64(m.total)
	}
	b.WriteString("  " + m.bar.ViewAs(frac) + "\n")

	status := fmt.Sprintf("  %d/%d entries", m.done, m.total)
	if m.failed > 0 {
		status += styles.Error.Render(fmt.Sprintf("  %d failed", m.failed))
	}
	if m.stopping {
		status += styles.Warning.Render("  stopping after the entry in flight")
	}
	b.WriteString(status + "\n")
	return b.String()
}

// runWithProgress drives the batch under the progress screen. The screen
// owns the terminal; the run reports back through program messages.
func runWithProgress(ctx context.Context, cancel context.CancelFunc, o *batch.Orchestrator, entries []types.Entry, total int) (*types.BatchResult, error) {
	p := tea.NewProgram(newRunModel(total, cancel))

	o.OnResult(func(done, total int, res types.Result) {
		p.Send(entryMsg{done: done, total: total, res: res})
	})
	go func() {
		result, err := o.Run(ctx, entries)
		p.Send(batchDoneMsg{result: result, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("progress screen: %w", err)
	}
	m, ok := final.(runModel)
	if !ok {
		return nil, fmt.Errorf("unexpected final model %T", final)
	}
	return m.result, m.err
}

// entryLine formats one processed entry for the tail and for plain output.
func entryLine(r types.Result) string {
	if r.Succeeded() {
		note := r.ConfirmationID
		if note == "" {
			note = "submitted"
		}
		return fmt.Sprintf("%s %s  %s", styles.Success.Render("✓"), r.TourCode, styles.Muted.Render(note))
	}
	return fmt.Sprintf("%s %s  %s", styles.Error.Render("✗"), r.TourCode, r.Reason)
}

// renderRunSummary renders the post-run outcome table and counts.
func renderRunSummary(result *types.BatchResult, csvPath string) string {
	table := ui.NewTable("", "Tour Code", "Program", "Status", "Expense No", "Reason")
	for _, r := range result.Results {
		table.AddRow(r.TourCode, r.ProgramCode, string(r.Status), r.ConfirmationID, r.Reason)
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(table.View(styles))

	line := fmt.Sprintf("%s  run %s", result.Summary(), result.RunID)
	if result.Failed() > 0 {
		b.WriteString(styles.Warning.Render(line) + "\n")
	} else {
		b.WriteString(styles.Success.Render(line) + "\n")
	}
	if csvPath != "" {
		b.WriteString(styles.Muted.Render("results written to "+csvPath) + "\n")
	}
	return b.String()
}
