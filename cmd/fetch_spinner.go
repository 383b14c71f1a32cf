package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const (
	// spinnerDelay keeps fast fetches from flashing a spinner.
	spinnerDelay = 150 * time.Millisecond
	// elapsedAfter is when the spinner starts showing how long it has waited.
	elapsedAfter = 2 * time.Second
)

var elapsedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

type fetchDoneMsg struct {
	err error
}

type spinnerRevealMsg struct{}

type fetchSpinnerModel struct {
	spinner spinner.Model
	label   string
	fetch   tea.Cmd
	started time.Time
	now     func() time.Time
	visible bool
	err     error
	done    bool
}

func newFetchSpinnerModel(label string, fetch tea.Cmd, now func() time.Time) fetchSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return fetchSpinnerModel{
		spinner: s,
		label:   label,
		fetch:   fetch,
		started: now(),
		now:     now,
	}
}

func (m fetchSpinnerModel) Init() tea.Cmd {
	reveal := tea.Tick(spinnerDelay, func(time.Time) tea.Msg { return spinnerRevealMsg{} })
	return tea.Batch(reveal, m.fetch)
}

func (m fetchSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinnerRevealMsg:
		if m.done {
			return m, nil
		}
		m.visible = true
		return m, m.spinner.Tick
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case fetchDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m fetchSpinnerModel) View() string {
	if m.done || !m.visible {
		return ""
	}

	line := fmt.Sprintf("%s %s", m.spinner.View(), m.label)
	if waited := m.now().Sub(m.started); waited >= elapsedAfter {
		line += " " + elapsedStyle.Render(fmt.Sprintf("(%ds)", int(waited.Seconds())))
	}
	return line
}

// runFetchSpinner shows a spinner on output while fetch runs.
func runFetchSpinner(ctx context.Context, output io.Writer, label string, fetch func(context.Context) error) error {
	fetchCmd := func() tea.Msg {
		return fetchDoneMsg{err: fetch(ctx)}
	}

	p := tea.NewProgram(
		newFetchSpinnerModel(label, fetchCmd, time.Now),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(fetchSpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.err
}

// fetch runs load behind a spinner on stderr when a human is watching a
// table, and directly otherwise.
func (a *app) fetch(cmd *cobra.Command, label string, load func(context.Context) error) error {
	if a.noSpinner || a.output != outputTable || !isTerminalWriter(cmd.ErrOrStderr()) {
		return load(cmd.Context())
	}
	return runFetchSpinner(cmd.Context(), cmd.ErrOrStderr(), label, load)
}
