package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSpinnerStaysHiddenUntilRevealed(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newFetchSpinnerModel("Fetching groups...", nil, func() time.Time { return now })

	assert.Empty(t, m.View())

	next, cmd := m.Update(spinnerRevealMsg{})
	m = next.(fetchSpinnerModel)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Fetching groups...")
	assert.NotContains(t, m.View(), "(")
}

func TestFetchSpinnerShowsElapsedOnSlowFetch(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := started
	m := newFetchSpinnerModel("Fetching deadlines...", nil, func() time.Time { return now })

	next, _ := m.Update(spinnerRevealMsg{})
	m = next.(fetchSpinnerModel)
	now = started.Add(3 * time.Second)

	assert.Contains(t, m.View(), "(3s)")
}

func TestFetchSpinnerFinishesWithFetchResult(t *testing.T) {
	now := time.Now()
	m := newFetchSpinnerModel("Fetching...", nil, func() time.Time { return now })
	boom := errors.New("boom")

	next, cmd := m.Update(fetchDoneMsg{err: boom})
	m = next.(fetchSpinnerModel)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.ErrorIs(t, m.err, boom)
	assert.Empty(t, m.View())

	next, cmd = m.Update(spinnerRevealMsg{})
	assert.Nil(t, cmd)
	assert.Empty(t, next.View())

	_, cmd = m.Update(spinner.TickMsg{})
	assert.Nil(t, cmd)
}

func TestAppFetchRunsDirectlyWithoutTerminal(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())

	a := &app{output: outputTable}
	calls := 0
	err := a.fetch(cmd, "Fetching...", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	a.output = outputJSON
	boom := errors.New("boom")
	err = a.fetch(cmd, "Fetching...", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
