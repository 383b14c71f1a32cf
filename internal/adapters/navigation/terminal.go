// Package navigation tells the person at the terminal that the session is
// over and how to get back in.
package navigation

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/Gribbirg/deadline-mate/internal/domain"
	"github.com/Gribbirg/deadline-mate/internal/pkg/logger"
	"github.com/Gribbirg/deadline-mate/internal/ports"
)

// Terminal prints a login hint the first time the session ends.
type Terminal struct {
	out     io.Writer
	profile domain.ProfileName
	log     *slog.Logger
	style   lipgloss.Style

	once sync.Once
}

var _ ports.Navigator = (*Terminal)(nil)

func NewTerminal(out io.Writer, profile domain.ProfileName, log *slog.Logger) *Terminal {
	if log == nil {
		log = logger.Discard()
	}
	return &Terminal{
		out:     out,
		profile: profile,
		log:     log,
		style:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
	}
}

func (t *Terminal) RedirectToLogin() {
	t.once.Do(func() {
		t.log.Info("session ended, login required")

		command := "dm login"
		if t.profile != "" && t.profile != domain.DefaultProfile {
			command += " --profile " + string(t.profile)
		}
		_, _ = fmt.Fprintln(t.out, t.style.Render("Your session has ended.")+" Run `"+command+"` to sign in again.")
	})
}
