package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Gribbirg/deadline-mate/internal/adapters/render/deadlines"
	"github.com/Gribbirg/deadline-mate/internal/application"
)

func newDashboardCmd(app *app) *cobra.Command {
	var (
		showAll bool
		horizon time.Duration
	)

	cmd := &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"deadlines", "dash"},
		Short:   "Show upcoming deadlines for the signed-in user",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}

			var dashboard application.Dashboard
			fetch := func(ctx context.Context) error {
				var err error
				dashboard, err = app.service.Dashboard(ctx)
				return err
			}

			if err := app.fetch(cmd, "Fetching deadlines...", fetch); err != nil {
				return err
			}

			return app.write(cmd, dashboard, func(w io.Writer) error {
				out, err := app.dashboardRender(dashboard, deadlines.RenderOptions{
					Now:         app.now(),
					Horizon:     horizon,
					ShowOverdue: showAll,
				})
				if err != nil {
					return fmt.Errorf("render dashboard: %w", err)
				}
				_, err = fmt.Fprintln(w, out)
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "Include deadlines that already passed")
	cmd.Flags().DurationVar(&horizon, "horizon", 7*24*time.Hour, "Time span covered by the countdown bars")

	return cmd
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
