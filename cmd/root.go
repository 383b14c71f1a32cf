package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

// annotationNoSession marks commands that run without wiring the API session.
const annotationNoSession = "dm/no-session"

type rootOptions struct {
	configFile string
	profile    string
	apiURL     string
	output     string
	logLevel   string
}

func Execute() error {
	app := &app{}
	return execute(newRootCmd(app), app)
}

// execute runs root and releases what wiring opened, whether or not the
// command succeeded.
func execute(root *cobra.Command, app *app) (err error) {
	defer func() {
		err = errors.Join(err, app.close())
	}()
	return root.Execute()
}

func newRootCmd(app *app) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "dm",
		Short:         "Deadline Mate CLI (dm): groups, assignments and deadlines",
		Long:          "dm talks to a Deadline Mate server: sign in as a student or teacher, manage groups and assignments, submit and grade work, and keep an eye on upcoming deadlines.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNoSession] == "true" {
				return nil
			}
			return app.wire(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Config file (default ~/.deadline-mate/config.toml)")
	flags.StringVarP(&opts.profile, "profile", "p", "", "Profile to use (default \"default\")")
	flags.StringVar(&opts.apiURL, "api-url", "", "API base URL, e.g. http://localhost:8000/api/")
	flags.StringVarP(&opts.output, "output", "o", outputTable, "Output format (table, json, yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&app.noSpinner, "no-spinner", false, "Do not show a spinner while fetching")

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newLogoutCmd(app),
		newWhoamiCmd(app),
		newRegisterCmd(app),
		newProfilesCmd(app),
		newAccountCmd(app),
		newStudentsCmd(app),
		newTeachersCmd(app),
		newGroupsCmd(app),
		newAssignmentsCmd(app),
		newSubmissionsCmd(app),
		newDashboardCmd(app),
	)

	return rootCmd
}
