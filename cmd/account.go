package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Gribbirg/deadline-mate/internal/application"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Edit the signed-in user's account",
	}

	cmd.AddCommand(
		newAccountUpdateCmd(app),
		newAccountPasswordCmd(app),
	)

	return cmd
}

func newAccountUpdateCmd(app *app) *cobra.Command {
	var email, firstName, lastName, major, position, department string
	var year int

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change name, email or role details",
		Long: "Change name, email or role details. Only the flags given are sent.\n" +
			"Students may set --major and --year, teachers --position and --department.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}

			var command application.UpdateProfileCommand
			flags := cmd.Flags()
			if flags.Changed("email") {
				command.Email = &email
			}
			if flags.Changed("first-name") {
				command.FirstName = &firstName
			}
			if flags.Changed("last-name") {
				command.LastName = &lastName
			}
			if flags.Changed("major") {
				command.Major = &major
			}
			if flags.Changed("year") {
				command.YearOfStudy = &year
			}
			if flags.Changed("position") {
				command.Position = &position
			}
			if flags.Changed("department") {
				command.Department = &department
			}
			if command == (application.UpdateProfileCommand{}) {
				return errors.New("nothing to update; pass at least one flag")
			}

			user, err := app.service.UpdateProfile(cmd.Context(), command)
			if err != nil {
				return err
			}

			return app.write(cmd, user, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Updated %s (%s)\n", user.DisplayName(), user.Username)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&major, "major", "", "Major (students)")
	cmd.Flags().IntVar(&year, "year", 0, "Year of study (students)")
	cmd.Flags().StringVar(&position, "position", "", "Position (teachers)")
	cmd.Flags().StringVar(&department, "department", "", "Department (teachers)")

	return cmd
}

func newAccountPasswordCmd(app *app) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change the account password",
		Long: "Change the account password. With --password-stdin the current and\n" +
			"the new password are read from the first two lines of stdin.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			in := bufio.NewReader(cmd.InOrStdin())

			current, err := app.readPassword(cmd, in, "Current password: ", passwordStdin)
			if err != nil {
				return err
			}
			next, err := app.readPassword(cmd, in, "New password: ", passwordStdin)
			if err != nil {
				return err
			}
			if !passwordStdin && app.stdinIsTerminal() {
				confirm, err := app.readPassword(cmd, in, "Repeat new password: ", false)
				if err != nil {
					return err
				}
				if confirm != next {
					return errors.New("new passwords do not match")
				}
			}
			if next == "" {
				return errors.New("new password is empty")
			}

			if _, err := app.service.UpdateProfile(cmd.Context(), application.UpdateProfileCommand{
				CurrentPassword: current,
				NewPassword:     next,
			}); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			return err
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read both passwords from stdin")

	return cmd
}
