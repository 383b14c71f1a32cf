package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	authadapter "github.com/Gribbirg/deadline-mate/internal/adapters/auth"
	"github.com/Gribbirg/deadline-mate/internal/application"
	"github.com/Gribbirg/deadline-mate/internal/domain"
)

func newLoginCmd(app *app) *cobra.Command {
	var username string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session for the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())

			if username == "" {
				value, err := app.prompt(cmd, in, "Username: ")
				if err != nil {
					return err
				}
				username = value
			}

			password, err := app.readPassword(cmd, in, "Password: ", passwordStdin)
			if err != nil {
				return err
			}

			if _, err := app.session.Login(cmd.Context(), username, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}

			user, _ := app.session.CurrentUser()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s) on profile %s\n", user.DisplayName(), roleOf(user), app.settings.Profile)
			return err
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when empty)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session of the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.session.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Logged out of profile %s\n", app.settings.Profile)
			return err
		},
	}
}

type whoamiView struct {
	User           domain.User        `json:"user" yaml:"user"`
	Profile        domain.ProfileName `json:"profile" yaml:"profile"`
	APIURL         string             `json:"api_url" yaml:"api_url"`
	TokenExpiresAt *time.Time         `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
}

func newWhoamiCmd(app *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}

			var user domain.User
			if offline {
				known, ok := app.session.CurrentUser()
				if !ok {
					return errors.New("no user snapshot stored for this profile; run without --offline")
				}
				user = known
			} else {
				fetched, err := app.service.Profile(cmd.Context())
				if err != nil {
					return err
				}
				user = fetched
			}

			view := whoamiView{User: user, Profile: app.settings.Profile, APIURL: app.baseURL}
			if claims, err := authadapter.ParseClaims(app.session.AccessToken()); err == nil && !claims.ExpiresAt.IsZero() {
				view.TokenExpiresAt = &claims.ExpiresAt
			} else if err != nil {
				app.log.Debug("access token claims unavailable", "error", err)
			}

			return app.write(cmd, view, func(w io.Writer) error {
				fields := [][2]string{
					{"username", user.Username},
					{"name", user.DisplayName()},
					{"email", orDash(user.Email)},
					{"role", roleOf(user)},
				}
				if p := user.StudentProfile; p != nil {
					fields = append(fields, [2]string{"major", orDash(p.Major)})
					if p.YearOfStudy > 0 {
						fields = append(fields, [2]string{"year", fmt.Sprint(p.YearOfStudy)})
					}
				}
				if p := user.TeacherProfile; p != nil {
					fields = append(fields,
						[2]string{"department", orDash(p.Department)},
						[2]string{"position", orDash(p.Position)},
					)
				}
				fields = append(fields,
					[2]string{"profile", string(view.Profile)},
					[2]string{"api", view.APIURL},
					[2]string{"token expires", formatOptionalTime(view.TokenExpiresAt)},
				)
				return writeFields(w, fields)
			})
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use the stored user snapshot instead of asking the server")

	return cmd
}

func newRegisterCmd(app *app) *cobra.Command {
	var command application.RegisterCommand
	var role string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new student or teacher account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			command.Role = domain.Role(strings.ToLower(role))

			password, err := app.readPassword(cmd, in, "Password: ", passwordStdin)
			if err != nil {
				return err
			}
			command.Password = password
			command.PasswordConfirm = password
			if !passwordStdin && app.stdinIsTerminal() {
				confirm, err := app.readPassword(cmd, in, "Repeat password: ", false)
				if err != nil {
					return err
				}
				command.PasswordConfirm = confirm
			}

			user, err := app.service.Register(cmd.Context(), command)
			if err != nil {
				return err
			}

			return app.write(cmd, user, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Registered %s as %s. Run `dm login -u %s` to sign in.\n", user.Username, roleOf(user), user.Username)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&command.Username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&command.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&command.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&command.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "Account role (student, teacher)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newProfilesCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List configured profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := app.profiles.List(cmd.Context())
			if err != nil {
				return err
			}

			return app.write(cmd, profiles, func(w io.Writer) error {
				if len(profiles) == 0 {
					_, err := fmt.Fprintln(w, "No profiles yet. Run `dm login` to create one.")
					return err
				}

				rows := make([][]string, 0, len(profiles))
				for _, profile := range profiles {
					user, role := "-", "-"
					if profile.User != nil {
						user, role = profile.User.Username, roleOf(*profile.User)
					}
					current := ""
					if profile.Name == app.settings.Profile {
						current = "*"
					}
					rows = append(rows, []string{current, string(profile.Name), profile.BaseURL, user, role, formatTime(profile.LastLoginAt)})
				}
				return writeTable(w, []string{"", "PROFILE", "API", "USER", "ROLE", "LAST LOGIN"}, rows)
			})
		},
	}
}

func newStudentsCmd(app *app) *cobra.Command {
	var search, excludeGroup string

	cmd := &cobra.Command{
		Use:   "students",
		Short: "List students (teachers only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			query, err := directoryQuery(search, excludeGroup)
			if err != nil {
				return err
			}
			students, err := app.service.ListStudents(cmd.Context(), query)
			if err != nil {
				return err
			}

			return app.write(cmd, students, func(w io.Writer) error {
				rows := make([][]string, 0, len(students))
				for _, student := range students {
					username := "-"
					if student.User != nil {
						username = student.User.Username
					}
					year := "-"
					if student.YearOfStudy > 0 {
						year = fmt.Sprint(student.YearOfStudy)
					}
					rows = append(rows, []string{fmt.Sprint(student.ID), username, orDash(student.DisplayName()), orDash(student.Major), year})
				}
				return writeTable(w, []string{"ID", "USERNAME", "NAME", "MAJOR", "YEAR"}, rows)
			})
		},
	}

	directoryFlags(cmd, &search, &excludeGroup)

	return cmd
}

func newTeachersCmd(app *app) *cobra.Command {
	var search, excludeGroup string

	cmd := &cobra.Command{
		Use:   "teachers",
		Short: "List teachers to invite into a group (teachers only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			query, err := directoryQuery(search, excludeGroup)
			if err != nil {
				return err
			}
			teachers, err := app.service.ListTeachers(cmd.Context(), query)
			if err != nil {
				return err
			}

			return app.write(cmd, teachers, func(w io.Writer) error {
				rows := make([][]string, 0, len(teachers))
				for _, teacher := range teachers {
					username := "-"
					if teacher.User != nil {
						username = teacher.User.Username
					}
					rows = append(rows, []string{fmt.Sprint(teacher.ID), username, orDash(teacher.DisplayName()), orDash(teacher.Department), orDash(teacher.Position)})
				}
				return writeTable(w, []string{"ID", "USERNAME", "NAME", "DEPARTMENT", "POSITION"}, rows)
			})
		},
	}

	directoryFlags(cmd, &search, &excludeGroup)

	return cmd
}

func directoryFlags(cmd *cobra.Command, search, excludeGroup *string) {
	cmd.Flags().StringVarP(search, "search", "s", "", "Match username, name or email")
	cmd.Flags().StringVar(excludeGroup, "exclude-group", "", "Hide people already in this group")
}

func directoryQuery(search, excludeGroup string) (application.DirectoryQuery, error) {
	query := application.DirectoryQuery{Search: search}
	if excludeGroup != "" {
		id, err := groupArg(excludeGroup)
		if err != nil {
			return application.DirectoryQuery{}, err
		}
		query.ExcludeGroup = id
	}
	return query, nil
}

func roleOf(user domain.User) string {
	if user.Role == "" {
		return "unknown role"
	}
	return string(user.Role)
}

func (a *app) prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo from a terminal, or a single line from
// stdin when it is piped.
func (a *app) readPassword(cmd *cobra.Command, in *bufio.Reader, label string, fromStdin bool) (string, error) {
	if fromStdin || !a.stdinIsTerminal() {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	_, _ = fmt.Fprint(cmd.ErrOrStderr(), label)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
