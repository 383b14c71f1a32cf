package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gribbirg/deadline-mate/internal/application"
	"github.com/Gribbirg/deadline-mate/internal/domain"
)

func newAssignmentsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "assignments",
		Aliases: []string{"assignment", "as"},
		Short:   "Browse and manage assignments",
	}

	cmd.AddCommand(
		newAssignmentsListCmd(app),
		newAssignmentsShowCmd(app),
		newAssignmentsCreateCmd(app),
		newAssignmentsUpdateCmd(app),
		newAssignmentsDeleteCmd(app),
		newAssignmentsStatusCmd(app, "publish", "Publish a draft assignment", app.publish),
		newAssignmentsStatusCmd(app, "archive", "Archive an assignment", app.archive),
		newAssignmentsAssignCmd(app),
		newAssignmentsForGroupCmd(app),
		newAssignmentsGroupsCmd(app),
		newAssignmentsSubmissionsCmd(app),
	)

	return cmd
}

func assignmentArg(raw string) (domain.AssignmentID, error) {
	id, err := parseID("assignment", raw)
	return domain.AssignmentID(id), err
}

func formatDeadline(deadline, now time.Time) string {
	if deadline.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", formatTime(deadline), domain.FormatRemaining(deadline, now))
}

func writeAssignments(w io.Writer, assignments []domain.Assignment, now time.Time) error {
	rows := make([][]string, 0, len(assignments))
	for _, assignment := range assignments {
		rows = append(rows, []string{
			strconv.FormatInt(int64(assignment.ID), 10),
			assignment.Title,
			string(assignment.Status),
			formatDeadline(assignment.Deadline, now),
			strconv.FormatFloat(assignment.MaxPoints, 'f', -1, 64),
			strconv.Itoa(assignment.SubmissionCount),
		})
	}
	return writeTable(w, []string{"ID", "TITLE", "STATUS", "DEADLINE", "POINTS", "SUBMISSIONS"}, rows)
}

func writeAssignmentGroups(w io.Writer, links []domain.AssignmentGroup, now time.Time) error {
	rows := make([][]string, 0, len(links))
	for _, link := range links {
		custom := "no"
		if link.CustomDeadline != nil {
			custom = "yes"
		}
		rows = append(rows, []string{
			strconv.FormatInt(int64(link.Assignment.ID), 10),
			link.Assignment.Title,
			fmt.Sprintf("#%d %s", link.Group.ID, link.Group.Name),
			formatDeadline(link.Deadline(), now),
			custom,
		})
	}
	return writeTable(w, []string{"ASSIGNMENT", "TITLE", "GROUP", "DEADLINE", "CUSTOM"}, rows)
}

func newAssignmentsListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List assignments visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			var assignments []domain.Assignment
			if err := app.fetch(cmd, "Fetching assignments...", func(ctx context.Context) error {
				var err error
				assignments, err = app.service.ListAssignments(ctx)
				return err
			}); err != nil {
				return err
			}
			return app.write(cmd, assignments, func(w io.Writer) error {
				if len(assignments) == 0 {
					_, err := fmt.Fprintln(w, "No assignments.")
					return err
				}
				return writeAssignments(w, assignments, app.now())
			})
		},
	}
}

func newAssignmentsShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <assignment-id>",
		Short: "Show an assignment with its description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := assignmentArg(args[0])
			if err != nil {
				return err
			}
			assignment, err := app.service.GetAssignment(cmd.Context(), id)
			if err != nil {
				return err
			}

			return app.write(cmd, assignment, func(w io.Writer) error {
				late := "not accepted"
				if assignment.AllowLateSubmissions {
					late = fmt.Sprintf("accepted, %s%% penalty", strconv.FormatFloat(assignment.LatePenaltyPercentage, 'f', -1, 64))
				}
				if err := writeFields(w, [][2]string{
					{"assignment", fmt.Sprintf("#%d %s", assignment.ID, assignment.Title)},
					{"status", string(assignment.Status)},
					{"deadline", formatDeadline(assignment.Deadline, app.now())},
					{"max points", strconv.FormatFloat(assignment.MaxPoints, 'f', -1, 64)},
					{"late work", late},
					{"author", orDash(assignment.CreatedBy.DisplayName())},
					{"submissions", strconv.Itoa(assignment.SubmissionCount)},
					{"attachments", strconv.Itoa(len(assignment.Attachments))},
				}); err != nil {
					return err
				}
				if assignment.Description == "" {
					return nil
				}
				_, err := fmt.Fprintf(w, "\n%s\n", renderMarkdown(assignment.Description, app.settings.RenderTheme, app.stdoutIsTerminal(cmd)))
				return err
			})
		},
	}
}

type assignmentFlags struct {
	title           string
	description     string
	descriptionFile string
	deadline        string
	maxPoints       int
	allowLate       bool
	latePenalty     int
	status          string
}

func (f *assignmentFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.title, "title", "", "Assignment title")
	flags.StringVar(&f.description, "description", "", "Description in markdown")
	flags.StringVar(&f.descriptionFile, "description-file", "", "Read the description from a markdown file")
	flags.StringVar(&f.deadline, "deadline", "", "Deadline (RFC 3339, \"2006-01-02 15:04\" or \"2006-01-02\")")
	flags.IntVar(&f.maxPoints, "max-points", 100, "Maximum points")
	flags.BoolVar(&f.allowLate, "allow-late", false, "Accept submissions after the deadline")
	flags.IntVar(&f.latePenalty, "late-penalty", 0, "Late penalty in percent")
	cmd.MarkFlagsMutuallyExclusive("description", "description-file")
}

func (f *assignmentFlags) readDescription() (string, error) {
	if f.descriptionFile == "" {
		return f.description, nil
	}
	data, err := os.ReadFile(f.descriptionFile)
	if err != nil {
		return "", fmt.Errorf("read description: %w", err)
	}
	return string(data), nil
}

func newAssignmentsCreateCmd(app *app) *cobra.Command {
	var flags assignmentFlags
	var publish bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			deadline, err := parseDeadline(flags.deadline, time.Local)
			if err != nil {
				return err
			}
			description, err := flags.readDescription()
			if err != nil {
				return err
			}

			command := application.CreateAssignmentCommand{
				Title:                 flags.title,
				Description:           description,
				Deadline:              deadline,
				MaxPoints:             flags.maxPoints,
				AllowLateSubmissions:  flags.allowLate,
				LatePenaltyPercentage: flags.latePenalty,
			}
			if publish {
				command.Status = domain.AssignmentPublished
			}

			assignment, err := app.service.CreateAssignment(cmd.Context(), command)
			if err != nil {
				return err
			}
			return app.write(cmd, assignment, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Created assignment #%d %s (%s), due %s\n", assignment.ID, assignment.Title, assignment.Status, formatTime(assignment.Deadline))
				return err
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish right away instead of saving a draft")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("deadline")

	return cmd
}

func newAssignmentsUpdateCmd(app *app) *cobra.Command {
	var flags assignmentFlags

	cmd := &cobra.Command{
		Use:   "update <assignment-id>",
		Short: "Change fields of an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := assignmentArg(args[0])
			if err != nil {
				return err
			}

			command := application.UpdateAssignmentCommand{ID: id}
			changed := cmd.Flags().Changed
			if changed("title") {
				command.Title = &flags.title
			}
			if changed("description") || changed("description-file") {
				description, err := flags.readDescription()
				if err != nil {
					return err
				}
				command.Description = &description
			}
			if changed("deadline") {
				deadline, err := parseDeadline(flags.deadline, time.Local)
				if err != nil {
					return err
				}
				command.Deadline = &deadline
			}
			if changed("max-points") {
				command.MaxPoints = &flags.maxPoints
			}
			if changed("allow-late") {
				command.AllowLateSubmissions = &flags.allowLate
			}
			if changed("late-penalty") {
				command.LatePenaltyPercentage = &flags.latePenalty
			}
			if changed("status") {
				status := domain.AssignmentStatus(flags.status)
				command.Status = &status
			}

			assignment, err := app.service.UpdateAssignment(cmd.Context(), command)
			if err != nil {
				return err
			}
			return app.write(cmd, assignment, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Updated assignment #%d %s (%s)\n", assignment.ID, assignment.Title, assignment.Status)
				return err
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&flags.status, "status", "", "New status (draft, published, archived)")

	return cmd
}

func newAssignmentsDeleteCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <assignment-id>",
		Short: "Delete an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := assignmentArg(args[0])
			if err != nil {
				return err
			}
			if err := app.service.DeleteAssignment(cmd.Context(), id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted assignment #%d\n", id)
			return err
		},
	}
}

func (a *app) publish(cmd *cobra.Command, id domain.AssignmentID) (domain.Assignment, error) {
	return a.service.PublishAssignment(cmd.Context(), id)
}

func (a *app) archive(cmd *cobra.Command, id domain.AssignmentID) (domain.Assignment, error) {
	return a.service.ArchiveAssignment(cmd.Context(), id)
}

func newAssignmentsStatusCmd(app *app, use, short string, change func(*cobra.Command, domain.AssignmentID) (domain.Assignment, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <assignment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := assignmentArg(args[0])
			if err != nil {
				return err
			}
			assignment, err := change(cmd, id)
			if err != nil {
				return err
			}
			return app.write(cmd, assignment, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Assignment #%d is now %s\n", assignment.ID, assignment.Status)
				return err
			})
		},
	}
}

func newAssignmentsAssignCmd(app *app) *cobra.Command {
	var deadline string

	cmd := &cobra.Command{
		Use:   "assign <assignment-id> <group-id>",
		Short: "Assign an assignment to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := assignmentArg(args[0])
			if err != nil {
				return err
			}
			groupID, err := groupArg(args[1])
			if err != nil {
				return err
			}

			command := application.AssignToGroupCommand{AssignmentID: id, GroupID: groupID}
			if deadline != "" {
				custom, err := parseDeadline(deadline, time.Local)
				if err != nil {
					return err
				}
				command.CustomDeadline = &custom
			}

			link, err := app.service.AssignToGroup(cmd.Context(), command)
			if err != nil {
				return err
			}
			return app.write(cmd, link, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Assigned #%d to group #%d, due %s\n", id, groupID, formatTime(link.Deadline()))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&deadline, "deadline", "", "Group-specific deadline overriding the assignment's")

	return cmd
}

func newAssignmentsForGroupCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "group <group-id>",
		Short: "List assignments given to a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			groupID, err := groupArg(args[0])
			if err != nil {
				return err
			}
			links, err := app.service.ListGroupAssignments(cmd.Context(), groupID)
			if err != nil {
				return err
			}
			return app.write(cmd, links, func(w io.Writer) error {
				return writeAssignmentGroups(w, links, app.now())
			})
		},
	}
}

func newAssignmentsGroupsCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "groups <assignment-id>",
		Short: "List groups an assignment is given to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := assignmentArg(args[0])
			if err != nil {
				return err
			}
			links, err := app.service.ListAssignmentGroups(cmd.Context(), id)
			if err != nil {
				return err
			}
			return app.write(cmd, links, func(w io.Writer) error {
				return writeAssignmentGroups(w, links, app.now())
			})
		},
	}
}

func newAssignmentsSubmissionsCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "submissions <assignment-id>",
		Short: "List submissions for an assignment (teachers only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := assignmentArg(args[0])
			if err != nil {
				return err
			}
			submissions, err := app.service.ListAssignmentSubmissions(cmd.Context(), id)
			if err != nil {
				return err
			}
			return app.write(cmd, submissions, func(w io.Writer) error {
				return writeSubmissions(w, submissions)
			})
		},
	}
}
