package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Gribbirg/deadline-mate/internal/application"
	"github.com/Gribbirg/deadline-mate/internal/domain"
)

func newSubmissionsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "submissions",
		Aliases: []string{"submission", "sub"},
		Short:   "Submit work and grade submissions",
	}

	cmd.AddCommand(
		newSubmissionsListCmd(app),
		newSubmissionsSubmitCmd(app),
		newSubmissionsGradeCmd(app),
	)

	return cmd
}

func writeSubmissions(w io.Writer, submissions []domain.Submission) error {
	if len(submissions) == 0 {
		_, err := fmt.Fprintln(w, "No submissions.")
		return err
	}

	rows := make([][]string, 0, len(submissions))
	for _, submission := range submissions {
		late := ""
		if submission.IsLate {
			late = "late"
		}
		rows = append(rows, []string{
			strconv.FormatInt(int64(submission.ID), 10),
			fmt.Sprintf("#%d %s", submission.Assignment.ID, submission.Assignment.Title),
			orDash(submission.Student.DisplayName()),
			string(submission.Status),
			formatPoints(submission.Points),
			formatTime(submission.SubmittedAt),
			late,
		})
	}
	return writeTable(w, []string{"ID", "ASSIGNMENT", "STUDENT", "STATUS", "POINTS", "SUBMITTED", "LATE"}, rows)
}

func newSubmissionsListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List submissions visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			var submissions []domain.Submission
			if err := app.fetch(cmd, "Fetching submissions...", func(ctx context.Context) error {
				var err error
				submissions, err = app.service.ListSubmissions(ctx)
				return err
			}); err != nil {
				return err
			}
			return app.write(cmd, submissions, func(w io.Writer) error {
				return writeSubmissions(w, submissions)
			})
		},
	}
}

func newSubmissionsSubmitCmd(app *app) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "submit <assignment-id>",
		Short: "Submit work for an assignment (students only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := assignmentArg(args[0])
			if err != nil {
				return err
			}

			submission, err := app.service.Submit(cmd.Context(), application.SubmitCommand{AssignmentID: id, Comment: comment})
			if err != nil {
				return err
			}
			return app.write(cmd, submission, func(w io.Writer) error {
				suffix := ""
				if submission.IsLate {
					suffix = " (late)"
				}
				_, err := fmt.Fprintf(w, "Submitted #%d for assignment #%d%s\n", submission.ID, id, suffix)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Comment for the teacher")

	return cmd
}

func newSubmissionsGradeCmd(app *app) *cobra.Command {
	var (
		points   int
		feedback string
		status   string
	)

	cmd := &cobra.Command{
		Use:   "grade <submission-id>",
		Short: "Grade or return a submission (teachers only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := parseID("submission", args[0])
			if err != nil {
				return err
			}

			command := application.GradeCommand{
				SubmissionID: domain.SubmissionID(id),
				Status:       domain.SubmissionStatus(status),
				Feedback:     feedback,
			}
			if cmd.Flags().Changed("points") {
				command.Points = &points
			}

			submission, err := app.service.Grade(cmd.Context(), command)
			if err != nil {
				return err
			}
			return app.write(cmd, submission, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Submission #%d %s, points: %s\n", submission.ID, submission.Status, formatPoints(submission.Points))
				return err
			})
		},
	}

	cmd.Flags().IntVar(&points, "points", 0, "Points to award")
	cmd.Flags().StringVar(&feedback, "feedback", "", "Feedback for the student")
	cmd.Flags().StringVar(&status, "status", string(domain.SubmissionGraded), "Resulting status (graded or returned)")

	return cmd
}
