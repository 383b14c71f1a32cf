package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Gribbirg/deadline-mate/internal/application"
	"github.com/Gribbirg/deadline-mate/internal/domain"
)

func newGroupsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "groups",
		Aliases: []string{"group"},
		Short:   "Browse and manage study groups",
	}

	cmd.AddCommand(
		newGroupsListCmd(app),
		newGroupsShowCmd(app),
		newGroupsCreateCmd(app),
		newGroupsUpdateCmd(app),
		newGroupsDeleteCmd(app),
		newGroupsAddStudentCmd(app),
		newGroupsRemoveStudentCmd(app),
		newGroupsAddTeacherCmd(app),
		newGroupsRemoveTeacherCmd(app),
		newGroupsJoinCmd(app),
	)

	return cmd
}

func groupArg(raw string) (domain.GroupID, error) {
	id, err := parseID("group", raw)
	return domain.GroupID(id), err
}

func writeGroups(w io.Writer, groups []domain.Group) error {
	rows := make([][]string, 0, len(groups))
	for _, group := range groups {
		active := "yes"
		if !group.IsActive {
			active = "no"
		}
		rows = append(rows, []string{
			fmt.Sprint(group.ID),
			group.Name,
			group.Code,
			fmt.Sprint(group.MemberCount),
			fmt.Sprint(group.TeacherCount),
			orDash(group.CreatedByName),
			active,
		})
	}
	return writeTable(w, []string{"ID", "NAME", "CODE", "STUDENTS", "TEACHERS", "OWNER", "ACTIVE"}, rows)
}

func newGroupsListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			var groups []domain.Group
			if err := app.fetch(cmd, "Fetching groups...", func(ctx context.Context) error {
				var err error
				groups, err = app.service.ListGroups(ctx)
				return err
			}); err != nil {
				return err
			}
			return app.write(cmd, groups, func(w io.Writer) error {
				if len(groups) == 0 {
					_, err := fmt.Fprintln(w, "No groups.")
					return err
				}
				return writeGroups(w, groups)
			})
		},
	}
}

func newGroupsShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <group-id>",
		Short: "Show a group with its members and teachers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := groupArg(args[0])
			if err != nil {
				return err
			}
			group, err := app.service.GetGroup(cmd.Context(), id)
			if err != nil {
				return err
			}

			return app.write(cmd, group, func(w io.Writer) error {
				if err := writeFields(w, [][2]string{
					{"group", fmt.Sprintf("#%d %s", group.ID, group.Name)},
					{"code", group.Code},
					{"description", orDash(group.Description)},
					{"owner", orDash(group.CreatedByName)},
					{"created", formatTime(group.CreatedAt)},
				}); err != nil {
					return err
				}

				members := make([][]string, 0, len(group.Members))
				for _, member := range group.ActiveMembers() {
					members = append(members, []string{fmt.Sprint(member.ID), fmt.Sprint(member.Student), member.StudentName, orDash(member.Role), formatTime(member.JoinedAt)})
				}
				if _, err := fmt.Fprintln(w, "\nStudents"); err != nil {
					return err
				}
				if err := writeTable(w, []string{"MEMBERSHIP", "STUDENT", "NAME", "ROLE", "JOINED"}, members); err != nil {
					return err
				}

				teachers := make([][]string, 0, len(group.Teachers))
				for _, teacher := range group.Teachers {
					if teacher.IsActive {
						teachers = append(teachers, []string{fmt.Sprint(teacher.Teacher), teacher.TeacherName, formatTime(teacher.JoinedAt)})
					}
				}
				if _, err := fmt.Fprintln(w, "\nTeachers"); err != nil {
					return err
				}
				return writeTable(w, []string{"TEACHER", "NAME", "JOINED"}, teachers)
			})
		},
	}
}

func newGroupsCreateCmd(app *app) *cobra.Command {
	var command application.CreateGroupCommand

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			group, err := app.service.CreateGroup(cmd.Context(), command)
			if err != nil {
				return err
			}
			return app.write(cmd, group, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Created group #%d %s (code %s)\n", group.ID, group.Name, group.Code)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&command.Name, "name", "", "Group name")
	cmd.Flags().StringVar(&command.Description, "description", "", "Group description")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newGroupsUpdateCmd(app *app) *cobra.Command {
	var name, description string
	var active bool

	cmd := &cobra.Command{
		Use:   "update <group-id>",
		Short: "Change name, description or active flag of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := groupArg(args[0])
			if err != nil {
				return err
			}

			command := application.UpdateGroupCommand{ID: id}
			flags := cmd.Flags()
			if flags.Changed("name") {
				command.Name = &name
			}
			if flags.Changed("description") {
				command.Description = &description
			}
			if flags.Changed("active") {
				command.IsActive = &active
			}
			if command.Name == nil && command.Description == nil && command.IsActive == nil {
				return errors.New("nothing to update: pass --name, --description or --active")
			}

			group, err := app.service.UpdateGroup(cmd.Context(), command)
			if err != nil {
				return err
			}
			return app.write(cmd, group, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Updated group #%d %s\n", group.ID, group.Name)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().BoolVar(&active, "active", true, "Whether the group is active")

	return cmd
}

func newGroupsDeleteCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <group-id>",
		Short: "Delete a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := groupArg(args[0])
			if err != nil {
				return err
			}
			if err := app.service.DeleteGroup(cmd.Context(), id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted group #%d\n", id)
			return err
		},
	}
}

func newGroupsAddStudentCmd(app *app) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "add-student <group-id> <student-id>",
		Short: "Add a student to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := groupArg(args[0])
			if err != nil {
				return err
			}
			studentID, err := parseID("student", args[1])
			if err != nil {
				return err
			}

			member, err := app.service.AddStudent(cmd.Context(), application.AddStudentCommand{GroupID: id, StudentID: studentID, Role: role})
			if err != nil {
				return err
			}
			return app.write(cmd, member, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Added %s to group #%d (membership %d)\n", orDash(member.StudentName), id, member.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", application.DefaultMemberRole, "Member role within the group")

	return cmd
}

func newGroupsRemoveStudentCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-student <group-id> <membership-id>",
		Short: "Remove a student membership from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := groupArg(args[0])
			if err != nil {
				return err
			}
			membershipID, err := parseID("membership", args[1])
			if err != nil {
				return err
			}
			if err := app.service.RemoveStudent(cmd.Context(), application.RemoveStudentCommand{GroupID: id, MembershipID: membershipID}); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed membership %d from group #%d\n", membershipID, id)
			return err
		},
	}
}

func newGroupsAddTeacherCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-teacher <group-id> <teacher-id>",
		Short: "Add a co-teacher to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			command, err := teacherMembershipArgs(args)
			if err != nil {
				return err
			}
			teacher, err := app.service.AddTeacher(cmd.Context(), command)
			if err != nil {
				return err
			}
			return app.write(cmd, teacher, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Added %s to group #%d\n", orDash(teacher.TeacherName), command.GroupID)
				return err
			})
		},
	}
}

func newGroupsRemoveTeacherCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-teacher <group-id> <teacher-id>",
		Short: "Remove a teacher from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			command, err := teacherMembershipArgs(args)
			if err != nil {
				return err
			}
			if err := app.service.RemoveTeacher(cmd.Context(), command); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed teacher %d from group #%d\n", command.TeacherID, command.GroupID)
			return err
		},
	}
}

func teacherMembershipArgs(args []string) (application.TeacherMembershipCommand, error) {
	id, err := groupArg(args[0])
	if err != nil {
		return application.TeacherMembershipCommand{}, err
	}
	teacherID, err := parseID("teacher", args[1])
	if err != nil {
		return application.TeacherMembershipCommand{}, err
	}
	return application.TeacherMembershipCommand{GroupID: id, TeacherID: teacherID}, nil
}

func newGroupsJoinCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join <group-id>",
		Short: "Join a group as a teacher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := groupArg(args[0])
			if err != nil {
				return err
			}
			teacher, err := app.service.JoinAsTeacher(cmd.Context(), id)
			if err != nil {
				return err
			}
			return app.write(cmd, teacher, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Joined group #%d\n", id)
				return err
			})
		},
	}
}
