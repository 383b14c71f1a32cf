package application

import (
	"time"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

const DefaultMemberRole = "member"

type RegisterCommand struct {
	Username        string      `json:"username"`
	Email           string      `json:"email"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	Role            domain.Role `json:"role"`
	Password        string      `json:"password"`
	PasswordConfirm string      `json:"password_confirm"`
}

type CreateGroupCommand struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateGroupCommand sends only the fields that are set.
type UpdateGroupCommand struct {
	ID          domain.GroupID
	Name        *string
	Description *string
	IsActive    *bool
}

type AddStudentCommand struct {
	GroupID   domain.GroupID
	StudentID int64
	Role      string
}

type RemoveStudentCommand struct {
	GroupID      domain.GroupID
	MembershipID int64
}

type TeacherMembershipCommand struct {
	GroupID   domain.GroupID
	TeacherID int64
}

type CreateAssignmentCommand struct {
	Title                 string                  `json:"title"`
	Description           string                  `json:"description"`
	Status                domain.AssignmentStatus `json:"status"`
	Deadline              time.Time               `json:"deadline"`
	MaxPoints             int                     `json:"max_points"`
	AllowLateSubmissions  bool                    `json:"allow_late_submissions"`
	LatePenaltyPercentage int                     `json:"late_penalty_percentage"`
}

// UpdateAssignmentCommand sends only the fields that are set.
type UpdateAssignmentCommand struct {
	ID                    domain.AssignmentID
	Title                 *string
	Description           *string
	Status                *domain.AssignmentStatus
	Deadline              *time.Time
	MaxPoints             *int
	AllowLateSubmissions  *bool
	LatePenaltyPercentage *int
}

func (c UpdateAssignmentCommand) fields() map[string]any {
	fields := map[string]any{}
	if c.Title != nil {
		fields["title"] = *c.Title
	}
	if c.Description != nil {
		fields["description"] = *c.Description
	}
	if c.Status != nil {
		fields["status"] = *c.Status
	}
	if c.Deadline != nil {
		fields["deadline"] = c.Deadline.UTC().Format(time.RFC3339)
	}
	if c.MaxPoints != nil {
		fields["max_points"] = *c.MaxPoints
	}
	if c.AllowLateSubmissions != nil {
		fields["allow_late_submissions"] = *c.AllowLateSubmissions
	}
	if c.LatePenaltyPercentage != nil {
		fields["late_penalty_percentage"] = *c.LatePenaltyPercentage
	}
	return fields
}

func (c UpdateGroupCommand) fields() map[string]any {
	fields := map[string]any{}
	if c.Name != nil {
		fields["name"] = *c.Name
	}
	if c.Description != nil {
		fields["description"] = *c.Description
	}
	if c.IsActive != nil {
		fields["is_active"] = *c.IsActive
	}
	return fields
}

// UpdateProfileCommand sends only the fields that are set. Major and
// YearOfStudy go to the student profile, Position and Department to the
// teacher profile. NewPassword needs CurrentPassword.
type UpdateProfileCommand struct {
	Email           *string
	FirstName       *string
	LastName        *string
	Major           *string
	YearOfStudy     *int
	Position        *string
	Department      *string
	CurrentPassword string
	NewPassword     string
}

func (c UpdateProfileCommand) hasStudentFields() bool {
	return c.Major != nil || c.YearOfStudy != nil
}

func (c UpdateProfileCommand) hasTeacherFields() bool {
	return c.Position != nil || c.Department != nil
}

func (c UpdateProfileCommand) fields() map[string]any {
	fields := map[string]any{}
	if c.Email != nil {
		fields["email"] = *c.Email
	}
	if c.FirstName != nil {
		fields["first_name"] = *c.FirstName
	}
	if c.LastName != nil {
		fields["last_name"] = *c.LastName
	}

	if c.hasStudentFields() {
		student := map[string]any{}
		if c.Major != nil {
			student["major"] = *c.Major
		}
		if c.YearOfStudy != nil {
			student["year_of_study"] = *c.YearOfStudy
		}
		fields["student_profile"] = student
	}
	if c.hasTeacherFields() {
		teacher := map[string]any{}
		if c.Position != nil {
			teacher["position"] = *c.Position
		}
		if c.Department != nil {
			teacher["department"] = *c.Department
		}
		fields["teacher_profile"] = teacher
	}

	if c.CurrentPassword != "" {
		fields["current_password"] = c.CurrentPassword
		if c.NewPassword != "" {
			fields["new_password"] = c.NewPassword
		}
	}
	return fields
}

// applyRoleProfile copies the role profile changes onto user, for servers
// that answer without the nested profiles.
func (c UpdateProfileCommand) applyRoleProfile(user *domain.User) {
	if user.StudentProfile != nil && c.hasStudentFields() {
		profile := *user.StudentProfile
		if c.Major != nil {
			profile.Major = *c.Major
		}
		if c.YearOfStudy != nil {
			profile.YearOfStudy = *c.YearOfStudy
		}
		user.StudentProfile = &profile
	}
	if user.TeacherProfile != nil && c.hasTeacherFields() {
		profile := *user.TeacherProfile
		if c.Position != nil {
			profile.Position = *c.Position
		}
		if c.Department != nil {
			profile.Department = *c.Department
		}
		user.TeacherProfile = &profile
	}
}

type AssignToGroupCommand struct {
	AssignmentID   domain.AssignmentID
	GroupID        domain.GroupID
	CustomDeadline *time.Time
}

type SubmitCommand struct {
	AssignmentID domain.AssignmentID `json:"assignment_id"`
	Comment      string              `json:"comment"`
}

type GradeCommand struct {
	SubmissionID domain.SubmissionID
	Status       domain.SubmissionStatus
	Points       *int
	Feedback     string
}
