package domain

import "strings"

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher:
		return true
	default:
		return false
	}
}

type UserID int64

type User struct {
	ID             UserID          `json:"id" yaml:"id"`
	Username       string          `json:"username" yaml:"username"`
	Email          string          `json:"email" yaml:"email"`
	Role           Role            `json:"role" yaml:"role"`
	FirstName      string          `json:"first_name" yaml:"first_name"`
	LastName       string          `json:"last_name" yaml:"last_name"`
	StudentProfile *StudentProfile `json:"student_profile,omitempty" yaml:"student_profile,omitempty"`
	TeacherProfile *TeacherProfile `json:"teacher_profile,omitempty" yaml:"teacher_profile,omitempty"`
}

func (u User) IsStudent() bool { return u.Role == RoleStudent }

func (u User) IsTeacher() bool { return u.Role == RoleTeacher }

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Username
}

type StudentProfile struct {
	ID          int64  `json:"id,omitempty" yaml:"id,omitempty"`
	User        *User  `json:"user,omitempty" yaml:"user,omitempty"`
	Major       string `json:"major,omitempty" yaml:"major,omitempty"`
	YearOfStudy int    `json:"year_of_study,omitempty" yaml:"year_of_study,omitempty"`
	Bio         string `json:"bio,omitempty" yaml:"bio,omitempty"`
	Avatar      string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

type TeacherProfile struct {
	ID             int64  `json:"id,omitempty" yaml:"id,omitempty"`
	User           *User  `json:"user,omitempty" yaml:"user,omitempty"`
	Position       string `json:"position,omitempty" yaml:"position,omitempty"`
	Department     string `json:"department,omitempty" yaml:"department,omitempty"`
	AcademicDegree string `json:"academic_degree,omitempty" yaml:"academic_degree,omitempty"`
	Bio            string `json:"bio,omitempty" yaml:"bio,omitempty"`
	Avatar         string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// DisplayName of a nested profile; empty when the server did not expand the user.
func (p *TeacherProfile) DisplayName() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.DisplayName()
}

func (p *StudentProfile) DisplayName() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.DisplayName()
}
