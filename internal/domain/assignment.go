package domain

import (
	"fmt"
	"time"
)

type AssignmentID int64

type AssignmentStatus string

const (
	AssignmentDraft     AssignmentStatus = "draft"
	AssignmentPublished AssignmentStatus = "published"
	AssignmentArchived  AssignmentStatus = "archived"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentDraft, AssignmentPublished, AssignmentArchived:
		return true
	default:
		return false
	}
}

type Attachment struct {
	ID         int64     `json:"id" yaml:"id"`
	File       string    `json:"file" yaml:"file"`
	Filename   string    `json:"filename" yaml:"filename"`
	UploadedAt time.Time `json:"uploaded_at" yaml:"uploaded_at"`
}

type Assignment struct {
	ID                    AssignmentID     `json:"id" yaml:"id"`
	Title                 string           `json:"title" yaml:"title"`
	Description           string           `json:"description" yaml:"description"`
	CreatedBy             *TeacherProfile  `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt             time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at" yaml:"updated_at"`
	Status                AssignmentStatus `json:"status" yaml:"status"`
	Deadline              time.Time        `json:"deadline" yaml:"deadline"`
	MaxPoints             float64          `json:"max_points" yaml:"max_points"`
	AllowLateSubmissions  bool             `json:"allow_late_submissions" yaml:"allow_late_submissions"`
	LatePenaltyPercentage float64          `json:"late_penalty_percentage" yaml:"late_penalty_percentage"`
	Attachments           []Attachment     `json:"attachments" yaml:"attachments"`
	IsDeadlineExpired     bool             `json:"is_deadline_expired" yaml:"is_deadline_expired"`
	TimeRemaining         *string          `json:"time_remaining" yaml:"time_remaining"`
	SubmissionCount       int              `json:"submission_count" yaml:"submission_count"`
}

// AssignmentSummary is the compact form the API nests inside other objects.
type AssignmentSummary struct {
	ID                AssignmentID     `json:"id" yaml:"id"`
	Title             string           `json:"title" yaml:"title"`
	Status            AssignmentStatus `json:"status" yaml:"status"`
	Deadline          time.Time        `json:"deadline" yaml:"deadline"`
	IsDeadlineExpired bool             `json:"is_deadline_expired" yaml:"is_deadline_expired"`
	TimeRemaining     *string          `json:"time_remaining" yaml:"time_remaining"`
}

func (a Assignment) Summary() AssignmentSummary {
	return AssignmentSummary{
		ID:                a.ID,
		Title:             a.Title,
		Status:            a.Status,
		Deadline:          a.Deadline,
		IsDeadlineExpired: a.IsDeadlineExpired,
		TimeRemaining:     a.TimeRemaining,
	}
}

// AssignmentGroup links an assignment to a group, optionally with a
// group-specific deadline.
type AssignmentGroup struct {
	ID                int64             `json:"id" yaml:"id"`
	Assignment        AssignmentSummary `json:"assignment" yaml:"assignment"`
	Group             Group             `json:"group" yaml:"group"`
	AssignedAt        time.Time         `json:"assigned_at" yaml:"assigned_at"`
	CustomDeadline    *time.Time        `json:"custom_deadline" yaml:"custom_deadline"`
	EffectiveDeadline time.Time         `json:"effective_deadline" yaml:"effective_deadline"`
}

// Deadline returns the deadline that applies to the group.
func (ag AssignmentGroup) Deadline() time.Time {
	if !ag.EffectiveDeadline.IsZero() {
		return ag.EffectiveDeadline
	}
	if ag.CustomDeadline != nil {
		return *ag.CustomDeadline
	}
	return ag.Assignment.Deadline
}

// Remaining is the time left until deadline, negative once it passed.
func Remaining(deadline, now time.Time) time.Duration {
	return deadline.Sub(now)
}

// FormatRemaining renders a coarse human countdown such as "3d 4h" or
// "overdue by 2h".
func FormatRemaining(deadline, now time.Time) string {
	left := Remaining(deadline, now)
	if left < 0 {
		return "overdue by " + formatSpan(-left)
	}
	return formatSpan(left)
}

func formatSpan(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	hours := int((d % (24 * time.Hour)) / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
