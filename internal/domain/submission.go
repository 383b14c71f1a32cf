package domain

import "time"

type SubmissionID int64

type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
	SubmissionReturned  SubmissionStatus = "returned"
)

// ValidGrade reports whether a teacher may move a submission into s.
func (s SubmissionStatus) ValidGrade() bool {
	return s == SubmissionGraded || s == SubmissionReturned
}

type Submission struct {
	ID          SubmissionID      `json:"id" yaml:"id"`
	Assignment  AssignmentSummary `json:"assignment" yaml:"assignment"`
	Student     *StudentProfile   `json:"student,omitempty" yaml:"student,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at" yaml:"submitted_at"`
	UpdatedAt   time.Time         `json:"updated_at" yaml:"updated_at"`
	Comment     string            `json:"comment" yaml:"comment"`
	Status      SubmissionStatus  `json:"status" yaml:"status"`
	Points      *float64          `json:"points" yaml:"points"`
	IsLate      bool              `json:"is_late" yaml:"is_late"`
	Feedback    string            `json:"feedback" yaml:"feedback"`
	GradedBy    *TeacherProfile   `json:"graded_by,omitempty" yaml:"graded_by,omitempty"`
	GradedAt    *time.Time        `json:"graded_at" yaml:"graded_at"`
	Attachments []Attachment      `json:"attachments" yaml:"attachments"`
}

func (s Submission) IsGraded() bool {
	return s.Status == SubmissionGraded && s.Points != nil
}
