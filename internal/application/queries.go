package application

import (
	"net/url"
	"strings"
	"time"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

// DeadlineItem is one assignment on the dashboard.
type DeadlineItem struct {
	Assignment domain.AssignmentSummary `json:"assignment" yaml:"assignment"`
	Deadline   time.Time                `json:"deadline" yaml:"deadline"`
	Remaining  time.Duration            `json:"remaining" yaml:"remaining"`
	Overdue    bool                     `json:"overdue" yaml:"overdue"`
	// Submission is the student's own submission, if any.
	Submission *domain.Submission `json:"submission,omitempty" yaml:"submission,omitempty"`
	// SubmissionCount and PendingGrades are filled for teachers.
	SubmissionCount int `json:"submission_count" yaml:"submission_count"`
	PendingGrades   int `json:"pending_grades" yaml:"pending_grades"`
}

type Dashboard struct {
	User        domain.User    `json:"user" yaml:"user"`
	GeneratedAt time.Time      `json:"generated_at" yaml:"generated_at"`
	Groups      []domain.Group `json:"groups" yaml:"groups"`
	Items       []DeadlineItem `json:"items" yaml:"items"`
}

// Upcoming returns the items whose deadline has not passed.
func (d Dashboard) Upcoming() []DeadlineItem {
	items := make([]DeadlineItem, 0, len(d.Items))
	for _, item := range d.Items {
		if !item.Overdue {
			items = append(items, item)
		}
	}
	return items
}

// PendingGrades totals ungraded submissions across all items.
func (d Dashboard) PendingGrades() int {
	total := 0
	for _, item := range d.Items {
		total += item.PendingGrades
	}
	return total
}

// DirectoryQuery narrows student and teacher listings. Search is matched by
// the server against username, names and email. ExcludeGroup drops people
// already active in that group.
type DirectoryQuery struct {
	Search       string
	ExcludeGroup domain.GroupID
}

func (q DirectoryQuery) values() url.Values {
	search := strings.TrimSpace(q.Search)
	if search == "" {
		return nil
	}
	return url.Values{"search": {search}}
}
