package deadlines

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gribbirg/deadline-mate/internal/application"
	"github.com/Gribbirg/deadline-mate/internal/domain"
)

var now = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

func item(id domain.AssignmentID, title string, deadline time.Time) application.DeadlineItem {
	return application.DeadlineItem{
		Assignment: domain.AssignmentSummary{ID: id, Title: title, Status: domain.AssignmentPublished, Deadline: deadline},
		Deadline:   deadline,
		Remaining:  deadline.Sub(now),
		Overdue:    deadline.Before(now),
	}
}

func TestRenderStudentDashboard(t *testing.T) {
	points := 9.0
	graded := item(2, "Essay", now.Add(50*time.Hour))
	graded.Submission = &domain.Submission{Status: domain.SubmissionGraded, Points: &points}

	output, err := Render(application.Dashboard{
		User:        domain.User{Username: "sam", FirstName: "Sam", LastName: "Petrov", Role: domain.RoleStudent},
		GeneratedAt: now,
		Groups:      []domain.Group{{ID: 1, Name: "CS-101"}},
		Items: []application.DeadlineItem{
			item(1, "Linear algebra", now.Add(3*time.Hour)),
			graded,
		},
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "Deadlines for Sam Petrov")
	assert.Contains(t, output, "role: student")
	assert.Contains(t, output, "groups: 1")
	assert.Contains(t, output, "deadlines: 2")
	assert.Contains(t, output, "#1 Linear algebra")
	assert.Contains(t, output, "due today 14:00")
	assert.Contains(t, output, "3h 0m left")
	assert.Contains(t, output, "not submitted")
	assert.Contains(t, output, "due 13:00 on 04 Mar")
	assert.Contains(t, output, "2d 2h left")
	assert.Contains(t, output, "graded: 9 points")
	assert.NotContains(t, output, "to grade")
}

func TestRenderHidesOverdueUnlessAsked(t *testing.T) {
	dashboard := application.Dashboard{
		User:        domain.User{Username: "sam", Role: domain.RoleStudent},
		GeneratedAt: now,
		Items:       []application.DeadlineItem{item(4, "Missed lab", now.Add(-2*time.Hour))},
	}

	output, err := Render(dashboard, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, output, "Nothing due")
	assert.NotContains(t, output, "Missed lab")

	output, err = Render(dashboard, RenderOptions{ShowOverdue: true})
	require.NoError(t, err)
	assert.Contains(t, output, "Missed lab")
	assert.Contains(t, output, "[overdue by 2h 0m]")
	assert.Contains(t, output, "not submitted")
}

func TestRenderTeacherDashboardShowsGradingQueue(t *testing.T) {
	essay := item(7, "Essay", now.Add(30*time.Hour))
	essay.SubmissionCount = 3
	essay.PendingGrades = 2
	draft := item(8, "Quiz", now.Add(90*time.Hour))
	draft.Assignment.Status = domain.AssignmentDraft

	output, err := Render(application.Dashboard{
		User:        domain.User{Username: "tess", Role: domain.RoleTeacher},
		GeneratedAt: now,
		Items:       []application.DeadlineItem{essay, draft},
	}, RenderOptions{Now: now, Horizon: 24 * time.Hour})

	require.NoError(t, err)
	assert.Contains(t, output, "Deadlines for tess")
	assert.Contains(t, output, "to grade: 2")
	assert.Contains(t, output, "submissions: 3")
	assert.Contains(t, output, "2 to grade")
	assert.Contains(t, output, "#8 Quiz (draft)")
	assert.Contains(t, output, "["+"========================"+"]")
}

func TestRenderCountdownBarClampsToWidth(t *testing.T) {
	s := newStyles()
	assert.Contains(t, renderCountdownBar(-time.Hour, time.Hour, 4, s), "----")
	assert.Contains(t, renderCountdownBar(2*time.Hour, time.Hour, 4, s), "====")
	assert.Contains(t, renderCountdownBar(30*time.Minute, time.Hour, 4, s), "==")
	assert.Empty(t, renderCountdownBar(time.Hour, time.Hour, 0, s))
}

func TestFormatDeadline(t *testing.T) {
	assert.Equal(t, "unknown", formatDeadline(time.Time{}, now))
	assert.Equal(t, "today 18:30", formatDeadline(now.Add(7*time.Hour+30*time.Minute), now))
	assert.Equal(t, "09:00 on 05 Mar", formatDeadline(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), now))
	assert.Equal(t, "2026-03-05T09:00:00Z", formatDeadline(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), time.Time{}))
}
