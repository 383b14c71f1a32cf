package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		deadline time.Time
		want     string
	}{
		{name: "days", deadline: now.Add(76 * time.Hour), want: "3d 4h"},
		{name: "hours", deadline: now.Add(5*time.Hour + 30*time.Minute), want: "5h 30m"},
		{name: "minutes", deadline: now.Add(42 * time.Minute), want: "42m"},
		{name: "overdue", deadline: now.Add(-2 * time.Hour), want: "overdue by 2h 0m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRemaining(tt.deadline, now))
		})
	}
}

func TestAssignmentGroupDeadlinePrefersEffectiveThenCustom(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	custom := base.Add(48 * time.Hour)

	ag := AssignmentGroup{Assignment: AssignmentSummary{Deadline: base}}
	assert.Equal(t, base, ag.Deadline())

	ag.CustomDeadline = &custom
	assert.Equal(t, custom, ag.Deadline())

	ag.EffectiveDeadline = base.Add(time.Hour)
	assert.Equal(t, base.Add(time.Hour), ag.Deadline())
}

func TestUserRoleHelpers(t *testing.T) {
	student := User{Username: "anna", Role: RoleStudent}
	teacher := User{Username: "petrov", FirstName: "Ivan", LastName: "Petrov", Role: RoleTeacher}

	assert.True(t, student.IsStudent())
	assert.False(t, student.IsTeacher())
	assert.True(t, teacher.IsTeacher())
	assert.Equal(t, "anna", student.DisplayName())
	assert.Equal(t, "Ivan Petrov", teacher.DisplayName())
	assert.False(t, Role("admin").Valid())
}

func TestSubmissionStatusGradeTransitions(t *testing.T) {
	assert.True(t, SubmissionGraded.ValidGrade())
	assert.True(t, SubmissionReturned.ValidGrade())
	assert.False(t, SubmissionSubmitted.ValidGrade())

	points := 8.5
	assert.True(t, Submission{Status: SubmissionGraded, Points: &points}.IsGraded())
	assert.False(t, Submission{Status: SubmissionReturned}.IsGraded())
}

func TestGroupDetailActiveMembers(t *testing.T) {
	detail := GroupDetail{Members: []GroupMember{
		{ID: 1, StudentName: "anna", IsActive: true},
		{ID: 2, StudentName: "boris", IsActive: false},
	}}

	members := detail.ActiveMembers()
	assert.Len(t, members, 1)
	assert.Equal(t, "anna", members[0].StudentName)
}
