package application

import (
	"context"
	"fmt"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

// ListSubmissions returns the submissions visible to the current user: a
// student's own, or those to a teacher's assignments.
func (s *Service) ListSubmissions(ctx context.Context) ([]domain.Submission, error) {
	var submissions []domain.Submission
	if err := s.list(ctx, Get(pathSubmissions, nil), &submissions); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

func (s *Service) ListAssignmentSubmissions(ctx context.Context, id domain.AssignmentID) ([]domain.Submission, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return nil, err
	}

	var submissions []domain.Submission
	if err := s.list(ctx, Get(itemPath(pathAssignments, int64(id), "submissions"), nil), &submissions); err != nil {
		return nil, fmt.Errorf("list submissions of assignment %d: %w", id, err)
	}
	return submissions, nil
}

func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (domain.Submission, error) {
	if err := s.requireRole(domain.RoleStudent); err != nil {
		return domain.Submission{}, err
	}

	var submission domain.Submission
	if err := s.call(ctx, Post(pathSubmissions, cmd), &submission); err != nil {
		return domain.Submission{}, fmt.Errorf("submit assignment %d: %w", cmd.AssignmentID, err)
	}
	return submission, nil
}

// Grade sets status, points and feedback of a submission. The grade
// endpoint answers with the graded fields only.
func (s *Service) Grade(ctx context.Context, cmd GradeCommand) (domain.Submission, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return domain.Submission{}, err
	}
	if cmd.Status == "" {
		cmd.Status = domain.SubmissionGraded
	}
	if !cmd.Status.ValidGrade() {
		return domain.Submission{}, fmt.Errorf("cannot grade into status %q", cmd.Status)
	}

	body := map[string]any{"status": cmd.Status, "feedback": cmd.Feedback}
	if cmd.Points != nil {
		body["points"] = *cmd.Points
	}

	var submission domain.Submission
	if err := s.call(ctx, Patch(itemPath(pathSubmissions, int64(cmd.SubmissionID), "grade"), body), &submission); err != nil {
		return domain.Submission{}, fmt.Errorf("grade submission %d: %w", cmd.SubmissionID, err)
	}
	if submission.ID == 0 {
		submission.ID = cmd.SubmissionID
	}
	return submission, nil
}
