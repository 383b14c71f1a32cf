package application

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

func (s *Service) ListAssignments(ctx context.Context) ([]domain.Assignment, error) {
	var assignments []domain.Assignment
	if err := s.list(ctx, Get(pathAssignments, nil), &assignments); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

func (s *Service) GetAssignment(ctx context.Context, id domain.AssignmentID) (domain.Assignment, error) {
	var assignment domain.Assignment
	if err := s.call(ctx, Get(itemPath(pathAssignments, int64(id)), nil), &assignment); err != nil {
		return domain.Assignment{}, fmt.Errorf("get assignment %d: %w", id, err)
	}
	return assignment, nil
}

func (s *Service) CreateAssignment(ctx context.Context, cmd CreateAssignmentCommand) (domain.Assignment, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return domain.Assignment{}, err
	}
	if cmd.Status == "" {
		cmd.Status = domain.AssignmentDraft
	}
	if !cmd.Status.Valid() {
		return domain.Assignment{}, fmt.Errorf("unknown assignment status %q", cmd.Status)
	}

	var assignment domain.Assignment
	if err := s.call(ctx, Post(pathAssignments, cmd), &assignment); err != nil {
		return domain.Assignment{}, fmt.Errorf("create assignment: %w", err)
	}
	return assignment, nil
}

func (s *Service) UpdateAssignment(ctx context.Context, cmd UpdateAssignmentCommand) (domain.Assignment, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return domain.Assignment{}, err
	}
	if cmd.Status != nil && !cmd.Status.Valid() {
		return domain.Assignment{}, fmt.Errorf("unknown assignment status %q", *cmd.Status)
	}

	var assignment domain.Assignment
	if err := s.call(ctx, Patch(itemPath(pathAssignments, int64(cmd.ID)), cmd.fields()), &assignment); err != nil {
		return domain.Assignment{}, fmt.Errorf("update assignment %d: %w", cmd.ID, err)
	}
	return assignment, nil
}

func (s *Service) PublishAssignment(ctx context.Context, id domain.AssignmentID) (domain.Assignment, error) {
	status := domain.AssignmentPublished
	return s.UpdateAssignment(ctx, UpdateAssignmentCommand{ID: id, Status: &status})
}

func (s *Service) ArchiveAssignment(ctx context.Context, id domain.AssignmentID) (domain.Assignment, error) {
	status := domain.AssignmentArchived
	return s.UpdateAssignment(ctx, UpdateAssignmentCommand{ID: id, Status: &status})
}

func (s *Service) DeleteAssignment(ctx context.Context, id domain.AssignmentID) error {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return err
	}

	if err := s.call(ctx, Delete(itemPath(pathAssignments, int64(id))), nil); err != nil {
		return fmt.Errorf("delete assignment %d: %w", id, err)
	}
	return nil
}

// ListGroupAssignments returns the assignments of one group with their
// group-specific deadlines.
func (s *Service) ListGroupAssignments(ctx context.Context, groupID domain.GroupID) ([]domain.AssignmentGroup, error) {
	query := url.Values{"group_id": {strconv.FormatInt(int64(groupID), 10)}}

	var links []domain.AssignmentGroup
	if err := s.list(ctx, Get(pathAssignGroup, query), &links); err != nil {
		return nil, fmt.Errorf("list assignments of group %d: %w", groupID, err)
	}
	return links, nil
}

// ListAssignmentGroups returns the groups an assignment is assigned to.
func (s *Service) ListAssignmentGroups(ctx context.Context, id domain.AssignmentID) ([]domain.AssignmentGroup, error) {
	var links []domain.AssignmentGroup
	if err := s.list(ctx, Get(itemPath(pathAssignments, int64(id), "groups"), nil), &links); err != nil {
		return nil, fmt.Errorf("list groups of assignment %d: %w", id, err)
	}
	return links, nil
}

func (s *Service) AssignToGroup(ctx context.Context, cmd AssignToGroupCommand) (domain.AssignmentGroup, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return domain.AssignmentGroup{}, err
	}

	body := map[string]any{
		"assignment_id": cmd.AssignmentID,
		"group_id":      cmd.GroupID,
	}
	if cmd.CustomDeadline != nil {
		body["custom_deadline"] = cmd.CustomDeadline.UTC().Format(time.RFC3339)
	}

	var link domain.AssignmentGroup
	if err := s.call(ctx, Post(pathAssignGroup, body), &link); err != nil {
		return domain.AssignmentGroup{}, fmt.Errorf("assign assignment %d to group %d: %w", cmd.AssignmentID, cmd.GroupID, err)
	}
	return link, nil
}
