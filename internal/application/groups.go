package application

import (
	"context"
	"fmt"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

func (s *Service) ListGroups(ctx context.Context) ([]domain.Group, error) {
	var groups []domain.Group
	if err := s.list(ctx, Get(pathGroups, nil), &groups); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (s *Service) GetGroup(ctx context.Context, id domain.GroupID) (domain.GroupDetail, error) {
	var group domain.GroupDetail
	if err := s.call(ctx, Get(itemPath(pathGroups, int64(id)), nil), &group); err != nil {
		return domain.GroupDetail{}, fmt.Errorf("get group %d: %w", id, err)
	}
	return group, nil
}

func (s *Service) CreateGroup(ctx context.Context, cmd CreateGroupCommand) (domain.Group, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return domain.Group{}, err
	}

	var group domain.Group
	if err := s.call(ctx, Post(pathGroups, cmd), &group); err != nil {
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}
	return group, nil
}

func (s *Service) UpdateGroup(ctx context.Context, cmd UpdateGroupCommand) (domain.Group, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return domain.Group{}, err
	}

	var group domain.Group
	if err := s.call(ctx, Patch(itemPath(pathGroups, int64(cmd.ID)), cmd.fields()), &group); err != nil {
		return domain.Group{}, fmt.Errorf("update group %d: %w", cmd.ID, err)
	}
	return group, nil
}

func (s *Service) DeleteGroup(ctx context.Context, id domain.GroupID) error {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return err
	}

	if err := s.call(ctx, Delete(itemPath(pathGroups, int64(id))), nil); err != nil {
		return fmt.Errorf("delete group %d: %w", id, err)
	}
	return nil
}

func (s *Service) AddStudent(ctx context.Context, cmd AddStudentCommand) (domain.GroupMember, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return domain.GroupMember{}, err
	}

	role := cmd.Role
	if role == "" {
		role = DefaultMemberRole
	}
	body := map[string]any{"student_id": cmd.StudentID, "role": role}

	var member domain.GroupMember
	if err := s.call(ctx, Post(itemPath(pathGroups, int64(cmd.GroupID), "add_student"), body), &member); err != nil {
		return domain.GroupMember{}, fmt.Errorf("add student %d to group %d: %w", cmd.StudentID, cmd.GroupID, err)
	}
	return member, nil
}

func (s *Service) RemoveStudent(ctx context.Context, cmd RemoveStudentCommand) error {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return err
	}

	body := map[string]any{"membership_id": cmd.MembershipID}
	if err := s.call(ctx, Post(itemPath(pathGroups, int64(cmd.GroupID), "remove_student"), body), nil); err != nil {
		return fmt.Errorf("remove membership %d from group %d: %w", cmd.MembershipID, cmd.GroupID, err)
	}
	return nil
}

func (s *Service) AddTeacher(ctx context.Context, cmd TeacherMembershipCommand) (domain.GroupTeacher, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return domain.GroupTeacher{}, err
	}

	body := map[string]any{"teacher_id": cmd.TeacherID}
	var teacher domain.GroupTeacher
	if err := s.call(ctx, Post(itemPath(pathGroups, int64(cmd.GroupID), "add_teacher"), body), &teacher); err != nil {
		return domain.GroupTeacher{}, fmt.Errorf("add teacher %d to group %d: %w", cmd.TeacherID, cmd.GroupID, err)
	}
	return teacher, nil
}

func (s *Service) RemoveTeacher(ctx context.Context, cmd TeacherMembershipCommand) error {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return err
	}

	body := map[string]any{"teacher_id": cmd.TeacherID}
	if err := s.call(ctx, Post(itemPath(pathGroups, int64(cmd.GroupID), "remove_teacher"), body), nil); err != nil {
		return fmt.Errorf("remove teacher %d from group %d: %w", cmd.TeacherID, cmd.GroupID, err)
	}
	return nil
}

// JoinAsTeacher adds the current teacher to a group by its id.
func (s *Service) JoinAsTeacher(ctx context.Context, id domain.GroupID) (domain.GroupTeacher, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return domain.GroupTeacher{}, err
	}

	var teacher domain.GroupTeacher
	if err := s.call(ctx, Post(itemPath(pathGroups, int64(id), "join_as_teacher"), map[string]any{}), &teacher); err != nil {
		return domain.GroupTeacher{}, fmt.Errorf("join group %d: %w", id, err)
	}
	return teacher, nil
}
