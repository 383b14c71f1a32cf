package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Gribbirg/deadline-mate/internal/domain"
	"github.com/Gribbirg/deadline-mate/internal/ports"
)

// Session is the part of SessionManager the service depends on.
type Session interface {
	Do(ctx context.Context, spec RequestSpec) (Response, error)
	CurrentUser() (domain.User, bool)
	SetCurrentUser(ctx context.Context, user domain.User)
}

var _ Session = (*SessionManager)(nil)

const (
	pathRegister    = "auth/register/"
	pathProfile     = "auth/profile/"
	pathStudents    = "auth/students/"
	pathTeachers    = "auth/teachers/"
	pathGroups      = "groups/groups"
	pathAssignments = "assignments/assignments"
	pathAssignGroup = "assignments/assignment-groups"
	pathSubmissions = "assignments/submissions"
)

type Service struct {
	session Session
	clock   ports.Clock
}

func NewService(session Session, clock ports.Clock) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Service{
		session: session,
		clock:   clock,
	}
}

// requireRole rejects operations reserved for the other role. A session
// with no known user is let through and the server decides.
func (s *Service) requireRole(role domain.Role) error {
	user, ok := s.session.CurrentUser()
	if !ok || user.Role == "" || user.Role == role {
		return nil
	}
	return fmt.Errorf("%w: %s only", domain.ErrRoleRequired, role)
}

func (s *Service) call(ctx context.Context, spec RequestSpec, out any) error {
	resp, err := s.session.Do(ctx, spec)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("%s %s: %w", spec.Method, spec.Path, err)
	}
	return nil
}

func (s *Service) list(ctx context.Context, spec RequestSpec, out any) error {
	resp, err := s.session.Do(ctx, spec)
	if err != nil {
		return err
	}
	if err := resp.DecodeList(out); err != nil {
		return fmt.Errorf("%s %s: %w", spec.Method, spec.Path, err)
	}
	return nil
}

func itemPath(collection string, id int64, action ...string) string {
	path := collection + "/" + strconv.FormatInt(id, 10)
	for _, part := range action {
		path += "/" + part
	}
	return path
}

// Register creates an account. It needs no credential.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (domain.User, error) {
	if !cmd.Role.Valid() {
		return domain.User{}, fmt.Errorf("unknown role %q", cmd.Role)
	}

	spec := Post(pathRegister, cmd)
	spec.Public = true

	var user domain.User
	if err := s.call(ctx, spec, &user); err != nil {
		return domain.User{}, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

// Profile fetches the current user and refreshes the stored snapshot.
func (s *Service) Profile(ctx context.Context) (domain.User, error) {
	var user domain.User
	if err := s.call(ctx, Get(pathProfile, nil), &user); err != nil {
		return domain.User{}, fmt.Errorf("fetch profile: %w", err)
	}

	user = s.withKnownRoleProfile(user)
	s.session.SetCurrentUser(ctx, user)
	return user, nil
}

// UpdateProfile changes the current user's details and, when both
// passwords are given, the password.
func (s *Service) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (domain.User, error) {
	if cmd.NewPassword != "" && cmd.CurrentPassword == "" {
		return domain.User{}, errors.New("update profile: the current password is required to set a new one")
	}
	if cmd.hasStudentFields() {
		if err := s.requireRole(domain.RoleStudent); err != nil {
			return domain.User{}, err
		}
	}
	if cmd.hasTeacherFields() {
		if err := s.requireRole(domain.RoleTeacher); err != nil {
			return domain.User{}, err
		}
	}

	fields := cmd.fields()
	if len(fields) == 0 {
		return domain.User{}, errors.New("update profile: nothing to update")
	}

	var user domain.User
	if err := s.call(ctx, Patch(pathProfile, fields), &user); err != nil {
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}

	user = s.withKnownRoleProfile(user)
	cmd.applyRoleProfile(&user)
	s.session.SetCurrentUser(ctx, user)
	return user, nil
}

// withKnownRoleProfile fills in the role profiles the profile endpoint does
// not expand, from the snapshot taken at login.
func (s *Service) withKnownRoleProfile(user domain.User) domain.User {
	if known, ok := s.session.CurrentUser(); ok && known.ID == user.ID {
		if user.StudentProfile == nil {
			user.StudentProfile = known.StudentProfile
		}
		if user.TeacherProfile == nil {
			user.TeacherProfile = known.TeacherProfile
		}
	}
	return user
}

// ListStudents lists students matching q. Teachers only.
func (s *Service) ListStudents(ctx context.Context, q DirectoryQuery) ([]domain.StudentProfile, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return nil, err
	}

	var students []domain.StudentProfile
	if err := s.list(ctx, Get(pathStudents, q.values()), &students); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	if q.ExcludeGroup == 0 {
		return students, nil
	}

	group, err := s.GetGroup(ctx, q.ExcludeGroup)
	if err != nil {
		return nil, err
	}
	members := make(map[int64]bool, len(group.Members))
	for _, member := range group.ActiveMembers() {
		members[member.Student] = true
	}
	kept := students[:0]
	for _, student := range students {
		if !members[student.ID] {
			kept = append(kept, student)
		}
	}
	return kept, nil
}

// ListTeachers lists teachers matching q, for picking co-teachers.
func (s *Service) ListTeachers(ctx context.Context, q DirectoryQuery) ([]domain.TeacherProfile, error) {
	if err := s.requireRole(domain.RoleTeacher); err != nil {
		return nil, err
	}

	var teachers []domain.TeacherProfile
	if err := s.list(ctx, Get(pathTeachers, q.values()), &teachers); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	if q.ExcludeGroup == 0 {
		return teachers, nil
	}

	group, err := s.GetGroup(ctx, q.ExcludeGroup)
	if err != nil {
		return nil, err
	}
	inGroup := make(map[int64]bool, len(group.Teachers))
	for _, teacher := range group.Teachers {
		if teacher.IsActive {
			inGroup[teacher.Teacher] = true
		}
	}
	kept := teachers[:0]
	for _, teacher := range teachers {
		if !inGroup[teacher.ID] {
			kept = append(kept, teacher)
		}
	}
	return kept, nil
}
