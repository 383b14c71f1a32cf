package apitest

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

func withUser(r *http.Request, user domain.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userKey{}, user))
}

func studentID(user domain.User) int64 {
	if user.StudentProfile == nil {
		return 0
	}
	return user.StudentProfile.ID
}

func teacherID(user domain.User) int64 {
	if user.TeacherProfile == nil {
		return 0
	}
	return user.TeacherProfile.ID
}

func (s *Server) visibleGroup(user domain.User, group *domain.GroupDetail) bool {
	if user.Role == domain.RoleTeacher {
		return true
	}
	for _, member := range group.Members {
		if member.IsActive && member.Student == studentID(user) {
			return true
		}
	}
	return false
}

func (s *Server) refreshCounts(group *domain.GroupDetail) {
	group.MemberCount = len(group.ActiveMembers())
	group.TeacherCount = 0
	for _, teacher := range group.Teachers {
		if teacher.IsActive {
			group.TeacherCount++
		}
	}
}

// AddGroup seeds a group owned by the teacher with the given username.
func (s *Server) AddGroup(owner string, name string) domain.Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.accounts[owner]
	return s.createGroupLocked(acc.user, name, "").Group
}

func (s *Server) createGroupLocked(owner domain.User, name, description string) *domain.GroupDetail {
	group := &domain.GroupDetail{Group: domain.Group{
		ID:            domain.GroupID(s.id()),
		Name:          name,
		Code:          strings.ToUpper(uuid.NewString()[:8]),
		Description:   description,
		CreatedBy:     owner.ID,
		CreatedByName: owner.DisplayName(),
		CreatedAt:     s.now(),
		IsActive:      true,
	}}
	group.Teachers = append(group.Teachers, domain.GroupTeacher{
		ID:          s.id(),
		Group:       group.ID,
		Teacher:     teacherID(owner),
		TeacherName: owner.DisplayName(),
		JoinedAt:    s.now(),
		IsActive:    true,
	})
	s.refreshCounts(group)
	s.groups[group.ID] = group
	return group
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([]domain.Group, 0, len(s.groups))
	for _, group := range s.groups {
		if s.visibleGroup(user, group) {
			groups = append(groups, group.Group)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !readJSON(w, r, &payload) {
		return
	}
	if payload.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field may not be blank."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	group := s.createGroupLocked(currentUser(r), payload.Name, payload.Description)
	writeJSON(w, http.StatusCreated, group.Group)
}

func (s *Server) groupFor(w http.ResponseWriter, r *http.Request) (*domain.GroupDetail, bool) {
	group, ok := s.groups[domain.GroupID(pathID(r))]
	if !ok || !s.visibleGroup(currentUser(r), group) {
		notFound(w)
		return nil, false
	}
	return group, true
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if group, ok := s.groupFor(w, r); ok {
		writeJSON(w, http.StatusOK, group)
	}
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsActive    *bool   `json:"is_active"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groupFor(w, r)
	if !ok {
		return
	}
	if payload.Name != nil {
		group.Name = *payload.Name
	}
	if payload.Description != nil {
		group.Description = *payload.Description
	}
	if payload.IsActive != nil {
		group.IsActive = *payload.IsActive
	}
	writeJSON(w, http.StatusOK, group.Group)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groupFor(w, r)
	if !ok {
		return
	}
	delete(s.groups, group.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload struct {
		StudentID int64  `json:"student_id"`
		Role      string `json:"role"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groupFor(w, r)
	if !ok {
		return
	}

	var student *domain.User
	for _, acc := range s.accounts {
		if acc.user.Role == domain.RoleStudent && studentID(acc.user) == payload.StudentID {
			user := acc.user
			student = &user
		}
	}
	if student == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Student not found."})
		return
	}
	for _, member := range group.Members {
		if member.IsActive && member.Student == payload.StudentID {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Student is already a member of this group."})
			return
		}
	}

	member := domain.GroupMember{
		ID:          s.id(),
		Group:       group.ID,
		Student:     payload.StudentID,
		StudentName: student.DisplayName(),
		Role:        payload.Role,
		JoinedAt:    s.now(),
		IsActive:    true,
	}
	group.Members = append(group.Members, member)
	s.refreshCounts(group)
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) handleRemoveStudent(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload struct {
		MembershipID int64 `json:"membership_id"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groupFor(w, r)
	if !ok {
		return
	}
	for i := range group.Members {
		if group.Members[i].ID == payload.MembershipID && group.Members[i].IsActive {
			group.Members[i].IsActive = false
			s.refreshCounts(group)
			writeJSON(w, http.StatusOK, map[string]string{"detail": "Student removed from group."})
			return
		}
	}
	notFound(w)
}

func (s *Server) handleAddTeacher(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload struct {
		TeacherID int64 `json:"teacher_id"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groupFor(w, r)
	if !ok {
		return
	}
	for _, acc := range s.accounts {
		if acc.user.Role == domain.RoleTeacher && teacherID(acc.user) == payload.TeacherID {
			writeJSON(w, http.StatusCreated, s.joinLocked(group, acc.user))
			return
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Teacher not found."})
}

func (s *Server) handleRemoveTeacher(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload struct {
		TeacherID int64 `json:"teacher_id"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groupFor(w, r)
	if !ok {
		return
	}
	for i := range group.Teachers {
		if group.Teachers[i].Teacher == payload.TeacherID && group.Teachers[i].IsActive {
			group.Teachers[i].IsActive = false
			s.refreshCounts(group)
			writeJSON(w, http.StatusOK, map[string]string{"detail": "Teacher removed from group."})
			return
		}
	}
	notFound(w)
}

func (s *Server) handleJoinAsTeacher(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groupFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, s.joinLocked(group, currentUser(r)))
}

func (s *Server) joinLocked(group *domain.GroupDetail, teacher domain.User) domain.GroupTeacher {
	for _, existing := range group.Teachers {
		if existing.IsActive && existing.Teacher == teacherID(teacher) {
			return existing
		}
	}
	membership := domain.GroupTeacher{
		ID:          s.id(),
		Group:       group.ID,
		Teacher:     teacherID(teacher),
		TeacherName: teacher.DisplayName(),
		JoinedAt:    s.now(),
		IsActive:    true,
	}
	group.Teachers = append(group.Teachers, membership)
	s.refreshCounts(group)
	return membership
}

// AddAssignment seeds an assignment created by the teacher with the given
// username.
func (s *Server) AddAssignment(owner string, assignment domain.Assignment) domain.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.createAssignmentLocked(s.accounts[owner].user, assignment)
	return s.presentLocked(created)
}

func (s *Server) createAssignmentLocked(owner domain.User, assignment domain.Assignment) *domain.Assignment {
	creator := *owner.TeacherProfile
	user := owner
	user.TeacherProfile = nil
	creator.User = &user

	assignment.ID = domain.AssignmentID(s.id())
	assignment.CreatedBy = &creator
	assignment.CreatedAt = s.now()
	assignment.UpdatedAt = assignment.CreatedAt
	if assignment.Status == "" {
		assignment.Status = domain.AssignmentDraft
	}
	if assignment.Attachments == nil {
		assignment.Attachments = []domain.Attachment{}
	}
	s.assignments[assignment.ID] = &assignment
	return &assignment
}

func (s *Server) presentLocked(assignment *domain.Assignment) domain.Assignment {
	out := *assignment
	now := s.now()
	out.IsDeadlineExpired = now.After(out.Deadline)
	if !out.IsDeadlineExpired {
		remaining := domain.FormatRemaining(out.Deadline, now)
		out.TimeRemaining = &remaining
	}
	out.SubmissionCount = 0
	for _, submission := range s.submissions {
		if submission.Assignment.ID == out.ID {
			out.SubmissionCount++
		}
	}
	return out
}

func (s *Server) visibleAssignment(user domain.User, assignment *domain.Assignment) bool {
	if user.Role == domain.RoleTeacher {
		return assignment.CreatedBy != nil && assignment.CreatedBy.ID == teacherID(user)
	}
	return assignment.Status == domain.AssignmentPublished
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]domain.Assignment, 0, len(s.assignments))
	for _, assignment := range s.assignments {
		if s.visibleAssignment(user, assignment) {
			results = append(results, s.presentLocked(assignment))
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Deadline.Before(results[j].Deadline) })
	if len(results) > assignmentsPerPage {
		results = results[:assignmentsPerPage]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(results),
		"next":     nil,
		"previous": nil,
		"results":  results,
	})
}

type assignmentPayload struct {
	Title                 *string                  `json:"title"`
	Description           *string                  `json:"description"`
	Status                *domain.AssignmentStatus `json:"status"`
	Deadline              *time.Time               `json:"deadline"`
	MaxPoints             *float64                 `json:"max_points"`
	AllowLateSubmissions  *bool                    `json:"allow_late_submissions"`
	LatePenaltyPercentage *float64                 `json:"late_penalty_percentage"`
}

func (p assignmentPayload) apply(assignment *domain.Assignment) {
	if p.Title != nil {
		assignment.Title = *p.Title
	}
	if p.Description != nil {
		assignment.Description = *p.Description
	}
	if p.Status != nil {
		assignment.Status = *p.Status
	}
	if p.Deadline != nil {
		assignment.Deadline = *p.Deadline
	}
	if p.MaxPoints != nil {
		assignment.MaxPoints = *p.MaxPoints
	}
	if p.AllowLateSubmissions != nil {
		assignment.AllowLateSubmissions = *p.AllowLateSubmissions
	}
	if p.LatePenaltyPercentage != nil {
		assignment.LatePenaltyPercentage = *p.LatePenaltyPercentage
	}
}

func (p assignmentPayload) validate() map[string][]string {
	problems := map[string][]string{}
	if p.Status != nil && !p.Status.Valid() {
		problems["status"] = []string{`"` + string(*p.Status) + `" is not a valid choice.`}
	}
	if p.LatePenaltyPercentage != nil && (*p.LatePenaltyPercentage < 0 || *p.LatePenaltyPercentage > 100) {
		problems["late_penalty_percentage"] = []string{"Ensure this value is between 0 and 100."}
	}
	return problems
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload assignmentPayload
	if !readJSON(w, r, &payload) {
		return
	}
	problems := payload.validate()
	if payload.Title == nil || *payload.Title == "" {
		problems["title"] = []string{"This field may not be blank."}
	}
	if payload.Deadline == nil || payload.Deadline.IsZero() {
		problems["deadline"] = []string{"This field is required."}
	}
	if len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, problems)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var assignment domain.Assignment
	payload.apply(&assignment)
	created := s.createAssignmentLocked(currentUser(r), assignment)
	writeJSON(w, http.StatusCreated, s.presentLocked(created))
}

func (s *Server) assignmentFor(w http.ResponseWriter, r *http.Request) (*domain.Assignment, bool) {
	assignment, ok := s.assignments[domain.AssignmentID(pathID(r))]
	if !ok || !s.visibleAssignment(currentUser(r), assignment) {
		notFound(w)
		return nil, false
	}
	return assignment, true
}

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if assignment, ok := s.assignmentFor(w, r); ok {
		writeJSON(w, http.StatusOK, s.presentLocked(assignment))
	}
}

func (s *Server) handleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload assignmentPayload
	if !readJSON(w, r, &payload) {
		return
	}
	if problems := payload.validate(); len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, problems)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignmentFor(w, r)
	if !ok {
		return
	}
	payload.apply(assignment)
	assignment.UpdatedAt = s.now()
	writeJSON(w, http.StatusOK, s.presentLocked(assignment))
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignmentFor(w, r)
	if !ok {
		return
	}
	delete(s.assignments, assignment.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignmentSubmissions(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignmentFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.submissionsLocked(func(sub *domain.Submission) bool {
		return sub.Assignment.ID == assignment.ID
	}))
}

func (s *Server) handleAssignmentGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignmentFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.linksLocked(func(link domain.AssignmentGroup) bool {
		return link.Assignment.ID == assignment.ID
	}))
}

func (s *Server) linksLocked(keep func(domain.AssignmentGroup) bool) []domain.AssignmentGroup {
	links := make([]domain.AssignmentGroup, 0)
	for _, link := range s.links {
		if keep(link) {
			links = append(links, link)
		}
	}
	return links
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	groupParam := r.URL.Query().Get("group_id")

	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, s.linksLocked(func(link domain.AssignmentGroup) bool {
		return groupParam == "" || strconv.FormatInt(int64(link.Group.ID), 10) == groupParam
	}))
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload struct {
		AssignmentID   domain.AssignmentID `json:"assignment_id"`
		GroupID        domain.GroupID      `json:"group_id"`
		CustomDeadline *time.Time          `json:"custom_deadline"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, found := s.assignments[payload.AssignmentID]
	group, groupFound := s.groups[payload.GroupID]
	if !found || !groupFound {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Assignment or group does not exist."})
		return
	}

	link := domain.AssignmentGroup{
		ID:                s.id(),
		Assignment:        s.presentLocked(assignment).Summary(),
		Group:             group.Group,
		AssignedAt:        s.now(),
		CustomDeadline:    payload.CustomDeadline,
		EffectiveDeadline: assignment.Deadline,
	}
	if payload.CustomDeadline != nil {
		link.EffectiveDeadline = *payload.CustomDeadline
	}
	s.links = append(s.links, link)
	writeJSON(w, http.StatusCreated, link)
}

func (s *Server) submissionsLocked(keep func(*domain.Submission) bool) []domain.Submission {
	submissions := make([]domain.Submission, 0)
	for _, submission := range s.submissions {
		if keep(submission) {
			submissions = append(submissions, *submission)
		}
	}
	sort.Slice(submissions, func(i, j int) bool { return submissions[i].ID < submissions[j].ID })
	return submissions
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, s.submissionsLocked(func(sub *domain.Submission) bool {
		if user.Role == domain.RoleTeacher {
			assignment, ok := s.assignments[sub.Assignment.ID]
			return ok && s.visibleAssignment(user, assignment)
		}
		return sub.Student != nil && sub.Student.ID == studentID(user)
	}))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user.Role != domain.RoleStudent {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Only students can submit assignments."})
		return
	}
	var payload struct {
		AssignmentID domain.AssignmentID `json:"assignment_id"`
		Comment      string              `json:"comment"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignments[payload.AssignmentID]
	if !ok || assignment.Status != domain.AssignmentPublished {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"assignment_id": {"Assignment is not available."}})
		return
	}
	for _, existing := range s.submissions {
		if existing.Assignment.ID == assignment.ID && existing.Student != nil && existing.Student.ID == studentID(user) {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"You have already submitted this assignment."}})
			return
		}
	}

	now := s.now()
	late := now.After(assignment.Deadline)
	if late && !assignment.AllowLateSubmissions {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "The deadline for this assignment has passed."})
		return
	}

	profile := *user.StudentProfile
	owner := user
	owner.StudentProfile = nil
	profile.User = &owner

	submission := &domain.Submission{
		ID:          domain.SubmissionID(s.id()),
		Assignment:  s.presentLocked(assignment).Summary(),
		Student:     &profile,
		SubmittedAt: now,
		UpdatedAt:   now,
		Comment:     payload.Comment,
		Status:      domain.SubmissionSubmitted,
		IsLate:      late,
		Attachments: []domain.Attachment{},
	}
	s.submissions[submission.ID] = submission
	writeJSON(w, http.StatusCreated, submission)
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	var payload struct {
		Status   domain.SubmissionStatus `json:"status"`
		Points   *float64                `json:"points"`
		Feedback string                  `json:"feedback"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	submission, ok := s.submissions[domain.SubmissionID(pathID(r))]
	if !ok {
		notFound(w)
		return
	}
	assignment := s.assignments[submission.Assignment.ID]
	if payload.Points != nil && assignment != nil && *payload.Points > assignment.MaxPoints {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"points": {"Points exceed the maximum for this assignment."}})
		return
	}

	now := s.now()
	submission.Status = payload.Status
	submission.Points = payload.Points
	submission.Feedback = payload.Feedback
	submission.GradedAt = &now
	submission.UpdatedAt = now

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   submission.Status,
		"points":   submission.Points,
		"feedback": submission.Feedback,
	})
}

// Submissions returns every stored submission.
func (s *Server) Submissions() []domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissionsLocked(func(*domain.Submission) bool { return true })
}
