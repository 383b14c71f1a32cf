// Package apitest runs an in-process Deadline Mate API for tests. It speaks
// the same JSON and simplejwt token flow as the real backend.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

const (
	msgBadToken        = "Given token not valid for any token type"
	msgBadRefresh      = "Token is invalid or expired"
	msgBadCredentials  = "No active account found with the given credentials"
	msgNotFound        = "Not found."
	msgPermission      = "You do not have permission to perform this action."
	defaultAccessTTL   = 5 * time.Minute
	defaultRefreshTTL  = 24 * time.Hour
	assignmentsPerPage = 100
)

var signingKey = []byte("apitest-signing-key")

type account struct {
	user     domain.User
	password string
}

// Server is a fake API with an in-memory store.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	now          func() time.Time
	nextID       int64
	accounts     map[string]*account
	access       map[string]domain.UserID
	refresh      map[string]domain.UserID
	refreshCalls int
	failRefresh  bool
	groups       map[domain.GroupID]*domain.GroupDetail
	assignments  map[domain.AssignmentID]*domain.Assignment
	links        []domain.AssignmentGroup
	submissions  map[domain.SubmissionID]*domain.Submission
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		now:         time.Now,
		nextID:      100,
		accounts:    map[string]*account{},
		access:      map[string]domain.UserID{},
		refresh:     map[string]domain.UserID{},
		groups:      map[domain.GroupID]*domain.GroupDetail{},
		assignments: map[domain.AssignmentID]*domain.Assignment{},
		submissions: map[domain.SubmissionID]*domain.Submission{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)

	return s
}

// APIURL is the base URL clients are configured with.
func (s *Server) APIURL() string {
	return s.URL + "/api/"
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/token/", s.handleObtain).Methods(http.MethodPost)
	api.HandleFunc("/auth/token/refresh/", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/register/", s.handleRegister).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.requireToken)

	authed.HandleFunc("/auth/profile/", s.handleProfile).Methods(http.MethodGet)
	authed.HandleFunc("/auth/profile/", s.handleUpdateProfile).Methods(http.MethodPatch, http.MethodPut)
	authed.HandleFunc("/auth/students/", s.handleStudents).Methods(http.MethodGet)
	authed.HandleFunc("/auth/teachers/", s.handleTeachers).Methods(http.MethodGet)

	authed.HandleFunc("/groups/groups", s.handleListGroups).Methods(http.MethodGet)
	authed.HandleFunc("/groups/groups", s.handleCreateGroup).Methods(http.MethodPost)
	authed.HandleFunc("/groups/groups/{id:[0-9]+}", s.handleGetGroup).Methods(http.MethodGet)
	authed.HandleFunc("/groups/groups/{id:[0-9]+}", s.handleUpdateGroup).Methods(http.MethodPatch)
	authed.HandleFunc("/groups/groups/{id:[0-9]+}", s.handleDeleteGroup).Methods(http.MethodDelete)
	authed.HandleFunc("/groups/groups/{id:[0-9]+}/add_student", s.handleAddStudent).Methods(http.MethodPost)
	authed.HandleFunc("/groups/groups/{id:[0-9]+}/remove_student", s.handleRemoveStudent).Methods(http.MethodPost)
	authed.HandleFunc("/groups/groups/{id:[0-9]+}/add_teacher", s.handleAddTeacher).Methods(http.MethodPost)
	authed.HandleFunc("/groups/groups/{id:[0-9]+}/remove_teacher", s.handleRemoveTeacher).Methods(http.MethodPost)
	authed.HandleFunc("/groups/groups/{id:[0-9]+}/join_as_teacher", s.handleJoinAsTeacher).Methods(http.MethodPost)

	authed.HandleFunc("/assignments/assignments", s.handleListAssignments).Methods(http.MethodGet)
	authed.HandleFunc("/assignments/assignments", s.handleCreateAssignment).Methods(http.MethodPost)
	authed.HandleFunc("/assignments/assignments/{id:[0-9]+}", s.handleGetAssignment).Methods(http.MethodGet)
	authed.HandleFunc("/assignments/assignments/{id:[0-9]+}", s.handleUpdateAssignment).Methods(http.MethodPatch)
	authed.HandleFunc("/assignments/assignments/{id:[0-9]+}", s.handleDeleteAssignment).Methods(http.MethodDelete)
	authed.HandleFunc("/assignments/assignments/{id:[0-9]+}/submissions", s.handleAssignmentSubmissions).Methods(http.MethodGet)
	authed.HandleFunc("/assignments/assignments/{id:[0-9]+}/groups", s.handleAssignmentGroups).Methods(http.MethodGet)
	authed.HandleFunc("/assignments/assignment-groups", s.handleListLinks).Methods(http.MethodGet)
	authed.HandleFunc("/assignments/assignment-groups", s.handleCreateLink).Methods(http.MethodPost)
	authed.HandleFunc("/assignments/submissions", s.handleListSubmissions).Methods(http.MethodGet)
	authed.HandleFunc("/assignments/submissions", s.handleSubmit).Methods(http.MethodPost)
	authed.HandleFunc("/assignments/submissions/{id:[0-9]+}/grade", s.handleGrade).Methods(http.MethodPatch)

	return r
}

// SetClock overrides the server's notion of now.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser registers an account and returns it with its assigned ids.
func (s *Server) AddUser(user domain.User, password string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(user, password)
}

func (s *Server) addUserLocked(user domain.User, password string) domain.User {
	user.ID = domain.UserID(s.id())
	switch user.Role {
	case domain.RoleStudent:
		if user.StudentProfile == nil {
			user.StudentProfile = &domain.StudentProfile{}
		}
		user.StudentProfile.ID = s.id()
	case domain.RoleTeacher:
		if user.TeacherProfile == nil {
			user.TeacherProfile = &domain.TeacherProfile{}
		}
		user.TeacherProfile.ID = s.id()
	}
	s.accounts[user.Username] = &account{user: user, password: password}
	return user
}

// ExpireAccessTokens invalidates every issued access token.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = map[string]domain.UserID{}
}

// RevokeRefreshTokens makes every following refresh fail.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = map[string]domain.UserID{}
}

// FailRefresh makes the refresh endpoint answer 401 regardless of token.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// IssueTokens signs a fresh pair for username without going through the
// token endpoint.
func (s *Server) IssueTokens(username string) domain.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[username]
	if !ok {
		return domain.Credential{}
	}
	return s.issueLocked(acc.user.ID)
}

func (s *Server) issueLocked(id domain.UserID) domain.Credential {
	access := s.sign(id, "access", defaultAccessTTL)
	refresh := s.sign(id, "refresh", defaultRefreshTTL)
	s.access[access] = id
	s.refresh[refresh] = id
	return domain.Credential{AccessToken: access, RefreshToken: refresh}
}

func (s *Server) sign(id domain.UserID, tokenType string, ttl time.Duration) string {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"token_type": tokenType,
		"user_id":    int64(id),
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) userByID(id domain.UserID) (domain.User, bool) {
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc.user, true
		}
	}
	return domain.User{}, false
}

type userKey struct{}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		id, ok := s.access[token]
		user, found := s.userByID(id)
		s.mu.Unlock()

		if !ok || !found {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": msgBadToken, "code": "token_not_valid"})
			return
		}
		next.ServeHTTP(w, withUser(r, user))
	})
}

func (s *Server) handleObtain(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[payload.Username]
	if !ok || acc.password != payload.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": msgBadCredentials})
		return
	}

	credential := s.issueLocked(acc.user.ID)
	user := acc.user
	writeJSON(w, http.StatusOK, map[string]any{
		"access":          credential.AccessToken,
		"refresh":         credential.RefreshToken,
		"user_id":         user.ID,
		"username":        user.Username,
		"email":           user.Email,
		"role":            user.Role,
		"first_name":      user.FirstName,
		"last_name":       user.LastName,
		"student_profile": user.StudentProfile,
		"teacher_profile": user.TeacherProfile,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Refresh string `json:"refresh"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	id, ok := s.refresh[payload.Refresh]
	if !ok || s.failRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": msgBadRefresh, "code": "token_not_valid"})
		return
	}

	access := s.sign(id, "access", defaultAccessTTL)
	s.access[access] = id
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username        string      `json:"username"`
		Email           string      `json:"email"`
		FirstName       string      `json:"first_name"`
		LastName        string      `json:"last_name"`
		Role            domain.Role `json:"role"`
		Password        string      `json:"password"`
		PasswordConfirm string      `json:"password_confirm"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	if payload.Password != payload.PasswordConfirm {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"password": {"Password fields didn't match."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.accounts[payload.Username]; taken {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"A user with that username already exists."}})
		return
	}

	user := s.addUserLocked(domain.User{
		Username:  payload.Username,
		Email:     payload.Email,
		Role:      payload.Role,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	}, payload.Password)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	user.StudentProfile = nil
	user.TeacherProfile = nil
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email          *string `json:"email"`
		FirstName      *string `json:"first_name"`
		LastName       *string `json:"last_name"`
		StudentProfile *struct {
			Major       *string `json:"major"`
			YearOfStudy *int    `json:"year_of_study"`
		} `json:"student_profile"`
		TeacherProfile *struct {
			Position   *string `json:"position"`
			Department *string `json:"department"`
		} `json:"teacher_profile"`
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !readJSON(w, r, &payload) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[currentUser(r).Username]
	if !ok {
		notFound(w)
		return
	}
	if payload.NewPassword != "" && payload.CurrentPassword == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"current_password": {"This field is required."}})
		return
	}
	if payload.CurrentPassword != "" && payload.CurrentPassword != acc.password {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"current_password": {"Wrong password."}})
		return
	}
	if payload.StudentProfile != nil && acc.user.StudentProfile == nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"student_profile": {"User is not a student."}})
		return
	}
	if payload.TeacherProfile != nil && acc.user.TeacherProfile == nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"teacher_profile": {"User is not a teacher."}})
		return
	}

	user := &acc.user
	if payload.Email != nil {
		user.Email = *payload.Email
	}
	if payload.FirstName != nil {
		user.FirstName = *payload.FirstName
	}
	if payload.LastName != nil {
		user.LastName = *payload.LastName
	}
	if p := payload.StudentProfile; p != nil {
		if p.Major != nil {
			user.StudentProfile.Major = *p.Major
		}
		if p.YearOfStudy != nil {
			user.StudentProfile.YearOfStudy = *p.YearOfStudy
		}
	}
	if p := payload.TeacherProfile; p != nil {
		if p.Position != nil {
			user.TeacherProfile.Position = *p.Position
		}
		if p.Department != nil {
			user.TeacherProfile.Department = *p.Department
		}
	}
	if payload.NewPassword != "" {
		acc.password = payload.NewPassword
	}

	answer := acc.user
	answer.StudentProfile = nil
	answer.TeacherProfile = nil
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	search := r.URL.Query().Get("search")

	s.mu.Lock()
	defer s.mu.Unlock()

	students := make([]domain.StudentProfile, 0)
	for _, acc := range s.accounts {
		if acc.user.Role != domain.RoleStudent || !matchesSearch(acc.user, search) {
			continue
		}
		user := acc.user
		profile := *user.StudentProfile
		user.StudentProfile = nil
		profile.User = &user
		students = append(students, profile)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	writeJSON(w, http.StatusOK, students)
}

func (s *Server) handleTeachers(w http.ResponseWriter, r *http.Request) {
	if !requireTeacher(w, r) {
		return
	}
	search := r.URL.Query().Get("search")

	s.mu.Lock()
	defer s.mu.Unlock()

	teachers := make([]domain.TeacherProfile, 0)
	for _, acc := range s.accounts {
		if acc.user.Role != domain.RoleTeacher || !matchesSearch(acc.user, search) {
			continue
		}
		user := acc.user
		profile := *user.TeacherProfile
		user.TeacherProfile = nil
		profile.User = &user
		teachers = append(teachers, profile)
	}
	sort.Slice(teachers, func(i, j int) bool { return teachers[i].ID < teachers[j].ID })
	writeJSON(w, http.StatusOK, teachers)
}

// matchesSearch mirrors the backend's icontains over the user's names and email.
func matchesSearch(user domain.User, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, field := range []string{user.Username, user.FirstName, user.LastName, user.Email} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func currentUser(r *http.Request) domain.User {
	user, _ := r.Context().Value(userKey{}).(domain.User)
	return user
}

func requireTeacher(w http.ResponseWriter, r *http.Request) bool {
	if currentUser(r).Role != domain.RoleTeacher {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": msgPermission})
		return false
	}
	return true
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error - " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": msgNotFound})
}
