package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Gribbirg/deadline-mate/internal/domain"
	"github.com/Gribbirg/deadline-mate/internal/pkg/apiurl"
	"github.com/Gribbirg/deadline-mate/internal/pkg/logger"
	"github.com/Gribbirg/deadline-mate/internal/ports"
	"github.com/google/uuid"
)

const (
	DefaultQueueTimeout   = 30 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultRefreshPath    = "auth/token/refresh/"

	HeaderRequestID = "X-Request-ID"

	maxResponseBytes = 8 << 20
)

type SessionConfig struct {
	BaseURL string
	Profile domain.ProfileName
	// RefreshPath identifies calls aimed at the refresh endpoint; a 401 on
	// those is never repaired by another refresh.
	RefreshPath    string
	QueueTimeout   time.Duration
	RefreshTimeout time.Duration
	RequestTimeout time.Duration
	UserAgent      string
}

type SessionDeps struct {
	HTTP      ports.HTTPDoer
	Tokens    ports.TokenIssuer
	Store     ports.SecretStore
	Profiles  ports.ProfileRepository
	Navigator ports.Navigator
	Clock     ports.Clock
	Logger    *slog.Logger
}

type refreshOutcome struct {
	token string
	err   error
}

// call is one logical request. It is built once and carried through the
// first send, the optional wait for a refresh and the single replay.
type call struct {
	spec      RequestSpec
	body      []byte
	requestID string
	retried   bool
	// token is the access token the latest attempt was sent with.
	token string
}

// SessionManager owns the credential of one profile and repairs expired
// access tokens. At most one refresh request is in flight at a time; calls
// that hit a 401 meanwhile wait for its outcome and replay once.
type SessionManager struct {
	cfg       SessionConfig
	http      ports.HTTPDoer
	tokens    ports.TokenIssuer
	store     ports.SecretStore
	profiles  ports.ProfileRepository
	navigator ports.Navigator
	clock     ports.Clock
	log       *slog.Logger

	newRequestID func() string

	mu         sync.Mutex
	credential domain.Credential
	user       *domain.User
	refreshing bool
	waiters    []chan refreshOutcome
	// generation changes whenever the session is replaced or ended; a refresh
	// that started under an older generation must not publish its result.
	generation uint64
	// endReason explains why the credential is empty after a session ended.
	endReason error

	// storeMu orders credential writes against logout deletes.
	storeMu sync.Mutex
}

func NewSessionManager(cfg SessionConfig, deps SessionDeps) (*SessionManager, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api base url is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if deps.Store == nil {
		return nil, errors.New("credential store is required")
	}
	if cfg.Profile == "" {
		cfg.Profile = domain.DefaultProfile
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if deps.HTTP == nil {
		deps.HTTP = http.DefaultClient
	}
	if deps.Navigator == nil {
		deps.Navigator = noopNavigator{}
	}
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}

	return &SessionManager{
		cfg:          cfg,
		http:         deps.HTTP,
		tokens:       deps.Tokens,
		store:        deps.Store,
		profiles:     deps.Profiles,
		navigator:    deps.Navigator,
		clock:        deps.Clock,
		log:          logger.WithProfile(deps.Logger, string(cfg.Profile)),
		newRequestID: uuid.NewString,
	}, nil
}

type noopNavigator struct{}

func (noopNavigator) RedirectToLogin() {}

// AccessTokenKey and RefreshTokenKey name the credential store entries of a profile.
func AccessTokenKey(profile domain.ProfileName) string {
	return "deadline-mate/" + string(profile) + "/access_token"
}

func RefreshTokenKey(profile domain.ProfileName) string {
	return "deadline-mate/" + string(profile) + "/refresh_token"
}

// Do sends spec with the current access token. Responses other than 401
// are returned as they are, whatever their status. A 401 starts or joins a
// refresh and the call is replayed once with the new token; a second 401
// is reported as domain.ErrAuthExpired.
func (m *SessionManager) Do(ctx context.Context, spec RequestSpec) (Response, error) {
	c, err := m.newCall(spec)
	if err != nil {
		return Response{}, err
	}

	if spec.Public {
		return m.send(ctx, c, "")
	}

	m.mu.Lock()
	token := m.credential.AccessToken
	reason := m.endReason
	m.mu.Unlock()
	if token == "" {
		return Response{}, notAuthenticated(reason)
	}

	resp, err := m.send(ctx, c, token)
	if err != nil || resp.Status != http.StatusUnauthorized {
		return resp, err
	}

	return m.handleUnauthorized(ctx, c, resp)
}

func (m *SessionManager) handleUnauthorized(ctx context.Context, c *call, resp Response) (Response, error) {
	log := logger.WithRequest(m.log, c.requestID)

	if c.retried {
		log.Warn("replayed call rejected", "path", c.spec.Path)
		return Response{}, unauthorizedError(domain.ErrAuthExpired, resp)
	}
	if apiurl.SamePath(c.spec.Path, m.cfg.RefreshPath) {
		return Response{}, unauthorizedError(domain.ErrRefreshFailed, resp)
	}
	c.retried = true

	m.mu.Lock()
	switch {
	case m.credential.AccessToken == "":
		reason := m.endReason
		m.mu.Unlock()
		return Response{}, notAuthenticated(reason)

	case m.refreshing:
		ch := make(chan refreshOutcome, 1)
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()
		log.Debug("waiting for session refresh", "path", c.spec.Path)
		return m.awaitRefresh(ctx, c, ch)

	case m.credential.AccessToken != c.token:
		// The token was replaced after this call went out.
		token := m.credential.AccessToken
		m.mu.Unlock()
		log.Debug("replaying with already refreshed token", "path", c.spec.Path)
		return m.replay(ctx, c, token)
	}

	m.refreshing = true
	generation := m.generation
	refreshToken := m.credential.RefreshToken
	m.mu.Unlock()

	token, err := m.refresh(ctx, generation, refreshToken)
	if err != nil {
		return Response{}, err
	}

	return m.replay(ctx, c, token)
}

func (m *SessionManager) awaitRefresh(ctx context.Context, c *call, ch chan refreshOutcome) (Response, error) {
	timer := time.NewTimer(m.cfg.QueueTimeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		if outcome.err != nil {
			return Response{}, outcome.err
		}
		return m.replay(ctx, c, outcome.token)
	case <-ctx.Done():
		m.removeWaiter(ch)
		return Response{}, ctx.Err()
	case <-timer.C:
		m.removeWaiter(ch)
		m.log.Warn("gave up waiting for session refresh", "request_id", c.requestID, "timeout", m.cfg.QueueTimeout)
		return Response{}, domain.ErrRefreshTimeout
	}
}

func (m *SessionManager) removeWaiter(ch chan refreshOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, waiter := range m.waiters {
		if waiter == ch {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// refresh runs one refresh episode. The caller has already set refreshing.
func (m *SessionManager) refresh(ctx context.Context, generation uint64, refreshToken string) (string, error) {
	started := m.clock.Now()
	m.log.Info("refreshing session", "refresh_token", logger.TokenHint(refreshToken))

	// The episode belongs to the whole session, not to the caller that
	// happened to start it.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
	credential, err := m.tokens.Refresh(refreshCtx, refreshToken)
	cancel()

	if err != nil {
		return "", m.failRefresh(generation, err)
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		m.log.Info("discarding refresh result of ended session")
		return "", domain.ErrLoggedOut
	}
	m.credential.AccessToken = credential.AccessToken
	if credential.RefreshToken != "" {
		m.credential.RefreshToken = credential.RefreshToken
	}
	m.mu.Unlock()

	m.persistRefreshed(generation, credential)

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return "", domain.ErrLoggedOut
	}
	waiters := m.waiters
	m.waiters = nil
	m.refreshing = false
	m.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- refreshOutcome{token: credential.AccessToken}
	}

	logger.WithDuration(m.log, m.clock.Now().Sub(started)).Info("session refreshed",
		"access_token", logger.TokenHint(credential.AccessToken),
		"released", len(waiters),
	)

	return credential.AccessToken, nil
}

func (m *SessionManager) failRefresh(generation uint64, cause error) error {
	err := cause
	if !errors.Is(err, domain.ErrRefreshFailed) {
		err = &domain.AuthError{Kind: domain.ErrRefreshFailed, Err: cause}
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return domain.ErrLoggedOut
	}
	waiters := m.waiters
	m.waiters = nil
	m.refreshing = false
	m.credential = domain.Credential{}
	m.user = nil
	m.generation++
	m.endReason = err
	m.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- refreshOutcome{err: err}
	}

	m.log.Warn("session refresh failed", "error", cause, "rejected", len(waiters))

	if clearErr := m.clearStored(context.Background()); clearErr != nil {
		m.log.Warn("clear credential after failed refresh", "error", clearErr)
	}
	m.navigator.RedirectToLogin()

	return err
}

func (m *SessionManager) persistRefreshed(generation uint64, credential domain.Credential) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	m.mu.Lock()
	current := m.generation
	m.mu.Unlock()
	if current != generation {
		return
	}

	ctx := context.Background()
	if err := m.store.Put(ctx, AccessTokenKey(m.cfg.Profile), credential.AccessToken); err != nil {
		m.log.Warn("persist refreshed access token", "error", err)
	}
	if credential.RefreshToken != "" {
		if err := m.store.Put(ctx, RefreshTokenKey(m.cfg.Profile), credential.RefreshToken); err != nil {
			m.log.Warn("persist rotated refresh token", "error", err)
		}
	}
}

func (m *SessionManager) replay(ctx context.Context, c *call, token string) (Response, error) {
	c.retried = true
	resp, err := m.send(ctx, c, token)
	if err != nil {
		return Response{}, err
	}
	if resp.Status == http.StatusUnauthorized {
		logger.WithRequest(m.log, c.requestID).Warn("replayed call rejected", "path", c.spec.Path)
		return Response{}, unauthorizedError(domain.ErrAuthExpired, resp)
	}
	return resp, nil
}

func (m *SessionManager) newCall(spec RequestSpec) (*call, error) {
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}

	c := &call{spec: spec, requestID: m.newRequestID()}
	if spec.Body != nil {
		body, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", spec.Method, spec.Path, err)
		}
		c.body = body
	}

	return c, nil
}

func (m *SessionManager) send(ctx context.Context, c *call, token string) (Response, error) {
	endpoint, err := apiurl.Resolve(m.cfg.BaseURL, c.spec.Path, c.spec.Query)
	if err != nil {
		return Response{}, err
	}

	requestCtx, cancel := m.requestContext(ctx)
	defer cancel()

	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(requestCtx, c.spec.Method, endpoint, body)
	if err != nil {
		return Response{}, fmt.Errorf("create %s %s request: %w", c.spec.Method, c.spec.Path, err)
	}
	for key, values := range c.spec.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, c.requestID)
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c.token = token

	started := m.clock.Now()
	resp, err := m.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w: %w", c.spec.Method, c.spec.Path, domain.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w: read response: %w", c.spec.Method, c.spec.Path, domain.ErrNetwork, err)
	}

	logger.WithDuration(logger.WithHTTPRequest(m.log, c.spec.Method, c.spec.Path), m.clock.Now().Sub(started)).
		Debug("api call", "request_id", c.requestID, "status", resp.StatusCode, "retried", c.retried)

	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (m *SessionManager) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.cfg.RequestTimeout)
}

// notAuthenticated reports a missing credential together with the reason
// the previous session ended, if any.
func notAuthenticated(reason error) error {
	if reason == nil || errors.Is(reason, domain.ErrNotAuthenticated) {
		return domain.ErrNotAuthenticated
	}
	return fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, reason)
}

func unauthorizedError(kind error, resp Response) error {
	return &domain.AuthError{
		Kind:    kind,
		Status:  resp.Status,
		Message: domain.ParseAPIError(resp.Status, resp.Body).Message(),
	}
}

// Login exchanges username and password for a credential and makes it the
// current session. On failure the previous state is left untouched.
func (m *SessionManager) Login(ctx context.Context, username, password string) (domain.Credential, error) {
	result, err := m.tokens.Obtain(ctx, username, password)
	if err != nil {
		m.log.Info("login rejected", "username", username, "error", err)
		return domain.Credential{}, err
	}

	// storeMu stays held until the generation moves on, so a refresh of the
	// previous session cannot persist its token over the new one.
	m.storeMu.Lock()
	if err := m.putCredential(ctx, result.Credential); err != nil {
		m.storeMu.Unlock()
		return domain.Credential{}, err
	}

	user := result.User
	m.mu.Lock()
	m.credential = result.Credential
	m.user = &user
	m.generation++
	m.endReason = nil
	m.refreshing = false
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()
	m.storeMu.Unlock()

	// Calls still queued behind a refresh of the previous session can use
	// the new one.
	for _, waiter := range waiters {
		waiter <- refreshOutcome{token: result.Credential.AccessToken}
	}

	m.saveProfileUser(ctx, &user, true)
	m.log.Info("logged in", "username", user.Username, "role", user.Role)

	return result.Credential, nil
}

// putCredential writes both tokens. Callers hold storeMu.
func (m *SessionManager) putCredential(ctx context.Context, credential domain.Credential) error {
	accessKey := AccessTokenKey(m.cfg.Profile)
	if err := m.store.Put(ctx, accessKey, credential.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if err := m.store.Put(ctx, RefreshTokenKey(m.cfg.Profile), credential.RefreshToken); err != nil {
		if rollbackErr := m.store.Delete(ctx, accessKey); rollbackErr != nil {
			return fmt.Errorf("store refresh token and rollback access token: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("store refresh token: %w", err)
	}

	return nil
}

// Logout ends the session: the credential is dropped from memory and from
// the store, queued calls fail with domain.ErrLoggedOut and an in-flight
// refresh can no longer publish its result. Calling it again is harmless.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	waiters := m.waiters
	m.waiters = nil
	m.refreshing = false
	m.credential = domain.Credential{}
	m.user = nil
	m.generation++
	m.endReason = domain.ErrLoggedOut
	m.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- refreshOutcome{err: domain.ErrLoggedOut}
	}

	if err := m.clearStored(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	m.log.Info("logged out", "rejected", len(waiters))
	return nil
}

func (m *SessionManager) clearStored(ctx context.Context) error {
	m.storeMu.Lock()
	var err error
	if deleteErr := m.store.Delete(ctx, AccessTokenKey(m.cfg.Profile)); deleteErr != nil {
		err = errors.Join(err, fmt.Errorf("delete access token: %w", deleteErr))
	}
	if deleteErr := m.store.Delete(ctx, RefreshTokenKey(m.cfg.Profile)); deleteErr != nil {
		err = errors.Join(err, fmt.Errorf("delete refresh token: %w", deleteErr))
	}
	m.storeMu.Unlock()

	m.saveProfileUser(ctx, nil, false)
	return err
}

// Restore loads a credential persisted by an earlier process. A missing
// credential is not an error; the session simply stays anonymous.
func (m *SessionManager) Restore(ctx context.Context) error {
	access, err := m.store.Get(ctx, AccessTokenKey(m.cfg.Profile))
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return nil
		}
		return fmt.Errorf("load access token: %w", err)
	}
	refresh, err := m.store.Get(ctx, RefreshTokenKey(m.cfg.Profile))
	if err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		return fmt.Errorf("load refresh token: %w", err)
	}

	var user *domain.User
	if m.profiles != nil {
		profile, err := m.profiles.GetByName(ctx, m.cfg.Profile)
		switch {
		case err == nil:
			user = profile.User
		case errors.Is(err, domain.ErrProfileNotFound):
		default:
			m.log.Warn("load profile", "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.credential.IsZero() {
		return nil
	}
	m.credential = domain.Credential{AccessToken: access, RefreshToken: refresh}
	m.user = user
	m.endReason = nil

	return nil
}

// CurrentUser returns the last known user of the session.
func (m *SessionManager) CurrentUser() (domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.user == nil {
		return domain.User{}, false
	}
	return *m.user, true
}

func (m *SessionManager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.credential.AccessToken != ""
}

// AccessToken returns the current access token, empty when logged out.
func (m *SessionManager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.credential.AccessToken
}

// SetCurrentUser replaces the user snapshot, typically after a profile fetch.
func (m *SessionManager) SetCurrentUser(ctx context.Context, user domain.User) {
	m.mu.Lock()
	if m.credential.AccessToken == "" {
		m.mu.Unlock()
		return
	}
	m.user = &user
	m.mu.Unlock()

	m.saveProfileUser(ctx, &user, false)
}

func (m *SessionManager) saveProfileUser(ctx context.Context, user *domain.User, loggedIn bool) {
	if m.profiles == nil {
		return
	}

	profile, err := m.profiles.GetByName(ctx, m.cfg.Profile)
	if err != nil {
		if !errors.Is(err, domain.ErrProfileNotFound) {
			m.log.Warn("load profile", "error", err)
			return
		}
		if user == nil {
			return
		}
		profile = domain.Profile{Name: m.cfg.Profile}
	}

	profile.User = user
	profile.BaseURL = m.cfg.BaseURL
	if loggedIn {
		profile.LastLoginAt = m.clock.Now()
	}

	if err := m.profiles.Save(ctx, profile); err != nil {
		m.log.Warn("save profile", "error", err)
	}
}

func (m *SessionManager) waiterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.waiters)
}
