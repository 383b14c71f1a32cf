package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	authadapter "github.com/Gribbirg/deadline-mate/internal/adapters/auth"
	"github.com/Gribbirg/deadline-mate/internal/domain"
	portmocks "github.com/Gribbirg/deadline-mate/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// apiStub accepts the access tokens in valid and answers 401 otherwise.
type apiStub struct {
	mu       sync.Mutex
	valid    map[string]bool
	requests []stubRequest

	// slowGate, when set, holds 401 answers for the "slow/" path until closed.
	slowGate     chan struct{}
	slowReceived chan struct{}
}

type stubRequest struct {
	Path          string
	Authorization string
	RequestID     string
	UserAgent     string
}

func newAPIStub(validTokens ...string) *apiStub {
	stub := &apiStub{valid: map[string]bool{}}
	for _, token := range validTokens {
		stub.valid[token] = true
	}
	return stub
}

func (s *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authorization := r.Header.Get("Authorization")
	s.mu.Lock()
	s.requests = append(s.requests, stubRequest{
		Path:          strings.TrimPrefix(r.URL.Path, "/api/"),
		Authorization: authorization,
		RequestID:     r.Header.Get(HeaderRequestID),
		UserAgent:     r.Header.Get("User-Agent"),
	})
	accepted := s.valid[strings.TrimPrefix(authorization, "Bearer ")]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/api/auth/register/":
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":9}`))
		return
	case r.URL.Path == "/api/auth/token/refresh/":
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token is invalid or expired","code":"token_not_valid"}`))
		return
	case r.URL.Path == "/api/missing/":
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not found."}`))
		return
	}

	if !accepted {
		if r.URL.Path == "/api/slow/" && s.slowGate != nil {
			s.slowReceived <- struct{}{}
			<-s.slowGate
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type","code":"token_not_valid"}`))
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
}

func (s *apiStub) accept(tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = map[string]bool{}
	for _, token := range tokens {
		s.valid[token] = true
	}
}

func (s *apiStub) recorded() []stubRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stubRequest(nil), s.requests...)
}

// fakeIssuer counts refresh calls and can hold a refresh until released.
type fakeIssuer struct {
	refreshCalls atomic.Int32
	started      chan struct{}
	release      chan struct{}

	mu            sync.Mutex
	refreshTokens []string
	refreshResult domain.Credential
	refreshErr    error
	obtainResult  domain.LoginResult
	obtainErr     error
}

func (f *fakeIssuer) Obtain(ctx context.Context, username, password string) (domain.LoginResult, error) {
	return f.obtainResult, f.obtainErr
}

func (f *fakeIssuer) Refresh(ctx context.Context, refreshToken string) (domain.Credential, error) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	f.refreshTokens = append(f.refreshTokens, refreshToken)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.Credential{}, ctx.Err()
		}
	}
	return f.refreshResult, f.refreshErr
}

type countingNavigator struct {
	calls atomic.Int32
}

func (n *countingNavigator) RedirectToLogin() {
	n.calls.Add(1)
}

// memStore is an in-memory credential store.
type memStore struct {
	mu     sync.Mutex
	values map[string]string
	putErr error
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (s *memStore) Put(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.values[key] = value
	return nil
}

func (s *memStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("mem %q: %w", key, domain.ErrSecretNotFound)
	}
	return value, nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

type sessionFixture struct {
	manager   *SessionManager
	stub      *apiStub
	server    *httptest.Server
	issuer    *fakeIssuer
	store     *memStore
	navigator *countingNavigator
}

func newSessionFixture(t *testing.T, stub *apiStub, issuer *fakeIssuer, cfg SessionConfig) *sessionFixture {
	t.Helper()

	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	store := newMemStore()
	navigator := &countingNavigator{}

	cfg.BaseURL = server.URL + "/api/"
	if cfg.UserAgent == "" {
		cfg.UserAgent = "dm/test"
	}

	manager, err := NewSessionManager(cfg, SessionDeps{
		HTTP:      server.Client(),
		Tokens:    issuer,
		Store:     store,
		Navigator: navigator,
	})
	require.NoError(t, err)

	return &sessionFixture{
		manager:   manager,
		stub:      stub,
		server:    server,
		issuer:    issuer,
		store:     store,
		navigator: navigator,
	}
}

func (f *sessionFixture) login(t *testing.T, credential domain.Credential) {
	t.Helper()

	f.issuer.obtainResult = domain.LoginResult{
		Credential: credential,
		User:       domain.User{ID: 1, Username: "alice", Role: domain.RoleStudent},
	}
	_, err := f.manager.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
}

func (f *sessionFixture) storedAccess(t *testing.T) (string, error) {
	t.Helper()
	return f.store.Get(context.Background(), AccessTokenKey(domain.DefaultProfile))
}

func authorizationsFor(requests []stubRequest, path string) []string {
	var out []string
	for _, request := range requests {
		if request.Path == path {
			out = append(out, request.Authorization)
		}
	}
	return out
}

func TestDoAttachesCredentialAndTracingHeaders(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, newAPIStub("T1"), &fakeIssuer{}, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	resp, err := f.manager.Do(context.Background(), Get("groups/groups/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	requests := f.stub.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, "Bearer T1", requests[0].Authorization)
	assert.Equal(t, "dm/test", requests[0].UserAgent)
	assert.NotEmpty(t, requests[0].RequestID)
	assert.Zero(t, f.issuer.refreshCalls.Load())
}

func TestDoReturnsNonUnauthorizedStatusesAsIs(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, newAPIStub("T1"), &fakeIssuer{}, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	resp, err := f.manager.Do(context.Background(), Get("missing/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.ErrorIs(t, resp.Err(), domain.ErrNotFound)
	assert.Zero(t, f.issuer.refreshCalls.Load())
}

func TestDoWithoutCredentialFailsFast(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, newAPIStub(), &fakeIssuer{}, SessionConfig{})

	_, err := f.manager.Do(context.Background(), Get("groups/groups/", nil))
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Empty(t, f.stub.recorded())
}

func TestDoPublicRequestSkipsCredential(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, newAPIStub(), &fakeIssuer{}, SessionConfig{})

	spec := Post("auth/register/", map[string]string{"username": "carol"})
	spec.Public = true
	resp, err := f.manager.Do(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)

	requests := f.stub.recorded()
	require.Len(t, requests, 1)
	assert.Empty(t, requests[0].Authorization)
}

func TestConcurrentUnauthorizedCallsShareOneRefresh(t *testing.T) {
	t.Parallel()

	const callers = 5
	stub := newAPIStub("T2")
	issuer := &fakeIssuer{
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
		refreshResult: domain.Credential{AccessToken: "T2"},
	}
	f := newSessionFixture(t, stub, issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.manager.Do(context.Background(), Get(fmt.Sprintf("items/%d/", i), nil))
		}(i)
	}

	<-issuer.started
	require.Eventually(t, func() bool { return f.manager.waiterCount() == callers-1 }, 2*time.Second, 5*time.Millisecond)
	close(issuer.release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), issuer.refreshCalls.Load())
	assert.Equal(t, []string{"R1"}, issuer.refreshTokens)

	requestsByID := map[string][]string{}
	for _, request := range stub.recorded() {
		requestsByID[request.RequestID] = append(requestsByID[request.RequestID], request.Authorization)
	}
	require.Len(t, requestsByID, callers)
	for id, authorizations := range requestsByID {
		assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, authorizations, "request %s", id)
	}

	stored, err := f.storedAccess(t)
	require.NoError(t, err)
	assert.Equal(t, "T2", stored)
	assert.Equal(t, "T2", f.manager.AccessToken())
	assert.Zero(t, f.navigator.calls.Load())
}

func TestTwoCallsReplayWithRefreshedToken(t *testing.T) {
	t.Parallel()

	stub := newAPIStub("T2")
	issuer := &fakeIssuer{
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
		refreshResult: domain.Credential{AccessToken: "T2"},
	}
	f := newSessionFixture(t, stub, issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); _, errA = f.manager.Do(context.Background(), Get("a/", nil)) }()
	go func() { defer wg.Done(); _, errB = f.manager.Do(context.Background(), Get("b/", nil)) }()

	<-issuer.started
	require.Eventually(t, func() bool { return f.manager.waiterCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	close(issuer.release)
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, int32(1), issuer.refreshCalls.Load())

	requests := stub.recorded()
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, authorizationsFor(requests, "a/"))
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, authorizationsFor(requests, "b/"))
}

func TestRefreshFailureRejectsAllCallersAndRedirectsOnce(t *testing.T) {
	t.Parallel()

	stub := newAPIStub()
	issuer := &fakeIssuer{
		started:    make(chan struct{}, 1),
		release:    make(chan struct{}),
		refreshErr: &domain.AuthError{Kind: domain.ErrRefreshFailed, Status: http.StatusUnauthorized, Message: "Token is blacklisted"},
	}
	f := newSessionFixture(t, stub, issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); _, errA = f.manager.Do(context.Background(), Get("a/", nil)) }()
	go func() { defer wg.Done(); _, errB = f.manager.Do(context.Background(), Get("b/", nil)) }()

	<-issuer.started
	require.Eventually(t, func() bool { return f.manager.waiterCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	close(issuer.release)
	wg.Wait()

	assert.ErrorIs(t, errA, domain.ErrRefreshFailed)
	assert.ErrorIs(t, errB, domain.ErrRefreshFailed)
	assert.Equal(t, int32(1), issuer.refreshCalls.Load())
	assert.Equal(t, int32(1), f.navigator.calls.Load())
	assert.False(t, f.manager.IsAuthenticated())

	_, err := f.storedAccess(t)
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
	_, err = f.store.Get(context.Background(), RefreshTokenKey(domain.DefaultProfile))
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)

	_, ok := f.manager.CurrentUser()
	assert.False(t, ok)
}

func TestRefreshTransportFailureEndsEpisode(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{refreshErr: fmt.Errorf("%w: connection refused", domain.ErrNetwork)}
	f := newSessionFixture(t, newAPIStub(), issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	_, err := f.manager.Do(context.Background(), Get("a/", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRefreshFailed)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, int32(1), f.navigator.calls.Load())

	_, err = f.manager.Do(context.Background(), Get("a/", nil))
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.ErrorIs(t, err, domain.ErrRefreshFailed)
	assert.Equal(t, int32(1), issuer.refreshCalls.Load())
}

func TestDoAfterLogoutReportsLoggedOut(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, newAPIStub("T1"), &fakeIssuer{}, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})
	require.NoError(t, f.manager.Logout(context.Background()))

	_, err := f.manager.Do(context.Background(), Get("a/", nil))
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.ErrorIs(t, err, domain.ErrLoggedOut)

	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})
	_, err = f.manager.Do(context.Background(), Get("a/", nil))
	assert.NoError(t, err)
}

func TestUnauthorizedReplayIsTerminal(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{refreshResult: domain.Credential{AccessToken: "T2"}}
	f := newSessionFixture(t, newAPIStub(), issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	_, err := f.manager.Do(context.Background(), Get("a/", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.ErrorContains(t, err, "Given token not valid")
	assert.Equal(t, int32(1), issuer.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, authorizationsFor(f.stub.recorded(), "a/"))

	// The refreshed credential stays; only the call failed.
	assert.True(t, f.manager.IsAuthenticated())
	assert.Zero(t, f.navigator.calls.Load())
}

func TestRefreshEndpointNeverRefreshesItself(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{refreshResult: domain.Credential{AccessToken: "T2"}}
	f := newSessionFixture(t, newAPIStub("T1"), issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	_, err := f.manager.Do(context.Background(), Post("auth/token/refresh/", map[string]string{"refresh": "R1"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRefreshFailed)
	assert.Zero(t, issuer.refreshCalls.Load())
	assert.Zero(t, f.navigator.calls.Load())
	assert.Equal(t, "T1", f.manager.AccessToken())
}

func TestStaleUnauthorizedReplaysWithoutNewRefresh(t *testing.T) {
	t.Parallel()

	stub := newAPIStub()
	stub.slowGate = make(chan struct{})
	stub.slowReceived = make(chan struct{}, 1)
	issuer := &fakeIssuer{refreshResult: domain.Credential{AccessToken: "T2"}}
	f := newSessionFixture(t, stub, issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	slowDone := make(chan error, 1)
	go func() {
		_, err := f.manager.Do(context.Background(), Get("slow/", nil))
		slowDone <- err
	}()
	<-stub.slowReceived

	stub.accept("T2")
	_, err := f.manager.Do(context.Background(), Get("fast/", nil))
	require.NoError(t, err)
	require.Equal(t, int32(1), issuer.refreshCalls.Load())

	close(stub.slowGate)
	require.NoError(t, <-slowDone)

	assert.Equal(t, int32(1), issuer.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, authorizationsFor(stub.recorded(), "slow/"))
}

func TestLogoutRejectsQueuedCallsAndBlocksResurrection(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
		refreshResult: domain.Credential{AccessToken: "T2", RefreshToken: "R2"},
	}
	f := newSessionFixture(t, newAPIStub("T2"), issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	const callers = 3
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			_, err := f.manager.Do(context.Background(), Get(fmt.Sprintf("items/%d/", i), nil))
			errs <- err
		}(i)
	}

	<-issuer.started
	require.Eventually(t, func() bool { return f.manager.waiterCount() == callers-1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.manager.Logout(context.Background()))
	for i := 0; i < callers-1; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, domain.ErrLoggedOut)
		case <-time.After(2 * time.Second):
			t.Fatal("queued call did not settle after logout")
		}
	}

	close(issuer.release)
	assert.ErrorIs(t, <-errs, domain.ErrLoggedOut)

	assert.False(t, f.manager.IsAuthenticated())
	_, err := f.storedAccess(t)
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
	_, err = f.store.Get(context.Background(), RefreshTokenKey(domain.DefaultProfile))
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
	assert.Zero(t, f.navigator.calls.Load())
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, newAPIStub(), &fakeIssuer{}, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	require.NoError(t, f.manager.Logout(context.Background()))
	require.NoError(t, f.manager.Logout(context.Background()))
	assert.False(t, f.manager.IsAuthenticated())
}

func TestQueuedCallTimesOutWhenRefreshHangs(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
		refreshResult: domain.Credential{AccessToken: "T2"},
	}
	f := newSessionFixture(t, newAPIStub("T2"), issuer, SessionConfig{QueueTimeout: 50 * time.Millisecond})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	refresherDone := make(chan error, 1)
	go func() {
		_, err := f.manager.Do(context.Background(), Get("a/", nil))
		refresherDone <- err
	}()
	<-issuer.started

	_, err := f.manager.Do(context.Background(), Get("b/", nil))
	require.ErrorIs(t, err, domain.ErrRefreshTimeout)
	assert.Zero(t, f.manager.waiterCount())

	close(issuer.release)
	require.NoError(t, <-refresherDone)
	assert.Equal(t, "T2", f.manager.AccessToken())
}

func TestRefreshIsBoundedByRefreshTimeout(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{release: make(chan struct{})}
	f := newSessionFixture(t, newAPIStub(), issuer, SessionConfig{RefreshTimeout: 30 * time.Millisecond})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	_, err := f.manager.Do(context.Background(), Get("a/", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRefreshFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), f.navigator.calls.Load())
}

func TestRefresherCancellationDoesNotStrandWaiters(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
		refreshResult: domain.Credential{AccessToken: "T2"},
	}
	f := newSessionFixture(t, newAPIStub("T2"), issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	ctx, cancel := context.WithCancel(context.Background())
	refresherDone := make(chan error, 1)
	go func() {
		_, err := f.manager.Do(ctx, Get("a/", nil))
		refresherDone <- err
	}()
	<-issuer.started

	waiterDone := make(chan error, 1)
	go func() {
		_, err := f.manager.Do(context.Background(), Get("b/", nil))
		waiterDone <- err
	}()
	require.Eventually(t, func() bool { return f.manager.waiterCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	close(issuer.release)

	require.NoError(t, <-waiterDone)
	assert.ErrorIs(t, <-refresherDone, context.Canceled)
	assert.Equal(t, "T2", f.manager.AccessToken())
}

func TestNetworkErrorLeavesCredentialUntouched(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{}
	f := newSessionFixture(t, newAPIStub("T1"), issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})
	f.server.Close()

	_, err := f.manager.Do(context.Background(), Get("a/", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Zero(t, issuer.refreshCalls.Load())
	assert.Equal(t, "T1", f.manager.AccessToken())
}

func TestRefreshKeepsTokenInMemoryWhenStoreWriteFails(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{refreshResult: domain.Credential{AccessToken: "T2"}}
	f := newSessionFixture(t, newAPIStub("T2"), issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	f.store.mu.Lock()
	f.store.putErr = errors.New("disk full")
	f.store.mu.Unlock()

	_, err := f.manager.Do(context.Background(), Get("a/", nil))
	require.NoError(t, err)
	assert.Equal(t, "T2", f.manager.AccessToken())
}

func TestRefreshKeepsRotatedRefreshToken(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{refreshResult: domain.Credential{AccessToken: "T2", RefreshToken: "R2"}}
	f := newSessionFixture(t, newAPIStub("T2"), issuer, SessionConfig{})
	f.login(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"})

	_, err := f.manager.Do(context.Background(), Get("a/", nil))
	require.NoError(t, err)

	refresh, err := f.store.Get(context.Background(), RefreshTokenKey(domain.DefaultProfile))
	require.NoError(t, err)
	assert.Equal(t, "R2", refresh)
}

func TestLoginWithBadPasswordStoresNothing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"invalid credentials"}`))
	}))
	t.Cleanup(server.Close)

	store := newMemStore()
	manager, err := NewSessionManager(SessionConfig{BaseURL: server.URL + "/api/"}, SessionDeps{
		HTTP:   server.Client(),
		Tokens: authadapter.TokenClient{API: authadapter.API{BaseURL: server.URL + "/api/"}, HTTPClient: server.Client()},
		Store:  store,
	})
	require.NoError(t, err)

	_, err = manager.Login(context.Background(), "u", "badpass")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "invalid credentials", authErr.Message)

	assert.False(t, manager.IsAuthenticated())
	assert.Empty(t, store.values)
}

func TestLoginStoresCredentialAndProfileSnapshot(t *testing.T) {
	t.Parallel()

	loginAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	user := domain.User{ID: 7, Username: "alice", Role: domain.RoleTeacher}

	tokens := portmocks.NewMockTokenIssuer(t)
	tokens.EXPECT().Obtain(mock.Anything, "alice", "s3cret").Return(domain.LoginResult{
		Credential: domain.Credential{AccessToken: "T1", RefreshToken: "R1"},
		User:       user,
	}, nil).Once()

	profiles := portmocks.NewMockProfileRepository(t)
	profiles.EXPECT().GetByName(mock.Anything, domain.ProfileName("work")).Return(domain.Profile{}, domain.ErrProfileNotFound).Once()
	profiles.EXPECT().Save(mock.Anything, domain.Profile{
		Name:        "work",
		BaseURL:     "http://localhost:8000/api/",
		User:        &user,
		LastLoginAt: loginAt,
	}).Return(nil).Once()

	clock := portmocks.NewMockClock(t)
	clock.EXPECT().Now().Return(loginAt).Maybe()

	store := newMemStore()
	manager, err := NewSessionManager(SessionConfig{BaseURL: "http://localhost:8000/api/", Profile: "work"}, SessionDeps{
		Tokens:   tokens,
		Store:    store,
		Profiles: profiles,
		Clock:    clock,
	})
	require.NoError(t, err)

	credential, err := manager.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, domain.Credential{AccessToken: "T1", RefreshToken: "R1"}, credential)
	assert.Equal(t, map[string]string{
		"deadline-mate/work/access_token":  "T1",
		"deadline-mate/work/refresh_token": "R1",
	}, store.values)

	current, ok := manager.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, user, current)
	assert.True(t, manager.IsAuthenticated())
}

func TestLoginRollsBackAccessTokenWhenRefreshTokenCannotBeStored(t *testing.T) {
	t.Parallel()

	tokens := portmocks.NewMockTokenIssuer(t)
	tokens.EXPECT().Obtain(mock.Anything, "alice", "s3cret").Return(domain.LoginResult{
		Credential: domain.Credential{AccessToken: "T1", RefreshToken: "R1"},
	}, nil).Once()

	store := portmocks.NewMockSecretStore(t)
	store.EXPECT().Put(mock.Anything, "deadline-mate/default/access_token", "T1").Return(nil).Once()
	store.EXPECT().Put(mock.Anything, "deadline-mate/default/refresh_token", "R1").Return(errors.New("keyring locked")).Once()
	store.EXPECT().Delete(mock.Anything, "deadline-mate/default/access_token").Return(nil).Once()

	manager, err := NewSessionManager(SessionConfig{BaseURL: "http://localhost:8000/api/"}, SessionDeps{Tokens: tokens, Store: store})
	require.NoError(t, err)

	_, err = manager.Login(context.Background(), "alice", "s3cret")
	require.Error(t, err)
	assert.ErrorContains(t, err, "keyring locked")
	assert.False(t, manager.IsAuthenticated())
}

func TestRestoreLoadsPersistedSession(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.values[AccessTokenKey(domain.DefaultProfile)] = "T1"
	store.values[RefreshTokenKey(domain.DefaultProfile)] = "R1"

	user := &domain.User{ID: 7, Username: "alice", Role: domain.RoleStudent}
	profiles := portmocks.NewMockProfileRepository(t)
	profiles.EXPECT().GetByName(mock.Anything, domain.DefaultProfile).Return(domain.Profile{Name: domain.DefaultProfile, User: user}, nil).Once()

	manager, err := NewSessionManager(SessionConfig{BaseURL: "http://localhost:8000/api/"}, SessionDeps{
		Tokens:   &fakeIssuer{},
		Store:    store,
		Profiles: profiles,
	})
	require.NoError(t, err)

	require.NoError(t, manager.Restore(context.Background()))
	assert.True(t, manager.IsAuthenticated())
	assert.Equal(t, "T1", manager.AccessToken())

	current, ok := manager.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "alice", current.Username)
}

func TestRestoreWithoutStoredCredentialStaysAnonymous(t *testing.T) {
	t.Parallel()

	manager, err := NewSessionManager(SessionConfig{BaseURL: "http://localhost:8000/api/"}, SessionDeps{
		Tokens: &fakeIssuer{},
		Store:  newMemStore(),
	})
	require.NoError(t, err)

	require.NoError(t, manager.Restore(context.Background()))
	assert.False(t, manager.IsAuthenticated())
}

func TestNewSessionManagerValidatesDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewSessionManager(SessionConfig{}, SessionDeps{Tokens: &fakeIssuer{}, Store: newMemStore()})
	assert.ErrorContains(t, err, "api base url is required")

	_, err = NewSessionManager(SessionConfig{BaseURL: "http://localhost/"}, SessionDeps{Store: newMemStore()})
	assert.ErrorContains(t, err, "token issuer is required")

	_, err = NewSessionManager(SessionConfig{BaseURL: "http://localhost/"}, SessionDeps{Tokens: &fakeIssuer{}})
	assert.ErrorContains(t, err, "credential store is required")
}

func TestNavigatorOnlyFiresWhenRefreshFails(t *testing.T) {
	t.Parallel()

	stub := newAPIStub()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	navigator := portmocks.NewMockNavigator(t)
	issuer := &fakeIssuer{
		obtainResult: domain.LoginResult{Credential: domain.Credential{AccessToken: "T1", RefreshToken: "R1"}},
		refreshErr:   &domain.AuthError{Kind: domain.ErrRefreshFailed, Status: http.StatusUnauthorized},
	}
	manager, err := NewSessionManager(SessionConfig{BaseURL: server.URL + "/api/"}, SessionDeps{
		HTTP:      server.Client(),
		Tokens:    issuer,
		Store:     newMemStore(),
		Navigator: navigator,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = manager.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	require.NoError(t, manager.Logout(ctx))

	_, err = manager.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)

	navigator.EXPECT().RedirectToLogin().Once()
	_, err = manager.Do(ctx, Get("groups/groups", nil))
	require.ErrorIs(t, err, domain.ErrRefreshFailed)
	assert.False(t, manager.IsAuthenticated())
}

// gatedStore holds the first Put of value until release is closed.
type gatedStore struct {
	*memStore
	value   string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) Put(ctx context.Context, key string, value string) error {
	if value == s.value {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return s.memStore.Put(ctx, key, value)
}

func TestLoginWinsOverRefreshOfPreviousSession(t *testing.T) {
	t.Parallel()

	stub := newAPIStub("T2", "N1")
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	store := &gatedStore{
		memStore: newMemStore(),
		value:    "N1",
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	issuer := &fakeIssuer{
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
		obtainResult:  domain.LoginResult{Credential: domain.Credential{AccessToken: "T1", RefreshToken: "R1"}},
		refreshResult: domain.Credential{AccessToken: "T2", RefreshToken: "R2"},
	}
	manager, err := NewSessionManager(SessionConfig{BaseURL: server.URL + "/api/"}, SessionDeps{
		HTTP:   server.Client(),
		Tokens: issuer,
		Store:  store,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = manager.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)

	callDone := make(chan struct{})
	go func() {
		defer close(callDone)
		_, _ = manager.Do(ctx, Get("a/", nil))
	}()
	<-issuer.started

	issuer.obtainResult = domain.LoginResult{Credential: domain.Credential{AccessToken: "N1", RefreshToken: "NR1"}}
	loginDone := make(chan error, 1)
	go func() {
		_, err := manager.Login(ctx, "alice", "s3cret")
		loginDone <- err
	}()
	<-store.entered

	close(issuer.release)
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	require.NoError(t, <-loginDone)
	<-callDone

	assert.Equal(t, "N1", manager.AccessToken())
	access, err := store.Get(ctx, AccessTokenKey(domain.DefaultProfile))
	require.NoError(t, err)
	assert.Equal(t, "N1", access)
	refresh, err := store.Get(ctx, RefreshTokenKey(domain.DefaultProfile))
	require.NoError(t, err)
	assert.Equal(t, "NR1", refresh)
}
