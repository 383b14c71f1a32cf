package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gribbirg/deadline-mate/internal/domain"
	"github.com/Gribbirg/deadline-mate/internal/pkg/apiurl"
	"github.com/Gribbirg/deadline-mate/internal/ports"
)

const (
	DefaultTokenPath   = "auth/token/"
	DefaultRefreshPath = "auth/token/refresh/"

	maxTokenResponseBytes = 1 << 20
	defaultRequestTimeout = 30 * time.Second
)

type API struct {
	BaseURL     string
	TokenPath   string
	RefreshPath string
}

// TokenClient talks to the simplejwt token endpoints of the platform.
type TokenClient struct {
	API            API
	HTTPClient     ports.HTTPDoer
	RequestTimeout time.Duration
	UserAgent      string
}

var _ ports.TokenIssuer = TokenClient{}

type obtainRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	Access         string                 `json:"access"`
	Refresh        string                 `json:"refresh"`
	UserID         int64                  `json:"user_id"`
	Username       string                 `json:"username"`
	Email          string                 `json:"email"`
	Role           string                 `json:"role"`
	FirstName      string                 `json:"first_name"`
	LastName       string                 `json:"last_name"`
	StudentProfile *domain.StudentProfile `json:"student_profile"`
	TeacherProfile *domain.TeacherProfile `json:"teacher_profile"`
}

func (c TokenClient) Obtain(ctx context.Context, username, password string) (domain.LoginResult, error) {
	if username == "" || password == "" {
		return domain.LoginResult{}, &domain.AuthError{Kind: domain.ErrInvalidCredentials, Message: "username and password are required"}
	}

	status, body, err := c.post(ctx, c.tokenPath(), obtainRequest{Username: username, Password: password})
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("obtain token: %w", err)
	}

	if !isSuccess(status) {
		apiErr := domain.ParseAPIError(status, body)
		if status >= http.StatusInternalServerError {
			return domain.LoginResult{}, fmt.Errorf("obtain token: %w", apiErr)
		}
		return domain.LoginResult{}, &domain.AuthError{
			Kind:    domain.ErrInvalidCredentials,
			Status:  status,
			Message: apiErr.Message(),
		}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.LoginResult{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.Access == "" || payload.Refresh == "" {
		return domain.LoginResult{}, errors.New("token response missing access or refresh token")
	}

	return domain.LoginResult{
		Credential: domain.Credential{AccessToken: payload.Access, RefreshToken: payload.Refresh},
		User: domain.User{
			ID:             domain.UserID(payload.UserID),
			Username:       payload.Username,
			Email:          payload.Email,
			Role:           domain.Role(payload.Role),
			FirstName:      payload.FirstName,
			LastName:       payload.LastName,
			StudentProfile: payload.StudentProfile,
			TeacherProfile: payload.TeacherProfile,
		},
	}, nil
}

func (c TokenClient) Refresh(ctx context.Context, refreshToken string) (domain.Credential, error) {
	if refreshToken == "" {
		return domain.Credential{}, &domain.AuthError{Kind: domain.ErrRefreshFailed, Message: "no refresh token stored"}
	}

	status, body, err := c.post(ctx, c.refreshPath(), refreshRequest{Refresh: refreshToken})
	if err != nil {
		return domain.Credential{}, &domain.AuthError{Kind: domain.ErrRefreshFailed, Err: err}
	}

	if !isSuccess(status) {
		return domain.Credential{}, &domain.AuthError{
			Kind:    domain.ErrRefreshFailed,
			Status:  status,
			Message: domain.ParseAPIError(status, body).Message(),
		}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.Credential{}, &domain.AuthError{Kind: domain.ErrRefreshFailed, Err: fmt.Errorf("decode refresh response: %w", err)}
	}
	if payload.Access == "" {
		return domain.Credential{}, &domain.AuthError{Kind: domain.ErrRefreshFailed, Message: "refresh response missing access token"}
	}

	return domain.Credential{AccessToken: payload.Access, RefreshToken: payload.Refresh}, nil
}

func (c TokenClient) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	endpoint, err := apiurl.Resolve(c.API.BaseURL, path, nil)
	if err != nil {
		return 0, nil, err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %w", domain.ErrNetwork, err)
	}

	return resp.StatusCode, body, nil
}

func (c TokenClient) tokenPath() string {
	if c.API.TokenPath != "" {
		return c.API.TokenPath
	}
	return DefaultTokenPath
}

func (c TokenClient) refreshPath() string {
	if c.API.RefreshPath != "" {
		return c.API.RefreshPath
	}
	return DefaultRefreshPath
}

func (c TokenClient) httpClient() ports.HTTPDoer {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c TokenClient) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
