package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrSecretNotFound  = errors.New("secret not found")

	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthExpired        = errors.New("access token expired")
	ErrRefreshFailed      = errors.New("session refresh failed")
	ErrRefreshTimeout     = errors.New("timed out waiting for session refresh")
	ErrLoggedOut          = errors.New("session logged out")
	ErrNetwork            = errors.New("network error")

	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("permission denied")
	ErrBadRequest   = errors.New("request rejected")
	ErrServer       = errors.New("server error")
	ErrRoleRequired = errors.New("operation not available for this role")
)

// AuthError reports an authentication failure. Kind is one of the auth
// sentinels above and is matched by errors.Is.
type AuthError struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// APIError is a non-2xx answer from the platform API.
type APIError struct {
	Status int
	Detail string
	Fields map[string][]string
}

func (e *APIError) Error() string {
	message := e.Message()
	if message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, message)
}

// Message returns the server detail, or the field errors flattened into one
// line when the server did not send a detail.
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if len(e.Fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, strings.Join(e.Fields[key], ", ")))
	}
	return strings.Join(parts, "; ")
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	case ErrServer:
		return e.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// ignoredErrorKeys are diagnostic fields simplejwt adds next to detail.
var ignoredErrorKeys = map[string]bool{"code": true, "messages": true}

// ParseAPIError builds an APIError from a DRF style error body: either
// {"detail": "..."} or a map of field name to messages. Bodies that are not
// JSON objects leave only the status.
func ParseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return apiErr
	}

	for key, value := range raw {
		if key == "detail" {
			var detail string
			if err := json.Unmarshal(value, &detail); err == nil {
				apiErr.Detail = detail
			}
			continue
		}
		if ignoredErrorKeys[key] {
			continue
		}

		var messages []string
		if err := json.Unmarshal(value, &messages); err != nil {
			var single string
			if err := json.Unmarshal(value, &single); err != nil {
				continue
			}
			messages = []string{single}
		}
		if apiErr.Fields == nil {
			apiErr.Fields = map[string][]string{}
		}
		apiErr.Fields[key] = messages
	}

	return apiErr
}
