package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthErrorMatchesKindAndCause(t *testing.T) {
	cause := fmt.Errorf("%w: connection refused", ErrNetwork)
	err := fmt.Errorf("refresh: %w", &AuthError{Kind: ErrRefreshFailed, Err: cause})

	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "refresh: session refresh failed: network error: connection refused", err.Error())
}

func TestAuthErrorCarriesServerMessage(t *testing.T) {
	err := &AuthError{Kind: ErrInvalidCredentials, Status: http.StatusBadRequest, Message: "invalid credentials"}

	var authErr *AuthError
	assert.True(t, errors.As(err, &authErr))
	assert.Equal(t, "invalid credentials", authErr.Message)
	assert.Equal(t, "invalid credentials (status 400): invalid credentials", err.Error())
}

func TestAPIErrorMapsStatusToSentinels(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		target error
	}{
		{name: "not found", status: http.StatusNotFound, target: ErrNotFound},
		{name: "forbidden", status: http.StatusForbidden, target: ErrForbidden},
		{name: "bad request", status: http.StatusBadRequest, target: ErrBadRequest},
		{name: "server", status: http.StatusBadGateway, target: ErrServer},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := fmt.Errorf("call: %w", &APIError{Status: tc.status})
			assert.ErrorIs(t, err, tc.target)
		})
	}

	assert.NotErrorIs(t, &APIError{Status: http.StatusNotFound}, ErrForbidden)
}

func TestAPIErrorMessageFlattensFieldErrors(t *testing.T) {
	err := &APIError{
		Status: http.StatusBadRequest,
		Fields: map[string][]string{
			"username": {"A user with that username already exists."},
			"email":    {"Enter a valid email address.", "This field is required."},
		},
	}

	assert.Equal(t, "email: Enter a valid email address., This field is required.; username: A user with that username already exists.", err.Message())

	withDetail := &APIError{Status: http.StatusForbidden, Detail: "Only teachers can create groups"}
	assert.Equal(t, "api error: status 403: Only teachers can create groups", withDetail.Error())
}

func TestParseAPIErrorReadsDetail(t *testing.T) {
	err := ParseAPIError(http.StatusUnauthorized, []byte(`{"detail":"Given token not valid for any token type","code":"token_not_valid","messages":[{"token_class":"AccessToken"}]}`))

	assert.Equal(t, http.StatusUnauthorized, err.Status)
	assert.Equal(t, "Given token not valid for any token type", err.Detail)
	assert.Empty(t, err.Fields)
}

func TestParseAPIErrorCollectsFieldErrors(t *testing.T) {
	err := ParseAPIError(http.StatusBadRequest, []byte(`{"username":["This field is required."],"non_field_errors":"Passwords do not match"}`))

	assert.Equal(t, map[string][]string{
		"username":         {"This field is required."},
		"non_field_errors": {"Passwords do not match"},
	}, err.Fields)
	assert.Equal(t, "non_field_errors: Passwords do not match; username: This field is required.", err.Message())
}

func TestParseAPIErrorToleratesNonJSONBody(t *testing.T) {
	err := ParseAPIError(http.StatusBadGateway, []byte("<html>bad gateway</html>"))

	assert.Equal(t, http.StatusBadGateway, err.Status)
	assert.Empty(t, err.Message())
	assert.ErrorIs(t, err, ErrServer)
}
