package ports

import (
	"context"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

// TokenIssuer talks to the login and refresh endpoints.
type TokenIssuer interface {
	Obtain(ctx context.Context, username, password string) (domain.LoginResult, error)
	// Refresh exchanges a refresh token for a new credential. The returned
	// RefreshToken is empty when the server did not rotate it.
	Refresh(ctx context.Context, refreshToken string) (domain.Credential, error)
}
