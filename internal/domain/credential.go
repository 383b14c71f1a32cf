package domain

// Credential is the access/refresh token pair of one authenticated session.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// LoginResult is what the token endpoint hands back on a successful login.
type LoginResult struct {
	Credential Credential
	User       User
}
