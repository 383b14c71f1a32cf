package ports

// Navigator is told when the session ended and the user has to log in again.
type Navigator interface {
	RedirectToLogin()
}
