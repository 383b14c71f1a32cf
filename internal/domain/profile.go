package domain

import "time"

type ProfileName string

const DefaultProfile ProfileName = "default"

// Profile is one configured API endpoint together with the last known user
// that logged in against it.
type Profile struct {
	Name        ProfileName
	BaseURL     string
	User        *User
	LastLoginAt time.Time
}
