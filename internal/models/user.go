package models

import "time"

// UserTypeAdmin marks users allowed to manage documents and inspect the environment.
const UserTypeAdmin = "admin"

// User is the identity carried by the login token.
type User struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	UserType string `json:"user_type"`
}

// IsAdmin reports whether the user has admin privileges.
func (u User) IsAdmin() bool {
	return u.UserType == UserTypeAdmin
}

// Label returns the name shown in the top navigation.
func (u User) Label() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	case u.Username != "":
		return u.Username
	default:
		return "User"
	}
}

// Session ties a browser cookie to the bearer token used against the backend.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the session is past its token expiry. Sessions without an expiry never
// expire.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
