// Package session provides SQLite-backed persistence for the logged-in
// identity: the bearer token and the cached user profile.
package session

import (
	"errors"
	"time"
)

// ErrNoSession is returned by UpdateUser when nobody is logged in.
var ErrNoSession = errors.New("session: no active session")

// Role is the role claim carried by the cached user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the cached profile of the logged-in account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Session is the persisted identity. The zero value is the absent session.
type Session struct {
	ID        string
	Token     string
	User      *User
	SavedAt   time.Time
	UpdatedAt time.Time
}

// IsZero reports whether the session is absent.
func (s Session) IsZero() bool {
	return s.Token == "" || s.User == nil
}

// Role returns the cached role claim, or "" for an absent session.
func (s Session) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}
