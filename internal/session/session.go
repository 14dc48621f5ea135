// Package session carries the authenticated user of one interactive session.
package session

import (
	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/identity"
)

// Session is passed explicitly to every user-scoped operation.
type Session struct {
	user *identity.User
}

// New returns an anonymous session.
func New() *Session {
	return &Session{}
}

// Login binds user to the session, replacing any previous one.
func (s *Session) Login(user identity.User) {
	s.user = &user
}

// Logout clears the session.
func (s *Session) Logout() {
	s.user = nil
}

// User returns the logged-in user or domain.ErrNotLoggedIn.
func (s *Session) User() (identity.User, error) {
	if s == nil || s.user == nil {
		return identity.User{}, domain.ErrNotLoggedIn
	}
	return *s.user, nil
}

// Username returns the current username or "" when anonymous.
func (s *Session) Username() string {
	if s == nil || s.user == nil {
		return ""
	}
	return s.user.Username
}
