// Package auth describes the boundary to the external identity provider.
//
// The storefront never verifies passwords or issues tokens itself. A Provider
// holds the auth session of one browser session and reports changes to it.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidCredentials is returned by SignInWithPassword for a rejected
	// email/password pair.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("no active session")
)

// Metadata is the user-editable metadata stored with the identity.
type Metadata struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// User is the identity as known to the provider.
type User struct {
	ID       string
	Email    string
	Metadata Metadata
}

// Session is an established auth session.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// Expired reports whether the access token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Event names a session transition.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Change is delivered to session change listeners. Session is nil after
// sign-out.
type Change struct {
	Event   Event
	Session *Session
}

// Provider is the identity provider as seen by one browser session.
type Provider interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers fn for every future change and returns a
	// func that unregisters it.
	OnSessionChange(fn func(Change)) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
}
