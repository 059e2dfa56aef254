package auth

import (
	"context"
	"errors"

	"github.com/bz888/champs/internal/config"
)

// User is the signed-in identity. The chat never sends it to the relay; it
// only gates the UI.
type User struct {
	ID      string
	Name    string
	Email   string
	Picture string
}

// DisplayName picks the friendliest non-empty field.
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

// Provider signs a user in and out.
type Provider interface {
	Name() string
	SignIn(ctx context.Context) (*User, error)
	SignOut(ctx context.Context) error
}

var (
	ErrSignInDenied  = errors.New("sign-in was denied")
	ErrStateMismatch = errors.New("sign-in state mismatch")
)

// FromConfig picks Google sign-in when a client id is configured and the
// local OS user otherwise.
func FromConfig(cfg *config.Config) Provider {
	if cfg.GoogleSignInEnabled() {
		return NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret)
	}
	return LocalProvider{}
}
