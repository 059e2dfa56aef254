package auth

import (
	"context"
	"os"
	"os/user"
)

// LocalProvider signs in as the operating system user. It is the fallback
// when no Google client is configured.
type LocalProvider struct{}

func (LocalProvider) Name() string {
	return "local"
}

func (LocalProvider) SignIn(ctx context.Context) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if u, err := user.Current(); err == nil {
		return &User{ID: u.Uid, Name: firstNonEmpty(u.Name, u.Username)}, nil
	}
	name := firstNonEmpty(os.Getenv("USER"), os.Getenv("USERNAME"), "guest")
	return &User{ID: name, Name: name}, nil
}

func (LocalProvider) SignOut(context.Context) error {
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Provider = LocalProvider{}
