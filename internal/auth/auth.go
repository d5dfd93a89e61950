// Package auth verifies Supabase access tokens and carries the caller's
// identity through Fiber handlers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/supabase-community/gotrue-go"
)

var (
	ErrMissingToken = errors.New("missing access token")
	ErrInvalidToken = errors.New("invalid or expired access token")
)

// User is the authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verifier resolves an access token to its user.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// GoTrueVerifier asks the auth server who owns the token.
type GoTrueVerifier struct {
	client gotrue.Client
}

func NewGoTrueVerifier(client gotrue.Client) *GoTrueVerifier {
	return &GoTrueVerifier{client: client}
}

func (v *GoTrueVerifier) Verify(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := v.client.WithToken(token).GetUser()
	if err != nil {
		if isAuthRejection(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &User{ID: resp.ID.String(), Email: resp.Email}, nil
}

// isAuthRejection reports whether a gotrue error is a 401/403 from the server.
// The client only exposes the status inside the message.
func isAuthRejection(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "response status code 401") ||
		strings.Contains(msg, "response status code 403")
}
