package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

var ErrInvalidCredentials = errors.New("invalid login credentials")

// Session is an issued access/refresh token pair.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	User         User
}

// SessionProvider signs users in and out against the auth server.
type SessionProvider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

type GoTrueSessions struct {
	client gotrue.Client
}

func NewGoTrueSessions(client gotrue.Client) *GoTrueSessions {
	return &GoTrueSessions{client: client}
}

func (s *GoTrueSessions) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := s.client.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, translateGoTrueError("sign in", err)
	}
	return newSession(resp.Session), nil
}

// ExchangeCode completes a PKCE OAuth flow.
func (s *GoTrueSessions) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := s.client.Token(types.TokenRequest{
		GrantType:    "pkce",
		Code:         code,
		CodeVerifier: verifier,
	})
	if err != nil {
		return nil, translateGoTrueError("exchange code", err)
	}
	return newSession(resp.Session), nil
}

func (s *GoTrueSessions) SignOut(ctx context.Context, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.WithToken(accessToken).Logout(); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

func newSession(s types.Session) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
		User:         User{ID: s.User.ID.String(), Email: s.User.Email},
	}
}

// translateGoTrueError maps rejected grants onto ErrInvalidCredentials. GoTrue
// answers bad passwords and stale codes with 400.
func translateGoTrueError(op string, err error) error {
	msg := err.Error()
	if errors.Is(err, types.ErrInvalidTokenRequest) ||
		strings.Contains(msg, "response status code 400") ||
		strings.Contains(msg, "response status code 401") {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
