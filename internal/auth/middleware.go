package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/illegalcall/swift-letter/internal/apperror"
)

const (
	localsUser  = "auth_user"
	localsToken = "auth_token"
)

// SessionToken finds the caller's access token: Authorization header first,
// then the extension token header, then the session cookie.
func SessionToken(c *fiber.Ctx, cookieName string) string {
	if token, ok := BearerToken(c.Get(fiber.HeaderAuthorization)); ok {
		return token
	}
	if ext := c.Get(HeaderExtensionToken); ext != "" {
		if t, err := DecodeExtensionToken(ext); err == nil {
			return t.AccessToken
		}
	}
	if cookieName != "" {
		return c.Cookies(cookieName)
	}
	return ""
}

func authenticate(c *fiber.Ctx, v Verifier, token string) error {
	if token == "" {
		return apperror.Unauthorized("Unauthorized")
	}
	user, err := v.Verify(c.UserContext(), token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrMissingToken) {
			return apperror.Unauthorized("Unauthorized")
		}
		return apperror.Upstream("Authentication service error", err)
	}
	c.Locals(localsUser, user)
	c.Locals(localsToken, utils.CopyString(token))
	return c.Next()
}

// RequireSession accepts a bearer token or the session cookie.
func RequireSession(v Verifier, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authenticate(c, v, SessionToken(c, cookieName))
	}
}

// RequireBearer accepts only an Authorization header and rejects requests
// without one before any upstream call.
func RequireBearer(v Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return apperror.Unauthorized("Missing authorization header")
		}
		return authenticate(c, v, token)
	}
}

// OptionalSession attaches the user when a valid token is present and lets
// anonymous requests through.
func OptionalSession(v Verifier, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := SessionToken(c, cookieName)
		if token == "" {
			return c.Next()
		}
		if user, err := v.Verify(c.UserContext(), token); err == nil {
			c.Locals(localsUser, user)
			c.Locals(localsToken, utils.CopyString(token))
		}
		return c.Next()
	}
}

// UserFrom returns the user stored by one of the middlewares.
func UserFrom(c *fiber.Ctx) (*User, bool) {
	u, ok := c.Locals(localsUser).(*User)
	return u, ok && u != nil
}

// TokenFrom returns the verified access token.
func TokenFrom(c *fiber.Ctx) string {
	t, _ := c.Locals(localsToken).(string)
	return t
}
