package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"

	"github.com/illegalcall/swift-letter/internal/apperror"
)

const localsJWT = "auth_jwt"

// Guard builds the auth middlewares. With the project's JWT secret, tokens
// are checked locally by jwtware; otherwise the Verifier asks GoTrue.
type Guard struct {
	secret     []byte
	verifier   Verifier
	cookieName string
}

// NewGuard returns nil when neither a secret nor a verifier is available.
func NewGuard(jwtSecret string, v Verifier, cookieName string) *Guard {
	if jwtSecret == "" && v == nil {
		return nil
	}
	g := &Guard{verifier: v, cookieName: cookieName}
	if jwtSecret != "" {
		g.secret = []byte(jwtSecret)
	}
	return g
}

// Local reports whether tokens are verified with the JWT secret.
func (g *Guard) Local() bool { return g.secret != nil }

func (g *Guard) sessionLookup() string {
	lookup := "header:" + fiber.HeaderAuthorization
	if g.cookieName != "" {
		lookup += ",cookie:" + g.cookieName
	}
	return lookup
}

func (g *Guard) jwtMiddleware(lookup string, success fiber.Handler, failure fiber.ErrorHandler) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:     g.secret,
		SigningMethod:  "HS256",
		TokenLookup:    lookup,
		AuthScheme:     "Bearer",
		ContextKey:     localsJWT,
		SuccessHandler: success,
		ErrorHandler:   failure,
	})
}

// RequireSession accepts a bearer token, the extension token or the session
// cookie.
func (g *Guard) RequireSession() fiber.Handler {
	if !g.Local() {
		return RequireSession(g.verifier, g.cookieName)
	}
	mw := g.jwtMiddleware(g.sessionLookup(), requireClaims, func(c *fiber.Ctx, _ error) error {
		return apperror.Unauthorized("Unauthorized")
	})
	return func(c *fiber.Ctx) error {
		promoteExtensionToken(c)
		return mw(c)
	}
}

// RequireBearer accepts only an Authorization header.
func (g *Guard) RequireBearer() fiber.Handler {
	if !g.Local() {
		return RequireBearer(g.verifier)
	}
	return g.jwtMiddleware("header:"+fiber.HeaderAuthorization, requireClaims, func(c *fiber.Ctx, _ error) error {
		if _, ok := BearerToken(c.Get(fiber.HeaderAuthorization)); !ok {
			return apperror.Unauthorized("Missing authorization header")
		}
		return apperror.Unauthorized("Unauthorized")
	})
}

// OptionalSession attaches the user when a valid token is present.
func (g *Guard) OptionalSession() fiber.Handler {
	if !g.Local() {
		return OptionalSession(g.verifier, g.cookieName)
	}
	mw := g.jwtMiddleware(g.sessionLookup(), func(c *fiber.Ctx) error {
		storeClaims(c)
		return c.Next()
	}, func(c *fiber.Ctx, _ error) error {
		return c.Next()
	})
	return func(c *fiber.Ctx) error {
		promoteExtensionToken(c)
		return mw(c)
	}
}

// promoteExtensionToken moves the access token packed in the extension
// header into Authorization so jwtware can find it.
func promoteExtensionToken(c *fiber.Ctx) {
	if c.Get(fiber.HeaderAuthorization) != "" {
		return
	}
	ext := c.Get(HeaderExtensionToken)
	if ext == "" {
		return
	}
	if t, err := DecodeExtensionToken(ext); err == nil {
		c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+t.AccessToken)
	}
}

func requireClaims(c *fiber.Ctx) error {
	if !storeClaims(c) {
		return apperror.Unauthorized("Unauthorized")
	}
	return c.Next()
}

// storeClaims turns the token left by jwtware into a User. Supabase anon keys
// are signed with the same secret and carry no subject, so they are refused.
func storeClaims(c *fiber.Ctx) bool {
	token, ok := c.Locals(localsJWT).(*jwt.Token)
	if !ok {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if _, hasExp := claims["exp"]; sub == "" || role == "anon" || !hasExp {
		return false
	}
	email, _ := claims["email"].(string)

	c.Locals(localsUser, &User{ID: sub, Email: email})
	c.Locals(localsToken, utils.CopyString(token.Raw))
	return true
}
