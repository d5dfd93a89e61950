package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/swift-letter/internal/apperror"
	"github.com/illegalcall/swift-letter/internal/auth"
	"github.com/illegalcall/swift-letter/internal/models"
	"github.com/illegalcall/swift-letter/internal/repository"
)

const (
	refreshCookie     = "sb-refresh-token"
	refreshCookieDays = 30
)

func (s *Server) setSessionCookies(c *fiber.Ctx, session *auth.Session) {
	secure := s.cfg.IsProduction()
	c.Cookie(&fiber.Cookie{
		Name:     s.cfg.Supabase.SessionCookie,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  time.Now().Add(time.Duration(session.ExpiresIn) * time.Second),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookie,
		Value:    session.RefreshToken,
		Path:     "/",
		Expires:  time.Now().AddDate(0, 0, refreshCookieDays),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookies(c *fiber.Ctx) {
	for _, name := range []string{s.cfg.Supabase.SessionCookie, refreshCookie} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			HTTPOnly: true,
		})
	}
}

func sessionResponse(session *auth.Session) models.SessionResponse {
	return models.SessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
		UserID:       session.User.ID,
		Email:        session.User.Email,
	}
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	if s.sessions == nil {
		return errNotConfigured
	}
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.ValidationFailed("", "Invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return apperror.ValidationFailed("", "Email and password are required")
	}

	s.logger.Info("Authentication attempt", "email", req.Email)
	session, err := s.sessions.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return apperror.Unauthorized("Invalid credentials")
		}
		return apperror.Upstream("Authentication service error", err)
	}

	s.logger.Info("User successfully authenticated", "user_id", session.User.ID)
	s.setSessionCookies(c, session)
	return c.JSON(sessionResponse(session))
}

// handleCallback finishes an OAuth sign-in. First-time users get a profile
// seeded with their email and the OAuth credit grant.
func (s *Server) handleCallback(c *fiber.Ctx) error {
	if s.sessions == nil || s.store == nil {
		return errNotConfigured
	}
	var req models.CallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.ValidationFailed("", "Invalid request body")
	}
	if req.Code == "" || req.CodeVerifier == "" {
		return apperror.ValidationFailed("code", "Authorization code is required")
	}

	ctx := c.UserContext()
	session, err := s.sessions.ExchangeCode(ctx, req.Code, req.CodeVerifier)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return apperror.Unauthorized("Invalid or expired authorization code")
		}
		return apperror.Upstream("Authentication service error", err)
	}

	userID := session.User.ID
	if _, err := s.store.Profiles.GetByUserID(ctx, userID); errors.Is(err, repository.ErrNotFound) {
		fields := models.ProfileFields{Email: session.User.Email}
		_, err = s.store.Profiles.Create(ctx, userID, fields, s.cfg.Profile.OAuthCredits)
		switch {
		case err == nil:
			s.logger.Info("Profile created on first sign-in", "user_id", userID)
			s.emit(c, models.EventProfileCreated, userID, map[string]string{"via": "oauth"})
		case errors.Is(err, repository.ErrConflict):
			// created concurrently by another callback
		default:
			return apperror.Internal("Failed to create profile", err)
		}
	} else if err != nil {
		return apperror.Internal("Failed to fetch profile", err)
	}

	s.setSessionCookies(c, session)
	return c.JSON(sessionResponse(session))
}

// handleExtensionToken packs the current session for the browser extension.
func (s *Server) handleExtensionToken(c *fiber.Ctx) error {
	user, _ := auth.UserFrom(c)
	token, err := auth.EncodeExtensionToken(auth.ExtensionToken{
		AccessToken:  auth.TokenFrom(c),
		RefreshToken: c.Cookies(refreshCookie),
		User:         *user,
	})
	if err != nil {
		return apperror.Internal("Failed to create extension token", err)
	}
	return c.JSON(fiber.Map{"token": token})
}

// handleLogout always clears the cookies, even when revoking upstream fails.
func (s *Server) handleLogout(c *fiber.Ctx) error {
	if s.sessions != nil {
		if err := s.sessions.SignOut(c.UserContext(), auth.TokenFrom(c)); err != nil {
			s.logger.Warn("Failed to revoke session", "error", err)
		}
	}
	s.clearSessionCookies(c)
	return c.JSON(fiber.Map{"message": "Logged out"})
}
