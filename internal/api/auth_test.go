package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/swift-letter/internal/auth"
	"github.com/illegalcall/swift-letter/internal/config"
	"github.com/illegalcall/swift-letter/internal/models"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandleLogin(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantError  string
	}{
		{"missing password", map[string]string{"email": "jane@example.com"}, fiber.StatusBadRequest, "Email and password are required"},
		{"wrong password", map[string]string{"email": "jane@example.com", "password": "nope"}, fiber.StatusUnauthorized, "Invalid credentials"},
		{"auth server down", map[string]string{"email": "jane@example.com", "password": "upstream-down"}, fiber.StatusInternalServerError, "Authentication service error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)
			resp, body := doRequest(t, env, jsonRequest(http.MethodPost, "/api/auth/login", tt.body))

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantError, body["error"])
			assert.Nil(t, findCookie(resp, "sb-access-token"))
		})
	}

	t.Run("success", func(t *testing.T) {
		env := setupTestServer(t)
		resp, body := doRequest(t, env, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
			"email": "jane@example.com", "password": "hunter22",
		}))

		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, testToken, body["access_token"])
		assert.Equal(t, testUserID, body["user_id"])
		assert.EqualValues(t, 3600, body["expires_in"])

		access := findCookie(resp, "sb-access-token")
		require.NotNil(t, access)
		assert.Equal(t, testToken, access.Value)
		assert.True(t, access.HttpOnly)
		assert.False(t, access.Secure)

		refresh := findCookie(resp, refreshCookie)
		require.NotNil(t, refresh)
		assert.Equal(t, "refresh-1", refresh.Value)
	})
}

func TestHandleCallback(t *testing.T) {
	t.Run("code required", func(t *testing.T) {
		env := setupTestServer(t)
		resp, body := doRequest(t, env, jsonRequest(http.MethodPost, "/api/auth/callback", map[string]string{"code": "new-user"}))

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Authorization code is required", body["error"])
	})

	t.Run("rejected code", func(t *testing.T) {
		env := setupTestServer(t)
		resp, _ := doRequest(t, env, jsonRequest(http.MethodPost, "/api/auth/callback", map[string]string{
			"code": "stale", "code_verifier": "v",
		}))
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("first sign in creates profile", func(t *testing.T) {
		env := setupTestServer(t)
		resp, body := doRequest(t, env, jsonRequest(http.MethodPost, "/api/auth/callback", map[string]string{
			"code": "new-user", "code_verifier": "v",
		}))

		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "user-2", body["user_id"])

		profile := env.profiles.profiles["user-2"]
		require.NotNil(t, profile)
		assert.Equal(t, env.cfg.Profile.OAuthCredits, profile.Credits)
		assert.Equal(t, "new@example.com", profile.Email)
		assert.Equal(t, []models.EventType{models.EventProfileCreated}, env.producer.eventTypes())
		assert.NotNil(t, findCookie(resp, "sb-access-token"))
	})

	t.Run("returning user keeps profile", func(t *testing.T) {
		env := setupTestServer(t)
		env.profiles.profiles[testUserID] = &models.Profile{UserID: testUserID, Credits: 1}

		resp, _ := doRequest(t, env, jsonRequest(http.MethodPost, "/api/auth/callback", map[string]string{
			"code": "known-user", "code_verifier": "v",
		}))

		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, env.profiles.profiles[testUserID].Credits)
		assert.Empty(t, env.producer.eventTypes())
	})
}

func TestHandleExtensionToken(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/extension-token", nil)
	req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: testToken})
	req.AddCookie(&http.Cookie{Name: refreshCookie, Value: "refresh-1"})
	resp, body := doRequest(t, env, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	encoded, _ := body["token"].(string)
	token, err := auth.DecodeExtensionToken(encoded)
	require.NoError(t, err)
	assert.Equal(t, testToken, token.AccessToken)
	assert.Equal(t, "refresh-1", token.RefreshToken)
	assert.Equal(t, testUserID, token.User.ID)

	// the extension authenticates with the packed token alone
	env.profiles.profiles[testUserID] = &models.Profile{UserID: testUserID}
	req = httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set(auth.HeaderExtensionToken, encoded)
	resp, _ = doRequest(t, env, req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, env, httptest.NewRequest(http.MethodGet, "/api/auth/extension-token", nil))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHandleLogout(t *testing.T) {
	env := setupTestServer(t)

	resp, body := doRequest(t, env, withBearer(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), testToken))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Logged out", body["message"])
	assert.Equal(t, []string{testToken}, env.sessions.signOuts)

	cleared := findCookie(resp, "sb-access-token")
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestLocalJWTVerification(t *testing.T) {
	const secret = "super-secret-jwt-token-with-at-least-32-characters"
	env := setupTestServer(t, func(c *config.Config) { c.Supabase.JWTSecret = secret })
	env.profiles.profiles[testUserID] = &models.Profile{UserID: testUserID}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   testUserID,
		"email": "jane@example.com",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: signed})
	resp, _ := doRequest(t, env, req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// opaque tokens are no longer sent to GoTrue
	resp, _ = doRequest(t, env, withBearer(httptest.NewRequest(http.MethodGet, "/api/profile", nil), testToken))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body := doRequest(t, env, jsonRequest(http.MethodPost, "/api/generate-pdf", map[string]string{"latex": testLetter}))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Missing authorization header", body["error"])

	resp, _ = doRequest(t, env, withBearer(jsonRequest(http.MethodPost, "/api/generate-pdf", map[string]string{"latex": testLetter}), signed))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, env.functions.count())
	assert.Equal(t, signed, env.functions.calls[0].token)
}
