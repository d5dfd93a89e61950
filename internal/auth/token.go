package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	HeaderExtensionToken = "X-Extension-Token"
	bearerPrefix         = "Bearer "
)

// ExtensionToken is handed to the browser extension as base64 JSON.
type ExtensionToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

func EncodeExtensionToken(t ExtensionToken) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode extension token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeExtensionToken(s string) (*ExtensionToken, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: extension token is not base64", ErrInvalidToken)
	}
	var t ExtensionToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: extension token is not valid json", ErrInvalidToken)
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("%w: extension token has no access token", ErrInvalidToken)
	}
	return &t, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
