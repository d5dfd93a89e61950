package supabase

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/illegalcall/swift-letter/internal/config"
)

const (
	restPath = "/rest/v1"
	authPath = "/auth/v1"
)

var ErrNotConfigured = errors.New("supabase url and service role key must be set")

// Clients bundles the Supabase clients used by the API and the worker.
type Clients struct {
	// Service uses the service role key for tables and storage.
	Service *supa.Client
	// Auth uses the anon key; per-user calls go through Auth.WithToken.
	Auth gotrue.Client

	url        string
	serviceKey string
}

// extractProjectRef extracts just the project reference ID from a Supabase URL
// From: https://akrqbuajqkirdekonpzy.supabase.co
// To: akrqbuajqkirdekonpzy
func extractProjectRef(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")

	parts := strings.Split(url, ".")
	return parts[0]
}

// maskKey truncates a key for logging to avoid exposing it
func maskKey(key string) string {
	if len(key) > 10 {
		return key[:10] + "..."
	}
	return "***"
}

// NewClients builds the service and auth clients. It does not contact the
// network.
func NewClients(cfg config.SupabaseConfig) (*Clients, error) {
	if !cfg.HasService() {
		return nil, ErrNotConfigured
	}

	service, err := supa.NewClient(cfg.URL, cfg.ServiceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	authKey := cfg.AnonKey
	if authKey == "" {
		authKey = cfg.ServiceRoleKey
	}
	// the custom URL keeps self-hosted and local instances working
	auth := gotrue.New(extractProjectRef(cfg.URL), authKey).WithCustomGoTrueURL(cfg.URL + authPath)

	slog.Info("Supabase clients initialized",
		"project_ref", extractProjectRef(cfg.URL),
		"service_key", maskKey(cfg.ServiceRoleKey))

	return &Clients{
		Service:    service,
		Auth:       auth,
		url:        cfg.URL,
		serviceKey: cfg.ServiceRoleKey,
	}, nil
}

// NewRESTClient returns a standalone PostgREST client with service role
// credentials.
func (c *Clients) NewRESTClient() *postgrest.Client {
	headers := map[string]string{
		"apikey":        c.serviceKey,
		"Authorization": "Bearer " + c.serviceKey,
	}
	return postgrest.NewClient(c.url+restPath, "public", headers)
}
