// Package functions calls the project's Supabase Edge Functions: cover
// letter generation, PDF compilation and resume extraction.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// maxResponseSize bounds what is read back from a function. Compiled PDFs
// arrive base64 encoded, so this is comfortably above the resume cap.
const maxResponseSize = 32 << 20

// Response is a function's raw reply. Handlers relay it unchanged.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// ErrorMessage pulls a human readable message out of an error body.
func (r *Response) ErrorMessage() string {
	for _, path := range []string{"error.message", "error", "message", "msg"} {
		if v := gjson.GetBytes(r.Body, path); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	if r.OK() {
		return ""
	}
	return fmt.Sprintf("function returned status %d", r.Status)
}

// Invoker is what the HTTP handlers need from the functions client.
type Invoker interface {
	Invoke(ctx context.Context, name, token string, payload any) (*Response, error)
	InvokeWithRetry(ctx context.Context, name, token string, payload any) (*Response, error)
}

type Client struct {
	baseURL string
	anonKey string
	client  *http.Client
	backoff time.Duration
	sleep   func(context.Context, time.Duration) error
}

// NewClient targets {supabaseURL}/functions/v1.
func NewClient(supabaseURL, anonKey string, timeout, backoff time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(supabaseURL, "/") + "/functions/v1",
		anonKey: anonKey,
		client:  &http.Client{Timeout: timeout},
		backoff: backoff,
		sleep:   sleepContext,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// Invoke posts payload as JSON to the named function with the caller's token.
// Non-2xx replies are returned as a Response, not an error; only transport
// failures produce an error.
func (c *Client) Invoke(ctx context.Context, name, token string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+name, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", name, err)
	}

	slog.Debug("Function invoked", "function", name, "status", resp.StatusCode, "duration", time.Since(start))
	return &Response{
		Status:      resp.StatusCode,
		Body:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// InvokeWithRetry retries exactly once, after the configured backoff, when the
// first attempt fails transiently. Any other outcome is returned as is.
func (c *Client) InvokeWithRetry(ctx context.Context, name, token string, payload any) (*Response, error) {
	resp, err := c.Invoke(ctx, name, token, payload)
	if !shouldRetry(resp, err) {
		return resp, err
	}

	var reason string
	if err != nil {
		reason = err.Error()
	} else {
		reason = resp.ErrorMessage()
	}
	slog.Warn("Retrying function after transient failure", "function", name, "reason", reason, "backoff", c.backoff)

	if serr := c.sleep(ctx, c.backoff); serr != nil {
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
	return c.Invoke(ctx, name, token, payload)
}

func shouldRetry(resp *Response, err error) bool {
	if err != nil {
		return IsTransient(err)
	}
	return !resp.OK() && isTransientMessage(resp.ErrorMessage())
}

var transientMarkers = []string{"timeout", "stream closed", "broken pipe", "fetch failed"}

// IsTransient reports whether err is a network timeout or carries one of the
// messages that mark a dropped connection.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return isTransientMessage(err.Error())
}

func isTransientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
