package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", "anon-key", 2*time.Second, time.Second)
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestInvoke(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/functions/v1/compile-pdf", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, `\documentclass{article}`, body["latex"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"pdf":"JVBERi0="}`)
	})

	resp, err := c.Invoke(context.Background(), "compile-pdf", "user-token", map[string]string{"latex": `\documentclass{article}`})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"pdf":"JVBERi0="}`, string(resp.Body))
	assert.Empty(t, resp.ErrorMessage())
}

func TestInvokeRelaysUpstreamErrors(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		io.WriteString(w, `{"error":"No credits remaining"}`)
	})

	resp, err := c.Invoke(context.Background(), "generate-cover-letter", "", nil)
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusPaymentRequired, resp.Status)
	assert.Equal(t, "No credits remaining", resp.ErrorMessage())
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":{"message":"nested"}}`, "nested"},
		{`{"message":"plain"}`, "plain"},
		{`{"msg":"gotrue style"}`, "gotrue style"},
		{`not json`, "function returned status 500"},
	}
	for _, tt := range tests {
		r := &Response{Status: 500, Body: []byte(tt.body)}
		assert.Equal(t, tt.want, r.ErrorMessage(), tt.body)
	}
}

func TestInvokeWithRetry(t *testing.T) {
	t.Run("retries once on a transient upstream error", func(t *testing.T) {
		var calls int32
		c, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, `{"error":"TypeError: fetch failed"}`)
				return
			}
			io.WriteString(w, `{"full_name":"Jane Doe"}`)
		})

		resp, err := c.InvokeWithRetry(context.Background(), "extract-profile", "tok", map[string]string{"text": "resume"})
		require.NoError(t, err)
		assert.True(t, resp.OK())
		assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
		assert.Equal(t, []time.Duration{time.Second}, *slept)
	})

	t.Run("gives up after the second failure", func(t *testing.T) {
		var calls int32
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusGatewayTimeout)
			io.WriteString(w, `{"error":"upstream request timeout"}`)
		})

		resp, err := c.InvokeWithRetry(context.Background(), "extract-profile", "tok", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusGatewayTimeout, resp.Status)
		assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	})

	t.Run("does not retry other failures", func(t *testing.T) {
		var calls int32
		c, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"text is required"}`)
		})

		resp, err := c.InvokeWithRetry(context.Background(), "extract-profile", "tok", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
		assert.Empty(t, *slept)
	})

	t.Run("retries a client timeout", func(t *testing.T) {
		var calls int32
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				time.Sleep(200 * time.Millisecond)
			}
			io.WriteString(w, `{}`)
		})
		c.client.Timeout = 50 * time.Millisecond

		resp, err := c.InvokeWithRetry(context.Background(), "extract-profile", "tok", nil)
		require.NoError(t, err)
		assert.True(t, resp.OK())
		assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", timeoutErr{})))
	assert.True(t, IsTransient(errors.New("write: broken pipe")))
	assert.True(t, IsTransient(errors.New("HTTP/2 stream closed")))
	assert.True(t, IsTransient(errors.New("Fetch Failed")))
	assert.False(t, IsTransient(errors.New("invalid json")))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), 0))
}
