package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/swift-letter/internal/apperror"
	"github.com/illegalcall/swift-letter/internal/auth"
	"github.com/illegalcall/swift-letter/internal/events"
	"github.com/illegalcall/swift-letter/internal/functions"
	"github.com/illegalcall/swift-letter/internal/metrics"
	"github.com/illegalcall/swift-letter/internal/models"
)

var errNotConfigured = apperror.Unavailable("Service is not configured")

func (s *Server) requestMetadata(c *fiber.Ctx) models.RequestMetadata {
	return models.RequestMetadata{
		IP:        clientIP(c),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Timestamp: time.Now().UTC(),
	}
}

func (s *Server) emit(c *fiber.Ctx, t models.EventType, userID string, meta map[string]string) {
	e := models.NewEvent(t, userID)
	e.Metadata = meta
	events.Emit(c.UserContext(), s.events, e)
}

func currentUserID(c *fiber.Ctx) string {
	if u, ok := auth.UserFrom(c); ok {
		return u.ID
	}
	return ""
}

// readUpload loads a multipart file into memory after checking its declared
// size against limit.
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if fh.Size > limit {
		return nil, apperror.ValidationFailed("file",
			fmt.Sprintf("File size must be less than %dMB", limit/(1024*1024)))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperror.Internal("Failed to read uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, apperror.Internal("Failed to read uploaded file", err)
	}
	if int64(len(data)) > limit {
		return nil, apperror.ValidationFailed("file",
			fmt.Sprintf("File size must be less than %dMB", limit/(1024*1024)))
	}
	return data, nil
}

func contentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get(fiber.HeaderContentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// formFile returns the first file present under any of names.
func formFile(c *fiber.Ctx, names ...string) (*multipart.FileHeader, bool) {
	for _, name := range names {
		if fh, err := c.FormFile(name); err == nil {
			return fh, true
		}
	}
	return nil, false
}

// invoke calls a function and records the outcome.
func (s *Server) invoke(c *fiber.Ctx, name string, payload any, retry bool) (*functions.Response, error) {
	if s.functions == nil {
		return nil, errNotConfigured
	}
	var (
		resp *functions.Response
		err  error
	)
	if retry {
		resp, err = s.functions.InvokeWithRetry(c.UserContext(), name, auth.TokenFrom(c), payload)
	} else {
		resp, err = s.functions.Invoke(c.UserContext(), name, auth.TokenFrom(c), payload)
	}

	status := 0
	if resp != nil {
		status = resp.Status
	}
	s.metrics.FunctionCalls.WithLabelValues(name, metrics.FunctionOutcome(status, err)).Inc()
	return resp, err
}

// relay writes a function response back unchanged. Error bodies that are not
// JSON are wrapped so clients always see {"error": "..."}.
func relay(c *fiber.Ctx, resp *functions.Response) error {
	if !resp.OK() && !strings.Contains(resp.ContentType, "json") {
		return c.Status(resp.Status).JSON(fiber.Map{"error": resp.ErrorMessage()})
	}
	ct := resp.ContentType
	if ct == "" {
		ct = fiber.MIMEApplicationJSON
	}
	c.Set(fiber.HeaderContentType, ct)
	return c.Status(resp.Status).Send(resp.Body)
}
