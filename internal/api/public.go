package api

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/swift-letter/internal/apperror"
	"github.com/illegalcall/swift-letter/internal/extension"
	"github.com/illegalcall/swift-letter/internal/models"
	"github.com/illegalcall/swift-letter/internal/repository"
	"github.com/illegalcall/swift-letter/internal/storage"
	"github.com/illegalcall/swift-letter/internal/validation"
)

// handleConfig hands the public Supabase settings to the browser extension.
func (s *Server) handleConfig(c *fiber.Ctx) error {
	if !s.cfg.Supabase.HasPublic() {
		s.logger.Error("Supabase public configuration missing")
		return apperror.Unavailable("Supabase configuration is missing")
	}
	baseURL := s.cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = c.BaseURL()
	}
	return c.JSON(models.ConfigResponse{
		BaseURL:         baseURL,
		SupabaseURL:     s.cfg.Supabase.URL,
		SupabaseAnonKey: s.cfg.Supabase.AnonKey,
	})
}

func (s *Server) handleContact(c *fiber.Ctx) error {
	if s.store == nil {
		return errNotConfigured
	}
	var req models.ContactRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.ValidationFailed("", "Invalid request body")
	}

	req.Name = validation.Sanitize(req.Name)
	req.Message = validation.Sanitize(req.Message)
	req.Subject = validation.Sanitize(req.Subject)
	email := validation.NormalizeEmail(req.Email)
	if req.Name == "" || email == "" || req.Message == "" {
		return apperror.ValidationFailed("", "Name, email, and message are required")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return err
	}

	msg := &models.ContactMessage{
		Name:    req.Name,
		Email:   email,
		Message: req.Message,
	}
	if req.Subject != "" {
		msg.Subject = &req.Subject
	}
	if err := s.store.Contacts.Create(c.UserContext(), msg); err != nil {
		return apperror.Internal("Failed to send message", err)
	}

	s.logger.Info("Contact message stored", "email", msg.Email)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Message sent successfully"})
}

func (s *Server) handleWaitlist(c *fiber.Ctx) error {
	if s.store == nil {
		return errNotConfigured
	}
	var req models.WaitlistRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.ValidationFailed("", "Invalid request body")
	}
	email := validation.NormalizeEmail(req.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return err
	}

	source := strings.TrimSpace(validation.Sanitize(req.Source))
	if source == "" {
		source = models.WaitlistSourceWebsite
	}
	entry := &models.WaitlistEntry{
		Email:    email,
		Source:   source,
		Status:   models.WaitlistStatusPending,
		Metadata: s.requestMetadata(c),
	}
	entry.JoinedAt = entry.Metadata.Timestamp

	ctx := c.UserContext()
	if err := s.store.Waitlist.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperror.Conflict("This email is already on the waitlist")
		}
		return apperror.Internal("Failed to join waitlist", err)
	}

	position, err := s.store.Waitlist.Count(ctx)
	if err != nil {
		s.logger.Warn("Failed to count waitlist", "error", err)
	}

	s.emit(c, models.EventWaitlistJoined, "", map[string]string{"source": source})
	s.logger.Info("Waitlist entry created", "email", entry.Email, "position", position)
	return c.Status(fiber.StatusCreated).JSON(models.WaitlistResponse{
		Message:  "Successfully joined the waitlist!",
		Position: position,
	})
}

type feedbackForm struct {
	Feedback string      `json:"feedback" form:"feedback"`
	Rating   json.Number `json:"rating" form:"rating"`
	PageURL  string      `json:"pageUrl" form:"pageUrl"`
}

// handleFeedback accepts multipart (with an optional screenshot) or JSON.
// Anonymous submissions are allowed.
func (s *Server) handleFeedback(c *fiber.Ctx) error {
	if s.store == nil {
		return errNotConfigured
	}
	var form feedbackForm
	if err := c.BodyParser(&form); err != nil {
		return apperror.ValidationFailed("", "Invalid request body")
	}

	if err := validation.ValidateFeedback(form.Feedback); err != nil {
		return err
	}
	var rating *int
	if r := strings.TrimSpace(form.Rating.String()); r != "" {
		n, err := strconv.Atoi(r)
		if err != nil {
			return apperror.ValidationFailed("rating", "Rating must be between 1 and 5")
		}
		rating = &n
	}
	if err := validation.ValidateRating(rating); err != nil {
		return err
	}

	userID := currentUserID(c)
	fb := &models.Feedback{
		Feedback: validation.Sanitize(form.Feedback),
		Rating:   rating,
		Metadata: s.requestMetadata(c),
	}
	fb.Metadata.PageURL = validation.Sanitize(form.PageURL)
	if userID != "" {
		fb.UserID = &userID
	}

	if fh, ok := formFile(c, "screenshot"); ok {
		url, err := s.uploadScreenshot(c, fh, userID)
		if err != nil {
			return err
		}
		fb.ScreenshotURL = &url
	}

	id, err := s.store.Feedback.Create(c.UserContext(), fb)
	if err != nil {
		return apperror.Internal("Failed to submit feedback", err)
	}

	s.emit(c, models.EventFeedbackSubmitted, userID, nil)
	return c.Status(fiber.StatusCreated).JSON(models.FeedbackResponse{
		Message:       "Thank you for your feedback!",
		ID:            id,
		ScreenshotURL: fb.ScreenshotURL,
	})
}

func (s *Server) uploadScreenshot(c *fiber.Ctx, fh *multipart.FileHeader, userID string) (string, error) {
	if !strings.HasPrefix(contentType(fh), "image/") {
		return "", apperror.ValidationFailed("screenshot", "Screenshot must be an image")
	}
	data, err := readUpload(fh, s.cfg.Storage.MaxScreenshot)
	if err != nil {
		return "", err
	}
	if s.storage == nil {
		return "", errNotConfigured
	}

	prefix := userID
	if prefix == "" {
		prefix = "anonymous"
	}
	url, err := s.storage.Upload(c.UserContext(), s.cfg.Storage.ScreenshotBucket,
		storage.ObjectPath(prefix, fh.Filename), data, contentType(fh))
	if err != nil {
		return "", apperror.Upstream("Failed to upload screenshot", err)
	}
	return url, nil
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.store == nil {
		return errNotConfigured
	}
	stats, err := s.store.Stats.Get(c.UserContext())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(models.AppStats{})
		}
		return apperror.Internal("Failed to fetch stats", err)
	}
	return c.JSON(stats)
}

func (s *Server) handleDownloadExtension(c *fiber.Ctx) error {
	data, err := extension.Bytes(s.cfg.Extension.Dir)
	if err != nil {
		if errors.Is(err, extension.ErrNotFound) {
			return apperror.NotFound("Extension")
		}
		return apperror.Internal("Failed to package extension", err)
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Attachment(s.cfg.Extension.FileName)
	return c.Send(data)
}
