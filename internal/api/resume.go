package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/swift-letter/internal/apperror"
	"github.com/illegalcall/swift-letter/internal/auth"
	"github.com/illegalcall/swift-letter/internal/models"
	"github.com/illegalcall/swift-letter/internal/pdftext"
	"github.com/illegalcall/swift-letter/internal/repository"
	"github.com/illegalcall/swift-letter/internal/storage"
)

const mimePDF = "application/pdf"

var errOnlyPDF = apperror.ValidationFailed("file", "Only PDF files are allowed")

// readResume validates the uploaded resume: declared type, size cap and the
// %PDF signature.
func (s *Server) readResume(c *fiber.Ctx) ([]byte, string, error) {
	fh, ok := formFile(c, "resume", "file")
	if !ok {
		return nil, "", apperror.ValidationFailed("file", "No file uploaded")
	}
	if contentType(fh) != mimePDF {
		return nil, "", errOnlyPDF
	}
	data, err := readUpload(fh, s.cfg.Storage.MaxResumeSize)
	if err != nil {
		return nil, "", err
	}
	if !pdftext.IsPDF(data) {
		return nil, "", errOnlyPDF
	}
	return data, fh.Filename, nil
}

func (s *Server) handleUploadResume(c *fiber.Ctx) error {
	if s.store == nil || s.storage == nil {
		return errNotConfigured
	}
	user, _ := auth.UserFrom(c)

	data, filename, err := s.readResume(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	objectPath := storage.ObjectPath(user.ID, filename)
	url, err := s.storage.Upload(ctx, s.cfg.Storage.ResumeBucket, objectPath, data, mimePDF)
	if err != nil {
		return apperror.Upstream("Failed to upload resume", err)
	}

	if err := s.store.Profiles.SetResumeURL(ctx, user.ID, url); err != nil {
		// the object is useless without a profile row pointing at it
		if derr := s.storage.Delete(context.WithoutCancel(ctx), s.cfg.Storage.ResumeBucket, objectPath); derr != nil {
			s.logger.Warn("Failed to remove orphaned resume", "path", objectPath, "error", derr)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound("Profile")
		}
		return apperror.Internal("Failed to update profile", err)
	}

	s.logger.Info("Resume uploaded", "user_id", user.ID, "size", len(data))
	s.emit(c, models.EventResumeUploaded, user.ID, nil)
	return c.JSON(models.ResumeUploadResponse{
		Message:   "Resume uploaded successfully",
		ResumeURL: url,
	})
}

// handleExtractPDF reads the resume text locally and asks the extraction
// function to turn it into profile fields. This is the only call that is
// retried.
func (s *Server) handleExtractPDF(c *fiber.Ctx) error {
	if s.functions == nil {
		return errNotConfigured
	}
	data, _, err := s.readResume(c)
	if err != nil {
		return err
	}

	text, err := pdftext.ExtractText(data)
	if err != nil {
		if errors.Is(err, pdftext.ErrNoText) {
			return apperror.ValidationFailed("file", "Could not extract text from PDF. Is it a scanned document?")
		}
		return &apperror.AppError{Kind: apperror.KindValidation, Err: err, Message: "Failed to read PDF", Field: "file"}
	}

	resp, err := s.invoke(c, s.cfg.Functions.ExtractProfile, fiber.Map{"text": text}, true)
	if err != nil {
		return apperror.Upstream("Failed to extract profile data", err)
	}
	return relay(c, resp)
}
