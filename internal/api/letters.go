package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"

	"github.com/illegalcall/swift-letter/internal/apperror"
	"github.com/illegalcall/swift-letter/internal/latex"
	"github.com/illegalcall/swift-letter/internal/models"
	"github.com/illegalcall/swift-letter/internal/pdftext"
)

const defaultPDFName = "cover-letter.pdf"

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

// handleGenerateCoverLetter forwards the request body to the generation
// function. Credits are checked and decremented there.
func (s *Server) handleGenerateCoverLetter(c *fiber.Ctx) error {
	if s.functions == nil {
		return errNotConfigured
	}
	body := c.Body()
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return apperror.ValidationFailed("", "Invalid request body")
	}
	job := gjson.GetBytes(body, "jobDescription")
	if !job.Exists() {
		job = gjson.GetBytes(body, "job_description")
	}
	if strings.TrimSpace(job.String()) == "" {
		return apperror.ValidationFailed("jobDescription", "Job description is required")
	}

	resp, err := s.invoke(c, s.cfg.Functions.GenerateCoverLetter, json.RawMessage(body), false)
	if err != nil {
		return apperror.Upstream("Failed to generate cover letter", err)
	}
	if resp.OK() {
		s.emit(c, models.EventLetterGenerated, currentUserID(c), nil)
	}
	return relay(c, resp)
}

// handleGeneratePDF relays the compiler's JSON (a base64 PDF) and status
// unchanged, including upstream errors.
func (s *Server) handleGeneratePDF(c *fiber.Ctx) error {
	if s.functions == nil {
		return errNotConfigured
	}
	var req models.GeneratePDFRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.ValidationFailed("", "Invalid request body")
	}
	if strings.TrimSpace(req.Latex) == "" {
		return apperror.ValidationFailed("latex", "LaTeX content is required")
	}

	resp, err := s.invoke(c, s.cfg.Functions.CompilePDF, fiber.Map{"latex": req.Latex}, false)
	if err != nil {
		return apperror.Upstream("Failed to generate PDF", err)
	}
	if resp.OK() {
		s.emit(c, models.EventPDFCompiled, currentUserID(c), nil)
	}
	return relay(c, resp)
}

// handleDownloadPDF turns a base64 PDF back into raw bytes served as an
// attachment.
func (s *Server) handleDownloadPDF(c *fiber.Ctx) error {
	var req models.DownloadPDFRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.ValidationFailed("", "Invalid request body")
	}
	encoded := strings.TrimSpace(req.PDF)
	if i := strings.Index(encoded, "base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len("base64,"):]
	}
	if encoded == "" {
		return apperror.ValidationFailed("pdf", "PDF data is required")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !pdftext.IsPDF(data) {
		return apperror.ValidationFailed("pdf", "Invalid PDF data")
	}

	s.emit(c, models.EventPDFDownloaded, currentUserID(c), nil)
	c.Set(fiber.HeaderContentType, mimePDF)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, pdfFilename(req.Filename)))
	return c.Send(data)
}

func pdfFilename(name string) string {
	name = strings.TrimSpace(unsafeFilename.ReplaceAllString(filepath.Base(name), ""))
	if name == "" || name == "." {
		return defaultPDFName
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func (s *Server) parseLetter(c *fiber.Ctx) (models.LetterRequest, error) {
	var req models.LetterRequest
	if err := c.BodyParser(&req); err != nil {
		return req, apperror.ValidationFailed("", "Invalid request body")
	}
	if strings.TrimSpace(req.Latex) == "" {
		return req, apperror.ValidationFailed("latex", "LaTeX content is required")
	}
	return req, nil
}

// handleLetterPreview returns the letter fields and editable body. A letter
// that does not match the template still previews, flagged as degraded.
func (s *Server) handleLetterPreview(c *fiber.Ctx) error {
	req, err := s.parseLetter(c)
	if err != nil {
		return err
	}
	p := latex.Preview(req.Latex)
	if p.Degraded {
		s.logger.Warn("Letter does not match template", "reason", p.Reason)
	}
	return c.JSON(p)
}

func (s *Server) handleLetterRender(c *fiber.Ctx) error {
	req, err := s.parseLetter(c)
	if err != nil {
		return err
	}
	return c.JSON(models.LetterResponse{Text: latex.RenderPlainText(req.Latex)})
}

// handleLetterSplice writes an edited body back into the letter.
func (s *Server) handleLetterSplice(c *fiber.Ctx) error {
	req, err := s.parseLetter(c)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperror.ValidationFailed("body", "Letter body is required")
	}

	out, err := latex.SpliceBody(req.Latex, req.Body)
	if err != nil {
		var perr *latex.ParseError
		if errors.As(err, &perr) {
			return &apperror.AppError{
				Kind:    apperror.KindValidation,
				Err:     err,
				Message: fmt.Sprintf("Letter does not match the template: %s marker not found", perr.Marker),
				Field:   "latex",
			}
		}
		return apperror.Internal("Failed to update letter", err)
	}
	return c.JSON(models.LetterResponse{Latex: out, Text: latex.NormalizeText(req.Body)})
}
