package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/swift-letter/internal/apperror"
	"github.com/illegalcall/swift-letter/internal/auth"
	"github.com/illegalcall/swift-letter/internal/models"
	"github.com/illegalcall/swift-letter/internal/repository"
	"github.com/illegalcall/swift-letter/internal/validation"
)

// profileRequest accepts links either as the stored newline-joined string or
// as a list.
type profileRequest struct {
	models.ProfileFields
	LinkList []models.Link `json:"link_list"`
}

func (r *profileRequest) fields() (models.ProfileFields, error) {
	f := r.ProfileFields
	if len(r.LinkList) > 0 {
		f.Links = models.JoinLinks(r.LinkList)
	}
	f.FullName = strings.TrimSpace(f.FullName)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)

	if f.FullName == "" {
		return f, apperror.ValidationFailed("full_name", "Full name is required")
	}
	if err := validation.ValidateEmail(f.Email); err != nil {
		return f, err
	}
	f.Email = validation.NormalizeEmail(f.Email)
	return f, nil
}

func profileResponse(p *models.Profile) models.ProfileResponse {
	return models.ProfileResponse{Profile: *p, Links: models.ParseLinks(p.Links)}
}

// handleGetProfile returns 404 for users who have not saved a profile yet;
// clients treat that as the first-run state.
func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	if s.store == nil {
		return errNotConfigured
	}
	user, _ := auth.UserFrom(c)

	profile, err := s.store.Profiles.GetByUserID(c.UserContext(), user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound("Profile")
		}
		return apperror.Internal("Failed to fetch profile", err)
	}
	return c.JSON(profileResponse(profile))
}

func (s *Server) handleCreateProfile(c *fiber.Ctx) error {
	if s.store == nil {
		return errNotConfigured
	}
	user, _ := auth.UserFrom(c)

	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.ValidationFailed("", "Invalid request body")
	}
	fields, err := req.fields()
	if err != nil {
		return err
	}

	s.logger.Info("Creating profile for user", "user_id", user.ID)
	profile, err := s.store.Profiles.Create(c.UserContext(), user.ID, fields, s.cfg.Profile.DefaultCredits)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperror.Conflict("Profile already exists for this user")
		}
		return apperror.Internal("Failed to create profile", err)
	}

	s.emit(c, models.EventProfileCreated, user.ID, nil)
	return c.Status(fiber.StatusCreated).JSON(profileResponse(profile))
}

// handleUpsertProfile updates the profile, creating it when missing.
func (s *Server) handleUpsertProfile(c *fiber.Ctx) error {
	if s.store == nil {
		return errNotConfigured
	}
	user, _ := auth.UserFrom(c)

	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.ValidationFailed("", "Invalid request body")
	}
	fields, err := req.fields()
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	profile, err := s.store.Profiles.Update(ctx, user.ID, fields)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("No profile to update, creating one", "user_id", user.ID)
		profile, err = s.store.Profiles.Create(ctx, user.ID, fields, s.cfg.Profile.DefaultCredits)
		if err == nil {
			s.emit(c, models.EventProfileCreated, user.ID, nil)
		}
	}
	if err != nil {
		return apperror.Internal("Failed to save profile", err)
	}
	return c.JSON(profileResponse(profile))
}
