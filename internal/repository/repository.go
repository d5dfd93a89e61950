// Package repository persists Swift Letter records. Two backends implement the
// same interfaces: the Supabase REST API (PostgREST) and a direct Postgres
// connection through sqlx.
package repository

import (
	"context"
	"errors"

	"github.com/illegalcall/swift-letter/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

const (
	tableProfiles        = "profiles"
	tableContactMessages = "contact_messages"
	tableWaitlist        = "waitlist"
	tableFeedback        = "feedback"
	viewAppStats         = "app_stats"
)

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	// Create fails with ErrConflict when the user already has a profile.
	Create(ctx context.Context, userID string, fields models.ProfileFields, credits int) (*models.Profile, error)
	// Update fails with ErrNotFound when the user has no profile yet.
	Update(ctx context.Context, userID string, fields models.ProfileFields) (*models.Profile, error)
	SetResumeURL(ctx context.Context, userID, url string) error
}

type ContactRepository interface {
	Create(ctx context.Context, msg *models.ContactMessage) error
}

type WaitlistRepository interface {
	// Create fails with ErrConflict when the email is already present.
	Create(ctx context.Context, entry *models.WaitlistEntry) error
	Count(ctx context.Context) (int, error)
}

type FeedbackRepository interface {
	Create(ctx context.Context, fb *models.Feedback) (int64, error)
}

type StatsRepository interface {
	Get(ctx context.Context) (*models.AppStats, error)
	// Refresh runs the stored procedure that recomputes the stats view.
	Refresh(ctx context.Context) error
}

// Store groups the repositories used by the API and the worker.
type Store struct {
	Profiles ProfileRepository
	Contacts ContactRepository
	Waitlist WaitlistRepository
	Feedback FeedbackRepository
	Stats    StatsRepository
}
