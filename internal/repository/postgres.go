package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/illegalcall/swift-letter/internal/models"
)

const pqUniqueViolation = "23505"

// NewSQLStore returns repositories that talk to Postgres directly.
func NewSQLStore(db *sqlx.DB, refreshFunc string) *Store {
	return &Store{
		Profiles: &sqlProfiles{db: db},
		Contacts: &sqlContacts{db: db},
		Waitlist: &sqlWaitlist{db: db},
		Feedback: &sqlFeedback{db: db},
		Stats:    &sqlStats{db: db, refreshFunc: refreshFunc},
	}
}

func translateSQLError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
	}
	return err
}

type sqlProfiles struct {
	db *sqlx.DB
}

func (r *sqlProfiles) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM profiles WHERE user_id = $1`, userID); err != nil {
		return nil, translateSQLError(err)
	}
	return &p, nil
}

func (r *sqlProfiles) Create(ctx context.Context, userID string, f models.ProfileFields, credits int) (*models.Profile, error) {
	var p models.Profile
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO profiles (user_id, full_name, email, phone, location, links, experiences, projects, skills, education, certifications, languages, credits)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING *`,
		userID, f.FullName, f.Email, f.Phone, f.Location, f.Links, f.Experiences, f.Projects,
		f.Skills, f.Education, f.Certifications, f.Languages, credits,
	).StructScan(&p)
	if err != nil {
		return nil, translateSQLError(err)
	}
	return &p, nil
}

func (r *sqlProfiles) Update(ctx context.Context, userID string, f models.ProfileFields) (*models.Profile, error) {
	var p models.Profile
	err := r.db.QueryRowxContext(ctx,
		`UPDATE profiles SET full_name = $2, email = $3, phone = $4, location = $5, links = $6, experiences = $7,
		projects = $8, skills = $9, education = $10, certifications = $11, languages = $12, updated_at = NOW()
		WHERE user_id = $1 RETURNING *`,
		userID, f.FullName, f.Email, f.Phone, f.Location, f.Links, f.Experiences, f.Projects,
		f.Skills, f.Education, f.Certifications, f.Languages,
	).StructScan(&p)
	if err != nil {
		return nil, translateSQLError(err)
	}
	return &p, nil
}

func (r *sqlProfiles) SetResumeURL(ctx context.Context, userID, url string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET resume_url = $2, updated_at = NOW() WHERE user_id = $1`, userID, url)
	if err != nil {
		return translateSQLError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type sqlContacts struct {
	db *sqlx.DB
}

func (r *sqlContacts) Create(ctx context.Context, msg *models.ContactMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_messages (name, email, subject, message) VALUES ($1, $2, $3, $4)`,
		msg.Name, msg.Email, msg.Subject, msg.Message)
	return translateSQLError(err)
}

type sqlWaitlist struct {
	db *sqlx.DB
}

func (r *sqlWaitlist) Create(ctx context.Context, e *models.WaitlistEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO waitlist (email, source, status, metadata, joined_at) VALUES ($1, $2, $3, $4, $5)`,
		e.Email, e.Source, e.Status, e.Metadata, e.JoinedAt)
	return translateSQLError(err)
}

func (r *sqlWaitlist) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM waitlist`); err != nil {
		return 0, translateSQLError(err)
	}
	return n, nil
}

type sqlFeedback struct {
	db *sqlx.DB
}

func (r *sqlFeedback) Create(ctx context.Context, fb *models.Feedback) (int64, error) {
	var id int64
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO feedback (user_id, feedback, rating, screenshot_url, metadata) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		fb.UserID, fb.Feedback, fb.Rating, fb.ScreenshotURL, fb.Metadata,
	).Scan(&id)
	if err != nil {
		return 0, translateSQLError(err)
	}
	return id, nil
}

type sqlStats struct {
	db          *sqlx.DB
	refreshFunc string
}

func (r *sqlStats) Get(ctx context.Context) (*models.AppStats, error) {
	var s models.AppStats
	err := r.db.GetContext(ctx, &s,
		`SELECT total_users, total_letters, total_pdf_compiles, total_pdf_downloads, updated_at FROM app_stats LIMIT 1`)
	if err != nil {
		return nil, translateSQLError(err)
	}
	return &s, nil
}

func (r *sqlStats) Refresh(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf("SELECT %s()", pq.QuoteIdentifier(r.refreshFunc))); err != nil {
		return fmt.Errorf("failed to call %s: %w", r.refreshFunc, err)
	}
	return nil
}
