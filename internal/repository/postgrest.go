package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/tidwall/gjson"

	"github.com/illegalcall/swift-letter/internal/models"
)

// Querier builds PostgREST queries. Both *postgrest.Client and the Supabase
// service client satisfy it.
type Querier interface {
	From(table string) *postgrest.QueryBuilder
}

// NewRESTStore returns repositories backed by the Supabase REST API. newRPC
// must return a fresh client per call because postgrest clients keep the last
// RPC failure as a sticky error.
func NewRESTStore(q Querier, newRPC func() *postgrest.Client, refreshFunc string) *Store {
	return &Store{
		Profiles: &restProfiles{q: q},
		Contacts: &restContacts{q: q},
		Waitlist: &restWaitlist{q: q},
		Feedback: &restFeedback{q: q},
		Stats:    &restStats{q: q, newRPC: newRPC, refreshFunc: refreshFunc},
	}
}

// translateRESTError maps PostgREST error codes onto repository errors. The
// client formats failures as "(code) message".
func translateRESTError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "(23505)"):
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	case strings.HasPrefix(msg, "(PGRST116)"):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return err
}

type profileRow struct {
	UserID string `json:"user_id"`
	models.ProfileFields
	Credits int `json:"credits"`
}

type profileUpdate struct {
	models.ProfileFields
	UpdatedAt time.Time `json:"updated_at"`
}

type restProfiles struct {
	q Querier
}

func (r *restProfiles) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p models.Profile
	_, err := r.q.From(tableProfiles).
		Select("*", "", false).
		Eq("user_id", userID).
		Single().
		ExecuteTo(&p)
	if err != nil {
		return nil, translateRESTError(err)
	}
	return &p, nil
}

func (r *restProfiles) Create(ctx context.Context, userID string, fields models.ProfileFields, credits int) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := profileRow{UserID: userID, ProfileFields: fields, Credits: credits}

	var rows []models.Profile
	_, err := r.q.From(tableProfiles).
		Insert(row, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, translateRESTError(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s returned no rows", tableProfiles)
	}
	return &rows[0], nil
}

func (r *restProfiles) Update(ctx context.Context, userID string, fields models.ProfileFields) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []models.Profile
	_, err := r.q.From(tableProfiles).
		Update(profileUpdate{ProfileFields: fields, UpdatedAt: time.Now().UTC()}, "representation", "").
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, translateRESTError(err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (r *restProfiles) SetResumeURL(ctx context.Context, userID, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	update := map[string]any{
		"resume_url": url,
		"updated_at": time.Now().UTC(),
	}
	var rows []struct {
		ID string `json:"id"`
	}
	_, err := r.q.From(tableProfiles).
		Update(update, "representation", "").
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return translateRESTError(err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

type contactRow struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Subject *string `json:"subject"`
	Message string  `json:"message"`
}

type restContacts struct {
	q Querier
}

func (r *restContacts) Create(ctx context.Context, msg *models.ContactMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := contactRow{Name: msg.Name, Email: msg.Email, Subject: msg.Subject, Message: msg.Message}
	_, _, err := r.q.From(tableContactMessages).
		Insert(row, false, "", "minimal", "").
		Execute()
	return translateRESTError(err)
}

type restWaitlist struct {
	q Querier
}

func (r *restWaitlist) Create(ctx context.Context, entry *models.WaitlistEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := struct {
		Email    string                 `json:"email"`
		Source   string                 `json:"source"`
		Status   string                 `json:"status"`
		Metadata models.RequestMetadata `json:"metadata"`
		JoinedAt time.Time              `json:"joined_at"`
	}{entry.Email, entry.Source, entry.Status, entry.Metadata, entry.JoinedAt}

	_, _, err := r.q.From(tableWaitlist).
		Insert(row, false, "", "minimal", "").
		Execute()
	return translateRESTError(err)
}

func (r *restWaitlist) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, count, err := r.q.From(tableWaitlist).
		Select("id", "exact", true).
		Execute()
	if err != nil {
		return 0, translateRESTError(err)
	}
	return int(count), nil
}

type restFeedback struct {
	q Querier
}

func (r *restFeedback) Create(ctx context.Context, fb *models.Feedback) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	row := struct {
		UserID        *string                `json:"user_id"`
		Feedback      string                 `json:"feedback"`
		Rating        *int                   `json:"rating"`
		ScreenshotURL *string                `json:"screenshot_url"`
		Metadata      models.RequestMetadata `json:"metadata"`
	}{fb.UserID, fb.Feedback, fb.Rating, fb.ScreenshotURL, fb.Metadata}

	var rows []struct {
		ID int64 `json:"id"`
	}
	_, err := r.q.From(tableFeedback).
		Insert(row, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return 0, translateRESTError(err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("insert into %s returned no rows", tableFeedback)
	}
	return rows[0].ID, nil
}

type restStats struct {
	q           Querier
	newRPC      func() *postgrest.Client
	refreshFunc string
}

func (r *restStats) Get(ctx context.Context) (*models.AppStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stats models.AppStats
	_, err := r.q.From(viewAppStats).
		Select("*", "", false).
		Limit(1, "").
		Single().
		ExecuteTo(&stats)
	if err != nil {
		return nil, translateRESTError(err)
	}
	return &stats, nil
}

func (r *restStats) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client := r.newRPC()
	result := client.Rpc(r.refreshFunc, "", map[string]any{})
	if client.ClientError != nil {
		return fmt.Errorf("failed to call %s: %w", r.refreshFunc, client.ClientError)
	}
	// Rpc does not surface HTTP errors; PostgREST error bodies carry a code
	if code := gjson.Get(result, "code"); code.Exists() && gjson.Get(result, "message").Exists() {
		return fmt.Errorf("failed to call %s: (%s) %s", r.refreshFunc, code.String(), gjson.Get(result, "message").String())
	}
	return nil
}
