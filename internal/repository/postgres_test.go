package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/swift-letter/internal/models"
)

var profileColumns = []string{
	"id", "user_id", "full_name", "email", "phone", "location", "links", "experiences",
	"projects", "skills", "education", "certifications", "languages", "credits",
	"resume_url", "created_at", "updated_at",
}

func setupSQLStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewSQLStore(db, "refresh_app_stats"), mock
}

func TestSQLProfilesGetByUserID(t *testing.T) {
	store, mock := setupSQLStore(t)
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM profiles WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow(
			"p-1", "user-1", "Jane Doe", "jane@example.com", "555-0100", nil, "GitHub: https://github.com/jane",
			"Acme 2020-2024", "CLI tool", "Go, SQL", nil, nil, nil, 3, nil, now, now,
		))

	p, err := store.Profiles.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.FullName)
	assert.Equal(t, 3, p.Credits)
	assert.Nil(t, p.Location)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProfilesGetByUserIDNotFound(t *testing.T) {
	store, mock := setupSQLStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM profiles WHERE user_id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(profileColumns))

	_, err := store.Profiles.GetByUserID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProfilesCreateConflict(t *testing.T) {
	store, mock := setupSQLStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles (user_id")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := store.Profiles.Create(context.Background(), "user-1", models.ProfileFields{FullName: "Jane"}, 3)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProfilesUpdateMissing(t *testing.T) {
	store, mock := setupSQLStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE profiles SET full_name = $2")).
		WillReturnRows(sqlmock.NewRows(profileColumns))

	_, err := store.Profiles.Update(context.Background(), "user-1", models.ProfileFields{FullName: "Jane"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProfilesSetResumeURL(t *testing.T) {
	store, mock := setupSQLStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE profiles SET resume_url = $2")).
		WithArgs("user-1", "https://cdn.example.com/r.pdf").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE profiles SET resume_url = $2")).
		WithArgs("ghost", "https://cdn.example.com/r.pdf").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	assert.NoError(t, store.Profiles.SetResumeURL(ctx, "user-1", "https://cdn.example.com/r.pdf"))
	assert.ErrorIs(t, store.Profiles.SetResumeURL(ctx, "ghost", "https://cdn.example.com/r.pdf"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLWaitlist(t *testing.T) {
	store, mock := setupSQLStore(t)
	ctx := context.Background()
	entry := &models.WaitlistEntry{
		Email:    "jane@example.com",
		Source:   models.WaitlistSourceWebsite,
		Status:   models.WaitlistStatusPending,
		JoinedAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO waitlist (email, source, status, metadata, joined_at)")).
		WithArgs("jane@example.com", "website", "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO waitlist")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint \"waitlist_email_key\""})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM waitlist")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	require.NoError(t, store.Waitlist.Create(ctx, entry))
	assert.ErrorIs(t, store.Waitlist.Create(ctx, entry), ErrConflict)

	n, err := store.Waitlist.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLFeedbackAndContact(t *testing.T) {
	store, mock := setupSQLStore(t)
	ctx := context.Background()
	rating := 5

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO feedback (user_id, feedback, rating, screenshot_url, metadata)")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contact_messages (name, email, subject, message)")).
		WithArgs("Jane", "jane@example.com", nil, "Hello there").
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := store.Feedback.Create(ctx, &models.Feedback{Feedback: "Great product overall", Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	err = store.Contacts.Create(ctx, &models.ContactMessage{Name: "Jane", Email: "jane@example.com", Message: "Hello there"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStats(t *testing.T) {
	store, mock := setupSQLStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT total_users, total_letters, total_pdf_compiles, total_pdf_downloads, updated_at FROM app_stats")).
		WillReturnRows(sqlmock.NewRows([]string{"total_users", "total_letters", "total_pdf_compiles", "total_pdf_downloads", "updated_at"}).
			AddRow(10, 25, 20, 18, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT "refresh_app_stats"()`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	stats, err := store.Stats.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(25), stats.TotalLetters)

	require.NoError(t, store.Stats.Refresh(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
