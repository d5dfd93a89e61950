package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	WaitlistStatusPending = "pending"
	WaitlistSourceWebsite = "website"
)

// RequestMetadata is stored as jsonb next to anonymous submissions.
type RequestMetadata struct {
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	PageURL   string    `json:"page_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (m RequestMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *RequestMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = RequestMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported metadata type")
	}
}

type ContactMessage struct {
	ID        int64     `json:"id,omitempty" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Subject   *string   `json:"subject,omitempty" db:"subject"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type WaitlistEntry struct {
	ID       int64           `json:"id,omitempty" db:"id"`
	Email    string          `json:"email" db:"email"`
	Source   string          `json:"source" db:"source"`
	Status   string          `json:"status" db:"status"`
	Metadata RequestMetadata `json:"metadata" db:"metadata"`
	JoinedAt time.Time       `json:"joined_at" db:"joined_at"`
}

type Feedback struct {
	ID            int64           `json:"id,omitempty" db:"id"`
	UserID        *string         `json:"user_id" db:"user_id"`
	Feedback      string          `json:"feedback" db:"feedback"`
	Rating        *int            `json:"rating" db:"rating"`
	ScreenshotURL *string         `json:"screenshot_url" db:"screenshot_url"`
	Metadata      RequestMetadata `json:"metadata" db:"metadata"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// AppStats is the single row of the app_stats view.
type AppStats struct {
	TotalUsers        int64     `json:"total_users" db:"total_users"`
	TotalLetters      int64     `json:"total_letters" db:"total_letters"`
	TotalPDFCompiles  int64     `json:"total_pdf_compiles" db:"total_pdf_compiles"`
	TotalPDFDownloads int64     `json:"total_pdf_downloads" db:"total_pdf_downloads"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}
