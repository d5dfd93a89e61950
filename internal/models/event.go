package models

import "time"

type EventType string

const (
	EventLetterGenerated   EventType = "letter.generated"
	EventPDFCompiled       EventType = "pdf.compiled"
	EventPDFDownloaded     EventType = "pdf.downloaded"
	EventWaitlistJoined    EventType = "waitlist.joined"
	EventFeedbackSubmitted EventType = "feedback.submitted"
	EventProfileCreated    EventType = "profile.created"
	EventResumeUploaded    EventType = "resume.uploaded"
)

// Event is a usage event published after a successful request.
type Event struct {
	Type       EventType         `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func NewEvent(t EventType, userID string) Event {
	return Event{Type: t, UserID: userID, OccurredAt: time.Now().UTC()}
}
