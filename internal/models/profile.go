package models

import (
	"strings"
	"time"
)

// ProfileFields are the user-editable parts of a profile.
type ProfileFields struct {
	FullName       string  `json:"full_name" db:"full_name"`
	Email          string  `json:"email" db:"email"`
	Phone          string  `json:"phone" db:"phone"`
	Location       *string `json:"location,omitempty" db:"location"`
	Links          string  `json:"links" db:"links"` // newline-joined "Label: URL"
	Experiences    string  `json:"experiences" db:"experiences"`
	Projects       string  `json:"projects" db:"projects"`
	Skills         string  `json:"skills" db:"skills"`
	Education      *string `json:"education,omitempty" db:"education"`
	Certifications *string `json:"certifications,omitempty" db:"certifications"`
	Languages      *string `json:"languages,omitempty" db:"languages"`
}

// Profile represents a user profile in the system
type Profile struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"` // matches auth.users.id
	ProfileFields
	Credits   int       `json:"credits" db:"credits"` // decremented by the generation function only
	ResumeURL *string   `json:"resume_url,omitempty" db:"resume_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ParseLinks splits the stored links column. A line without a "Label: "
// prefix is kept as a bare URL.
func ParseLinks(s string) []Link {
	var links []Link
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, url, found := strings.Cut(line, ": ")
		if !found {
			links = append(links, Link{URL: line})
			continue
		}
		links = append(links, Link{Label: strings.TrimSpace(label), URL: strings.TrimSpace(url)})
	}
	return links
}

// JoinLinks is the inverse of ParseLinks.
func JoinLinks(links []Link) string {
	lines := make([]string, 0, len(links))
	for _, l := range links {
		if l.URL == "" {
			continue
		}
		if l.Label == "" {
			lines = append(lines, l.URL)
			continue
		}
		lines = append(lines, l.Label+": "+l.URL)
	}
	return strings.Join(lines, "\n")
}

// ProfileResponse wraps a profile for the API.
type ProfileResponse struct {
	Profile Profile `json:"profile"`
	Links   []Link  `json:"links"`
}
