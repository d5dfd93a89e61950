package validation

import (
	"regexp"
	"strings"

	"github.com/illegalcall/swift-letter/internal/apperror"
)

const (
	maxEmailLength     = 254
	maxEmailLocalPart  = 64
	msgEmailRequired   = "Email is required"
	msgEmailTooLong    = "Email address is too long"
	msgEmailInvalid    = "Please enter a valid email address"
	msgEmailDisposable = "Disposable email addresses are not allowed"
)

var (
	basicEmailRegex  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	strictEmailRegex = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")
)

var disposableDomains = map[string]struct{}{
	"10minutemail.com":  {},
	"10minutemail.net":  {},
	"tempmail.org":      {},
	"temp-mail.org":     {},
	"tempmail.com":      {},
	"guerrillamail.com": {},
	"guerrillamail.net": {},
	"mailinator.com":    {},
	"yopmail.com":       {},
	"throwaway.email":   {},
	"getnada.com":       {},
	"maildrop.cc":       {},
	"trashmail.com":     {},
	"sharklasers.com":   {},
	"dispostable.com":   {},
	"fakeinbox.com":     {},
	"mintemail.com":     {},
	"mohmal.com":        {},
	"emailondeck.com":   {},
	"spamgourmet.com":   {},
}

// NormalizeEmail trims and lower-cases an address before storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsDisposableDomain reports whether domain, or a parent of it, is on the
// blocklist.
func IsDisposableDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for domain != "" {
		if _, ok := disposableDomains[domain]; ok {
			return true
		}
		dot := strings.IndexByte(domain, '.')
		if dot < 0 {
			break
		}
		domain = domain[dot+1:]
	}
	return false
}

// ValidateEmail returns nil when email is acceptable, otherwise a validation
// error carrying the message shown to the user.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return apperror.ValidationFailed("email", msgEmailRequired)
	}
	if len(email) > maxEmailLength {
		return apperror.ValidationFailed("email", msgEmailTooLong)
	}

	at := strings.LastIndexByte(email, '@')
	if at > maxEmailLocalPart {
		return apperror.ValidationFailed("email", msgEmailTooLong)
	}

	if !basicEmailRegex.MatchString(email) || !strictEmailRegex.MatchString(email) {
		return apperror.ValidationFailed("email", msgEmailInvalid)
	}

	if IsDisposableDomain(email[at+1:]) {
		return apperror.ValidationFailed("email", msgEmailDisposable)
	}
	return nil
}

func IsValidEmail(email string) bool {
	return ValidateEmail(email) == nil
}
