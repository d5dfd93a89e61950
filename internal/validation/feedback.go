package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/illegalcall/swift-letter/internal/apperror"
)

const (
	MinFeedbackLength = 10
	MaxFeedbackLength = 2000

	// a run longer than this many identical characters is treated as spam
	maxCharRun = 10
)

var (
	urlPattern        = regexp.MustCompile(`(?i)https?://\S+`)
	javascriptPattern = regexp.MustCompile(`(?i)javascript:`)
)

// ValidateFeedback checks the trimmed feedback text against the length window
// and the obvious spam patterns.
func ValidateFeedback(feedback string) error {
	text := strings.TrimSpace(feedback)
	n := utf8.RuneCountInString(text)

	if n < MinFeedbackLength {
		return apperror.ValidationFailed("feedback",
			fmt.Sprintf("Feedback must be at least %d characters long", MinFeedbackLength))
	}
	if n > MaxFeedbackLength {
		return apperror.ValidationFailed("feedback",
			fmt.Sprintf("Feedback must be less than %d characters", MaxFeedbackLength))
	}
	if hasLongRun(text, maxCharRun) {
		return apperror.ValidationFailed("feedback", "Feedback appears to contain spam")
	}
	if urlPattern.MatchString(text) {
		return apperror.ValidationFailed("feedback", "Feedback cannot contain links")
	}
	return nil
}

// ValidateRating accepts a missing rating or a value between 1 and 5.
func ValidateRating(rating *int) error {
	if rating == nil {
		return nil
	}
	if *rating < 1 || *rating > 5 {
		return apperror.ValidationFailed("rating", "Rating must be between 1 and 5")
	}
	return nil
}

// Sanitize defuses markup in free text: angle brackets and javascript: URIs
// are removed and the result is capped at MaxFeedbackLength runes. It is not
// an HTML sanitizer.
func Sanitize(input string) string {
	s := strings.NewReplacer("<", "", ">", "").Replace(input)
	s = javascriptPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > MaxFeedbackLength {
		runes := []rune(s)
		s = string(runes[:MaxFeedbackLength])
	}
	return s
}

// hasLongRun reports whether s contains more than limit consecutive copies of
// the same rune.
func hasLongRun(s string, limit int) bool {
	var prev rune
	run := 0
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > limit {
			return true
		}
		prev = r
	}
	return false
}
