package slug

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/Manojseetaram/code-share-clone/internal/apperror"
)

const (
	minLength = 3
	maxLength = 60

	// Generated slugs draw from a lowercase alphabet so they always pass
	// Validate without a retry on format grounds.
	alphabet  = "abcdefghijklmnopqrstuvwxyz0123456789"
	genLength = 8
)

var (
	pattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

	// Paths the router owns; never valid snippet slugs.
	reserved = map[string]bool{
		"api":    true,
		"admin":  true,
		"health": true,
		"ws":     true,
		"new":    true,
		"static": true,
	}
)

// Sanitize folds raw input into slug form: lowercase, disallowed characters
// become hyphens, leading and trailing hyphens are trimmed. Availability
// checks and creates run the same fold, so "MySlug" and "myslug" address the
// same snippet end-to-end.
func Sanitize(raw string) string {
	lower := strings.ToLower(raw)
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, lower)
	return strings.Trim(mapped, "-")
}

// FromPath sanitizes a URL path segment. The router matches against the
// escaped path, so the captured segment can still carry percent-encoding.
func FromPath(segment string) string {
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	return Sanitize(segment)
}

// Validate checks a sanitized slug against length, character, and
// reserved-word rules.
func Validate(s string) error {
	if len(s) < minLength {
		return apperror.InvalidSlug(fmt.Sprintf("URL must be at least %d characters", minLength))
	}
	if len(s) > maxLength {
		return apperror.InvalidSlug(fmt.Sprintf("URL must be at most %d characters", maxLength))
	}
	if !pattern.MatchString(s) {
		return apperror.InvalidSlug("URL may only contain lowercase letters, numbers, and hyphens, with no leading or trailing hyphen")
	}
	if reserved[s] {
		return apperror.InvalidSlug(fmt.Sprintf("%q is a reserved URL", s))
	}
	return nil
}

// Generate returns a random short slug for snippets shared without an
// explicit name.
func Generate() (string, error) {
	return gonanoid.Generate(alphabet, genLength)
}
