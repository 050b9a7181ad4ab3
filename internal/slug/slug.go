// Package slug converts display names into URL-safe tenant identifiers.
package slug

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback is used when the input yields an empty slug
const Fallback = "untitled"

var (
	validSlug    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespace   = regexp.MustCompile(`[\s_]+`)
	multiHyphen  = regexp.MustCompile(`-+`)

	// NFD decomposition followed by removal of combining marks strips
	// diacritics (Café -> Cafe)
	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Generate converts arbitrary text into a slug: lowercase letters, digits
// and single hyphens only. Empty or whitespace-only input yields "".
func Generate(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	s := strings.ToLower(text)
	if folded, _, err := transform.String(deaccent, s); err == nil {
		s = folded
	}
	s = invalidChars.ReplaceAllString(s, "-")
	s = whitespace.ReplaceAllString(s, "-")
	s = multiHyphen.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// IsValid reports whether s is a well-formed slug
func IsValid(s string) bool {
	return validSlug.MatchString(s)
}

// Sanitize coerces arbitrary text into a valid slug, falling back to
// "untitled" when nothing usable remains
func Sanitize(text string) string {
	if IsValid(text) {
		return text
	}
	s := Generate(text)
	if s == "" {
		return Fallback
	}
	return s
}

// GenerateUnique builds a slug from text and appends -1, -2, ... until
// exists reports no collision. The result is deterministic for a given
// predicate, but check-then-insert is inherently racy: the storage-level
// unique index remains the final authority and a violation at save time
// must be treated as a retryable conflict by the caller.
func GenerateUnique(text string, exists func(string) bool) string {
	base := Generate(text)
	if base == "" {
		base = Fallback
	}

	if !exists(base) {
		return base
	}

	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s-%d", base, counter)
		if !exists(candidate) {
			return candidate
		}
	}
}
