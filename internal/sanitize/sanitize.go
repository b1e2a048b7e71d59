package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxQueryLength is the hard cap, in runes, applied to queries after trimming
const MaxQueryLength = 500

// Sanitizer validates and cleans raw query text
type Sanitizer struct {
	// Regex patterns for injection detection and PII redaction
	injectionPatterns []*regexp.Regexp
	emailPattern      *regexp.Regexp
	phonePattern      *regexp.Regexp
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		injectionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|prompts)`),
			regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|prompts)`),
			regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|your)\s+(instructions|rules|training)`),
			regexp.MustCompile(`(?i)^\s*system\s*:`),
			regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s`),
			regexp.MustCompile(`(?i)act\s+as\s+if\s+you\s+have\s+no\s+(restrictions|rules)`),
		},
		emailPattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		phonePattern: regexp.MustCompile(`\+?\d{1,3}[\s\-.]?\(?\d{2,4}\)?[\s\-.]?\d{3,4}[\s\-.]?\d{3,4}`),
	}
}

// Sanitize trims, screens and redacts a raw query. It returns the cleaned
// query and blocked=true when the text matches an injection pattern. Any
// internal failure is treated as blocked rather than surfaced.
func (s *Sanitizer) Sanitize(raw string) (clean string, blocked bool) {
	defer func() {
		if r := recover(); r != nil {
			clean = ""
			blocked = true
		}
	}()

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	for _, pattern := range s.injectionPatterns {
		if pattern.MatchString(trimmed) {
			return "", true
		}
	}

	if utf8.RuneCountInString(trimmed) > MaxQueryLength {
		trimmed = string([]rune(trimmed)[:MaxQueryLength])
	}

	trimmed = s.emailPattern.ReplaceAllString(trimmed, "[email]")
	trimmed = s.phonePattern.ReplaceAllString(trimmed, "[phone]")

	return trimmed, false
}
