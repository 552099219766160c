package orchestrator

import (
	"strings"
	"unicode/utf8"
)

// Suppressor decides whether assistant prose accompanying a tool call is a
// filler announcement that should be blanked before it enters the transcript.
// It is a plain predicate so the heuristic can be swapped without touching
// the loop.
type Suppressor func(content string) bool

// announcementLimit: anything longer is treated as substantive content and
// kept verbatim.
const announcementLimit = 160

// Stock phrasings models use to narrate an imminent tool call, German and
// English. Matched case-insensitively as substrings.
var announcementPhrases = []string{
	"einen moment",
	"moment bitte",
	"ich prüfe",
	"ich schaue",
	"ich sehe nach",
	"sekunde",
	"let me check",
	"let me look",
	"i'll check",
	"i'll look",
	"one moment",
	"checking",
	"looking that up",
	"schaue kurz nach",
}

// DefaultSuppressor blanks short stock announcements and empty content.
func DefaultSuppressor() Suppressor {
	return func(content string) bool {
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return true
		}
		if utf8.RuneCountInString(trimmed) > announcementLimit {
			return false
		}
		lower := strings.ToLower(trimmed)
		for _, phrase := range announcementPhrases {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
		return false
	}
}
