package safety

import "regexp"

// Patterns stripped from any string headed for a log sink. Upstream error
// messages can echo request content or credentials; they go through Scrub
// before being written anywhere.
var scrubPatterns = []*regexp.Regexp{
	emailPattern,
	phonePattern,
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`),
	regexp.MustCompile(`sk-[A-Za-z0-9\-_]{8,}`),
}

// Scrub replaces recognizable identifiers and secrets in s with a fixed
// placeholder. The result is safe to log.
func Scrub(s string) string {
	for _, re := range scrubPatterns {
		s = re.ReplaceAllString(s, "[redacted]")
	}
	return s
}
