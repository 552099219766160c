// Package safety gates text before it reaches costly upstream calls or the
// orchestration loop. A gate combines a deterministic PII pattern scan with a
// delegated moderation classification; both must be clean for content to
// proceed. Raw text is never logged — findings carry redacted evidence only.
package safety

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// MatchKind labels what a finding matched.
type MatchKind string

const (
	KindEmail      MatchKind = "email"
	KindPhone      MatchKind = "phone"
	KindModeration MatchKind = "moderation"
)

// Match is one flagged pattern with non-reversible evidence suitable for logs.
type Match struct {
	Kind     MatchKind `json:"kind"`
	Evidence string    `json:"evidence"`
}

// Finding is the gate's decision over a batch of texts.
type Finding struct {
	Flagged bool    `json:"flagged"`
	Matches []Match `json:"matches,omitempty"`
}

// Moderator classifies texts via an external moderation capability. One
// boolean per input text, in order.
type Moderator interface {
	Flagged(ctx context.Context, texts []string) ([]bool, error)
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Seven or more digits with optional separators, international prefixes
	// included. Loose on purpose: phone-like is enough to block.
	phonePattern = regexp.MustCompile(`\+?\d(?:[\s\-./()]?\d){6,}`)
)

// Gate evaluates texts against the PII scan and the moderation delegate.
type Gate struct {
	moderator Moderator
}

// NewGate creates a gate backed by the given moderation delegate.
func NewGate(m Moderator) *Gate {
	return &Gate{moderator: m}
}

// Evaluate scans every text for PII, then asks the moderation delegate. A PII
// hit short-circuits: no moderation call is spent on content that is already
// blocked.
func (g *Gate) Evaluate(ctx context.Context, texts []string) (*Finding, error) {
	finding := &Finding{}

	for _, text := range texts {
		if m := emailPattern.FindString(text); m != "" {
			finding.Flagged = true
			finding.Matches = append(finding.Matches, Match{Kind: KindEmail, Evidence: redactEmail(m)})
		}
		if m := phonePattern.FindString(text); m != "" {
			finding.Flagged = true
			finding.Matches = append(finding.Matches, Match{Kind: KindPhone, Evidence: redactDigits(m)})
		}
	}
	if finding.Flagged {
		return finding, nil
	}

	flags, err := g.moderator.Flagged(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("moderation check: %w", err)
	}
	for i, flagged := range flags {
		if flagged {
			finding.Flagged = true
			finding.Matches = append(finding.Matches, Match{
				Kind:     KindModeration,
				Evidence: fmt.Sprintf("text %d flagged by moderation", i),
			})
		}
	}

	return finding, nil
}

// redactEmail keeps only the first rune of the local part.
func redactEmail(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 0 {
		return "***@***"
	}
	first, _ := firstRune(addr)
	return first + "***@***"
}

// redactDigits keeps only the last two digits of a phone-like sequence.
func redactDigits(s string) string {
	digits := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 2 {
		return "***"
	}
	return "***" + string(digits[len(digits)-2:])
}

func firstRune(s string) (string, bool) {
	for _, r := range s {
		return string(r), true
	}
	return "", false
}
