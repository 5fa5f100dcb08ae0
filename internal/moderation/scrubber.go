// Package moderation redacts credentials that users paste into plan chat.
// Plan discussions are visible to every member, viewers included.
package moderation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Redaction replaces each match.
const Redaction = "[REDACTED]"

// Rule is a named credential pattern.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp
}

// DefaultRules returns the built-in credential patterns.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "aws-access-key-id", Pattern: regexp.MustCompile(`\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`)},
		{ID: "private-key", Pattern: regexp.MustCompile(`-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----[\s\S]*?(?:-----END[^-]*-----|$)`)},
		{ID: "github-token", Pattern: regexp.MustCompile(`\b(?:gh[pousr]_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,})\b`)},
		{ID: "slack-token", Pattern: regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}`)},
		{ID: "stripe-key", Pattern: regexp.MustCompile(`\b(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}`)},
		{ID: "jwt", Pattern: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`)},
		{ID: "connection-url", Pattern: regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s:@/]+:[^\s@]+@\S+`)},
		{ID: "password-assignment", Pattern: regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|secret|api[_-]?key|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`)},
	}
}

// Scrubber redacts rule matches from text.
type Scrubber struct {
	enabled  bool
	gitleaks *config.Config
	rules    []Rule
	allow    atomic.Pointer[Allowlist]
}

// New creates a Scrubber. With no rules it uses DefaultRules.
func New(enabled bool, rules ...Rule) *Scrubber {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Scrubber{enabled: enabled, rules: rules}
}

// defaultGitleaksConfig compiles the gitleaks default rule set.
var defaultGitleaksConfig = func() (config.Config, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return config.Config{}, err
	}
	return d.Config, nil
}

// UseGitleaks additionally scans with the gitleaks default rule set. The
// rules are compiled once here. On error the Scrubber keeps its own rules.
func (s *Scrubber) UseGitleaks() error {
	cfg, err := defaultGitleaksConfig()
	if err != nil {
		return fmt.Errorf("loading gitleaks rules: %w", err)
	}
	s.gitleaks = &cfg
	return nil
}

// SetAllowlist replaces the patterns exempt from redaction. Safe to call
// while Filter runs.
func (s *Scrubber) SetAllowlist(a *Allowlist) {
	s.allow.Store(a)
}

type span struct{ start, end int }

// Filter returns content with every match replaced by Redaction and the
// number of redacted regions. Overlapping matches are merged.
func (s *Scrubber) Filter(content string) (string, int) {
	if s == nil || !s.enabled || content == "" {
		return content, 0
	}

	var spans []span
	for _, r := range s.rules {
		for _, m := range r.Pattern.FindAllStringIndex(content, -1) {
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if s.gitleaks != nil {
		spans = append(spans, gitleaksSpans(*s.gitleaks, content)...)
	}
	if len(spans) == 0 {
		return content, 0
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	if allow := s.allow.Load(); allow != nil {
		kept := merged[:0]
		for _, sp := range merged {
			if !allow.allows(content[sp.start:sp.end]) {
				kept = append(kept, sp)
			}
		}
		merged = kept
		if len(merged) == 0 {
			return content, 0
		}
	}

	out := make([]byte, 0, len(content))
	prev := 0
	for _, sp := range merged {
		out = append(out, content[prev:sp.start]...)
		out = append(out, Redaction...)
		prev = sp.end
	}
	out = append(out, content[prev:]...)
	return string(out), len(merged)
}

// gitleaksSpans locates every occurrence of each secret gitleaks reports.
// The detector accumulates findings, so a fresh one is built per call.
func gitleaksSpans(cfg config.Config, content string) []span {
	detector := detect.NewDetector(cfg)
	var spans []span
	for _, f := range detector.DetectString(content) {
		if f.Secret == "" {
			continue
		}
		for off := 0; ; {
			i := strings.Index(content[off:], f.Secret)
			if i < 0 {
				break
			}
			start := off + i
			spans = append(spans, span{start, start + len(f.Secret)})
			off = start + len(f.Secret)
		}
	}
	return spans
}
