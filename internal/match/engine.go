// Package match scores normalized text against a catalog of keyword-tagged
// entries and ranks the results.
package match

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/starford/memewatch/internal/models"
)

// Policy selects how an entry's score is computed.
type Policy string

// Scoring policies.
//
// Presence counts distinct contained keywords, so an entry mentioning two of
// its keywords once each outranks one mentioning a single keyword ten times.
// Frequency sums every occurrence, so the repeated keyword wins instead.
// Similarity tolerates near-miss spellings via character-bigram overlap.
const (
	Presence   Policy = "presence"
	Frequency  Policy = "frequency"
	Similarity Policy = "similarity"
)

// DefaultSimilarityThreshold is the minimum bigram overlap for a keyword to
// count under the Similarity policy.
const DefaultSimilarityThreshold = 0.8

// ParsePolicy validates a policy name. Empty selects Frequency.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return Frequency, nil
	case Presence, Frequency, Similarity:
		return p, nil
	default:
		return "", fmt.Errorf("match: unknown policy %q", s)
	}
}

// Engine scores ScanSources against catalog snapshots. It is safe for
// concurrent use.
type Engine struct {
	policy    Policy
	threshold float64
	logger    *slog.Logger

	patterns sync.Map // normalized keyword -> *regexp.Regexp
}

// Option configures an Engine.
type Option func(*Engine)

// WithSimilarityThreshold sets the minimum overlap used by the Similarity policy.
func WithSimilarityThreshold(th float64) Option {
	return func(e *Engine) {
		if th > 0 && th <= 1 {
			e.threshold = th
		}
	}
}

// WithLogger sets the logger used to report malformed entries.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine for the given policy.
func New(policy Policy, opts ...Option) (*Engine, error) {
	policy, err := ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	e := &Engine{
		policy:    policy,
		threshold: DefaultSimilarityThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the engine's scoring policy.
func (e *Engine) Policy() Policy { return e.policy }

// Score evaluates every catalog entry against src and returns the entries
// with a positive score, best first. Equal scores keep catalog order.
func (e *Engine) Score(src models.ScanSource, catalog []models.CatalogEntry) []models.MatchResult {
	if src.Text == "" || len(catalog) == 0 {
		return nil
	}

	var tokens []string
	if e.policy == Similarity {
		tokens = tokenize(src.Text)
	}

	var out []models.MatchResult
	for _, entry := range catalog {
		if res, ok := e.scoreEntry(src.Text, tokens, entry); ok {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Top returns the single candidate offered to the cooldown gate.
func Top(results []models.MatchResult) (models.MatchResult, bool) {
	if len(results) == 0 {
		return models.MatchResult{}, false
	}
	return results[0], true
}

// scoreEntry isolates failures to the entry being scored.
func (e *Engine) scoreEntry(text string, tokens []string, entry models.CatalogEntry) (res models.MatchResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("match: entry scoring failed",
				slog.String("entry_id", entry.ID),
				slog.String("error", fmt.Sprint(r)))
			res, ok = models.MatchResult{}, false
		}
	}()

	keywords := normalizeKeywords(entry.Keywords)
	if len(keywords) == 0 {
		return res, false
	}

	var score float64
	var matched []string
	for _, kw := range keywords {
		var s float64
		switch e.policy {
		case Presence:
			if strings.Contains(text, kw.norm) {
				s = 1
			}
		case Frequency:
			s = float64(len(e.pattern(kw.norm).FindAllStringIndex(text, -1)))
		case Similarity:
			s = bestOverlap(kw.norm, tokens)
			if s < e.threshold {
				s = 0
			}
		}
		if s > 0 {
			score += s
			matched = append(matched, kw.orig)
		}
	}
	if len(matched) == 0 {
		return res, false
	}
	return models.MatchResult{Entry: entry, Score: score, MatchedKeywords: matched}, true
}

// pattern returns the literal-match regexp for a keyword. Metacharacters are
// escaped so a keyword like "c++" or "(╯°□°)╯" matches verbatim.
func (e *Engine) pattern(kw string) *regexp.Regexp {
	if re, ok := e.patterns.Load(kw); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(regexp.QuoteMeta(kw))
	actual, _ := e.patterns.LoadOrStore(kw, re)
	return actual.(*regexp.Regexp)
}

type keyword struct {
	orig string
	norm string
}

// normalizeKeywords lowercases keywords, dropping blanks and
// case-insensitive duplicates while keeping declaration order. Surrounding
// spaces are kept: a padded keyword such as " cat " only matches as a word.
func normalizeKeywords(raw []string) []keyword {
	if len(raw) == 0 {
		return nil
	}
	lower := cases.Lower(language.Und)
	seen := make(map[string]struct{}, len(raw))
	out := make([]keyword, 0, len(raw))
	for _, k := range raw {
		if strings.TrimSpace(k) == "" {
			continue
		}
		n := lower.String(k)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, keyword{orig: k, norm: n})
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
