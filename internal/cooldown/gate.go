// Package cooldown rate-limits detections so the same page does not surface
// overlays back to back.
package cooldown

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/memewatch/internal/models"
)

// Policy selects the scope of a cooldown.
type Policy string

const (
	// Global blocks every entry for one window after any admission.
	Global Policy = "global"
	// PerEntry blocks only the admitted entry.
	PerEntry Policy = "per_entry"
)

// DefaultWindow is used when no window is configured.
const DefaultWindow = 15 * time.Second

// ParsePolicy validates a policy name. Empty selects Global.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return Global, nil
	case Global, PerEntry:
		return p, nil
	default:
		return "", fmt.Errorf("cooldown: unknown policy %q", s)
	}
}

// WindowFunc returns the current cooldown window. It is consulted on every
// admission decision so configuration changes apply immediately.
type WindowFunc func() time.Duration

// Gate admits or rejects candidates. It is not safe for concurrent use; the
// owning detector serializes calls.
type Gate struct {
	policy Policy
	window WindowFunc

	lastFiredAt time.Time
	lastByEntry map[string]time.Time
}

// NewGate creates a gate with empty state.
func NewGate(policy Policy, window WindowFunc) *Gate {
	if policy == "" {
		policy = Global
	}
	if window == nil {
		window = func() time.Duration { return DefaultWindow }
	}
	return &Gate{
		policy:      policy,
		window:      window,
		lastByEntry: make(map[string]time.Time),
	}
}

// Policy returns the gate's policy.
func (g *Gate) Policy() Policy { return g.policy }

// TryAdmit reports whether candidate may be reported at now, and records the
// admission when it may.
func (g *Gate) TryAdmit(candidate models.MatchResult, now time.Time) bool {
	window := g.window()

	if g.policy == PerEntry {
		last, ok := g.lastByEntry[candidate.Entry.ID]
		if ok && now.Sub(last) < window {
			return false
		}
		g.lastByEntry[candidate.Entry.ID] = now
		return true
	}

	if !g.lastFiredAt.IsZero() && now.Sub(g.lastFiredAt) < window {
		return false
	}
	g.lastFiredAt = now
	return true
}

// Remaining returns how long entryID stays blocked after now. Entry is ignored
// under the global policy.
func (g *Gate) Remaining(entryID string, now time.Time) time.Duration {
	last := g.lastFiredAt
	if g.policy == PerEntry {
		last = g.lastByEntry[entryID]
	}
	if last.IsZero() {
		return 0
	}
	if rem := g.window() - now.Sub(last); rem > 0 {
		return rem
	}
	return 0
}

// Reset forgets every recorded admission.
func (g *Gate) Reset() {
	g.lastFiredAt = time.Time{}
	g.lastByEntry = make(map[string]time.Time)
}
