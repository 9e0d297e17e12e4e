package scheduler

import (
	"time"

	"github.com/starford/memewatch/internal/cooldown"
	"github.com/starford/memewatch/internal/extract"
	"github.com/starford/memewatch/internal/match"
	"github.com/starford/memewatch/internal/models"
)

// Config controls a detector. It may be replaced at runtime with
// Detector.UpdateConfig; changes apply from the next scheduling decision.
type Config struct {
	Enabled             bool
	Scoring             match.Policy
	SimilarityThreshold float64
	CooldownPolicy      cooldown.Policy
	Cooldown            time.Duration
	ScanInterval        time.Duration
	Debounce            time.Duration
	MaxTextLength       int
	MaxTrackedInputs    int
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Scoring:             match.Frequency,
		SimilarityThreshold: match.DefaultSimilarityThreshold,
		CooldownPolicy:      cooldown.Global,
		Cooldown:            cooldown.DefaultWindow,
		ScanInterval:        3 * time.Second,
		Debounce:            500 * time.Millisecond,
		MaxTextLength:       models.DefaultMaxTextLength,
		MaxTrackedInputs:    extract.DefaultMaxTrackedInputs,
	}
}

// withDefaults fills zero durations and limits. Enabled is left as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Scoring == "" {
		c.Scoring = def.Scoring
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = def.SimilarityThreshold
	}
	if c.CooldownPolicy == "" {
		c.CooldownPolicy = def.CooldownPolicy
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = def.ScanInterval
	}
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = def.MaxTextLength
	}
	if c.MaxTrackedInputs <= 0 {
		c.MaxTrackedInputs = def.MaxTrackedInputs
	}
	return c
}
