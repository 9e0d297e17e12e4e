package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/memewatch/internal/catalog"
	"github.com/starford/memewatch/internal/cooldown"
	"github.com/starford/memewatch/internal/extract"
	"github.com/starford/memewatch/internal/match"
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/pages"
	"github.com/starford/memewatch/internal/scheduler"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Detection DetectionConfig   `yaml:"detection"`
	Catalog   CatalogConfig     `yaml:"catalog"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DetectionConfig tunes the per-page detectors. Zero durations and limits
// fall back to the detector defaults.
type DetectionConfig struct {
	Enabled             bool          `yaml:"enabled" json:"enabled"`
	Scoring             string        `yaml:"scoring" json:"scoring"`
	SimilarityThreshold float64       `yaml:"similarity_threshold" json:"similarity_threshold"`
	CooldownPolicy      string        `yaml:"cooldown_policy" json:"cooldown_policy"`
	Cooldown            time.Duration `yaml:"cooldown" json:"cooldown"`
	ScanInterval        time.Duration `yaml:"scan_interval" json:"scan_interval"`
	Debounce            time.Duration `yaml:"debounce" json:"debounce"`
	MaxTextLength       int           `yaml:"max_text_length" json:"max_text_length"`
	MaxTrackedInputs    int           `yaml:"max_tracked_inputs" json:"max_tracked_inputs"`
	MaxPages            int           `yaml:"max_pages" json:"max_pages"`
}

// Validate validates the detection configuration.
func (c *DetectionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Scoring, validation.By(func(any) error {
			_, err := match.ParsePolicy(c.Scoring)
			return err
		})),
		validation.Field(&c.CooldownPolicy, validation.By(func(any) error {
			_, err := cooldown.ParsePolicy(c.CooldownPolicy)
			return err
		})),
		validation.Field(&c.SimilarityThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Cooldown, validation.Min(time.Duration(0))),
		validation.Field(&c.ScanInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxTextLength, validation.Min(0), validation.Max(1_000_000)),
		validation.Field(&c.MaxTrackedInputs, validation.Min(0), validation.Max(10_000)),
		validation.Field(&c.MaxPages, validation.Min(0)),
	)
}

// DetectorConfig converts c to the scheduler's configuration.
func (c *DetectionConfig) DetectorConfig() scheduler.Config {
	scoring, _ := match.ParsePolicy(c.Scoring)
	policy, _ := cooldown.ParsePolicy(c.CooldownPolicy)
	return scheduler.Config{
		Enabled:             c.Enabled,
		Scoring:             scoring,
		SimilarityThreshold: c.SimilarityThreshold,
		CooldownPolicy:      policy,
		Cooldown:            c.Cooldown,
		ScanInterval:        c.ScanInterval,
		Debounce:            c.Debounce,
		MaxTextLength:       c.MaxTextLength,
		MaxTrackedInputs:    c.MaxTrackedInputs,
	}
}

// CatalogConfig holds the catalog directory and its refresh policy.
type CatalogConfig struct {
	Path  string        `yaml:"path"`
	TTL   time.Duration `yaml:"ttl"`
	Watch bool          `yaml:"watch"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	def := scheduler.DefaultConfig()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Detection: DetectionConfig{
			Enabled:             true,
			Scoring:             string(match.Frequency),
			SimilarityThreshold: match.DefaultSimilarityThreshold,
			CooldownPolicy:      string(cooldown.Global),
			Cooldown:            def.Cooldown,
			ScanInterval:        def.ScanInterval,
			Debounce:            def.Debounce,
			MaxTextLength:       models.DefaultMaxTextLength,
			MaxTrackedInputs:    extract.DefaultMaxTrackedInputs,
			MaxPages:            pages.DefaultMaxPages,
		},
		Catalog: CatalogConfig{
			Path:  "./catalog",
			TTL:   catalog.DefaultTTL,
			Watch: true,
		},
		SQLite: SQLiteConfig{
			Path: "./memewatch.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
