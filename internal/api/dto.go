package api

import (
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/memewatch/internal/cooldown"
	"github.com/starford/memewatch/internal/match"
	"github.com/starford/memewatch/internal/memeservice"
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/pages"
	"github.com/starford/memewatch/internal/scheduler"
)

var pageIDRe = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ScanRequest is the request body for POST /api/scan.
type ScanRequest struct {
	Text    string `json:"text" example:"that distracted boyfriend meme"`
	HTML    string `json:"html,omitempty"`
	Scoring string `json:"scoring,omitempty" example:"frequency"`
}

// Validate validates the scan request.
func (r ScanRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required.When(r.HTML == "").Error("text or html is required")),
		validation.Field(&r.Scoring, validation.By(validScoring)),
	)
}

// ScanResponse is the ad-hoc scoring result (aliased from the domain layer).
type ScanResponse = memeservice.ScanResult

// SelectionRequest is the request body for PUT /api/catalog/selection.
type SelectionRequest struct {
	IDs []string `json:"ids" example:"distracted-bf"`
}

// Validate validates the selection request.
func (r SelectionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Length(0, 1000), validation.Each(validation.Required, validation.Length(1, 128))),
	)
}

// SelectionResponse reports the selection and how many entries detectors
// use.
type SelectionResponse struct {
	IDs    []string `json:"ids"`
	Active int      `json:"active"`
}

// OpenPageRequest is the request body for POST /api/pages.
type OpenPageRequest struct {
	ID        string `json:"id,omitempty" example:"tab-42"`
	URL       string `json:"url,omitempty" example:"https://example.com/thread"`
	HTML      string `json:"html"`
	Hidden    bool   `json:"hidden,omitempty"`
	AutoStart *bool  `json:"auto_start,omitempty"`
}

// Validate validates the open-page request.
func (r OpenPageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Match(pageIDRe)),
		validation.Field(&r.URL, validation.Length(0, 2048)),
	)
}

func (r OpenPageRequest) toDomain() pages.OpenRequest {
	autoStart := true
	if r.AutoStart != nil {
		autoStart = *r.AutoStart
	}
	return pages.OpenRequest{ID: r.ID, URL: r.URL, HTML: r.HTML, Hidden: r.Hidden, AutoStart: autoStart}
}

// PageInfo is the page state response (aliased from the domain layer).
type PageInfo = pages.Info

// SnapshotRequest is the request body for PUT /api/pages/{id}/snapshot.
type SnapshotRequest struct {
	HTML   string `json:"html"`
	Rescan bool   `json:"rescan,omitempty"`
}

// MutationsRequest is the request body for POST /api/pages/{id}/mutations.
// HTML, when present, replaces the page snapshot before the batch applies.
type MutationsRequest struct {
	HTML      *string           `json:"html,omitempty"`
	Mutations []models.Mutation `json:"mutations"`
}

// Validate validates the mutation batch.
func (r MutationsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mutations, validation.Required, validation.Length(1, 1000),
			validation.Each(validation.By(validMutation))),
	)
}

// InputRequest is the request body for POST /api/pages/{id}/inputs.
type InputRequest struct {
	NodeID    string `json:"node_id" example:"search"`
	Tag       string `json:"tag" example:"input"`
	InputType string `json:"input_type,omitempty" example:"text"`
	Editable  bool   `json:"editable,omitempty"`
	Value     string `json:"value"`
}

// Validate validates the input event.
func (r InputRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NodeID, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.Tag, validation.Required),
	)
}

func (r InputRequest) toDomain() models.InputEvent {
	return models.InputEvent{NodeID: r.NodeID, Tag: r.Tag, InputType: r.InputType, Editable: r.Editable, Value: r.Value}
}

// VisibilityRequest is the request body for POST /api/pages/{id}/visibility.
type VisibilityRequest struct {
	Visible *bool `json:"visible"`
}

// Validate validates the visibility request.
func (r VisibilityRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Visible, validation.NotNil),
	)
}

// StatsResponse is the usage summary (aliased from the domain layer).
type StatsResponse = memeservice.StatsSummary

// DetectionSettings is the wire form of the detector configuration.
// Durations use Go syntax ("15s", "500ms"). On PUT, omitted fields keep
// their current value.
type DetectionSettings struct {
	Enabled             *bool    `json:"enabled,omitempty"`
	Scoring             *string  `json:"scoring,omitempty" example:"frequency"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty" example:"0.8"`
	CooldownPolicy      *string  `json:"cooldown_policy,omitempty" example:"global"`
	Cooldown            *string  `json:"cooldown,omitempty" example:"15s"`
	ScanInterval        *string  `json:"scan_interval,omitempty" example:"3s"`
	Debounce            *string  `json:"debounce,omitempty" example:"500ms"`
	MaxTextLength       *int     `json:"max_text_length,omitempty" example:"10000"`
	MaxTrackedInputs    *int     `json:"max_tracked_inputs,omitempty" example:"64"`
}

// Validate validates the settings.
func (s DetectionSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Scoring, validation.By(validScoring)),
		validation.Field(&s.CooldownPolicy, validation.By(validCooldownPolicy)),
		validation.Field(&s.SimilarityThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&s.Cooldown, validation.By(validDuration)),
		validation.Field(&s.ScanInterval, validation.By(validDuration)),
		validation.Field(&s.Debounce, validation.By(validDuration)),
		validation.Field(&s.MaxTextLength, validation.Min(1), validation.Max(1_000_000)),
		validation.Field(&s.MaxTrackedInputs, validation.Min(1), validation.Max(10_000)),
	)
}

// ConfigResponse is returned by GET /api/config.
type ConfigResponse struct {
	Detection   DetectionSettings `json:"detection"`
	CatalogSize int               `json:"catalog_size"`
	Pages       int               `json:"pages"`
}

func settingsFromConfig(cfg scheduler.Config) DetectionSettings {
	scoring := string(cfg.Scoring)
	policy := string(cfg.CooldownPolicy)
	cd := cfg.Cooldown.String()
	interval := cfg.ScanInterval.String()
	debounce := cfg.Debounce.String()
	return DetectionSettings{
		Enabled:             &cfg.Enabled,
		Scoring:             &scoring,
		SimilarityThreshold: &cfg.SimilarityThreshold,
		CooldownPolicy:      &policy,
		Cooldown:            &cd,
		ScanInterval:        &interval,
		Debounce:            &debounce,
		MaxTextLength:       &cfg.MaxTextLength,
		MaxTrackedInputs:    &cfg.MaxTrackedInputs,
	}
}

// apply overlays the set fields onto cfg. Call Validate first.
func (s DetectionSettings) apply(cfg scheduler.Config) scheduler.Config {
	if s.Enabled != nil {
		cfg.Enabled = *s.Enabled
	}
	if s.Scoring != nil {
		cfg.Scoring, _ = match.ParsePolicy(*s.Scoring)
	}
	if s.SimilarityThreshold != nil {
		cfg.SimilarityThreshold = *s.SimilarityThreshold
	}
	if s.CooldownPolicy != nil {
		cfg.CooldownPolicy, _ = cooldown.ParsePolicy(*s.CooldownPolicy)
	}
	if s.Cooldown != nil {
		cfg.Cooldown, _ = time.ParseDuration(*s.Cooldown)
	}
	if s.ScanInterval != nil {
		cfg.ScanInterval, _ = time.ParseDuration(*s.ScanInterval)
	}
	if s.Debounce != nil {
		cfg.Debounce, _ = time.ParseDuration(*s.Debounce)
	}
	if s.MaxTextLength != nil {
		cfg.MaxTextLength = *s.MaxTextLength
	}
	if s.MaxTrackedInputs != nil {
		cfg.MaxTrackedInputs = *s.MaxTrackedInputs
	}
	return cfg
}

func validScoring(v any) error {
	s, ok := stringValue(v)
	if !ok || s == "" {
		return nil
	}
	_, err := match.ParsePolicy(s)
	return err
}

func validCooldownPolicy(v any) error {
	s, ok := stringValue(v)
	if !ok || s == "" {
		return nil
	}
	_, err := cooldown.ParsePolicy(s)
	return err
}

func validDuration(v any) error {
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration like 15s or 500ms")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validMutation(v any) error {
	m, ok := v.(models.Mutation)
	if !ok {
		return nil
	}
	switch m.Op {
	case models.OpInsert, models.OpRemove, models.OpText, models.OpAttr:
		return nil
	default:
		return fmt.Errorf("unknown op %q", m.Op)
	}
}

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case *string:
		if s == nil {
			return "", false
		}
		return *s, true
	default:
		return "", false
	}
}
