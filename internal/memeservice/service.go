// Package memeservice coordinates the catalog, the page registry and the
// stats store for the HTTP and MCP surfaces.
package memeservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/memewatch/internal/apperr"
	"github.com/starford/memewatch/internal/catalog"
	"github.com/starford/memewatch/internal/extract"
	"github.com/starford/memewatch/internal/match"
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/pages"
	"github.com/starford/memewatch/internal/scheduler"
	"github.com/starford/memewatch/internal/store"
)

// ScanRequest is an ad-hoc scoring request. HTML, when set, is reduced to
// its visible text; otherwise Text is scored as-is.
type ScanRequest struct {
	Text    string
	HTML    string
	Scoring string
}

// ScanResult lists every matching entry, best first. Top is the entry a
// detector would offer to its cooldown gate.
type ScanResult struct {
	Scoring string               `json:"scoring"`
	Results []models.MatchResult `json:"results"`
	Top     *models.MatchResult  `json:"top,omitempty"`
}

// StatsSummary aggregates stored detections. Today counts detections since
// local midnight.
type StatsSummary struct {
	Total int              `json:"total"`
	Today int              `json:"today"`
	Usage []store.UsageRow `json:"usage"`
}

// Service coordinates catalog, registry and stats operations.
type Service struct {
	catalog   catalog.Provider
	pages     *pages.Registry
	stats     store.Stats
	selection store.Selection
	logger    *slog.Logger
	now       func() time.Time

	// refreshMu serializes fetch-and-apply so an older snapshot never
	// replaces a newer one.
	refreshMu sync.Mutex

	mu         sync.Mutex
	entries    []models.CatalogEntry
	selected   []string
	fullHash   string
	activeHash string
	onCatalog  func(all, active []models.CatalogEntry)
}

// Option configures a Service.
type Option func(*Service)

// WithSelectionStore persists the selected entry IDs.
func WithSelectionStore(sel store.Selection) Option {
	return func(s *Service) { s.selection = sel }
}

// WithClock sets the clock used for the daily detection count.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new service. stats may be nil.
func NewService(cat catalog.Provider, reg *pages.Registry, stats store.Stats, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{catalog: cat, pages: reg, stats: stats, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pages returns the page registry.
func (s *Service) Pages() *pages.Registry { return s.pages }

// Scan scores text against the active catalog without cooldown. The
// scoring policy defaults to the configured one.
func (s *Service) Scan(_ context.Context, req ScanRequest) (*ScanResult, error) {
	entries := s.pages.Catalog()
	if len(entries) == 0 {
		return nil, apperr.ErrEmptyCatalog
	}

	cfg := s.pages.Config()
	policy := cfg.Scoring
	if req.Scoring != "" {
		p, err := match.ParsePolicy(req.Scoring)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	engine, err := match.New(policy,
		match.WithSimilarityThreshold(cfg.SimilarityThreshold),
		match.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	maxLen := cfg.MaxTextLength
	if maxLen <= 0 {
		maxLen = models.DefaultMaxTextLength
	}
	text := req.Text
	if req.HTML != "" {
		visible, err := extract.VisibleText(req.HTML)
		if err != nil {
			return nil, fmt.Errorf("memeservice: extract: %w", err)
		}
		text = visible
	}

	results := engine.Score(models.ScanSource{Text: extract.Normalize(text, maxLen), Origin: models.OriginPage}, entries)
	out := &ScanResult{Scoring: string(engine.Policy()), Results: nonNilSlice(results)}
	if top, ok := match.Top(results); ok {
		out.Top = &top
	}
	return out, nil
}

// Stats returns the total detection count and per-entry usage.
func (s *Service) Stats(ctx context.Context, limit int) (*StatsSummary, error) {
	if s.stats == nil {
		return &StatsSummary{Usage: []store.UsageRow{}}, nil
	}
	total, err := s.stats.Total(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	y, m, d := now.Date()
	today, err := s.stats.CountSince(ctx, time.Date(y, m, d, 0, 0, 0, 0, now.Location()))
	if err != nil {
		return nil, err
	}
	usage, err := s.stats.Usage(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &StatsSummary{Total: total, Today: today, Usage: nonNilSlice(usage)}, nil
}

// Recent returns the latest stored detections.
func (s *Service) Recent(ctx context.Context, limit int) ([]models.Detection, error) {
	if s.stats == nil {
		return []models.Detection{}, nil
	}
	dets, err := s.stats.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(dets), nil
}

// ListPages describes every open page.
func (s *Service) ListPages() []pages.Info {
	all := s.pages.List()
	out := make([]pages.Info, len(all))
	for i, p := range all {
		out[i] = p.Info()
	}
	return out
}

// DetectionConfig returns the configuration applied to detectors.
func (s *Service) DetectionConfig() scheduler.Config {
	return s.pages.Config()
}

// UpdateDetectionConfig applies cfg to every open and future detector.
func (s *Service) UpdateDetectionConfig(cfg scheduler.Config) error {
	return s.pages.UpdateConfig(cfg)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
