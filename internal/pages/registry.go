// Package pages keeps one detector per open page session.
package pages

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/memewatch/internal/apperr"
	"github.com/starford/memewatch/internal/cooldown"
	"github.com/starford/memewatch/internal/match"
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/report"
	"github.com/starford/memewatch/internal/scheduler"
)

// DefaultMaxPages bounds concurrently open sessions.
const DefaultMaxPages = 256

// OpenRequest describes a new page session.
type OpenRequest struct {
	ID        string
	URL       string
	HTML      string
	Hidden    bool
	AutoStart bool
}

// Registry owns the detectors of every open page. It is safe for
// concurrent use.
type Registry struct {
	reporter *report.Reporter
	logger   *slog.Logger
	listener scheduler.Listener
	maxPages int
	now      func() time.Time

	mu      sync.RWMutex
	pages   map[string]*Page
	catalog []models.CatalogEntry
	cfg     scheduler.Config
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithListener registers fn on every detector the registry opens.
func WithListener(fn scheduler.Listener) Option {
	return func(r *Registry) { r.listener = fn }
}

// WithMaxPages bounds the number of open sessions.
func WithMaxPages(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxPages = n
		}
	}
}

// WithClock injects the clock handed to detectors.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry. reporter is shared by every page.
func NewRegistry(reporter *report.Reporter, cfg scheduler.Config, opts ...Option) *Registry {
	r := &Registry{
		reporter: reporter,
		logger:   slog.Default(),
		maxPages: DefaultMaxPages,
		now:      time.Now,
		pages:    make(map[string]*Page),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates a detector over req.HTML. An empty ID gets a generated one.
func (r *Registry) Open(req OpenRequest) (*Page, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	r.mu.Lock()
	if _, ok := r.pages[req.ID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("pages: open %s: %w", req.ID, apperr.ErrAlreadyExists)
	}
	if len(r.pages) >= r.maxPages {
		r.mu.Unlock()
		return nil, fmt.Errorf("pages: open %s: limit of %d sessions reached", req.ID, r.maxPages)
	}

	doc := &snapshotDoc{html: req.HTML}
	det, err := scheduler.New(req.ID, doc, r.reporter,
		scheduler.WithConfig(r.cfg),
		scheduler.WithCatalog(r.catalog),
		scheduler.WithLogger(r.logger),
		scheduler.WithClock(r.now))
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("pages: open %s: %w", req.ID, err)
	}
	if r.listener != nil {
		det.OnDetection(r.listener)
	}

	p := &Page{ID: req.ID, URL: req.URL, OpenedAt: r.now(), doc: doc, det: det, reg: r}
	r.pages[req.ID] = p
	r.mu.Unlock()

	if req.Hidden {
		det.SetVisible(false)
	}
	if req.AutoStart {
		det.Start()
	}
	r.logger.Debug("pages: opened", slog.String("page_id", req.ID), slog.String("url", req.URL))
	return p, nil
}

// Get returns the open page with the given ID.
func (r *Registry) Get(id string) (*Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[id]
	if !ok {
		return nil, fmt.Errorf("pages: %s: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

// List returns every open page, oldest first.
func (r *Registry) List() []*Page {
	r.mu.RLock()
	out := make([]*Page, 0, len(r.pages))
	for _, p := range r.pages {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close tears down the page's detector and forgets the page.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	p, ok := r.pages[id]
	delete(r.pages, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("pages: close %s: %w", id, apperr.ErrNotFound)
	}
	p.det.Close()
	r.logger.Debug("pages: closed", slog.String("page_id", id))
	return nil
}

// CloseAll tears down every page.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.pages
	r.pages = make(map[string]*Page)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range all {
		wg.Add(1)
		go func(p *Page) {
			defer wg.Done()
			p.det.Close()
		}(p)
	}
	wg.Wait()
}

// Catalog returns the snapshot handed to new detectors.
func (r *Registry) Catalog() []models.CatalogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.catalog)
}

// UpdateCatalog replaces the catalog of every open and future page.
func (r *Registry) UpdateCatalog(entries []models.CatalogEntry) {
	snapshot := slices.Clone(entries)
	r.mu.Lock()
	r.catalog = snapshot
	targets := r.snapshotPagesLocked()
	r.mu.Unlock()

	for _, p := range targets {
		p.det.UpdateCatalog(snapshot)
	}
	r.logger.Info("pages: catalog updated",
		slog.Int("entries", len(snapshot)),
		slog.Int("pages", len(targets)))
}

// Config returns the configuration handed to new detectors.
func (r *Registry) Config() scheduler.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// UpdateConfig validates cfg and applies it to every open and future page.
func (r *Registry) UpdateConfig(cfg scheduler.Config) error {
	if _, err := match.ParsePolicy(string(cfg.Scoring)); err != nil {
		return fmt.Errorf("pages: update config: %w", err)
	}
	if _, err := cooldown.ParsePolicy(string(cfg.CooldownPolicy)); err != nil {
		return fmt.Errorf("pages: update config: %w", err)
	}

	r.mu.Lock()
	r.cfg = cfg
	targets := r.snapshotPagesLocked()
	r.mu.Unlock()

	var errs []error
	for _, p := range targets {
		if err := p.det.UpdateConfig(cfg); err != nil {
			errs = append(errs, fmt.Errorf("page %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) snapshotPagesLocked() []*Page {
	out := make([]*Page, 0, len(r.pages))
	for _, p := range r.pages {
		out = append(out, p)
	}
	return out
}
