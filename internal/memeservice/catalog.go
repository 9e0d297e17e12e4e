package memeservice

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/memewatch/internal/apperr"
	"github.com/starford/memewatch/internal/checksum"
	"github.com/starford/memewatch/internal/models"
)

type invalidator interface{ Invalidate() }

// OnCatalogChange registers fn to run after the full or active catalog
// changes. Only one callback is kept.
func (s *Service) OnCatalogChange(fn func(all, active []models.CatalogEntry)) {
	s.mu.Lock()
	s.onCatalog = fn
	s.mu.Unlock()
}

// Catalog returns the full catalog, ignoring the selection.
func (s *Service) Catalog(_ context.Context) []models.CatalogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// ActiveCatalog returns the entries detectors score against.
func (s *Service) ActiveCatalog() []models.CatalogEntry {
	return s.pages.Catalog()
}

// CatalogEntry returns the entry with the given ID.
func (s *Service) CatalogEntry(_ context.Context, id string) (models.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return models.CatalogEntry{}, fmt.Errorf("entry %q: %w", id, apperr.ErrNotFound)
}

// FindCatalog returns entries whose ID, name or a keyword contains q,
// case-insensitively. An empty q matches everything; limit <= 0 means no
// limit.
func (s *Service) FindCatalog(ctx context.Context, q string, limit int) []models.CatalogEntry {
	all := s.Catalog(ctx)
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]models.CatalogEntry, 0, len(all))
	for _, e := range all {
		if limit > 0 && len(out) >= limit {
			break
		}
		if q == "" || entryContains(e, q) {
			out = append(out, e)
		}
	}
	return out
}

func entryContains(e models.CatalogEntry, q string) bool {
	if strings.Contains(strings.ToLower(e.ID), q) || strings.Contains(strings.ToLower(e.Name), q) {
		return true
	}
	for _, k := range e.Keywords {
		if strings.Contains(strings.ToLower(k), q) {
			return true
		}
	}
	return false
}

// RefreshCatalog reloads the catalog from the provider. force drops any
// cached snapshot first. The returned entries are the full catalog; changed
// reports whether the full or active catalog moved.
func (s *Service) RefreshCatalog(ctx context.Context, force bool) ([]models.CatalogEntry, bool, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if force {
		if inv, ok := s.catalog.(invalidator); ok {
			inv.Invalidate()
		}
	}
	entries, err := s.catalog.Catalog(ctx)
	if err != nil {
		return nil, false, err
	}
	changed := s.applyLocked(entries)
	if changed {
		s.logger.Info("catalog updated", slog.Int("entries", len(entries)))
	}
	return entries, changed, nil
}

// Selection returns the selected entry IDs. Empty means every entry is
// active.
func (s *Service) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selected)
}

// SetSelection persists ids and pushes the filtered catalog to every open
// detector. Blank and duplicate IDs are dropped; an empty list clears the
// selection.
func (s *Service) SetSelection(ctx context.Context, ids []string) ([]string, error) {
	ids = normalizeSelection(ids)

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.selection != nil {
		if err := s.selection.SaveSelection(ctx, ids); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	s.selected = ids
	entries := s.entries
	s.mu.Unlock()

	s.applyLocked(entries)
	s.logger.Info("selection updated", slog.Int("selected", len(ids)))
	return slices.Clone(ids), nil
}

// RestoreSelection loads the persisted selection. Call it before the first
// refresh.
func (s *Service) RestoreSelection(ctx context.Context) error {
	if s.selection == nil {
		return nil
	}
	ids, err := s.selection.LoadSelection(ctx)
	if err != nil {
		return err
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.mu.Lock()
	s.selected = normalizeSelection(ids)
	entries := s.entries
	s.mu.Unlock()
	s.applyLocked(entries)
	return nil
}

// applyLocked stores entries and pushes the selection-filtered view to the
// registry when it changed. Callers hold refreshMu.
func (s *Service) applyLocked(entries []models.CatalogEntry) bool {
	s.mu.Lock()
	active := filterSelected(entries, s.selected)
	fullHash := checksum.Catalog(entries)
	activeHash := checksum.Catalog(active)
	fullChanged := fullHash != s.fullHash
	activeChanged := activeHash != s.activeHash
	s.entries = slices.Clone(entries)
	s.fullHash, s.activeHash = fullHash, activeHash
	notify := s.onCatalog
	s.mu.Unlock()

	if activeChanged {
		s.pages.UpdateCatalog(active)
	}
	changed := fullChanged || activeChanged
	if changed && notify != nil {
		notify(slices.Clone(entries), slices.Clone(active))
	}
	return changed
}

func filterSelected(entries []models.CatalogEntry, selected []string) []models.CatalogEntry {
	if len(selected) == 0 {
		return slices.Clone(entries)
	}
	out := make([]models.CatalogEntry, 0, len(selected))
	for _, e := range entries {
		if slices.Contains(selected, e.ID) {
			out = append(out, e)
		}
	}
	return out
}

func normalizeSelection(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
