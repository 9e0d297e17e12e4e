// Package catalog loads the meme catalog from Markdown files, caches it and
// watches it for changes.
package catalog

import (
	"context"
	"slices"

	"github.com/starford/memewatch/internal/models"
)

// Provider returns the current catalog snapshot.
type Provider interface {
	Catalog(ctx context.Context) ([]models.CatalogEntry, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) ([]models.CatalogEntry, error)

// Catalog calls f.
func (f ProviderFunc) Catalog(ctx context.Context) ([]models.CatalogEntry, error) { return f(ctx) }

// Static serves a fixed snapshot.
type Static []models.CatalogEntry

// Catalog returns a copy of s.
func (s Static) Catalog(context.Context) ([]models.CatalogEntry, error) {
	return slices.Clone([]models.CatalogEntry(s)), nil
}
