package store

import (
	"context"
	"time"

	"github.com/starford/memewatch/internal/models"
)

// Stats defines the read/write operations consumers need from the store.
// Depend on this interface rather than *DB so handlers can be tested with
// fakes.
type Stats interface {
	Record(ctx context.Context, det models.Detection) error
	Usage(ctx context.Context, limit int) ([]UsageRow, error)
	Total(ctx context.Context) (int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
	Recent(ctx context.Context, limit int) ([]models.Detection, error)
}

// CatalogCache persists the last good catalog snapshot.
type CatalogCache interface {
	SaveCatalog(ctx context.Context, entries []models.CatalogEntry) error
	LoadCatalog(ctx context.Context) (*CatalogSnapshot, error)
}

// Selection persists which catalog entries detectors use.
type Selection interface {
	LoadSelection(ctx context.Context) ([]string, error)
	SaveSelection(ctx context.Context, ids []string) error
}

// Verify *DB satisfies the interfaces at compile time.
var (
	_ Stats        = (*DB)(nil)
	_ CatalogCache = (*DB)(nil)
	_ Selection    = (*DB)(nil)
)
