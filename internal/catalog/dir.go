package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/memewatch/internal/checksum"
	"github.com/starford/memewatch/internal/models"
)

// Dir implements Provider over a directory holding one .md file per entry.
// Unchanged files are not parsed again.
type Dir struct {
	root   string
	logger *slog.Logger

	mu     sync.Mutex
	parsed map[string]parsedFile // keyed by path relative to root
}

type parsedFile struct {
	checksum string
	entry    models.CatalogEntry
}

// NewDir creates a Dir provider rooted at root. The directory must exist.
func NewDir(root string, logger *slog.Logger) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("catalog: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog: root is not a directory: %s", abs)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{root: abs, logger: logger, parsed: make(map[string]parsedFile)}, nil
}

// Root returns the absolute catalog directory.
func (d *Dir) Root() string { return d.root }

// Catalog walks the directory and returns every parsable entry in path
// order. Unparsable files are skipped with a warning; a repeated ID keeps
// the first file that declared it.
func (d *Dir) Catalog(ctx context.Context) ([]models.CatalogEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		out  []models.CatalogEntry
		seen = make(map[string]string)
		disk = make(map[string]struct{})
	)
	err := filepath.WalkDir(d.root, func(p string, de fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") {
			return nil
		}
		rel, _ := filepath.Rel(d.root, p)
		disk[rel] = struct{}{}

		entry, ok := d.load(p, rel)
		if !ok {
			return nil
		}
		if first, dup := seen[entry.ID]; dup {
			d.logger.Warn("catalog: duplicate id skipped",
				slog.String("id", entry.ID),
				slog.String("path", rel),
				slog.String("first", first))
			return nil
		}
		seen[entry.ID] = rel
		out = append(out, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}

	for p := range d.parsed {
		if _, ok := disk[p]; !ok {
			delete(d.parsed, p)
		}
	}
	return out, nil
}

// load returns the entry for one file, reparsing only when its content
// changed since the last walk.
func (d *Dir) load(abs, rel string) (models.CatalogEntry, bool) {
	data, err := os.ReadFile(abs)
	if err != nil {
		d.logger.Warn("catalog: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return models.CatalogEntry{}, false
	}
	cs := checksum.Sum(data)
	if pf, ok := d.parsed[rel]; ok && pf.checksum == cs {
		return pf.entry, true
	}

	stem := strings.TrimSuffix(filepath.Base(rel), ".md")
	entry, err := Parse(stem, data)
	if err != nil {
		delete(d.parsed, rel)
		d.logger.Warn("catalog: parse failed", slog.String("path", rel), slog.String("error", err.Error()))
		return models.CatalogEntry{}, false
	}
	d.parsed[rel] = parsedFile{checksum: cs, entry: entry}
	d.logger.Debug("catalog: parsed", slog.String("path", rel), slog.String("id", entry.ID))
	return entry, true
}
