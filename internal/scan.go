package internal

import (
	"context"
	"fmt"
	"io"

	"github.com/starford/memewatch/internal/catalog"
	"github.com/starford/memewatch/internal/memeservice"
	"github.com/starford/memewatch/internal/pages"
)

// ScanInput is a one-shot scan of a document against the catalog directory.
type ScanInput struct {
	Reader  io.Reader
	HTML    bool
	Scoring string
}

// Scan scores one document without opening the stats store or starting a
// server. No cooldown applies.
func Scan(ctx context.Context, in ScanInput, opts ...Option) (*memeservice.ScanResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(app.config, app.logOutput)

	data, err := io.ReadAll(in.Reader)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	dir, err := catalog.NewDir(app.config.Catalog.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	reg := pages.NewRegistry(nil, app.config.Detection.DetectorConfig(), pages.WithLogger(logger))
	defer reg.CloseAll()

	svc := memeservice.NewService(dir, reg, nil, logger)
	if _, _, err := svc.RefreshCatalog(ctx, false); err != nil {
		return nil, err
	}

	req := memeservice.ScanRequest{Scoring: in.Scoring}
	if in.HTML {
		req.HTML = string(data)
	} else {
		req.Text = string(data)
	}
	return svc.Scan(ctx, req)
}
