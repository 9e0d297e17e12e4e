package internal

import (
	"context"
	"log/slog"

	"github.com/starford/memewatch/internal/mcpserver"
)

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, app.logOutput)

	c, err := newCore(ctx, app.config, logger, nil, nil)
	if err != nil {
		return err
	}
	defer c.close()

	logger.Info("MCP server starting", slog.String("catalog_path", c.dir.Root()))
	return mcpserver.New(c.svc, c.dir.Root()).ServeStdio()
}
