// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes memewatch tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/memewatch/internal/catalog"
	"github.com/starford/memewatch/internal/memeservice"
	"github.com/starford/memewatch/internal/models"
)

var entryIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,127}$`)

// Server wraps the MCP server with memewatch tools.
type Server struct {
	mcp        *server.MCPServer
	svc        *memeservice.Service
	catalogDir string
}

// New creates a new MCP server with all memewatch tools registered.
// catalogDir is where create_entry writes files; empty disables the tool.
func New(svc *memeservice.Service, catalogDir string) *Server {
	s := &Server{svc: svc, catalogDir: catalogDir}

	s.mcp = server.NewMCPServer(
		"Memewatch",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("scan_text",
		mcp.WithDescription("Score a piece of text against the meme catalog and return the ranked matches. "+
			"No cooldown applies and nothing is recorded."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to scan")),
		mcp.WithString("scoring", mcp.Description("Scoring policy: frequency, presence or similarity")),
	), s.scanText)

	s.mcp.AddTool(mcp.NewTool("list_catalog",
		mcp.WithDescription("List catalog entries as id, name and keywords. "+
			"The selection may limit which of them detectors use; see get_selection."),
		mcp.WithString("query", mcp.Description("Only entries whose id, name or a keyword contains this text")),
	), s.listCatalog)

	s.mcp.AddTool(mcp.NewTool("get_selection",
		mcp.WithDescription("Show which catalog entries detectors are limited to. An empty selection means all entries."),
	), s.getSelection)

	s.mcp.AddTool(mcp.NewTool("set_selection",
		mcp.WithDescription("Limit detectors to the given catalog entries. Open pages switch immediately. "+
			"Pass an empty string to use the whole catalog again."),
		mcp.WithString("ids", mcp.Required(), mcp.Description("Comma-separated entry IDs")),
	), s.setSelection)

	s.mcp.AddTool(mcp.NewTool("create_entry",
		mcp.WithDescription("Add a catalog entry as a new Markdown file. "+
			"Read the format first via get_catalog_format or the memewatch://catalog-format resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entry ID, lowercase kebab-case; also the file name")),
		mcp.WithString("keywords", mcp.Required(), mcp.Description("Comma-separated keywords")),
		mcp.WithString("name", mcp.Description("Display name")),
		mcp.WithString("media", mcp.Description("Media reference the overlay plays")),
	), s.createEntry)

	s.mcp.AddTool(mcp.NewTool("get_catalog_format",
		mcp.WithDescription("Returns the catalog entry file format."),
	), s.getCatalogFormat)

	s.mcp.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Detection counts per catalog entry, most detected first."),
	), s.getStats)

	s.mcp.AddTool(mcp.NewTool("recent_detections",
		mcp.WithDescription("The latest detections across all pages, newest first."),
	), s.recentDetections)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List open page sessions and their detector state."),
	), s.listPages)

	// Resource: catalog format contract.
	s.mcp.AddResource(
		mcp.NewResource("memewatch://catalog-format", "Catalog Format Contract",
			mcp.WithResourceDescription("Markdown format of catalog entry files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCatalogFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) scanText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scoring := ""
	if v, sErr := req.RequireString("scoring"); sErr == nil {
		scoring = v
	}

	res, err := s.svc.Scan(ctx, memeservice.ScanRequest{Text: text, Scoring: scoring})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) listCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := ""
	if v, err := req.RequireString("query"); err == nil {
		query = v
	}
	entries := s.svc.FindCatalog(ctx, query, 0)
	if len(entries) == 0 {
		if query != "" {
			return mcp.NewToolResultText("no matching entries"), nil
		}
		return mcp.NewToolResultText("catalog is empty"), nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", e.ID, e.Name, strings.Join(e.Keywords, ", ")))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) createEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.catalogDir == "" {
		return mcp.NewToolResultError("catalog is read-only"), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !entryIDRe.MatchString(id) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid id %q: use lowercase letters, digits, - and _", id)), nil
	}
	rawKeywords, err := req.RequireString("keywords")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry := models.CatalogEntry{ID: id, Keywords: splitKeywords(rawKeywords)}
	if !entry.Detectable() {
		return mcp.NewToolResultError("at least one keyword is required"), nil
	}
	if v, nErr := req.RequireString("name"); nErr == nil {
		entry.Name = strings.TrimSpace(v)
	}
	if v, mErr := req.RequireString("media"); mErr == nil {
		entry.MediaRef = strings.TrimSpace(v)
	}
	for _, e := range s.svc.Catalog(ctx) {
		if e.ID == id {
			return mcp.NewToolResultError(fmt.Sprintf("entry already exists: %s", id)), nil
		}
	}

	data, err := catalog.Format(entry)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path := filepath.Join(s.catalogDir, id+".md")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return mcp.NewToolResultError(fmt.Sprintf("file already exists: %s.md", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, err = f.Write(data)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, _, err := s.svc.RefreshCatalog(ctx, true); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("created %s.md but refresh failed: %v", id, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s.md", id)), nil
}

func (s *Server) getSelection(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return selectionResult(s.svc.Selection(), len(s.svc.ActiveCatalog())), nil
}

func (s *Server) setSelection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids, err := s.svc.SetSelection(ctx, strings.Split(raw, ","))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return selectionResult(ids, len(s.svc.ActiveCatalog())), nil
}

func selectionResult(ids []string, active int) *mcp.CallToolResult {
	if len(ids) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no selection: all %d entries active", active))
	}
	return mcp.NewToolResultText(fmt.Sprintf("selected: %s (%d active)", strings.Join(ids, ", "), active))
}

func (s *Server) getCatalogFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CatalogFormatContract), nil
}

func (s *Server) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.svc.Stats(ctx, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sum), nil
}

func (s *Server) recentDetections(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dets, err := s.svc.Recent(ctx, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(dets) == 0 {
		return mcp.NewToolResultText("no detections yet"), nil
	}
	return jsonResult(dets), nil
}

func (s *Server) listPages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.ListPages()), nil
}

func (s *Server) readCatalogFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "memewatch://catalog-format",
			MIMEType: "text/markdown",
			Text:     CatalogFormatContract,
		},
	}, nil
}

func splitKeywords(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
