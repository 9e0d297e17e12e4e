package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/memewatch/internal/apperr"
	"github.com/starford/memewatch/internal/memeservice"
	"github.com/starford/memewatch/internal/pages"
)

// Handler holds API route handlers.
type Handler struct {
	svc *memeservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *memeservice.Service) *Handler {
	return &Handler{svc: svc}
}

// fail maps domain errors to HTTP statuses.
func fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrEmptyCatalog), errors.Is(err, apperr.ErrInactive):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("catalog unavailable"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) (*pages.Page, bool) {
	p, err := h.svc.Pages().Get(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, "get page", err)
		return nil, false
	}
	return p, true
}

// Catalog handles GET /api/catalog.
//
//	@Summary		List or search the catalog
//	@Description	q matches entry IDs, names and keywords case-insensitively.
//	@Tags			catalog
//	@Produce		json
//	@Param			q		query		string	false	"Search text"
//	@Param			limit	query		int		false	"Maximum entries returned"
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/catalog [get]
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries := h.svc.FindCatalog(r.Context(), r.URL.Query().Get("q"), limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   len(entries),
		"active":  len(h.svc.ActiveCatalog()),
	})
}

// CatalogEntry handles GET /api/catalog/{id}.
//
//	@Summary		Get one catalog entry
//	@Tags			catalog
//	@Produce		json
//	@Param			id	path		string	true	"Entry ID"
//	@Success		200	{object}	models.CatalogEntry
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/{id} [get]
func (h *Handler) CatalogEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.CatalogEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, "get catalog entry", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetSelection handles GET /api/catalog/selection.
//
//	@Summary		Get the entries detectors are limited to
//	@Description	An empty list means every catalog entry is active.
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	SelectionResponse
//	@Security		BearerAuth
//	@Router			/catalog/selection [get]
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.selectionResponse(h.svc.Selection()))
}

// PutSelection handles PUT /api/catalog/selection.
//
//	@Summary		Limit detectors to the given entries
//	@Description	An empty list clears the selection. Open pages switch immediately.
//	@Tags			catalog
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SelectionRequest	true	"Selected entry IDs"
//	@Success		200		{object}	SelectionResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/selection [put]
func (h *Handler) PutSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ids, err := h.svc.SetSelection(r.Context(), req.IDs)
	if err != nil {
		fail(w, "set selection", err)
		return
	}
	writeJSON(w, http.StatusOK, h.selectionResponse(ids))
}

func (h *Handler) selectionResponse(ids []string) SelectionResponse {
	if ids == nil {
		ids = []string{}
	}
	return SelectionResponse{IDs: ids, Active: len(h.svc.ActiveCatalog())}
}

// RefreshCatalog handles POST /api/catalog/refresh.
//
//	@Summary		Reload the catalog from its source
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/refresh [post]
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	entries, changed, err := h.svc.RefreshCatalog(r.Context(), true)
	if err != nil {
		fail(w, "refresh catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(entries),
		"changed": changed,
	})
}

// Scan handles POST /api/scan.
//
//	@Summary		Score text or HTML against the catalog without cooldown
//	@Tags			detection
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScanRequest	true	"Text to score"
//	@Success		200		{object}	ScanResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Scan(r.Context(), memeservice.ScanRequest{Text: req.Text, HTML: req.HTML, Scoring: req.Scoring})
	if err != nil {
		fail(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListPages handles GET /api/pages.
//
//	@Summary		List open page sessions
//	@Tags			pages
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pages": h.svc.ListPages(),
	})
}

// OpenPage handles POST /api/pages.
//
//	@Summary		Open a page session and start its detector
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenPageRequest	true	"Page to open"
//	@Success		201		{object}	PageInfo
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages [post]
func (h *Handler) OpenPage(w http.ResponseWriter, r *http.Request) {
	var req OpenPageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.Pages().Open(req.toDomain())
	if err != nil {
		fail(w, "open page", err)
		return
	}
	writeJSON(w, http.StatusCreated, p.Info())
}

// GetPage handles GET /api/pages/{id}.
//
//	@Summary		Get a page's detector state
//	@Tags			pages
//	@Produce		json
//	@Param			id	path		string	true	"Page ID"
//	@Success		200	{object}	PageInfo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.page(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.Info())
}

// ClosePage handles DELETE /api/pages/{id}.
//
//	@Summary		Close a page session and tear down its detector
//	@Tags			pages
//	@Param			id	path	string	true	"Page ID"
//	@Success		204	"Page closed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id} [delete]
func (h *Handler) ClosePage(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Pages().Close(chi.URLParam(r, "id")); err != nil {
		fail(w, "close page", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceSnapshot handles PUT /api/pages/{id}/snapshot.
//
//	@Summary		Replace the page's HTML snapshot
//	@Tags			pages
//	@Accept			json
//	@Param			id		path	string			true	"Page ID"
//	@Param			body	body	SnapshotRequest	true	"New snapshot"
//	@Success		204		"Snapshot stored"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id}/snapshot [put]
func (h *Handler) ReplaceSnapshot(w http.ResponseWriter, r *http.Request) {
	p, ok := h.page(w, r)
	if !ok {
		return
	}
	var req SnapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p.ReplaceHTML(req.HTML, req.Rescan)
	w.WriteHeader(http.StatusNoContent)
}

// Mutations handles POST /api/pages/{id}/mutations.
//
//	@Summary		Report a DOM mutation batch
//	@Tags			pages
//	@Accept			json
//	@Param			id		path	string				true	"Page ID"
//	@Param			body	body	MutationsRequest	true	"Mutation batch"
//	@Success		202		"Batch accepted"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id}/mutations [post]
func (h *Handler) Mutations(w http.ResponseWriter, r *http.Request) {
	p, ok := h.page(w, r)
	if !ok {
		return
	}
	var req MutationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p.Mutations(req.HTML, req.Mutations)
	w.WriteHeader(http.StatusAccepted)
}

// Input handles POST /api/pages/{id}/inputs.
//
//	@Summary		Report a live input value
//	@Tags			pages
//	@Accept			json
//	@Param			id		path	string			true	"Page ID"
//	@Param			body	body	InputRequest	true	"Input event"
//	@Success		202		"Input accepted"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id}/inputs [post]
func (h *Handler) Input(w http.ResponseWriter, r *http.Request) {
	p, ok := h.page(w, r)
	if !ok {
		return
	}
	var req InputRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p.Input(req.toDomain())
	w.WriteHeader(http.StatusAccepted)
}

// Visibility handles POST /api/pages/{id}/visibility.
//
//	@Summary		Report page visibility
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Page ID"
//	@Param			body	body		VisibilityRequest	true	"Visibility"
//	@Success		200		{object}	PageInfo
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id}/visibility [post]
func (h *Handler) Visibility(w http.ResponseWriter, r *http.Request) {
	p, ok := h.page(w, r)
	if !ok {
		return
	}
	var req VisibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p.SetVisible(*req.Visible)
	writeJSON(w, http.StatusOK, p.Info())
}

// StartPage handles POST /api/pages/{id}/start.
//
//	@Summary		Start the page's detector
//	@Tags			pages
//	@Produce		json
//	@Param			id	path		string	true	"Page ID"
//	@Success		200	{object}	PageInfo
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse	"Catalog empty or detection disabled"
//	@Security		BearerAuth
//	@Router			/pages/{id}/start [post]
func (h *Handler) StartPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.page(w, r)
	if !ok {
		return
	}
	if err := p.Start(); err != nil {
		fail(w, "start page", err)
		return
	}
	writeJSON(w, http.StatusOK, p.Info())
}

// StopPage handles POST /api/pages/{id}/stop.
//
//	@Summary		Stop the page's detector
//	@Tags			pages
//	@Produce		json
//	@Param			id	path		string	true	"Page ID"
//	@Success		200	{object}	PageInfo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id}/stop [post]
func (h *Handler) StopPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.page(w, r)
	if !ok {
		return
	}
	p.Stop()
	writeJSON(w, http.StatusOK, p.Info())
}

// ScanPage handles POST /api/pages/{id}/scan.
//
//	@Summary		Run a page scan now
//	@Tags			pages
//	@Produce		json
//	@Param			id	path		string	true	"Page ID"
//	@Success		200	{object}	PageInfo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id}/scan [post]
func (h *Handler) ScanPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.page(w, r)
	if !ok {
		return
	}
	p.Detector().ScanNow()
	writeJSON(w, http.StatusOK, p.Info())
}

// Stats handles GET /api/stats.
//
//	@Summary		Detection counts per catalog entry
//	@Tags			stats
//	@Produce		json
//	@Param			limit	query		int	false	"Max entries"
//	@Success		200		{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sum, err := h.svc.Stats(r.Context(), limit)
	if err != nil {
		fail(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// RecentDetections handles GET /api/stats/recent.
//
//	@Summary		Latest detections, newest first
//	@Tags			stats
//	@Produce		json
//	@Param			limit	query		int	false	"Max detections"
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/stats/recent [get]
func (h *Handler) RecentDetections(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	dets, err := h.svc.Recent(r.Context(), limit)
	if err != nil {
		fail(w, "recent detections", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detections": dets,
	})
}

// GetConfig handles GET /api/config.
//
//	@Summary		Current detection configuration
//	@Tags			config
//	@Produce		json
//	@Success		200	{object}	ConfigResponse
//	@Security		BearerAuth
//	@Router			/config [get]
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ConfigResponse{
		Detection:   settingsFromConfig(h.svc.DetectionConfig()),
		CatalogSize: len(h.svc.Catalog(r.Context())),
		Pages:       len(h.svc.Pages().List()),
	})
}

// UpdateDetectionConfig handles PUT /api/config/detection.
//
//	@Summary		Change detection settings for every page
//	@Tags			config
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DetectionSettings	true	"Fields to change"
//	@Success		200		{object}	DetectionSettings
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/config/detection [put]
func (h *Handler) UpdateDetectionConfig(w http.ResponseWriter, r *http.Request) {
	var req DetectionSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg := req.apply(h.svc.DetectionConfig())
	if err := h.svc.UpdateDetectionConfig(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, settingsFromConfig(h.svc.DetectionConfig()))
}
