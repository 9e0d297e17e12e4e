package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/memewatch/internal/apperr"
	"github.com/starford/memewatch/internal/checksum"
	"github.com/starford/memewatch/internal/models"
)

// UsageRow is the aggregated usage of one catalog entry.
type UsageRow struct {
	EntryID   string    `json:"entry_id"`
	EntryName string    `json:"entry_name"`
	Count     int       `json:"count"`
	LastSeen  time.Time `json:"last_seen"`
}

// CatalogSnapshot is the cached copy of the last good catalog.
type CatalogSnapshot struct {
	Entries  []models.CatalogEntry
	Checksum string
	SavedAt  time.Time
}

// Record appends a detection to the event log and bumps the entry's usage
// counter. Recording the same detection ID twice is a no-op.
func (db *DB) Record(ctx context.Context, det models.Detection) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	kwJSON, _ := json.Marshal(det.MatchedKeywords)
	at := det.At.UTC()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO detections (id, page_id, entry_id, entry_name, score, keywords, origin, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, det.ID, det.PageID, det.Entry.ID, det.Entry.Name, det.Score, string(kwJSON), det.Origin, at)
	if err != nil {
		return fmt.Errorf("store: insert detection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage (entry_id, entry_name, count, last_seen)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			entry_name = excluded.entry_name,
			count      = usage.count + 1,
			last_seen  = MAX(usage.last_seen, excluded.last_seen)
	`, det.Entry.ID, det.Entry.Name, at)
	if err != nil {
		return fmt.Errorf("store: bump usage: %w", err)
	}

	return tx.Commit()
}

// Usage returns per-entry counts, most used first.
func (db *DB) Usage(ctx context.Context, limit int) ([]UsageRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT entry_id, entry_name, count, last_seen
		FROM usage
		ORDER BY count DESC, entry_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: usage: %w", err)
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var r UsageRow
		if err := rows.Scan(&r.EntryID, &r.EntryName, &r.Count, &r.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Total returns the number of recorded detections.
func (db *DB) Total(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM detections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: total: %w", err)
	}
	return n, nil
}

// CountSince returns the number of detections at or after since.
func (db *DB) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM detections WHERE detected_at >= ?`, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count since: %w", err)
	}
	return n, nil
}

// Recent returns the latest detections, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]models.Detection, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, page_id, entry_id, entry_name, score, keywords, origin, detected_at
		FROM detections
		ORDER BY detected_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []models.Detection
	for rows.Next() {
		var (
			d      models.Detection
			kwJSON string
		)
		if err := rows.Scan(&d.ID, &d.PageID, &d.Entry.ID, &d.Entry.Name, &d.Score, &kwJSON, &d.Origin, &d.At); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(kwJSON), &d.MatchedKeywords)
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveCatalog replaces the cached catalog snapshot. An unchanged catalog
// only refreshes saved_at.
func (db *DB) SaveCatalog(ctx context.Context, entries []models.CatalogEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("store: encode catalog: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO catalog_cache (id, checksum, entries, saved_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			checksum = excluded.checksum,
			entries  = excluded.entries,
			saved_at = excluded.saved_at
	`, checksum.Catalog(entries), string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: save catalog: %w", err)
	}
	return nil
}

// LoadCatalog returns the cached catalog snapshot, or apperr.ErrNotFound
// if nothing has been saved yet.
func (db *DB) LoadCatalog(ctx context.Context) (*CatalogSnapshot, error) {
	var (
		snap CatalogSnapshot
		data string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT checksum, entries, saved_at FROM catalog_cache WHERE id = 1`,
	).Scan(&snap.Checksum, &data, &snap.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load catalog: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &snap.Entries); err != nil {
		return nil, fmt.Errorf("store: decode catalog: %w", err)
	}
	return &snap, nil
}

// LoadSelection returns the selected entry IDs in the order they were saved.
func (db *DB) LoadSelection(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT entry_id FROM selected_entries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("store: load selection: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan selection: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveSelection replaces the stored selection with ids.
func (db *DB) SaveSelection(ctx context.Context, ids []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM selected_entries`); err != nil {
		return fmt.Errorf("store: clear selection: %w", err)
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO selected_entries (entry_id, position) VALUES (?, ?) ON CONFLICT(entry_id) DO NOTHING`,
			id, i); err != nil {
			return fmt.Errorf("store: insert selection: %w", err)
		}
	}
	return tx.Commit()
}
