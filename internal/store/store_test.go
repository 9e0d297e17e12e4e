package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/memewatch/internal/apperr"
	"github.com/starford/memewatch/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "memewatch-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func det(id, entryID string, at time.Time) models.Detection {
	return models.Detection{
		ID:              id,
		PageID:          "page-1",
		Entry:           models.CatalogEntry{ID: entryID, Name: "Entry " + entryID},
		Score:           2,
		MatchedKeywords: []string{"distracted", "boyfriend"},
		Origin:          models.OriginPage,
		At:              at,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"detections", "usage", "catalog_cache", "selected_entries"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestRecord_UsageAndTotal(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_ = db.Record(ctx, det("a", "1", base))
	_ = db.Record(ctx, det("b", "1", base.Add(time.Minute)))
	_ = db.Record(ctx, det("c", "2", base.Add(2*time.Minute)))

	total, err := db.Total(ctx)
	if err != nil {
		t.Fatalf("Total: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	usage, err := db.Usage(ctx, 10)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("usage rows = %d, want 2", len(usage))
	}
	if usage[0].EntryID != "1" || usage[0].Count != 2 {
		t.Errorf("top usage = %+v, want entry 1 with count 2", usage[0])
	}
	if !usage[0].LastSeen.Equal(base.Add(time.Minute)) {
		t.Errorf("last_seen = %v, want %v", usage[0].LastSeen, base.Add(time.Minute))
	}
}

func TestCountSince(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	midnight := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	_ = db.Record(ctx, det("yesterday", "1", midnight.Add(-time.Minute)))
	_ = db.Record(ctx, det("at-midnight", "1", midnight))
	_ = db.Record(ctx, det("later", "2", midnight.Add(5*time.Hour)))

	n, err := db.CountSince(ctx, midnight)
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	// A non-UTC bound compares against the same instant.
	east := time.FixedZone("UTC+3", 3*60*60)
	if n, _ := db.CountSince(ctx, midnight.In(east)); n != 2 {
		t.Errorf("count with zoned bound = %d, want 2", n)
	}
}

func TestRecord_DuplicateIDIsIgnored(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	d := det("same", "1", time.Now())

	if err := db.Record(ctx, d); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := db.Record(ctx, d); err != nil {
		t.Fatalf("Record duplicate: %v", err)
	}
	usage, _ := db.Usage(ctx, 10)
	if len(usage) != 1 || usage[0].Count != 1 {
		t.Errorf("usage = %+v, want a single count", usage)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_ = db.Record(ctx, det("old", "1", base))
	_ = db.Record(ctx, det("new", "2", base.Add(time.Hour)))

	recent, err := db.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "new" {
		t.Fatalf("recent = %+v, want only the newest", recent)
	}
	if got := recent[0].MatchedKeywords; len(got) != 2 || got[0] != "distracted" {
		t.Errorf("keywords = %v", got)
	}
	if recent[0].Entry.Name != "Entry 2" {
		t.Errorf("entry name = %q", recent[0].Entry.Name)
	}
}

func TestCatalogCache_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.LoadCatalog(ctx); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("empty cache err = %v, want ErrNotFound", err)
	}

	first := []models.CatalogEntry{{ID: "1", Name: "One", Keywords: []string{"a"}}}
	second := []models.CatalogEntry{{ID: "2", Name: "Two", Keywords: []string{"b"}, MediaRef: "two.mp4"}}
	if err := db.SaveCatalog(ctx, first); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}
	if err := db.SaveCatalog(ctx, second); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}

	snap, err := db.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].ID != "2" || snap.Entries[0].MediaRef != "two.mp4" {
		t.Errorf("entries = %+v, want the latest snapshot", snap.Entries)
	}
	if snap.Checksum == "" {
		t.Error("checksum should be set")
	}
}

func TestSelection_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ids, err := db.LoadSelection(ctx)
	if err != nil {
		t.Fatalf("LoadSelection: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("empty selection = %v", ids)
	}

	if err := db.SaveSelection(ctx, []string{"2", "1"}); err != nil {
		t.Fatalf("SaveSelection: %v", err)
	}
	if err := db.SaveSelection(ctx, []string{"3", "1"}); err != nil {
		t.Fatalf("SaveSelection: %v", err)
	}
	ids, _ = db.LoadSelection(ctx)
	if len(ids) != 2 || ids[0] != "3" || ids[1] != "1" {
		t.Errorf("selection = %v, want [3 1]", ids)
	}

	if err := db.SaveSelection(ctx, nil); err != nil {
		t.Fatalf("SaveSelection(nil): %v", err)
	}
	if ids, _ = db.LoadSelection(ctx); len(ids) != 0 {
		t.Errorf("cleared selection = %v", ids)
	}
}
