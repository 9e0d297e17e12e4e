package scheduler

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/starford/memewatch/internal/cooldown"
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type pageDoc struct {
	mu   sync.Mutex
	html string
}

func (p *pageDoc) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *pageDoc) set(html string) {
	p.mu.Lock()
	p.html = html
	p.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type collector struct {
	mu   sync.Mutex
	dets []models.Detection
}

func (c *collector) add(d models.Detection) {
	c.mu.Lock()
	c.dets = append(c.dets, d)
	c.mu.Unlock()
}

func (c *collector) all() []models.Detection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Detection(nil), c.dets...)
}

var bfCatalog = []models.CatalogEntry{
	{ID: "1", Name: "Distracted BF", Keywords: []string{"distracted", "boyfriend"}},
}

// quietConfig disables periodic scans so tests control every cycle.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.ScanInterval = time.Hour
	cfg.Debounce = time.Hour
	return cfg
}

func newDetector(t *testing.T, doc *pageDoc, opts ...Option) (*Detector, *collector) {
	t.Helper()
	d, err := New("page-1", doc, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Close)
	c := &collector{}
	d.OnDetection(c.add)
	return d, c
}

func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestScenario_DistractedBoyfriend(t *testing.T) {
	doc := &pageDoc{html: "<body><p>That distracted boyfriend meme is so real</p></body>"}
	d, c := newDetector(t, doc, WithConfig(quietConfig()), WithCatalog(bfCatalog))

	d.Start()
	if !d.IsActive() {
		t.Fatal("detector should be active")
	}

	dets := c.all()
	if len(dets) != 1 {
		t.Fatalf("detections = %d, want 1", len(dets))
	}
	got := dets[0]
	if got.Entry.ID != "1" || got.Origin != models.OriginPage || got.PageID != "page-1" {
		t.Errorf("detection = %+v", got)
	}
	if strings.Join(got.MatchedKeywords, ",") != "distracted,boyfriend" {
		t.Errorf("matched = %v", got.MatchedKeywords)
	}
	if got.ID == "" {
		t.Error("detection should carry an id")
	}
}

func TestScenario_SecondScanInsideCooldownSuppressed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	cfg := quietConfig()
	cfg.Cooldown = 15 * time.Second
	doc := &pageDoc{html: "<body>that distracted boyfriend meme is so real</body>"}
	d, c := newDetector(t, doc, WithConfig(cfg), WithCatalog(bfCatalog), WithClock(clock.Now))

	d.Start()
	clock.Advance(5 * time.Second)
	d.ScanNow()
	if n := len(c.all()); n != 1 {
		t.Fatalf("detections after 5s = %d, want 1", n)
	}

	clock.Advance(10 * time.Second)
	d.ScanNow()
	if n := len(c.all()); n != 2 {
		t.Errorf("detections after window = %d, want 2", n)
	}
	if s := d.Snapshot(); s.Scans != 3 {
		t.Errorf("scans = %d, want 3", s.Scans)
	}
}

func TestStart_NoopWhenMisconfigured(t *testing.T) {
	doc := &pageDoc{html: "<body>distracted</body>"}

	empty, c := newDetector(t, doc, WithConfig(quietConfig()))
	empty.Start()
	if empty.IsActive() {
		t.Error("empty catalog must not activate")
	}

	cfg := quietConfig()
	cfg.Enabled = false
	disabled, c2 := newDetector(t, doc, WithConfig(cfg), WithCatalog(bfCatalog))
	disabled.Start()
	if disabled.IsActive() {
		t.Error("disabled detection must not activate")
	}
	if len(c.all())+len(c2.all()) != 0 {
		t.Error("inactive detectors must not report")
	}

	// A catalog arriving later does not retroactively start the detector.
	empty.UpdateCatalog(bfCatalog)
	if empty.IsActive() {
		t.Error("start was a no-op and must stay one")
	}
}

func TestPeriodicScans(t *testing.T) {
	cfg := quietConfig()
	cfg.ScanInterval = 20 * time.Millisecond
	d, _ := newDetector(t, &pageDoc{html: "<body>nothing here</body>"}, WithConfig(cfg), WithCatalog(bfCatalog))

	d.Start()
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return d.Snapshot().Scans >= 4
	}, "expected periodic scans")
}

func TestStop_CancelsPendingTimers(t *testing.T) {
	cfg := quietConfig()
	cfg.ScanInterval = 20 * time.Millisecond
	cfg.Debounce = 20 * time.Millisecond
	d, _ := newDetector(t, &pageDoc{html: "<body>idle</body>"}, WithConfig(cfg), WithCatalog(bfCatalog))

	d.Start()
	d.NotifyMutations([]models.Mutation{{Op: models.OpText, NodeID: "n1"}})
	d.Stop()
	if d.IsActive() {
		t.Fatal("stopped detector reports active")
	}
	before := d.Snapshot().Scans

	time.Sleep(120 * time.Millisecond)
	if after := d.Snapshot().Scans; after != before {
		t.Errorf("scans after stop = %d, want %d", after, before)
	}

	d.ScanNow()
	d.NotifyMutations([]models.Mutation{{Op: models.OpText, NodeID: "n1"}})
	time.Sleep(60 * time.Millisecond)
	if after := d.Snapshot().Scans; after != before {
		t.Errorf("idle detector scanned: %d, want %d", after, before)
	}
}

func TestMutations_DebounceCoalescesBursts(t *testing.T) {
	cfg := quietConfig()
	cfg.Debounce = 60 * time.Millisecond
	doc := &pageDoc{html: "<body>static</body>"}
	d, c := newDetector(t, doc, WithConfig(cfg), WithCatalog(bfCatalog))

	d.Start()
	doc.set("<body>static, then a distracted boyfriend appears</body>")
	for i := 0; i < 5; i++ {
		d.NotifyMutations([]models.Mutation{{Op: models.OpInsert, NodeID: "n", Tag: "p"}})
	}

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return d.Snapshot().Scans == 2
	}, "expected one debounced scan after the burst")

	time.Sleep(150 * time.Millisecond)
	if s := d.Snapshot().Scans; s != 2 {
		t.Errorf("scans = %d, want 2 (activation + one debounced)", s)
	}
	if n := len(c.all()); n != 1 {
		t.Errorf("detections = %d, want 1 from the mutated page", n)
	}
}

func TestMutations_MaintainInputTracking(t *testing.T) {
	d, _ := newDetector(t, &pageDoc{html: `<body><textarea id="seed"></textarea></body>`},
		WithConfig(quietConfig()), WithCatalog(bfCatalog))
	d.Start()
	if n := d.Snapshot().TrackedInputs; n != 1 {
		t.Fatalf("seeded inputs = %d, want 1", n)
	}

	d.NotifyMutations([]models.Mutation{
		{Op: models.OpInsert, NodeID: "comment", Tag: "input", InputType: "text"},
		{Op: models.OpInsert, NodeID: "pw", Tag: "input", InputType: "password"},
		{Op: models.OpInsert, NodeID: "para", Tag: "p"},
	})
	if n := d.Snapshot().TrackedInputs; n != 2 {
		t.Errorf("tracked = %d, want 2", n)
	}

	d.NotifyMutations([]models.Mutation{{Op: models.OpRemove, NodeID: "seed"}})
	if n := d.Snapshot().TrackedInputs; n != 1 {
		t.Errorf("tracked after removal = %d, want 1", n)
	}
}

func TestInputChanged_ScansOnlyOnChange(t *testing.T) {
	cfg := quietConfig()
	cfg.Cooldown = 0
	d, c := newDetector(t, &pageDoc{html: "<body>plain page</body>"}, WithConfig(cfg), WithCatalog(bfCatalog))
	d.Start()
	base := d.Snapshot().Scans

	ev := models.InputEvent{NodeID: "box", Tag: "textarea", Value: "my Boyfriend is distracted"}
	d.InputChanged(ev)
	d.InputChanged(ev)

	if s := d.Snapshot().Scans; s != base+1 {
		t.Errorf("scans = %d, want %d", s, base+1)
	}
	dets := c.all()
	if len(dets) != 1 || dets[0].Origin != models.OriginInput {
		t.Fatalf("detections = %+v", dets)
	}
	if strings.Join(dets[0].MatchedKeywords, ",") != "distracted,boyfriend" {
		t.Errorf("matched = %v", dets[0].MatchedKeywords)
	}
}

func TestInputChanged_SharesCooldownWithPage(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	cfg := quietConfig()
	cfg.Cooldown = 15 * time.Second
	d, c := newDetector(t, &pageDoc{html: "<body>distracted</body>"},
		WithConfig(cfg), WithCatalog(bfCatalog), WithClock(clock.Now))
	d.Start()

	clock.Advance(time.Second)
	d.InputChanged(models.InputEvent{NodeID: "q", Tag: "input", Value: "boyfriend"})
	if n := len(c.all()); n != 1 {
		t.Errorf("detections = %d, want 1 (input scan blocked by page cooldown)", n)
	}
}

func TestPerEntryCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	cfg := quietConfig()
	cfg.CooldownPolicy = cooldown.PerEntry
	catalog := []models.CatalogEntry{
		{ID: "doge", Keywords: []string{"doge"}},
		{ID: "nyan", Keywords: []string{"nyan"}},
	}
	d, c := newDetector(t, &pageDoc{html: "<body></body>"},
		WithConfig(cfg), WithCatalog(catalog), WithClock(clock.Now))
	d.Start()

	d.InputChanged(models.InputEvent{NodeID: "q", Tag: "input", Value: "doge"})
	clock.Advance(time.Second)
	d.InputChanged(models.InputEvent{NodeID: "q", Tag: "input", Value: "nyan"})
	clock.Advance(time.Second)
	d.InputChanged(models.InputEvent{NodeID: "q", Tag: "input", Value: "doge again"})

	var ids []string
	for _, det := range c.all() {
		ids = append(ids, det.Entry.ID)
	}
	if strings.Join(ids, ",") != "doge,nyan" {
		t.Errorf("detections = %v, want doge,nyan", ids)
	}
}

func TestFrequencyRankingReportsStrongestEntry(t *testing.T) {
	catalog := []models.CatalogEntry{
		{ID: "B", Keywords: []string{"y"}},
		{ID: "A", Keywords: []string{"x"}},
	}
	d, c := newDetector(t, &pageDoc{html: "<body>x y x x</body>"}, WithConfig(quietConfig()), WithCatalog(catalog))
	d.Start()

	dets := c.all()
	if len(dets) != 1 || dets[0].Entry.ID != "A" {
		t.Errorf("detections = %+v, want A", dets)
	}
}

func TestTextCap(t *testing.T) {
	html := "<body>" + strings.Repeat("z", models.DefaultMaxTextLength) + " distracted boyfriend</body>"
	d, c := newDetector(t, &pageDoc{html: html}, WithConfig(quietConfig()), WithCatalog(bfCatalog))
	d.Start()
	if n := len(c.all()); n != 0 {
		t.Errorf("keyword past the cap matched: %d detections", n)
	}
}

func TestVisibility(t *testing.T) {
	doc := &pageDoc{html: "<body>nothing</body>"}
	d, _ := newDetector(t, doc, WithConfig(quietConfig()), WithCatalog(bfCatalog))
	d.Start()

	d.SetVisible(false)
	if d.IsActive() {
		t.Fatal("hidden page must be idle")
	}
	before := d.Snapshot().Scans
	d.ScanNow()
	if d.Snapshot().Scans != before {
		t.Error("hidden page scanned")
	}

	d.SetVisible(true)
	if !d.IsActive() {
		t.Fatal("visible page should resume")
	}
	if d.Snapshot().Scans != before+1 {
		t.Error("re-activation should scan immediately")
	}
}

func TestUpdateCatalogBetweenScans(t *testing.T) {
	cfg := quietConfig()
	cfg.Cooldown = 0
	doc := &pageDoc{html: "<body>much doge</body>"}
	d, c := newDetector(t, doc, WithConfig(cfg), WithCatalog(bfCatalog))
	d.Start()
	if len(c.all()) != 0 {
		t.Fatal("unexpected detection")
	}

	d.UpdateCatalog([]models.CatalogEntry{{ID: "doge", Keywords: []string{"doge"}}})
	d.ScanNow()
	dets := c.all()
	if len(dets) != 1 || dets[0].Entry.ID != "doge" {
		t.Errorf("detections = %+v", dets)
	}
}

func TestUpdateConfig(t *testing.T) {
	d, _ := newDetector(t, &pageDoc{html: "<body></body>"}, WithConfig(quietConfig()), WithCatalog(bfCatalog))
	d.Start()

	bad := quietConfig()
	bad.Scoring = "telepathy"
	if err := d.UpdateConfig(bad); err == nil {
		t.Error("invalid scoring policy should be rejected")
	}
	if !d.IsActive() {
		t.Error("rejected config must not change state")
	}

	next := quietConfig()
	next.Scoring = "presence"
	next.CooldownPolicy = cooldown.PerEntry
	if err := d.UpdateConfig(next); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	snap := d.Snapshot()
	if snap.Scoring != "presence" || snap.CooldownPolicy != "per_entry" {
		t.Errorf("snapshot = %+v", snap)
	}

	off := quietConfig()
	off.Enabled = false
	if err := d.UpdateConfig(off); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if d.IsActive() {
		t.Error("disabling detection should stop the detector")
	}
}

func TestListeners(t *testing.T) {
	cfg := quietConfig()
	cfg.Cooldown = 0
	d, c := newDetector(t, &pageDoc{html: "<body>distracted</body>"}, WithConfig(cfg), WithCatalog(bfCatalog))

	d.OnDetection(func(models.Detection) { panic("bad listener") })
	extra := &collector{}
	unsubscribe := d.OnDetection(extra.add)

	d.Start()
	unsubscribe()
	d.ScanNow()

	if n := len(c.all()); n != 2 {
		t.Errorf("collector detections = %d, want 2", n)
	}
	if n := len(extra.all()); n != 1 {
		t.Errorf("unsubscribed listener detections = %d, want 1", n)
	}
}

type countingRenderer struct {
	mu        sync.Mutex
	shown     int
	destroyed int
}

func (r *countingRenderer) Show(string, models.CatalogEntry) { r.mu.Lock(); r.shown++; r.mu.Unlock() }
func (r *countingRenderer) Hide(string)                      {}
func (r *countingRenderer) Destroy(string)                   { r.mu.Lock(); r.destroyed++; r.mu.Unlock() }

func TestClose_TearsDown(t *testing.T) {
	rend := &countingRenderer{}
	rep := report.New(rend, nil)
	defer rep.Close()

	cfg := quietConfig()
	cfg.ScanInterval = 10 * time.Millisecond
	d, err := New("page-x", &pageDoc{html: "<body>distracted</body>"}, rep, WithConfig(cfg), WithCatalog(bfCatalog))
	if err != nil {
		t.Fatal(err)
	}
	d.Start()
	d.Close()
	d.Close()

	if d.IsActive() {
		t.Error("closed detector reports active")
	}
	d.Start()
	d.ScanNow()
	if rend.shown != 1 {
		t.Errorf("shown = %d, want 1", rend.shown)
	}
	if rend.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", rend.destroyed)
	}
	goleak.VerifyNone(t)
}
