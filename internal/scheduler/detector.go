// Package scheduler drives page and input scans for one page session.
//
// A Detector owns every timer, observer-fed tracker and the cooldown gate of
// its page. A single goroutine owns that state: public methods hand closures
// to the loop and wait for them, timers fire into the same loop, so scans
// never overlap and no locks guard detector state.
package scheduler

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/memewatch/internal/cooldown"
	"github.com/starford/memewatch/internal/extract"
	"github.com/starford/memewatch/internal/match"
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/report"
)

// State is the detector's scheduling state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Listener is called on the detector loop for every admitted detection. It
// must return quickly and must not call back into the same Detector.
type Listener func(models.Detection)

type listener struct {
	id int
	fn Listener
}

// Snapshot is a point-in-time view of a detector, for diagnostics.
type Snapshot struct {
	PageID            string        `json:"page_id"`
	State             string        `json:"state"`
	Visible           bool          `json:"visible"`
	CatalogSize       int           `json:"catalog_size"`
	TrackedInputs     int           `json:"tracked_inputs"`
	Scans             uint64        `json:"scans"`
	Detections        uint64        `json:"detections"`
	Scoring           string        `json:"scoring"`
	CooldownPolicy    string        `json:"cooldown_policy"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

// Detector schedules scans of one page and reports at most one entry per
// scan cycle.
type Detector struct {
	pageID   string
	doc      extract.Document
	reporter *report.Reporter
	logger   *slog.Logger
	now      func() time.Time

	cmds      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Loop-owned state.
	state     State
	started   bool
	visible   bool
	cfg       Config
	catalog   []models.CatalogEntry
	engine    *match.Engine
	gate      *cooldown.Gate
	inputs    *extract.InputTracker
	ticker    *time.Ticker
	tickC     <-chan time.Time
	debounce  *time.Timer
	debounceC <-chan time.Time
	listeners []listener
	nextID    int
	lastEntry string

	scans      uint64
	detections uint64
}

// Option configures a Detector.
type Option func(*Detector)

// WithConfig sets the initial configuration.
func WithConfig(cfg Config) Option {
	return func(d *Detector) { d.cfg = cfg }
}

// WithCatalog sets the initial catalog snapshot.
func WithCatalog(entries []models.CatalogEntry) Option {
	return func(d *Detector) { d.catalog = slices.Clone(entries) }
}

// WithLogger sets the detector's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock replaces time.Now for cooldown decisions and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates an idle detector for pageID. doc supplies page text; reporter
// receives admitted detections. Both may be nil.
func New(pageID string, doc extract.Document, reporter *report.Reporter, opts ...Option) (*Detector, error) {
	d := &Detector{
		pageID:   pageID,
		doc:      doc,
		reporter: reporter,
		logger:   slog.Default(),
		now:      time.Now,
		cfg:      DefaultConfig(),
		visible:  true,
		cmds:     make(chan func()),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.reporter == nil {
		d.reporter = report.New(nil, nil, report.WithLogger(d.logger))
	}
	d.logger = d.logger.With(slog.String("page_id", pageID))

	d.cfg = d.cfg.withDefaults()
	if err := d.applyPolicies(d.cfg); err != nil {
		return nil, err
	}
	d.inputs = extract.NewInputTracker(d.cfg.MaxTrackedInputs)

	go d.run()
	return d, nil
}

// PageID returns the page this detector scans.
func (d *Detector) PageID() string { return d.pageID }

// Start activates scanning. It is a no-op when detection is disabled or the
// catalog is empty; IsActive reports the outcome.
func (d *Detector) Start() {
	d.do(func() {
		if !d.cfg.Enabled || len(d.catalog) == 0 {
			d.logger.Debug("scheduler: start ignored",
				slog.Bool("enabled", d.cfg.Enabled),
				slog.Int("catalog_size", len(d.catalog)))
			return
		}
		d.started = true
		d.reconcile()
	})
}

// Stop returns the detector to Idle and cancels pending timers.
func (d *Detector) Stop() {
	d.do(func() {
		d.started = false
		d.reconcile()
	})
}

// SetVisible reports page visibility. Hidden pages are never scanned; a page
// that becomes visible again while started scans immediately.
func (d *Detector) SetVisible(visible bool) {
	d.do(func() {
		d.visible = visible
		d.reconcile()
	})
}

// IsActive reports whether the detector is scheduling scans.
func (d *Detector) IsActive() bool {
	var active bool
	d.do(func() { active = d.state == Active })
	return active
}

// UpdateCatalog replaces the catalog snapshot used by subsequent scans.
func (d *Detector) UpdateCatalog(entries []models.CatalogEntry) {
	snapshot := slices.Clone(entries)
	d.do(func() { d.catalog = snapshot })
}

// UpdateConfig replaces the configuration. Disabling detection stops the
// detector; a new scan interval re-arms the ticker; policy changes swap the
// scoring engine or reset the cooldown gate.
func (d *Detector) UpdateConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	var err error
	d.do(func() {
		if err = d.applyPolicies(cfg); err != nil {
			return
		}
		prev := d.cfg
		d.cfg = cfg
		if !cfg.Enabled {
			d.started = false
		}
		d.reconcile()
		if d.state == Active && prev.ScanInterval != cfg.ScanInterval {
			d.ticker.Reset(cfg.ScanInterval)
		}
	})
	return err
}

// OnDetection registers fn for admitted detections and returns a function
// that unregisters it.
func (d *Detector) OnDetection(fn Listener) (unsubscribe func()) {
	var id int
	d.do(func() {
		d.nextID++
		id = d.nextID
		d.listeners = append(d.listeners, listener{id: id, fn: fn})
	})
	return func() {
		d.do(func() {
			d.listeners = slices.DeleteFunc(d.listeners, func(l listener) bool { return l.id == id })
		})
	}
}

// NotifyMutations feeds a batch of DOM mutations. Inserted eligible inputs
// are tracked, removed ones forgotten, and an active detector schedules one
// page scan after the debounce window; later batches push the scan back.
func (d *Detector) NotifyMutations(batch []models.Mutation) {
	if len(batch) == 0 {
		return
	}
	d.do(func() {
		for _, m := range batch {
			switch m.Op {
			case models.OpInsert:
				if extract.Eligible(m.Tag, m.InputType, m.Editable) {
					d.inputs.Track(m.NodeID)
				}
			case models.OpRemove:
				d.inputs.Forget(m.NodeID)
			}
		}
		if d.state == Active {
			d.armDebounce()
		}
	})
}

// InputChanged scans a live input's value immediately, against that input
// only. Unchanged values are ignored.
func (d *Detector) InputChanged(ev models.InputEvent) {
	d.do(func() {
		if d.state != Active {
			return
		}
		src, ok := d.inputs.Observe(ev, d.cfg.MaxTextLength)
		if !ok {
			return
		}
		d.scan(src)
	})
}

// ScanNow runs a page scan immediately if the detector is active.
func (d *Detector) ScanNow() {
	d.do(func() {
		if d.state == Active {
			d.scanPage()
		}
	})
}

// Snapshot returns diagnostic counters.
func (d *Detector) Snapshot() Snapshot {
	snap := Snapshot{PageID: d.pageID, State: Idle.String()}
	d.do(func() {
		snap = Snapshot{
			PageID:            d.pageID,
			State:             d.state.String(),
			Visible:           d.visible,
			CatalogSize:       len(d.catalog),
			TrackedInputs:     d.inputs.Len(),
			Scans:             d.scans,
			Detections:        d.detections,
			Scoring:           string(d.engine.Policy()),
			CooldownPolicy:    string(d.gate.Policy()),
			CooldownRemaining: d.gate.Remaining(d.lastEntry, d.now()),
		}
	})
	return snap
}

// Close tears the detector down: timers are cancelled, tracking is dropped,
// the renderer is told to destroy the page overlay, and the loop exits before
// Close returns. Later calls on the detector are no-ops.
func (d *Detector) Close() {
	d.closeOnce.Do(func() {
		close(d.quit)
		<-d.done
	})
}

// do runs fn on the loop and waits for it. It reports false once the
// detector is closed.
func (d *Detector) do(fn func()) bool {
	ran := make(chan struct{})
	select {
	case d.cmds <- func() { defer close(ran); fn() }:
	case <-d.done:
		return false
	}
	<-ran
	return true
}

func (d *Detector) run() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			d.teardown()
			return
		case fn := <-d.cmds:
			fn()
		case <-d.tickC:
			d.scanPage()
		case <-d.debounceC:
			d.debounce, d.debounceC = nil, nil
			d.scanPage()
		}
	}
}

func (d *Detector) teardown() {
	d.started = false
	d.deactivate()
	d.inputs.Reset()
	d.listeners = nil
	d.reporter.Destroy(d.pageID)
	d.logger.Debug("scheduler: detector closed")
}

// reconcile moves between Idle and Active to match the desired state.
func (d *Detector) reconcile() {
	want := d.started && d.visible && d.cfg.Enabled
	switch {
	case want && d.state == Idle:
		d.activate()
	case !want && d.state == Active:
		d.deactivate()
	}
}

func (d *Detector) activate() {
	d.state = Active
	d.seedInputs()
	d.scanPage()
	d.ticker = time.NewTicker(d.cfg.ScanInterval)
	d.tickC = d.ticker.C
	d.logger.Debug("scheduler: active", slog.Duration("interval", d.cfg.ScanInterval))
}

func (d *Detector) deactivate() {
	d.state = Idle
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker, d.tickC = nil, nil
	}
	if d.debounce != nil {
		d.debounce.Stop()
		d.debounce, d.debounceC = nil, nil
	}
	d.logger.Debug("scheduler: idle")
}

func (d *Detector) armDebounce() {
	if d.debounce != nil {
		d.debounce.Stop()
	}
	d.debounce = time.NewTimer(d.cfg.Debounce)
	d.debounceC = d.debounce.C
}

// seedInputs tracks the eligible inputs already present in the document.
func (d *Detector) seedInputs() {
	if d.doc == nil {
		return
	}
	raw, err := d.doc.HTML()
	if err != nil {
		return
	}
	found, err := extract.DiscoverInputs(raw)
	if err != nil {
		return
	}
	for _, in := range found {
		d.inputs.Track(in.NodeID)
	}
}

func (d *Detector) scanPage() {
	text, err := extract.PageText(d.doc, d.cfg.MaxTextLength)
	if err != nil {
		d.logger.Debug("scheduler: page extraction failed", slog.String("error", err.Error()))
	}
	d.scan(models.ScanSource{Text: text, Origin: models.OriginPage})
}

// scan is one scan cycle: score, offer the top candidate to the gate, report.
func (d *Detector) scan(src models.ScanSource) {
	d.scans++
	top, ok := match.Top(d.engine.Score(src, d.catalog))
	if !ok {
		return
	}
	now := d.now()
	if !d.gate.TryAdmit(top, now) {
		d.logger.Debug("scheduler: detection suppressed by cooldown",
			slog.String("entry_id", top.Entry.ID),
			slog.String("origin", src.Origin))
		return
	}

	det := models.Detection{
		ID:              uuid.NewString(),
		PageID:          d.pageID,
		Entry:           top.Entry,
		Score:           top.Score,
		MatchedKeywords: top.MatchedKeywords,
		Origin:          src.Origin,
		At:              now,
	}
	d.detections++
	d.lastEntry = top.Entry.ID
	d.logger.Info("scheduler: detection",
		slog.String("entry_id", det.Entry.ID),
		slog.String("entry_name", det.Entry.Name),
		slog.String("origin", det.Origin),
		slog.Float64("score", det.Score))

	d.reporter.Report(det)
	for _, l := range d.listeners {
		d.notify(l.fn, det)
	}
}

func (d *Detector) notify(fn Listener, det models.Detection) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Warn("scheduler: detection listener failed", slog.String("error", fmt.Sprint(p)))
		}
	}()
	fn(det)
}

// applyPolicies rebuilds the engine and gate when their policies change.
func (d *Detector) applyPolicies(cfg Config) error {
	policy, err := cooldown.ParsePolicy(string(cfg.CooldownPolicy))
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if d.engine == nil || d.engine.Policy() != cfg.Scoring || d.cfg.SimilarityThreshold != cfg.SimilarityThreshold {
		engine, err := match.New(cfg.Scoring,
			match.WithSimilarityThreshold(cfg.SimilarityThreshold),
			match.WithLogger(d.logger))
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		d.engine = engine
	}
	if d.gate == nil || d.gate.Policy() != policy {
		d.gate = cooldown.NewGate(policy, func() time.Duration { return d.cfg.Cooldown })
	}
	return nil
}
