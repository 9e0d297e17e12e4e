package pages

import (
	"sync"
	"time"

	"github.com/starford/memewatch/internal/apperr"
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/scheduler"
)

// snapshotDoc serves the latest HTML pushed for a page.
type snapshotDoc struct {
	mu   sync.RWMutex
	html string
}

func (d *snapshotDoc) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.html, nil
}

func (d *snapshotDoc) set(html string) {
	d.mu.Lock()
	d.html = html
	d.mu.Unlock()
}

// Page is one open session and its detector.
type Page struct {
	ID       string
	URL      string
	OpenedAt time.Time

	doc *snapshotDoc
	det *scheduler.Detector
	reg *Registry
}

// Info is the externally visible state of a page.
type Info struct {
	ID       string    `json:"id"`
	URL      string    `json:"url,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
	scheduler.Snapshot
}

// Detector returns the page's detector.
func (p *Page) Detector() *scheduler.Detector { return p.det }

// Info reports the page's session and detector state.
func (p *Page) Info() Info {
	return Info{ID: p.ID, URL: p.URL, OpenedAt: p.OpenedAt, Snapshot: p.det.Snapshot()}
}

// Start asks the detector to begin scanning. It reports why the detector
// stays idle when the catalog is empty or detection is disabled.
func (p *Page) Start() error {
	p.det.Start()
	if p.det.IsActive() {
		return nil
	}
	if len(p.reg.Catalog()) == 0 {
		return apperr.ErrEmptyCatalog
	}
	if !p.reg.Config().Enabled {
		return apperr.ErrInactive
	}
	// Started but hidden: it activates when the page becomes visible.
	return nil
}

// Stop returns the detector to idle.
func (p *Page) Stop() { p.det.Stop() }

// ReplaceHTML stores a new page snapshot. The next scan reads it; when
// rescan is set the detector is treated as if the DOM changed.
func (p *Page) ReplaceHTML(html string, rescan bool) {
	p.doc.set(html)
	if rescan {
		p.det.NotifyMutations([]models.Mutation{{Op: models.OpText}})
	}
}

// Mutations forwards a mutation batch, optionally replacing the snapshot
// first.
func (p *Page) Mutations(html *string, batch []models.Mutation) {
	if html != nil {
		p.doc.set(*html)
	}
	p.det.NotifyMutations(batch)
}

// Input forwards a live input value.
func (p *Page) Input(ev models.InputEvent) { p.det.InputChanged(ev) }

// SetVisible forwards page visibility.
func (p *Page) SetVisible(visible bool) { p.det.SetVisible(visible) }
