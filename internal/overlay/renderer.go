// Package overlay implements report.Renderer by publishing overlay commands
// as SSE events. The subscribed client plays the media and owns the fade.
package overlay

import (
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/report"
	"github.com/starford/memewatch/internal/sse"
)

// Publisher is the part of the SSE broker the renderer needs.
type Publisher interface {
	Publish(event sse.Event)
}

// Command is the payload of an overlay event.
type Command struct {
	PageID string               `json:"page_id"`
	Entry  *models.CatalogEntry `json:"entry,omitempty"`
}

// Renderer publishes overlay.show, overlay.hide and overlay.destroy events.
type Renderer struct {
	pub Publisher
}

var _ report.Renderer = (*Renderer)(nil)

// New returns a Renderer publishing to pub.
func New(pub Publisher) *Renderer {
	return &Renderer{pub: pub}
}

// Show asks the page's client to play the entry's media.
func (r *Renderer) Show(pageID string, entry models.CatalogEntry) {
	r.publish(sse.TypeOverlayShow, Command{PageID: pageID, Entry: &entry})
}

// Hide asks the page's client to fade out any overlay.
func (r *Renderer) Hide(pageID string) {
	r.publish(sse.TypeOverlayHide, Command{PageID: pageID})
}

// Destroy tells the page's client its detector is gone.
func (r *Renderer) Destroy(pageID string) {
	r.publish(sse.TypeOverlayDestroy, Command{PageID: pageID})
}

func (r *Renderer) publish(typ string, cmd Command) {
	if r.pub == nil {
		return
	}
	r.pub.Publish(sse.Event{Type: typ, PageID: cmd.PageID, Data: cmd})
}
