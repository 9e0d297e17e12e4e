package overlay

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/sse"
)

type recorder struct{ events []sse.Event }

func (r *recorder) Publish(e sse.Event) { r.events = append(r.events, e) }

func TestRenderer_PublishesCommands(t *testing.T) {
	rec := &recorder{}
	r := New(rec)

	r.Show("p1", models.CatalogEntry{ID: "1", MediaRef: "bf.mp4"})
	r.Hide("p1")
	r.Destroy("p1")

	if len(rec.events) != 3 {
		t.Fatalf("events = %d, want 3", len(rec.events))
	}
	want := []string{sse.TypeOverlayShow, sse.TypeOverlayHide, sse.TypeOverlayDestroy}
	for i, e := range rec.events {
		if e.Type != want[i] || e.PageID != "p1" {
			t.Errorf("event %d = %+v", i, e)
		}
	}
	cmd := rec.events[0].Data.(Command)
	if cmd.Entry == nil || cmd.Entry.MediaRef != "bf.mp4" {
		t.Errorf("show command = %+v", cmd)
	}
	if rec.events[1].Data.(Command).Entry != nil {
		t.Error("hide should not carry an entry")
	}
}

func TestRenderer_ThroughBroker(t *testing.T) {
	b := sse.NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("p1")

	New(b).Show("p1", models.CatalogEntry{ID: "7", Name: "This Is Fine"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: overlay.show") || !strings.Contains(s, `"name":"This Is Fine"`) {
			t.Errorf("message = %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for overlay event")
	}
}

func TestRenderer_NilPublisher(t *testing.T) {
	New(nil).Show("p", models.CatalogEntry{ID: "1"})
}
