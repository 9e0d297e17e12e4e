package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/memewatch/internal/models"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeCatalogUpdated, Data: map[string]int{"entries": 3}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: catalog.updated") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"entries":3`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublish_PageFilter(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	all := b.Subscribe("")
	p1 := b.Subscribe("p1")
	p2 := b.Subscribe("p2")

	b.Publish(Event{Type: TypeOverlayShow, PageID: "p1", Data: map[string]string{"page_id": "p1"}})
	b.Publish(Event{Type: TypeCatalogUpdated, Data: map[string]string{}})
	time.Sleep(50 * time.Millisecond)

	if n := len(drain(all)); n != 2 {
		t.Errorf("unfiltered client got %d events, want 2", n)
	}
	if n := len(drain(p1)); n != 2 {
		t.Errorf("p1 client got %d events, want 2", n)
	}
	got := drain(p2)
	if len(got) != 1 || !strings.Contains(got[0], "catalog.updated") {
		t.Errorf("p2 client got %q, want only the broadcast", got)
	}
}

func TestPublishDetection_StatsThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.PublishDetection(models.Detection{ID: "d1", PageID: "p", Entry: models.CatalogEntry{ID: "1"}})
	b.PublishDetection(models.Detection{ID: "d2", PageID: "p", Entry: models.CatalogEntry{ID: "2"}})

	time.Sleep(50 * time.Millisecond)
	statsCount, detCount := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "event: stats.updated") {
			statsCount++
		} else if strings.Contains(s, "event: detection") {
			detCount++
		}
	}

	if detCount != 2 {
		t.Errorf("detection events = %d, want 2", detCount)
	}
	if statsCount != 1 {
		t.Errorf("stats events = %d, want 1 (throttled)", statsCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?page=p1", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeOverlayHide, PageID: "p1", Data: map[string]string{"page_id": "p1"}})
	b.Publish(Event{Type: TypeOverlayHide, PageID: "other", Data: map[string]string{"page_id": "other"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, `"page_id":"p1"`) {
		t.Errorf("handler output missing event: %q", body)
	}
	if strings.Contains(body, `"page_id":"other"`) {
		t.Errorf("handler delivered another page's event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64); one more must not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: TypeCatalogUpdated, Data: map[string]string{}})
	b.PublishDetection(models.Detection{ID: "late"})
}
