// Package report is the output boundary of the detector: it forwards admitted
// detections to the overlay renderer and the stats sink.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/memewatch/internal/models"
)

// Renderer displays the overlay for a page. Calls must not block; the
// reporter never waits for playback.
type Renderer interface {
	Show(pageID string, entry models.CatalogEntry)
	Hide(pageID string)
	Destroy(pageID string)
}

// StatsSink receives detection events. Delivery is best-effort.
type StatsSink interface {
	Record(ctx context.Context, det models.Detection) error
}

// SinkFunc adapts a function to StatsSink.
type SinkFunc func(ctx context.Context, det models.Detection) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, det models.Detection) error { return f(ctx, det) }

const defaultRecordTimeout = 5 * time.Second

// Reporter forwards detections. It is safe for concurrent use.
type Reporter struct {
	renderer Renderer
	sink     StatsSink
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the reporter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecordTimeout bounds each stats delivery.
func WithRecordTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Reporter. Either collaborator may be nil.
func New(renderer Renderer, sink StatsSink, opts ...Option) *Reporter {
	r := &Reporter{
		renderer: renderer,
		sink:     sink,
		timeout:  defaultRecordTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report shows the overlay and records the detection. It returns without
// waiting for the stats sink; sink failures are logged and dropped.
func (r *Reporter) Report(det models.Detection) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.sink != nil {
		r.wg.Add(1)
	}
	r.mu.Unlock()

	r.show(det)

	if r.sink == nil {
		return
	}
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Debug("report: stats sink panicked", slog.String("error", fmt.Sprint(p)))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.sink.Record(ctx, det); err != nil {
			r.logger.Debug("report: stats record dropped",
				slog.String("detection_id", det.ID),
				slog.String("error", err.Error()))
		}
	}()
}

// Hide asks the renderer to remove any overlay on pageID.
func (r *Reporter) Hide(pageID string) {
	r.guard("hide", func() {
		if r.renderer != nil {
			r.renderer.Hide(pageID)
		}
	})
}

// Destroy releases renderer resources for pageID.
func (r *Reporter) Destroy(pageID string) {
	r.guard("destroy", func() {
		if r.renderer != nil {
			r.renderer.Destroy(pageID)
		}
	})
}

// Close stops accepting detections and waits for in-flight stats records.
func (r *Reporter) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reporter) show(det models.Detection) {
	r.guard("show", func() {
		if r.renderer != nil {
			r.renderer.Show(det.PageID, det.Entry)
		}
	})
}

// guard keeps renderer failures from reaching the detector.
func (r *Reporter) guard(op string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("report: renderer failed",
				slog.String("op", op),
				slog.String("error", fmt.Sprint(p)))
		}
	}()
	fn()
}
