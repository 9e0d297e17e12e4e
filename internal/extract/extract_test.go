package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/memewatch/internal/models"
)

type staticDoc struct {
	html string
	err  error
}

func (d staticDoc) HTML() (string, error) { return d.html, d.err }

type panicDoc struct{}

func (panicDoc) HTML() (string, error) { panic("detached") }

func TestVisibleText_SkipsInvisible(t *testing.T) {
	raw := `<html><head><title>Title</title><style>.x{}</style></head><body>
		<p>That Distracted</p><p>Boyfriend</p>
		<script>var boyfriend = 1;</script>
		<div hidden>secret</div>
		<span style="display: none">nope</span>
		<div aria-hidden="true">ghost</div>
		<noscript>enable js</noscript>
	</body></html>`

	got, err := VisibleText(raw)
	if err != nil {
		t.Fatalf("VisibleText: %v", err)
	}
	if got != "That Distracted Boyfriend" {
		t.Errorf("text = %q", got)
	}
}

func TestPageText_Normalizes(t *testing.T) {
	text, err := PageText(staticDoc{html: "<body><h1>HELLO   World</h1></body>"}, 100)
	if err != nil {
		t.Fatalf("PageText: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
}

func TestPageText_CapsLength(t *testing.T) {
	body := strings.Repeat("a", models.DefaultMaxTextLength) + " distracted"
	text, err := PageText(staticDoc{html: "<body>" + body + "</body>"}, models.DefaultMaxTextLength)
	if err != nil {
		t.Fatalf("PageText: %v", err)
	}
	if len(text) != models.DefaultMaxTextLength {
		t.Errorf("len = %d, want %d", len(text), models.DefaultMaxTextLength)
	}
	if strings.Contains(text, "distracted") {
		t.Error("text past the cap must not be scanned")
	}
}

func TestPageText_FailuresYieldEmpty(t *testing.T) {
	text, err := PageText(staticDoc{err: errors.New("gone")}, 100)
	if err == nil || text != "" {
		t.Errorf("read failure: text = %q, err = %v", text, err)
	}

	text, err = PageText(panicDoc{}, 100)
	if err == nil || text != "" {
		t.Errorf("panic: text = %q, err = %v", text, err)
	}

	text, err = PageText(nil, 100)
	if err != nil || text != "" {
		t.Errorf("nil doc: text = %q, err = %v", text, err)
	}
}

func TestNormalize_RuneCap(t *testing.T) {
	if got := Normalize("ÉÉÉÉ", 2); got != "éé" {
		t.Errorf("Normalize = %q", got)
	}
	if got := Normalize("ABC", 0); got != "abc" {
		t.Errorf("uncapped Normalize = %q", got)
	}
}

func TestEligible(t *testing.T) {
	cases := []struct {
		tag, typ string
		editable bool
		want     bool
	}{
		{"input", "", false, true},
		{"INPUT", "Search", false, true},
		{"input", "password", false, false},
		{"input", "checkbox", false, false},
		{"textarea", "", false, true},
		{"div", "", true, true},
		{"div", "", false, false},
	}
	for _, c := range cases {
		if got := Eligible(c.tag, c.typ, c.editable); got != c.want {
			t.Errorf("Eligible(%q, %q, %v) = %v, want %v", c.tag, c.typ, c.editable, got, c.want)
		}
	}
}

func TestInputTracker_Idempotent(t *testing.T) {
	tr := NewInputTracker(4)
	ev := models.InputEvent{NodeID: "q", Tag: "input", Value: "Such Meme"}

	src, ok := tr.Observe(ev, 100)
	if !ok {
		t.Fatal("first value should trigger a scan")
	}
	if src.Text != "such meme" || src.Origin != models.OriginInput {
		t.Errorf("source = %+v", src)
	}

	if _, ok := tr.Observe(ev, 100); ok {
		t.Error("same value must not trigger a second scan")
	}
	ev.Value = "SUCH MEME"
	if _, ok := tr.Observe(ev, 100); ok {
		t.Error("value differing only in case normalizes to the same text")
	}
	ev.Value = "such meme wow"
	if _, ok := tr.Observe(ev, 100); !ok {
		t.Error("changed value should trigger a scan")
	}
}

func TestInputTracker_ForgetAndBound(t *testing.T) {
	tr := NewInputTracker(2)
	if !tr.Track("a") || !tr.Track("b") {
		t.Fatal("tracking within bound failed")
	}
	if tr.Track("c") {
		t.Error("tracker should be full")
	}
	if _, ok := tr.Observe(models.InputEvent{NodeID: "c", Tag: "textarea", Value: "x"}, 10); ok {
		t.Error("untrackable element must be ignored")
	}

	_, _ = tr.Observe(models.InputEvent{NodeID: "a", Tag: "textarea", Value: "x"}, 10)
	tr.Forget("a")
	if tr.Tracked("a") {
		t.Error("forgotten element still tracked")
	}
	// A re-attached element starts fresh, so the same value scans again.
	if _, ok := tr.Observe(models.InputEvent{NodeID: "a", Tag: "textarea", Value: "x"}, 10); !ok {
		t.Error("re-attached element should scan its value")
	}
}

func TestInputTracker_IgnoresIneligible(t *testing.T) {
	tr := NewInputTracker(4)
	if _, ok := tr.Observe(models.InputEvent{NodeID: "pw", Tag: "input", InputType: "password", Value: "x"}, 10); ok {
		t.Error("password inputs must never be scanned")
	}
	if tr.Len() != 0 {
		t.Errorf("Len = %d, want 0", tr.Len())
	}
}

func TestDiscoverInputs(t *testing.T) {
	raw := `<body>
		<input id="search" type="search">
		<input name="pw" type="password">
		<textarea data-node-id="n7"></textarea>
		<div contenteditable id="editor"></div>
		<div contenteditable="false" id="static"></div>
		<input type="text">
	</body>`
	got, err := DiscoverInputs(raw)
	if err != nil {
		t.Fatalf("DiscoverInputs: %v", err)
	}
	var ids []string
	for _, in := range got {
		ids = append(ids, in.NodeID)
	}
	if strings.Join(ids, ",") != "search,n7,editor" {
		t.Errorf("ids = %v", ids)
	}
}
