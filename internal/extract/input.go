package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/starford/memewatch/internal/models"
)

// DefaultMaxTrackedInputs bounds the number of live inputs tracked per page.
const DefaultMaxTrackedInputs = 64

var textInputTypes = map[string]struct{}{
	"":       {},
	"text":   {},
	"search": {},
	"email":  {},
	"url":    {},
	"tel":    {},
}

// Eligible reports whether an element with the given tag and input type is a
// text-like input worth tracking.
func Eligible(tag, inputType string, editable bool) bool {
	if editable {
		return true
	}
	switch strings.ToLower(tag) {
	case "textarea":
		return true
	case "input":
		_, ok := textInputTypes[strings.ToLower(inputType)]
		return ok
	}
	return false
}

type inputState struct {
	last string
	seen bool
}

// InputTracker remembers the last normalized value of each tracked input so
// repeated values never trigger a second scan. It is not safe for concurrent
// use; the owning detector serializes access.
type InputTracker struct {
	max    int
	inputs map[string]*inputState
}

// NewInputTracker creates a tracker holding at most max elements.
func NewInputTracker(max int) *InputTracker {
	if max <= 0 {
		max = DefaultMaxTrackedInputs
	}
	return &InputTracker{max: max, inputs: make(map[string]*inputState)}
}

// Track starts tracking id. It returns false when the tracker is full.
func (t *InputTracker) Track(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := t.inputs[id]; ok {
		return true
	}
	if len(t.inputs) >= t.max {
		return false
	}
	t.inputs[id] = &inputState{}
	return true
}

// Forget drops a detached element and its recorded value.
func (t *InputTracker) Forget(id string) {
	delete(t.inputs, id)
}

// Tracked reports whether id is currently tracked.
func (t *InputTracker) Tracked(id string) bool {
	_, ok := t.inputs[id]
	return ok
}

// Len returns the number of tracked elements.
func (t *InputTracker) Len() int { return len(t.inputs) }

// Reset forgets every element.
func (t *InputTracker) Reset() {
	t.inputs = make(map[string]*inputState)
}

// Observe records a value change. It returns the input's ScanSource and true
// only when the normalized value differs from the last one recorded for the
// element. Ineligible elements, and new elements that do not fit in the
// tracker, are ignored.
func (t *InputTracker) Observe(ev models.InputEvent, maxLen int) (models.ScanSource, bool) {
	if !Eligible(ev.Tag, ev.InputType, ev.Editable) || !t.Track(ev.NodeID) {
		return models.ScanSource{}, false
	}
	st := t.inputs[ev.NodeID]
	norm := Normalize(ev.Value, maxLen)
	if st.seen && st.last == norm {
		return models.ScanSource{}, false
	}
	st.last, st.seen = norm, true
	return models.ScanSource{Text: norm, Origin: models.OriginInput}, true
}

// TrackedInput describes an eligible input found in a snapshot.
type TrackedInput struct {
	NodeID    string
	Tag       string
	InputType string
	Editable  bool
}

// DiscoverInputs lists the eligible inputs present in raw HTML. Elements are
// identified by their data-node-id, id or name attribute, in that order;
// elements without any of them cannot be addressed and are skipped.
func DiscoverInputs(raw string) ([]TrackedInput, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var out []TrackedInput
	doc.Find("input, textarea, [contenteditable]").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		inputType := s.AttrOr("type", "")
		ce, hasCE := s.Attr("contenteditable")
		editable := hasCE && !strings.EqualFold(ce, "false")
		if !Eligible(tag, inputType, editable) {
			return
		}
		id := s.AttrOr("data-node-id", "")
		if id == "" {
			id = s.AttrOr("id", "")
		}
		if id == "" {
			id = s.AttrOr("name", "")
		}
		if id == "" {
			return
		}
		out = append(out, TrackedInput{NodeID: id, Tag: tag, InputType: inputType, Editable: editable})
	})
	return out, nil
}
