package models

// MutationOp is the kind of DOM change reported by a page observer.
type MutationOp string

const (
	OpInsert MutationOp = "insert"
	OpRemove MutationOp = "remove"
	OpText   MutationOp = "text"
	OpAttr   MutationOp = "attr"
)

// Mutation is one record of a DOM mutation batch. NodeID is the observer's
// stable identity for the element; Tag, InputType and Editable describe it
// so the detector can decide whether to track it as a live input.
type Mutation struct {
	Op        MutationOp `json:"op"`
	NodeID    string     `json:"node_id"`
	Tag       string     `json:"tag,omitempty"`
	InputType string     `json:"input_type,omitempty"`
	Editable  bool       `json:"editable,omitempty"`
}

// InputEvent reports the current value of a live input element.
type InputEvent struct {
	NodeID    string `json:"node_id"`
	Tag       string `json:"tag"`
	InputType string `json:"input_type,omitempty"`
	Editable  bool   `json:"editable,omitempty"`
	Value     string `json:"value"`
}
