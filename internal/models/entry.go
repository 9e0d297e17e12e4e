// Package models defines the domain types for memewatch.
package models

import (
	"strings"
	"time"
)

// Scan origins.
const (
	OriginPage  = "page"
	OriginInput = "input"
)

// DefaultMaxTextLength caps the amount of text evaluated per scan.
const DefaultMaxTextLength = 10000

// CatalogEntry is one detectable item: a keyword set plus the media the
// overlay renderer plays when it is detected.
type CatalogEntry struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	MediaRef string   `json:"media_ref,omitempty" yaml:"media"`
}

// Detectable reports whether the entry carries at least one keyword.
func (e CatalogEntry) Detectable() bool {
	for _, k := range e.Keywords {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}

// ScanSource is a unit of normalized text to evaluate.
type ScanSource struct {
	Text   string `json:"text"`
	Origin string `json:"origin"`
}

// MatchResult is the outcome of scoring one entry against one ScanSource.
// Score is positive iff MatchedKeywords is non-empty.
type MatchResult struct {
	Entry           CatalogEntry `json:"entry"`
	Score           float64      `json:"score"`
	MatchedKeywords []string     `json:"matched_keywords"`
}

// Detection is an admitted match, handed to listeners, the overlay renderer
// and the stats sink.
type Detection struct {
	ID              string       `json:"id"`
	PageID          string       `json:"page_id"`
	Entry           CatalogEntry `json:"entry"`
	Score           float64      `json:"score"`
	MatchedKeywords []string     `json:"matched_keywords"`
	Origin          string       `json:"origin"`
	At              time.Time    `json:"at"`
}
