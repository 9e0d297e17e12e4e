// Package extract produces normalized scan text from page snapshots and live
// input elements.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	gohtml "golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Document is the page whose visible text is scanned.
type Document interface {
	// HTML returns the current markup of the document.
	HTML() (string, error)
}

// invisibleSelector matches subtrees that never contribute visible text.
const invisibleSelector = `head, script, style, noscript, template, svg, iframe, [hidden], [aria-hidden="true"]`

// PageText returns the normalized visible text of doc, capped at maxLen
// characters. On any failure it returns "" together with the cause so the
// caller can log it; the scan then proceeds with empty text.
func PageText(doc Document, maxLen int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract: page text: %v", r)
		}
	}()

	if doc == nil {
		return "", nil
	}
	raw, err := doc.HTML()
	if err != nil {
		return "", fmt.Errorf("extract: read document: %w", err)
	}
	visible, err := VisibleText(raw)
	if err != nil {
		return "", err
	}
	return Normalize(visible, maxLen), nil
}

// VisibleText parses raw HTML and returns the text a reader would see in the
// body, with whitespace collapsed. The input is never modified.
func VisibleText(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("extract: parse html: %w", err)
	}

	doc.Find(invisibleSelector).Remove()
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		if styleHidden(s.AttrOr("style", "")) {
			s.Remove()
		}
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		return "", nil
	}

	var parts []string
	var walk func(n *gohtml.Node)
	walk = func(n *gohtml.Node) {
		if n.Type == gohtml.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range body.Nodes {
		walk(n)
	}

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}

func styleHidden(style string) bool {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden")
}

// Normalize truncates s to maxLen characters and lowercases it. A
// non-positive maxLen disables the cap.
func Normalize(s string, maxLen int) string {
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		n := 0
		for i := range s {
			if n == maxLen {
				s = s[:i]
				break
			}
			n++
		}
	}
	return cases.Lower(language.Und).String(s)
}
