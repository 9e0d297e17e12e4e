package catalog

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/memewatch/internal/models"
)

// frontmatter is the YAML header of a catalog entry file.
type frontmatter struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name,omitempty"`
	Keywords []string `yaml:"keywords"`
	Media    string   `yaml:"media,omitempty"`
}

// Parse builds a catalog entry from a Markdown file. stem is the file name
// without extension; it becomes the ID when the frontmatter has none. The
// name falls back to the first H1 heading, then to the ID.
func Parse(stem string, data []byte) (models.CatalogEntry, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return models.CatalogEntry{}, err
	}

	e := models.CatalogEntry{
		ID:       strings.TrimSpace(fm.ID),
		Name:     strings.TrimSpace(fm.Name),
		Keywords: cleanKeywords(fm.Keywords),
		MediaRef: strings.TrimSpace(fm.Media),
	}
	if e.ID == "" {
		e.ID = stem
	}
	if e.Name == "" {
		e.Name = firstHeading(body)
	}
	if e.Name == "" {
		e.Name = e.ID
	}
	if e.ID == "" {
		return models.CatalogEntry{}, fmt.Errorf("catalog: entry has no id")
	}
	return e, nil
}

// splitFrontmatter separates the YAML header (between leading --- lines)
// from the Markdown body. A file without a header has empty frontmatter.
func splitFrontmatter(data []byte) (frontmatter, string, error) {
	const delim = "---"
	var fm frontmatter
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return fm, "", fmt.Errorf("catalog: frontmatter: %w", err)
	}
	return fm, body, nil
}

// cleanKeywords drops blank keywords, keeping declaration order. Padding is
// kept so a quoted " cat " stays a whole-word keyword.
func cleanKeywords(in []string) []string {
	var out []string
	for _, k := range in {
		if strings.TrimSpace(k) != "" {
			out = append(out, k)
		}
	}
	return out
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Format renders an entry as a catalog file that Parse reads back.
func Format(e models.CatalogEntry) ([]byte, error) {
	head, err := yaml.Marshal(frontmatter{
		ID:       e.ID,
		Name:     e.Name,
		Keywords: e.Keywords,
		Media:    e.MediaRef,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(head)
	buf.WriteString("---\n\n")
	if e.Name != "" {
		fmt.Fprintf(&buf, "# %s\n", e.Name)
	}
	return buf.Bytes(), nil
}
