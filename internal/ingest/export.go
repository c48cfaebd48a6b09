package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/bull/got-explorer/internal/corpus"
)

// MarkdownStyle selects the layout of exported markdown.
type MarkdownStyle string

const (
	// StylePlain is the title followed by each section's body.
	StylePlain MarkdownStyle = "plain"
	// StyleStructured adds Overview and Contents headings and turns every
	// chapter heading into a level-3 heading.
	StyleStructured MarkdownStyle = "structured"
)

// ParseMarkdownStyle accepts "plain" or "structured"; empty means plain.
func ParseMarkdownStyle(s string) (MarkdownStyle, error) {
	switch MarkdownStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", StylePlain:
		return StylePlain, nil
	case StyleStructured:
		return StyleStructured, nil
	default:
		return "", fmt.Errorf("unknown markdown style %q (want plain or structured)", s)
	}
}

// MarkdownExporter writes a readable markdown rendition of each book.
type MarkdownExporter struct {
	dir       string
	style     MarkdownStyle
	converter *md.Converter
}

func NewMarkdownExporter(dir string, style MarkdownStyle) *MarkdownExporter {
	if style == "" {
		style = StylePlain
	}
	return &MarkdownExporter{
		dir:       dir,
		style:     style,
		converter: md.NewConverter("", true, nil),
	}
}

// Render produces "# <title>" followed by each section in the exporter's
// style. HTML sections are converted to markdown; other sections keep their
// normalized text.
func (e *MarkdownExporter) Render(ex *Extracted) string {
	if e.style == StyleStructured {
		return e.renderStructured(ex)
	}

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(ex.Title)
	b.WriteString("\n\n")

	for _, section := range ex.Sections {
		body := e.body(section)
		if body == "" {
			continue
		}
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func (e *MarkdownExporter) renderStructured(ex *Extracted) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## Overview\nThis document contains the content of %s.\n\n## Contents\n\n", ex.Title, ex.Title)

	for _, section := range ex.Sections {
		heading := strings.TrimSpace(section.Heading)
		if heading != "" {
			fmt.Fprintf(&b, "### %s\n\n", heading)
		}
		for _, para := range strings.Split(e.body(section), "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			if strings.HasPrefix(para, "#") {
				para = strings.TrimSpace(strings.TrimLeft(para, "# "))
				if para == heading {
					continue
				}
				fmt.Fprintf(&b, "### %s\n\n", para)
				continue
			}
			if para == heading {
				continue
			}
			b.WriteString(para)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// body is the section as markdown, or its normalized text when it has no
// convertible HTML.
func (e *MarkdownExporter) body(section Section) string {
	if section.HTML != "" {
		if converted, err := e.converter.ConvertString(section.HTML); err == nil {
			if body := strings.TrimSpace(converted); body != "" {
				return body
			}
		}
	}
	return Normalize(section.Text)
}

// Write renders ex to <dir>/<stem>.md and returns the path.
func (e *MarkdownExporter) Write(source string, ex *Extracted) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create markdown dir: %w", err)
	}
	path := filepath.Join(e.dir, corpus.Stem(source)+".md")
	if err := os.WriteFile(path, []byte(e.Render(ex)), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}
	return path, nil
}
