package ingest

import (
	"bytes"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// markdownExtractor splits a markdown book at H1-H3 headings.
type markdownExtractor struct {
	md goldmark.Markdown
}

func newMarkdownExtractor() *markdownExtractor {
	return &markdownExtractor{
		md: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
	}
}

// headingSpan locates one heading in the source.
type headingSpan struct {
	title     string
	level     int
	lineStart int // first byte of the heading line, marker included
	bodyStart int // first byte after the heading (and any setext underline)
}

func (m *markdownExtractor) Extract(doc Document) (*Extracted, error) {
	source := doc.Data
	root := m.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(root, source,
		toc.MinDepth(1),
		toc.MaxDepth(3),
		toc.Compact(true),
	)
	if err != nil {
		return nil, err
	}

	var spans []headingSpan
	for _, item := range flattenTOC(tree.Items) {
		node := findHeaderByID(root, string(item.ID))
		if node == nil || node.Lines().Len() == 0 {
			continue
		}
		spans = append(spans, spanFor(source, node, string(item.Title)))
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].lineStart < spans[j].lineStart })

	ex := &Extracted{}
	if len(spans) == 0 {
		ex.Sections = []Section{{Text: string(source)}}
		return ex, nil
	}

	for _, s := range spans {
		if s.level == 1 {
			ex.Title = s.title
			break
		}
	}

	if pre := strings.TrimSpace(string(source[:spans[0].lineStart])); pre != "" {
		ex.Sections = append(ex.Sections, Section{Text: pre})
	}
	for i, s := range spans {
		end := len(source)
		if i+1 < len(spans) {
			end = spans[i+1].lineStart
		}
		body := ""
		if s.bodyStart < end {
			body = string(source[s.bodyStart:end])
		}
		ex.Sections = append(ex.Sections, Section{
			Heading: s.title,
			Text:    s.title + "\n\n" + strings.TrimSpace(body),
		})
	}
	return ex, nil
}

// flattenTOC lists TOC items in document order.
func flattenTOC(items toc.Items) []*toc.Item {
	var out []*toc.Item
	for _, item := range items {
		if len(item.ID) > 0 {
			out = append(out, item)
		}
		out = append(out, flattenTOC(item.Items)...)
	}
	return out
}

func spanFor(source []byte, node ast.Node, title string) headingSpan {
	lines := node.Lines()
	first := lines.At(0)
	last := lines.At(lines.Len() - 1)

	start := bytes.LastIndexByte(source[:first.Start], '\n') + 1
	bodyStart := lineEnd(source, last.Stop)

	// A setext heading is followed by its underline.
	if next := lineEnd(source, bodyStart); next > bodyStart {
		underline := strings.TrimSpace(string(source[bodyStart:next]))
		if underline != "" && strings.Trim(underline, "=-") == "" {
			bodyStart = next
		}
	}

	level := 1
	if h, ok := node.(*ast.Heading); ok {
		level = h.Level
	}
	return headingSpan{title: strings.TrimSpace(title), level: level, lineStart: start, bodyStart: bodyStart}
}

// lineEnd returns the offset just past the newline that ends the line containing pos.
func lineEnd(source []byte, pos int) int {
	if pos >= len(source) {
		return len(source)
	}
	if i := bytes.IndexByte(source[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(source)
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if !ok {
				return ast.WalkContinue, nil
			}
			if b, isBytes := headingID.([]byte); isBytes && string(b) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}
