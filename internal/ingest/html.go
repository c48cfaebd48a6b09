package ingest

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "pre": true, "table": true, "tr": true,
	"header": true, "footer": true, "aside": true, "figure": true, "hr": true,
}

var skipTags = map[string]bool{
	"script": true, "style": true, "head": true, "noscript": true, "nav": true,
}

var inlineSpace = regexp.MustCompile(`\s+`)

type htmlExtractor struct{}

func (htmlExtractor) Extract(doc Document) (*Extracted, error) {
	page, err := parseHTML(doc.Data)
	if err != nil {
		return nil, err
	}
	return &Extracted{
		Title:    strings.TrimSpace(page.title),
		Sections: []Section{page.section},
	}, nil
}

type htmlPage struct {
	title   string
	section Section
}

func parseHTML(data []byte) (*htmlPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	var b strings.Builder
	collectText(body, &b)

	markup, _ := body.Html()
	return &htmlPage{
		title: inlineSpace.ReplaceAllString(doc.Find("title").First().Text(), " "),
		section: Section{
			Heading: firstHeading(body),
			Text:    b.String(),
			HTML:    markup,
		},
	}, nil
}

// firstHeading returns the text of the first h1, h2 or h3 in document order.
func firstHeading(sel *goquery.Selection) string {
	h := sel.Find("h1, h2, h3").First()
	return strings.TrimSpace(inlineSpace.ReplaceAllString(h.Text(), " "))
}

// collectText writes visible text, separating block elements with blank lines.
func collectText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch {
		case name == "#text":
			b.WriteString(inlineSpace.ReplaceAllString(s.Text(), " "))
		case skipTags[name], name == "#comment":
		case name == "br":
			b.WriteString("\n")
		case blockTags[name]:
			b.WriteString(paragraphSep)
			collectText(s, b)
			b.WriteString(paragraphSep)
		default:
			collectText(s, b)
		}
	})
}
