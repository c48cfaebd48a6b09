package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxHeadingLen keeps long prose lines that happen to start with "Chapter"
// from being taken as headings.
const maxHeadingLen = 80

var chapterLine = regexp.MustCompile(`^(?:` +
	`(?:CHAPTER|Chapter)\s+\S.*` +
	`|PROLOGUE|Prologue|EPILOGUE|Epilogue` +
	`|(?:PART|BOOK|Part|Book)\s+[\w\-]+` +
	`|#{1,3}\s+\S.*` +
	`)$`)

type textExtractor struct{}

func (textExtractor) Extract(doc Document) (*Extracted, error) {
	return &Extracted{Sections: splitChapters(string(doc.Data))}, nil
}

// splitChapters starts a new section at every chapter-like line. The heading
// line stays in the section text.
func splitChapters(text string) []Section {
	text = lineEndings.Replace(text)

	var (
		sections []Section
		heading  string
		body     strings.Builder
	)
	emit := func() {
		if strings.TrimSpace(body.String()) != "" || heading != "" {
			sections = append(sections, Section{Heading: heading, Text: body.String()})
		}
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if h, ok := chapterHeading(line); ok {
			emit()
			heading = h
			body.WriteString(h)
			body.WriteString("\n\n")
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	emit()

	return sections
}

func chapterHeading(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) > maxHeadingLen {
		return "", false
	}
	if !chapterLine.MatchString(line) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(line, "#")), true
}
