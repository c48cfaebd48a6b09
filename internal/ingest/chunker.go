package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkSize is the soft bound on chunk length, in characters.
const DefaultMaxChunkSize = 512

const paragraphSep = "\n\n"

var (
	blankLines  = regexp.MustCompile(`\n\s*\n`)
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Normalize collapses blank-line runs to a single paragraph break and space
// runs to one space.
func Normalize(text string) string {
	text = lineEndings.Replace(text)
	text = blankLines.ReplaceAllString(text, paragraphSep)
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Chunker packs paragraphs into chunks of bounded length.
type Chunker struct {
	maxSize int
}

// NewChunker returns a chunker. maxSize <= 0 selects DefaultMaxChunkSize.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	return &Chunker{maxSize: maxSize}
}

// MaxSize returns the configured bound.
func (c *Chunker) MaxSize() int {
	return c.maxSize
}

// Split breaks text on blank lines and greedily joins paragraphs while the
// joined length stays within the bound. A single paragraph longer than the
// bound becomes a chunk of its own.
func (c *Chunker) Split(text string) []string {
	var (
		chunks  []string
		current []string
		length  int
	)

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, paragraphSep))
			current = current[:0]
			length = 0
		}
	}

	for _, para := range strings.Split(text, paragraphSep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		n := utf8.RuneCountInString(para)
		added := n
		if len(current) > 0 {
			added += len(paragraphSep)
		}

		if len(current) > 0 && length+added > c.maxSize {
			flush()
			added = n
		}
		current = append(current, para)
		length += added
	}
	flush()

	return chunks
}
