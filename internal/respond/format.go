package respond

import (
	"fmt"
	"strings"

	"github.com/bull/got-explorer/internal/corpus"
)

const sentenceSep = ". "

// FormatAnswer renders passages as attributed excerpts in the order given.
func FormatAnswer(query string, chunks []corpus.Chunk) string {
	if len(chunks) == 0 {
		return NoInformationMessage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here's what I found about '%s':", query)
	for _, c := range chunks {
		b.WriteString("\n\n")
		b.WriteString(attribution(c))
		b.WriteString(":\n")
		b.WriteString(c.Content)
	}
	return b.String()
}

func attribution(c corpus.Chunk) string {
	chapter := c.Metadata.Chapter
	if chapter == "" {
		chapter = corpus.DefaultChapter
	}
	return fmt.Sprintf("From %s (%s)", c.Metadata.BookTitle, chapter)
}

// Truncate keeps answers within maxChars runes. Longer text is cut to its
// first maxSentences sentences followed by TruncationMarker; if that is still
// too long the text is cut hard so that text plus marker fits. maxChars <= 0
// disables truncation.
func Truncate(text string, maxChars, maxSentences int) string {
	if maxChars <= 0 || len([]rune(text)) <= maxChars {
		return text
	}
	if maxSentences <= 0 {
		maxSentences = 1
	}

	sentences := strings.Split(text, sentenceSep)
	if len(sentences) > maxSentences {
		sentences = sentences[:maxSentences]
	}
	head := strings.Join(sentences, sentenceSep)
	if len([]rune(head))+len([]rune(TruncationMarker)) <= maxChars {
		return head + TruncationMarker
	}

	budget := maxChars - len([]rune(TruncationMarker))
	if budget <= 0 {
		return string([]rune(TruncationMarker)[:maxChars])
	}
	return string([]rune(head)[:budget]) + TruncationMarker
}
