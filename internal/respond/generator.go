package respond

import (
	"context"
	"fmt"
	"strings"

	"github.com/bull/got-explorer/internal/conversation"
	"github.com/bull/got-explorer/internal/corpus"
)

// DefaultMaxContextChars bounds the passage text placed in a prompt.
const DefaultMaxContextChars = 12000

const systemPrompt = `You are a knowledgeable guide to the "A Song of Ice and Fire" books.
Answer the question using only the book passages provided. Name the book and chapter you draw from.
If the passages do not contain the answer, say that you could not find it in the books.
Keep answers short and factual.`

// Prompt is a model-agnostic request.
type Prompt struct {
	System   string
	History  []conversation.Turn
	Question string // includes the passages
}

// Generator produces free-form answers from a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// BuildPrompt places the passages ahead of the question. Passage text beyond
// maxContextChars is dropped, whole passages first.
func BuildPrompt(query string, chunks []corpus.Chunk, history []conversation.Turn, maxContextChars int) Prompt {
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}

	var b strings.Builder
	b.WriteString("Book passages:\n")
	used := 0
	for i, c := range chunks {
		n := len([]rune(c.Content))
		if i > 0 && used+n > maxContextChars {
			break
		}
		used += n
		fmt.Fprintf(&b, "\n[%d] %s:\n%s\n", i+1, attribution(c), c.Content)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", query)

	return Prompt{
		System:   systemPrompt,
		History:  history,
		Question: b.String(),
	}
}
