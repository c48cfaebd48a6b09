// Package corpus holds the chunk data model and its on-disk JSON store.
package corpus

// DefaultChapter labels text that precedes the first detected chapter heading.
const DefaultChapter = "Introduction"

// Chunk is a passage of book text with its provenance.
type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Metadata records where a chunk came from.
type Metadata struct {
	BookTitle  string `json:"book_title"`
	Source     string `json:"source"`
	Chapter    string `json:"chapter"`
	ChunkIndex int    `json:"chunk_index"` // position within the source document, from 0
}

// Collection is every chunk extracted from one source document.
type Collection struct {
	BookTitle   string  `json:"book_title"`
	Chunks      []Chunk `json:"chunks"`
	TotalChunks int     `json:"total_chunks"`
}

// NewCollection builds a collection with TotalChunks set from the slice.
func NewCollection(title string, chunks []Chunk) *Collection {
	if chunks == nil {
		chunks = []Chunk{}
	}
	return &Collection{
		BookTitle:   title,
		Chunks:      chunks,
		TotalChunks: len(chunks),
	}
}

// Flatten concatenates the chunks of all collections in order.
func Flatten(collections []Collection) []Chunk {
	var n int
	for _, c := range collections {
		n += len(c.Chunks)
	}
	out := make([]Chunk, 0, n)
	for _, c := range collections {
		out = append(out, c.Chunks...)
	}
	return out
}
