// Package mcp exposes the question-answering service as Model Context
// Protocol tools.
package mcp

// AskQuestionInput defines the input parameters for the ask_question tool.
type AskQuestionInput struct {
	// Question is the free-text question about the books.
	Question string `json:"question" jsonschema:"the question to answer from the books"`
	// SessionID keys conversation history; empty means no history.
	SessionID string `json:"session_id,omitempty" jsonschema:"optional conversation id to keep follow-up context"`
}

// AskQuestionOutput mirrors the HTTP /ask reply.
type AskQuestionOutput struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

// SearchPassagesInput defines the input parameters for the search_passages tool.
type SearchPassagesInput struct {
	Query string `json:"query" jsonschema:"the semantic search query"`
	// MaxResults is the maximum number of passages to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"maximum number of passages to return (1-20)"`
	// MinScore drops passages below this cosine similarity.
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum relevance score (0-1)"`
}

// SearchPassagesOutput contains the matching passages, best first.
type SearchPassagesOutput struct {
	Results []Passage `json:"results"`
	// Message explains an empty result.
	Message string `json:"message,omitempty"`
}

// Passage is one retrieved chunk with its provenance.
type Passage struct {
	BookTitle  string  `json:"book_title"`
	Chapter    string  `json:"chapter"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// IndexStatusInput takes no parameters.
type IndexStatusInput struct{}

// IndexStatusOutput reports the pipeline state.
type IndexStatusOutput struct {
	State    string `json:"state"`
	Chunks   int    `json:"chunks"`
	Embedder string `json:"embedder,omitempty"`
	Backend  string `json:"backend,omitempty"`
	Fallback bool   `json:"fallback"`
	Reused   bool   `json:"reused"`
}
