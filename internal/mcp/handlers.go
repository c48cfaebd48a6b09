package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/bull/got-explorer/internal/api"
	"github.com/bull/got-explorer/internal/rag"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20

	searchFailedMessage = "Passage search failed. Please try again later."
)

func makeAskHandler(svc *api.Service) func(
	context.Context, *mcp.CallToolRequest, AskQuestionInput,
) (*mcp.CallToolResult, AskQuestionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskQuestionInput) (
		*mcp.CallToolResult, AskQuestionOutput, error,
	) {
		reply := svc.Ask(ctx, input.SessionID, input.Question)
		return nil, AskQuestionOutput{Response: reply.Response, Status: reply.Status}, nil
	}
}

// makeSearchHandler returns passages rather than a formatted answer so the
// calling model can cite them itself.
func makeSearchHandler(svc *api.Service, logger zerolog.Logger) func(
	context.Context, *mcp.CallToolRequest, SearchPassagesInput,
) (*mcp.CallToolResult, SearchPassagesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchPassagesInput) (
		*mcp.CallToolResult, SearchPassagesOutput, error,
	) {
		k := input.MaxResults
		if k <= 0 {
			k = defaultMaxResults
		}
		k = min(k, maxMaxResults)

		hits, err := svc.Search(ctx, input.Query, k)
		switch {
		case errors.Is(err, rag.ErrEmptyQuery):
			return nil, SearchPassagesOutput{Results: []Passage{}, Message: "Query is empty."}, nil
		case errors.Is(err, rag.ErrIndexUnavailable):
			return nil, SearchPassagesOutput{
				Results: []Passage{},
				Message: fmt.Sprintf("The passage index is %s. Try again shortly.", svc.State()),
			}, nil
		case err != nil:
			logger.Error().Err(err).Str("query", input.Query).Msg("Passage search failed")
			return nil, SearchPassagesOutput{Results: []Passage{}, Message: searchFailedMessage}, nil
		}

		results := make([]Passage, 0, len(hits))
		for _, h := range hits {
			if h.Score < input.MinScore {
				continue
			}
			m := h.Chunk.Metadata
			results = append(results, Passage{
				BookTitle:  m.BookTitle,
				Chapter:    m.Chapter,
				Source:     m.Source,
				ChunkIndex: m.ChunkIndex,
				Content:    h.Chunk.Content,
				Score:      h.Score,
			})
		}

		if len(results) == 0 {
			return nil, SearchPassagesOutput{
				Results: results,
				Message: "No matching passages found. Try broader search terms.",
			}, nil
		}
		return nil, SearchPassagesOutput{Results: results}, nil
	}
}

func makeStatusHandler(svc *api.Service) func(
	context.Context, *mcp.CallToolRequest, IndexStatusInput,
) (*mcp.CallToolResult, IndexStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IndexStatusInput) (
		*mcp.CallToolResult, IndexStatusOutput, error,
	) {
		st := svc.Status()
		return nil, IndexStatusOutput{
			State:    st.State.String(),
			Chunks:   st.Chunks,
			Embedder: st.Embedder,
			Backend:  st.Backend,
			Fallback: st.Fallback,
			Reused:   st.Reused,
		}, nil
	}
}
