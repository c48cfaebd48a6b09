package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/got-explorer/internal/conversation"
	"github.com/bull/got-explorer/internal/corpus"
	"github.com/bull/got-explorer/internal/embedding"
	"github.com/bull/got-explorer/internal/index"
	"github.com/bull/got-explorer/internal/rag"
	"github.com/bull/got-explorer/internal/respond"
)

// failingEmbedder simulates an embedding model outage.
type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "failing" }

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model offline")
}

func buildWith(emb embedding.Embedder) Initializer {
	return func(ctx context.Context) (*rag.Engine, Stats, error) {
		chunks := corpus.Flatten(corpus.Fallback())
		idx, res, err := rag.NewBuilder(emb, index.NewMemory(), rag.BuildOptions{}, zerolog.Nop()).Build(ctx, chunks)
		if err != nil {
			return nil, Stats{}, err
		}
		engine := rag.NewEngine(
			rag.NewRetriever(emb, idx, 1),
			respond.NewResponder(nil, respond.Options{MaxChars: 1000, MaxSentences: 8}, zerolog.Nop()),
			conversation.NewStore(10, 10),
			zerolog.Nop(),
		)
		return engine, Stats{Chunks: res.Count, Fallback: true, Embedder: emb.Name(), Backend: "memory"}, nil
	}
}

func hashInit() Initializer {
	return buildWith(embedding.NewHash(embedding.DefaultHashDimension))
}

func readyService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(context.Background(), hashInit(), zerolog.Nop())
	require.True(t, svc.Start())
	require.NoError(t, svc.Wait(context.Background()))
	require.Equal(t, StateReady, svc.State())
	return svc
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeReply(t *testing.T, rec *httptest.ResponseRecorder) Reply {
	t.Helper()
	var r Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	return r
}

func TestHealthBeforeIngestion(t *testing.T) {
	svc := NewService(context.Background(), hashInit(), zerolog.Nop())
	h := NewRouter(svc, RouterOptions{}, zerolog.Nop())

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	assert.Equal(t, StateUninitialized, svc.State(), "health never triggers initialization")
}

func TestAsk_EmptyText(t *testing.T) {
	svc := NewService(context.Background(), hashInit(), zerolog.Nop())
	h := NewRouter(svc, RouterOptions{}, zerolog.Nop())

	for _, body := range []string{`{"text": ""}`, `{"text": "   "}`, `{}`} {
		rec := do(t, h, http.MethodPost, "/ask", body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"success","response":"Please ask a question about Game of Thrones."}`, rec.Body.String())
	}
	assert.Equal(t, StateUninitialized, svc.State(), "empty questions never touch the index")
}

func TestAsk_LazyInitialization(t *testing.T) {
	release := make(chan struct{})
	slowInit := func(ctx context.Context) (*rag.Engine, Stats, error) {
		<-release
		return hashInit()(ctx)
	}
	svc := NewService(context.Background(), slowInit, zerolog.Nop())
	h := NewRouter(svc, RouterOptions{}, zerolog.Nop())

	start := time.Now()
	rec := do(t, h, http.MethodPost, "/ask", `{"text": "Who is Jon Snow?"}`)
	assert.Less(t, time.Since(start), time.Second, "requests never wait for initialization")
	assert.Equal(t, http.StatusOK, rec.Code)
	reply := decodeReply(t, rec)
	assert.Equal(t, StatusInitializing, reply.Status)
	assert.Contains(t, reply.Response, "Who is Jon Snow?")
	assert.Equal(t, StateInitializing, svc.State())

	rec = do(t, h, http.MethodPost, "/ask", `{"text": "Who is Jon Snow?"}`)
	assert.Equal(t, StatusInitializing, decodeReply(t, rec).Status)

	close(release)
	require.NoError(t, svc.Wait(context.Background()))
	assert.False(t, svc.Start(), "initialization is attempted once")

	rec = do(t, h, http.MethodPost, "/ask", `{"text": "Who is Jon Snow?"}`)
	reply = decodeReply(t, rec)
	assert.Equal(t, StatusSuccess, reply.Status)
	assert.Contains(t, reply.Response, "Jon Snow is the bastard son of Eddard Stark")
	assert.Contains(t, reply.Response, "A Game of Thrones")
}

func TestAsk_DegradedWhenEmbeddingFails(t *testing.T) {
	svc := NewService(context.Background(), buildWith(failingEmbedder{}), zerolog.Nop())
	svc.Start()
	require.NoError(t, svc.Wait(context.Background()))
	assert.Equal(t, StateDegraded, svc.State())

	h := NewRouter(svc, RouterOptions{}, zerolog.Nop())
	for range 3 {
		rec := do(t, h, http.MethodPost, "/ask", `{"text": "Who is Jon Snow?"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, Reply{Response: respond.UnavailableMessage, Status: StatusUnavailable}, decodeReply(t, rec))
	}
}

func TestService_PanickingInitializerDegrades(t *testing.T) {
	svc := NewService(context.Background(), func(context.Context) (*rag.Engine, Stats, error) {
		panic("boom")
	}, zerolog.Nop())
	svc.Start()
	require.NoError(t, svc.Wait(context.Background()))
	assert.Equal(t, StateDegraded, svc.State())
}

func TestAsk_BadBody(t *testing.T) {
	h := NewRouter(readyService(t), RouterOptions{}, zerolog.Nop())

	rec := do(t, h, http.MethodPost, "/ask", `{"text": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, StatusError, decodeReply(t, rec).Status)
}

func TestAsk_SessionHistoryAndReset(t *testing.T) {
	svc := readyService(t)
	h := NewRouter(svc, RouterOptions{}, zerolog.Nop())

	rec := do(t, h, http.MethodPost, "/ask", `{"text": "Who is Jon Snow?", "session_id": "abc"}`)
	require.Equal(t, StatusSuccess, decodeReply(t, rec).Status)

	rec = do(t, h, http.MethodPost, "/reset", `{}`, "X-Session-ID", "abc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","cleared":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/reset", `{"session_id": "abc"}`)
	assert.JSONEq(t, `{"status":"success","cleared":false}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/reset", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoot(t *testing.T) {
	h := NewRouter(readyService(t), RouterOptions{}, zerolog.Nop())

	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"Game of Thrones API is running","state":"ready","chunks":3}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/", "", "Accept", "text/html,application/xhtml+xml")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "3 passages indexed")

	rec = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	svc := NewService(context.Background(), hashInit(), zerolog.Nop())

	t.Run("wildcard", func(t *testing.T) {
		h := NewRouter(svc, RouterOptions{AllowedOrigins: []string{"*"}}, zerolog.Nop())
		rec := do(t, h, http.MethodGet, "/health", "", "Origin", "https://example.com")
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, allowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("preflight on any path", func(t *testing.T) {
		h := NewRouter(svc, RouterOptions{}, zerolog.Nop())
		for _, path := range []string{"/ask", "/anything/else"} {
			rec := do(t, h, http.MethodOptions, path, "", "Origin", "https://example.com")
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, allowHeaders, rec.Header().Get("Access-Control-Allow-Headers"))
		}
	})

	t.Run("listed origins", func(t *testing.T) {
		h := NewRouter(svc, RouterOptions{AllowedOrigins: []string{"https://got.example"}}, zerolog.Nop())

		rec := do(t, h, http.MethodGet, "/health", "", "Origin", "https://got.example")
		assert.Equal(t, "https://got.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))

		rec = do(t, h, http.MethodGet, "/health", "", "Origin", "https://evil.example")
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRecovery(t *testing.T) {
	h := withMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("unexpected")
	}), nil, zerolog.Nop())

	rec := do(t, h, http.MethodPost, "/ask", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","response":"An unexpected error occurred."}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSearch(t *testing.T) {
	svc := NewService(context.Background(), hashInit(), zerolog.Nop())

	_, err := svc.Search(context.Background(), "Jon Snow", 1)
	assert.ErrorIs(t, err, rag.ErrIndexUnavailable)
	require.NoError(t, svc.Wait(context.Background()), "search starts initialization")

	hits, err := svc.Search(context.Background(), "Jon Snow", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Chunk.Content, "Jon Snow")
}

func TestServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(ctx, ServerConfig{Addr: "127.0.0.1:0"}, http.NotFoundHandler(), zerolog.Nop())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
