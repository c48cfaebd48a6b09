package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const (
	maxBodyBytes    = 64 << 10
	sessionHeader   = "X-Session-ID"
	runningMessage  = "Game of Thrones API is running"
	badBodyResponse = "Invalid request body."
)

// AskRequest is the /ask body.
type AskRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// ResetRequest is the /reset body.
type ResetRequest struct {
	SessionID string `json:"session_id"`
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

type handler struct {
	svc    *Service
	logger zerolog.Logger
}

// NewRouter returns the full HTTP surface with middleware applied.
func NewRouter(svc *Service, opts RouterOptions, logger zerolog.Logger) http.Handler {
	h := &handler{svc: svc, logger: logger.With().Str("component", "http").Logger()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("POST /ask", h.ask)
	mux.HandleFunc("POST /reset", h.reset)
	if opts.MCP != nil {
		mux.Handle("/mcp", opts.MCP)
	}

	return withMiddleware(mux, opts.AllowedOrigins, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// health reports liveness only; it does not depend on readiness.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status()
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		renderLanding(w, st)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		State  State  `json:"state"`
		Chunks int    `json:"chunks"`
	}{runningMessage, st.State, st.Chunks})
}

func (h *handler) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.Debug().Err(err).Msg("Rejected /ask body")
		writeJSON(w, http.StatusBadRequest, Reply{Response: badBodyResponse, Status: StatusError})
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.Header.Get(sessionHeader)
	}

	writeJSON(w, http.StatusOK, h.svc.Ask(r.Context(), req.SessionID, req.Text))
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Reply{Response: badBodyResponse, Status: StatusError})
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.Header.Get(sessionHeader)
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, Reply{Response: "session_id is required.", Status: StatusError})
		return
	}

	cleared := h.svc.Reset(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{"status": StatusSuccess, "cleared": cleared})
}

// decodeBody reads a single JSON object. An empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
