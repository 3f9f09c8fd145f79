package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/server"
)

// DefaultPath is the webhook path the proxy posts to.
const DefaultPath = "/exec"

// maxBody caps request bodies.
const maxBody = 1 << 20

// NewRouter exposes h on path: POST writes, GET reads. Every response is
// 200 with a JSON body; failures are reported in the envelope.
func NewRouter(h *Handler, path string) *mux.Router {
	if path == "" {
		path = DefaultPath
	}
	r := mux.NewRouter()
	r.HandleFunc(path, h.servePost).Methods(http.MethodPost)
	r.HandleFunc(path, h.serveGet).Methods(http.MethodGet)
	r.HandleFunc("/healthz", serveHealth).Methods(http.MethodGet)
	r.Use(server.LogRequests)
	return r
}

func (h *Handler) servePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeJSON(w, failure(fmt.Errorf("reading request body: %w", err)))
		return
	}
	writeJSON(w, h.Post(r.Context(), body))
}

func (h *Handler) serveGet(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Get(r.Context())
	if err != nil {
		writeJSON(w, failure(err))
		return
	}
	writeJSON(w, recs)
}

func serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to write response", "error", err)
	}
}
