package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/server"
)

// DefaultPath is the route the browser client calls.
const DefaultPath = "/api/sheets"

// DefaultAllowedOrigins is the CORS allow-list used when none is configured.
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"https://remittance-calculator.vercel.app",
	"https://*.vercel.app",
}

// Error messages sent to the client.
const (
	MsgConfigError      = "server configuration error"
	MsgLoadFailed       = "failed to load data"
	MsgSaveFailed       = "failed to save data"
	MsgMethodNotAllowed = "Method not allowed"
	MsgBadRequest       = "invalid request body"
)

// maxBody caps client request bodies.
const maxBody = 1 << 20

// DefaultMaxResponseBytes caps upstream responses when Config leaves it unset.
// Read-all returns every stored record in one body.
const DefaultMaxResponseBytes = 64 << 20

// Config holds proxy configuration
type Config struct {
	// UpstreamURL is the handler endpoint (GOOGLE_SHEET_URL)
	UpstreamURL string

	// AuthToken is the shared secret injected into POST bodies
	AuthToken string

	// AllowedOrigins may contain * wildcards. Empty means DefaultAllowedOrigins.
	AllowedOrigins []string

	// Timeout bounds each upstream call. Zero means 30s.
	Timeout time.Duration

	// MaxResponseBytes caps an upstream response. Zero means
	// DefaultMaxResponseBytes. A larger response is an error, never truncated.
	MaxResponseBytes int64

	// Client overrides the upstream HTTP client, mainly for tests
	Client *http.Client

	// Now replaces time.Now for the GET cache-buster
	Now func() time.Time
}

// ErrNotConfigured is reported when the upstream URL or secret is missing.
var ErrNotConfigured = errors.New("proxy is not configured")

// ErrResponseTooLarge is returned when an upstream body exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("upstream response too large")

// Proxy relays browser requests to the upstream handler.
type Proxy struct {
	cfg    Config
	client *http.Client
}

// New creates a Proxy. A missing URL or secret is not an error here: the
// proxy still answers preflights and reports 500 for everything else.
func New(cfg Config) *Proxy {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Proxy{cfg: cfg, client: client}
}

// Check returns ErrNotConfigured naming what is missing.
func (p *Proxy) Check() error {
	var missing []string
	if p.cfg.UpstreamURL == "" {
		missing = append(missing, "GOOGLE_SHEET_URL")
	}
	if p.cfg.AuthToken == "" {
		missing = append(missing, "AUTH_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

// NewRouter serves p on path plus a health check.
func NewRouter(p *Proxy, path string) *mux.Router {
	if path == "" {
		path = DefaultPath
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle(path, p)
	r.Use(server.LogRequests)
	return r
}

// ServeHTTP implements http.Handler
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.setCORS(w, r.Header.Get("Origin"))

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := p.Check(); err != nil {
		logging.Error("proxy misconfigured", "error", err)
		writeError(w, http.StatusInternalServerError, MsgConfigError)
		return
	}

	switch r.Method {
	case http.MethodGet:
		p.serveGet(w, r)
	case http.MethodPost:
		p.servePost(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
	}
}

func (p *Proxy) setCORS(w http.ResponseWriter, origin string) {
	if origin != "" && p.originAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// originAllowed matches origin against the allow-list. A * matches any run
// of characters other than '/', and the whole origin must match.
func (p *Proxy) originAllowed(origin string) bool {
	for _, allowed := range p.cfg.AllowedOrigins {
		if !strings.Contains(allowed, "*") {
			if allowed == origin {
				return true
			}
			continue
		}
		if ok, err := path.Match(allowed, origin); err == nil && ok {
			return true
		}
	}
	return false
}

func (p *Proxy) serveGet(w http.ResponseWriter, r *http.Request) {
	target, err := url.Parse(p.cfg.UpstreamURL)
	if err != nil {
		logging.Error("invalid upstream URL", "error", err)
		writeError(w, http.StatusInternalServerError, MsgLoadFailed)
		return
	}
	q := target.Query()
	q.Set("timestamp", strconv.FormatInt(p.cfg.Now().UnixMilli(), 10))
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		logging.Error("building upstream request", "error", err)
		writeError(w, http.StatusInternalServerError, MsgLoadFailed)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := p.do(req)
	if err != nil {
		logging.Error("upstream GET failed", "error", err)
		writeError(w, http.StatusInternalServerError, MsgLoadFailed)
		return
	}
	if !json.Valid(body) {
		logging.Error("upstream GET returned non-JSON", "bytes", len(body))
		writeError(w, http.StatusInternalServerError, MsgLoadFailed)
		return
	}
	writeRaw(w, "application/json", body)
}

func (p *Proxy) servePost(w http.ResponseWriter, r *http.Request) {
	in, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, MsgBadRequest)
		return
	}
	out, err := injectToken(in, p.cfg.AuthToken)
	if err != nil {
		logging.Warn("rejecting POST body", "error", err)
		writeError(w, http.StatusBadRequest, MsgBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.cfg.UpstreamURL, bytes.NewReader(out))
	if err != nil {
		logging.Error("building upstream request", "error", err)
		writeError(w, http.StatusInternalServerError, MsgSaveFailed)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := p.do(req)
	if err != nil {
		logging.Error("upstream POST failed", "error", err)
		writeError(w, http.StatusInternalServerError, MsgSaveFailed)
		return
	}
	if json.Valid(body) {
		writeRaw(w, "application/json", body)
		return
	}
	writeRaw(w, "text/plain; charset=utf-8", body)
}

func (p *Proxy) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := p.cfg.MaxResponseBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	logging.Debug("upstream response", "method", req.Method, "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

// injectToken sets auth_token on a JSON object body, replacing any value the
// client sent.
func injectToken(body []byte, token string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decoding body: %w", err)
	}
	if fields == nil {
		return nil, errors.New("body is not a JSON object")
	}
	tok, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	fields["auth_token"] = tok
	return json.Marshal(fields)
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Status: "error", Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to write response", "error", err)
	}
}

func writeRaw(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logging.Warn("failed to write response", "error", err)
	}
}
