package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	wsadapter "loyaltykit/adapters/websocket"
	"loyaltykit/core"
	"loyaltykit/engine"
	"loyaltykit/leaderboard"
	"loyaltykit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// NewMux builds an http.Handler exposing the loyalty REST API and WebSocket stream.
// Routes:
//   - POST {prefix}/centers/{center}/customers/{id}/sync
//   - POST {prefix}/centers/{center}/customers/{id}/achievements/{type}?progress=n
//   - GET  {prefix}/centers/{center}/customers/{id}
//   - GET  {prefix}/leaderboard?n=10
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(svc *engine.LoyaltyService, hub *realtime.Hub, board leaderboard.Board, opts Options) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, svc)
	})

	// WebSocket events
	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	// Leaderboard
	if board != nil {
		mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard"), func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
				return
			}
			n := 10
			if raw := r.URL.Query().Get("n"); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil || parsed < 1 {
					writeError(w, http.StatusBadRequest, "invalid_n", "n must be a positive integer", nil)
					return
				}
				n = parsed
			}
			entries := board.TopN(n)
			if entries == nil {
				entries = []leaderboard.Entry{}
			}
			writeJSON(w, map[string]any{"entries": entries})
		})
	}

	// Customers API, scoped by center
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/centers/"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, opts.PathPrefix)
		if path == "" || path[0] != '/' {
			path = "/" + path
		}
		parts := split(path, '/')
		// parts: centers/{center}/customers/{id}[/...]
		if len(parts) < 4 || parts[0] != "centers" || parts[2] != "customers" {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		center := core.CenterID(parts[1])
		if err := core.ValidateCenterID(center); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_center", err.Error(), nil)
			return
		}
		customer, err := core.NormalizeCustomerID(core.CustomerID(parts[3]))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_customer", err.Error(), nil)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if len(parts) == 5 && parts[4] == "sync" {
				result, err := svc.RecordSync(r.Context(), customer, center)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
					return
				}
				writeJSON(w, result)
				return
			}
			if len(parts) == 6 && parts[4] == "achievements" {
				typ := core.AchievementType(parts[5])
				progress, err := strconv.Atoi(r.URL.Query().Get("progress"))
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_progress", "progress must be an integer", nil)
					return
				}
				if err := svc.UpdateProgress(r.Context(), customer, center, typ, progress); err != nil {
					writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
					return
				}
				writeJSON(w, map[string]any{"ok": true})
				return
			}
		case http.MethodGet:
			if len(parts) == 4 {
				st, err := svc.State(r.Context(), customer, center)
				if err != nil {
					writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
					return
				}
				writeJSON(w, st)
				return
			}
		}
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// Helpers

// healthCheck verifies the service is working properly
func healthCheck(w http.ResponseWriter, r *http.Request, svc *engine.LoyaltyService) {
	// Read-only storage probe; writes nothing.
	err := svc.Ping(r.Context())

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}

	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, status)
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func split(p string, sep rune) []string {
	var parts []string
	cur := make([]rune, 0, len(p))
	// trim leading '/'
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for _, r := range p {
		if r == sep {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
