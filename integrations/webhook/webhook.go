package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"loyaltykit/core"
)

// Sink posts loyalty events to configured HTTP endpoints.
// It is synchronous for determinism; keep handlers fast or wrap with buffering if needed.
type Sink struct {
	client    *http.Client
	endpoints []string
	types     map[core.EventType]struct{}
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithEventTypes restricts delivery to the listed event types.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// OnEvent posts the event JSON to all endpoints; delivery is best effort.
func (s *Sink) OnEvent(e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	if s.types != nil {
		if _, ok := s.types[e.Type]; !ok {
			return
		}
	}
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}
