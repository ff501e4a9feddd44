package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Exporter ships aggregated KPI windows to an external sink.
type Exporter interface {
	Export(ctx context.Context, data *AggregatedData) error
	Flush(ctx context.Context) error
	Close() error
}

// HTTPExporter batches windows and POSTs them as a JSON array.
type HTTPExporter struct {
	endpoint string
	apiKey   string
	client   *http.Client

	mu      sync.Mutex
	pending []*AggregatedData
	batch   int
}

func NewHTTPExporter(endpoint, apiKey string, batchSize int) *HTTPExporter {
	if batchSize < 1 {
		batchSize = 1
	}
	return &HTTPExporter{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
		pending:  make([]*AggregatedData, 0, batchSize),
		batch:    batchSize,
	}
}

func (e *HTTPExporter) Export(ctx context.Context, data *AggregatedData) error {
	e.mu.Lock()
	e.pending = append(e.pending, data)
	full := len(e.pending) >= e.batch
	e.mu.Unlock()

	if full {
		return e.Flush(ctx)
	}
	return nil
}

func (e *HTTPExporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return nil
	}
	out := e.pending
	e.pending = make([]*AggregatedData, 0, e.batch)
	e.mu.Unlock()

	body, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal export batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post export batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("export sink returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func (e *HTTPExporter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Flush(ctx)
}

// ConsoleExporter prints windows to stdout. Debugging aid.
type ConsoleExporter struct {
	prefix string
}

func NewConsoleExporter(prefix string) *ConsoleExporter {
	return &ConsoleExporter{prefix: prefix}
}

func (e *ConsoleExporter) Export(_ context.Context, data *AggregatedData) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s %s/%s:\n%s\n", e.prefix, data.Period, data.Key, out)
	return nil
}

func (e *ConsoleExporter) Flush(context.Context) error { return nil }

func (e *ConsoleExporter) Close() error { return nil }

// MultiExporter fans one window out to several sinks. A failing sink is
// logged and skipped so it cannot starve the others.
type MultiExporter struct {
	sinks  []Exporter
	logger *slog.Logger
}

func NewMultiExporter(sinks ...Exporter) *MultiExporter {
	return &MultiExporter{sinks: sinks, logger: slog.Default()}
}

func (e *MultiExporter) Export(ctx context.Context, data *AggregatedData) error {
	for _, s := range e.sinks {
		if err := s.Export(ctx, data); err != nil {
			e.logger.Warn("export failed", "exporter", fmt.Sprintf("%T", s), "error", err)
		}
	}
	return nil
}

func (e *MultiExporter) Flush(ctx context.Context) error {
	for _, s := range e.sinks {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *MultiExporter) Close() error {
	var firstErr error
	for _, s := range e.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ExportManager drives a set of exporters over batches of windows. Unlike
// MultiExporter it fails fast: a scheduled export run should surface sink
// errors to its caller.
type ExportManager struct {
	sinks []Exporter
}

func NewExportManager(sinks ...Exporter) *ExportManager {
	return &ExportManager{sinks: sinks}
}

func (em *ExportManager) ExportData(ctx context.Context, data []*AggregatedData) error {
	for _, window := range data {
		for _, s := range em.sinks {
			if err := s.Export(ctx, window); err != nil {
				return fmt.Errorf("export via %T: %w", s, err)
			}
		}
	}
	return em.Flush(ctx)
}

func (em *ExportManager) Flush(ctx context.Context) error {
	for _, s := range em.sinks {
		if err := s.Flush(ctx); err != nil {
			return fmt.Errorf("flush %T: %w", s, err)
		}
	}
	return nil
}

func (em *ExportManager) Close() error {
	var firstErr error
	for _, s := range em.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
