package analytics

import (
	"context"
	"log/slog"
	"time"
)

// AnalyticsService bundles metrics collection, periodic aggregation and export.
type AnalyticsService struct {
	metrics    *LoyaltyMetrics
	aggregator *AggregationEngine
	exporter   *ExportManager
	logger     *slog.Logger
}

// NewAnalyticsService creates a fully configured analytics service
func NewAnalyticsService(exporters ...Exporter) *AnalyticsService {
	metrics := NewLoyaltyMetrics()

	// Aggregate every hour
	aggregator := NewAggregationEngine(metrics, 1*time.Hour)

	if len(exporters) == 0 {
		exporters = []Exporter{NewConsoleExporter("[ANALYTICS]")}
	}

	return &AnalyticsService{
		metrics:    metrics,
		aggregator: aggregator,
		exporter:   NewExportManager(exporters...),
		logger:     slog.Default(),
	}
}

// GetHook returns a hook that can be registered with the loyalty engine
func (as *AnalyticsService) GetHook() Hook {
	return as.aggregator
}

// Metrics exposes the underlying KPI collector
func (as *AnalyticsService) Metrics() *LoyaltyMetrics {
	return as.metrics
}

// Aggregator exposes the aggregation engine for ad hoc queries
func (as *AnalyticsService) Aggregator() *AggregationEngine {
	return as.aggregator
}

// Start begins background analytics processing
func (as *AnalyticsService) Start(ctx context.Context) {
	go as.aggregator.Start(ctx)
	go as.startPeriodicExport(ctx)
}

// startPeriodicExport periodically exports aggregated data
func (as *AnalyticsService) startPeriodicExport(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dailyData := as.aggregator.GetAllAggregatedData(PeriodDaily)
			if err := as.exporter.ExportData(ctx, dailyData); err != nil {
				as.logger.Warn("analytics export failed", "error", err)
			}
		}
	}
}

// Close flushes and closes all exporters
func (as *AnalyticsService) Close() error {
	return as.exporter.Close()
}
