package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"loyaltykit/core"
)

// AggregationPeriod represents different time periods for aggregation
type AggregationPeriod string

const (
	PeriodDaily   AggregationPeriod = "daily"
	PeriodWeekly  AggregationPeriod = "weekly"
	PeriodMonthly AggregationPeriod = "monthly"
)

// AggregatedData represents aggregated loyalty KPIs for one period
type AggregatedData struct {
	Period    AggregationPeriod `json:"period"`
	Key       string            `json:"key"` // e.g., "2026-09-01" for daily, "2026-W36" for weekly
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`

	// Customer engagement
	ActiveCustomers int `json:"active_customers"`

	// Syncs and XP
	SyncsRecorded int64 `json:"syncs_recorded"`
	XPAwarded     int64 `json:"xp_awarded"`

	// Achievements
	AchievementsUnlocked int64                           `json:"achievements_unlocked"`
	UnlocksByType        map[core.AchievementType]int64  `json:"unlocks_by_type"`

	// Metadata
	CreatedAt time.Time `json:"created_at"`
}

// AggregationEngine handles periodic aggregation of loyalty analytics
type AggregationEngine struct {
	mu sync.RWMutex

	metrics *LoyaltyMetrics
	hook    Hook
	logger  *slog.Logger

	dailyAggregations   map[string]*AggregatedData
	weeklyAggregations  map[string]*AggregatedData
	monthlyAggregations map[string]*AggregatedData

	aggregationInterval time.Duration
	lastAggregation     time.Time
}

func NewAggregationEngine(metrics *LoyaltyMetrics, aggregationInterval time.Duration) *AggregationEngine {
	return &AggregationEngine{
		metrics:             metrics,
		hook:                metrics,
		logger:              slog.Default(),
		dailyAggregations:   make(map[string]*AggregatedData),
		weeklyAggregations:  make(map[string]*AggregatedData),
		monthlyAggregations: make(map[string]*AggregatedData),
		aggregationInterval: aggregationInterval,
		lastAggregation:     time.Now(),
	}
}

// OnEvent forwards events to the underlying metrics hook
func (ae *AggregationEngine) OnEvent(e core.Event) {
	ae.hook.OnEvent(e)
}

// AggregateNow forces an immediate aggregation of all periods
func (ae *AggregationEngine) AggregateNow() error {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	now := time.Now().UTC()

	ae.aggregateDaily(now)
	ae.aggregateWeekly(now)
	ae.aggregateMonthly(now)

	ae.lastAggregation = now
	return nil
}

func (ae *AggregationEngine) aggregateDaily(now time.Time) {
	today := now.Format("2006-01-02")
	startTime := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endTime := startTime.Add(24 * time.Hour)

	data := &AggregatedData{
		Period:        PeriodDaily,
		Key:           today,
		StartTime:     startTime,
		EndTime:       endTime,
		CreatedAt:     now,
		UnlocksByType: make(map[core.AchievementType]int64),
	}

	data.ActiveCustomers = ae.metrics.GetDailyActiveCustomers(today)
	data.SyncsRecorded = ae.metrics.GetSyncsByDay(today)
	data.XPAwarded = ae.metrics.GetXPAwardedByDay(today)
	data.AchievementsUnlocked = ae.metrics.GetUnlocksByDay(today)

	ae.dailyAggregations[today] = data
}

// aggregateWeekly aggregates data for the current ISO week
func (ae *AggregationEngine) aggregateWeekly(now time.Time) {
	year, week := now.ISOWeek()
	weekKey := fmt.Sprintf("%d-W%02d", year, week)

	// Week starts Monday
	daysSinceMonday := int(now.Weekday()-time.Monday) % 7
	if daysSinceMonday < 0 {
		daysSinceMonday += 7
	}
	startTime := time.Date(now.Year(), now.Month(), now.Day()-daysSinceMonday, 0, 0, 0, 0, time.UTC)
	endTime := startTime.Add(7 * 24 * time.Hour)

	data := &AggregatedData{
		Period:        PeriodWeekly,
		Key:           weekKey,
		StartTime:     startTime,
		EndTime:       endTime,
		CreatedAt:     now,
		UnlocksByType: make(map[core.AchievementType]int64),
	}

	data.ActiveCustomers = ae.metrics.GetWeeklyActiveCustomers(weekKey)

	for i := 0; i < 7; i++ {
		dayKey := startTime.AddDate(0, 0, i).Format("2006-01-02")
		data.SyncsRecorded += ae.metrics.GetSyncsByDay(dayKey)
		data.XPAwarded += ae.metrics.GetXPAwardedByDay(dayKey)
		data.AchievementsUnlocked += ae.metrics.GetUnlocksByDay(dayKey)
	}

	ae.weeklyAggregations[weekKey] = data
}

// aggregateMonthly aggregates data for the current month
func (ae *AggregationEngine) aggregateMonthly(now time.Time) {
	monthKey := now.Format("2006-01")

	startTime := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	endTime := startTime.AddDate(0, 1, 0)

	data := &AggregatedData{
		Period:        PeriodMonthly,
		Key:           monthKey,
		StartTime:     startTime,
		EndTime:       endTime,
		CreatedAt:     now,
		UnlocksByType: make(map[core.AchievementType]int64),
	}

	data.ActiveCustomers = ae.metrics.GetMonthlyActiveCustomers(monthKey)

	daysInMonth := int(endTime.Sub(startTime).Hours() / 24)
	for i := 0; i < daysInMonth; i++ {
		dayKey := startTime.AddDate(0, 0, i).Format("2006-01-02")
		data.SyncsRecorded += ae.metrics.GetSyncsByDay(dayKey)
		data.XPAwarded += ae.metrics.GetXPAwardedByDay(dayKey)
		data.AchievementsUnlocked += ae.metrics.GetUnlocksByDay(dayKey)
	}

	ae.monthlyAggregations[monthKey] = data
}

// GetAggregatedData returns aggregated data for a specific period and key
func (ae *AggregationEngine) GetAggregatedData(period AggregationPeriod, key string) (*AggregatedData, bool) {
	ae.mu.RLock()
	defer ae.mu.RUnlock()

	aggregations := ae.byPeriod(period)
	if aggregations == nil {
		return nil, false
	}
	data, exists := aggregations[key]
	return data, exists
}

// GetAllAggregatedData returns all aggregated data for a specific period
func (ae *AggregationEngine) GetAllAggregatedData(period AggregationPeriod) []*AggregatedData {
	ae.mu.RLock()
	defer ae.mu.RUnlock()

	aggregations := ae.byPeriod(period)
	if aggregations == nil {
		return nil
	}
	result := make([]*AggregatedData, 0, len(aggregations))
	for _, data := range aggregations {
		result = append(result, data)
	}
	return result
}

func (ae *AggregationEngine) byPeriod(period AggregationPeriod) map[string]*AggregatedData {
	switch period {
	case PeriodDaily:
		return ae.dailyAggregations
	case PeriodWeekly:
		return ae.weeklyAggregations
	case PeriodMonthly:
		return ae.monthlyAggregations
	default:
		return nil
	}
}

// Start begins periodic aggregation in a background goroutine
func (ae *AggregationEngine) Start(ctx context.Context) {
	ticker := time.NewTicker(ae.aggregationInterval)
	defer ticker.Stop()

	if err := ae.AggregateNow(); err != nil {
		ae.logger.Warn("initial aggregation failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ae.AggregateNow(); err != nil {
				ae.logger.Warn("periodic aggregation failed", "error", err)
			}
		}
	}
}

// ExportData exports aggregated data to JSON format
func (ae *AggregationEngine) ExportData(period AggregationPeriod) ([]byte, error) {
	data := ae.GetAllAggregatedData(period)
	return json.MarshalIndent(data, "", "  ")
}
