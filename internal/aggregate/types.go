package aggregate

import (
	"time"

	"github.com/tokenledger/tokenledger/internal/session"
)

// Totals is the all-time rollup across every stored event. Session,
// project and model counts are counts of distinct identifiers, not events.
type Totals struct {
	TotalCost        float64   `json:"total_cost"`
	TotalTokens      int64     `json:"total_tokens"`
	InputTokens      int64     `json:"input_tokens"`
	OutputTokens     int64     `json:"output_tokens"`
	CacheWriteTokens int64     `json:"cache_write_tokens"`
	CacheReadTokens  int64     `json:"cache_read_tokens"`
	EventCount       int       `json:"event_count"`
	SessionCount     int       `json:"session_count"`
	ProjectCount     int       `json:"project_count"`
	ModelCount       int       `json:"model_count"`
	FirstEventAt     time.Time `json:"first_event_at,omitempty"`
	LastEventAt      time.Time `json:"last_event_at,omitempty"`
}

// ProjectReport rolls up usage under one extracted project name. Reports
// for the same name reached through different raw paths are merged.
type ProjectReport struct {
	Name         string    `json:"name"`
	TotalCost    float64   `json:"total_cost"`
	TotalTokens  int64     `json:"total_tokens"`
	EventCount   int       `json:"event_count"`
	SessionCount int       `json:"session_count"`
	Models       []string  `json:"models"`
	LastActivity time.Time `json:"last_activity"`
}

// DailyReport groups usage by calendar day (UTC, "2006-01-02").
type DailyReport struct {
	Date          string           `json:"date"`
	TotalCost     float64          `json:"total_cost"`
	TotalTokens   int64            `json:"total_tokens"`
	EventCount    int              `json:"event_count"`
	SessionCount  int              `json:"session_count"`
	Models        []string         `json:"models"`
	TokensByModel map[string]int64 `json:"tokens_by_model,omitempty"`
}

// PeriodReport groups usage by billing-period key.
type PeriodReport struct {
	Key          string    `json:"key"`
	Label        string    `json:"label"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TotalCost    float64   `json:"total_cost"`
	TotalTokens  int64     `json:"total_tokens"`
	EventCount   int       `json:"event_count"`
	SessionCount int       `json:"session_count"`
}

// MonthlySummary carries the billing-period rollup plus the derived
// statistics the dashboard shows alongside it.
type MonthlySummary struct {
	Periods             []PeriodReport `json:"periods"`
	AverageCost         float64        `json:"average_cost"`
	GrowthRatePercent   float64        `json:"growth_rate_percent"`
	HighestSpendKey     string         `json:"highest_spend_key,omitempty"`
	BusiestKey          string         `json:"busiest_key,omitempty"`
	YearlyProjection    float64        `json:"yearly_projection"`
	QuarterlyProjection float64        `json:"quarterly_projection"`
}

// Snapshot is the full dashboard view computed by one aggregation pass.
// Two passes over the same events differ only in GeneratedAt.
type Snapshot struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Totals      Totals                 `json:"totals"`
	Projects    []ProjectReport        `json:"projects"`
	Sessions    []session.Segment      `json:"sessions"`
	Daily       []DailyReport          `json:"daily"`
	Monthly     MonthlySummary         `json:"monthly"`
	Active      session.ActiveSnapshot `json:"active"`
}
