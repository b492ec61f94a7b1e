package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/tokenledger/tokenledger/internal/billing"
	"github.com/tokenledger/tokenledger/internal/logscan"
	"github.com/tokenledger/tokenledger/internal/pricing"
	"github.com/tokenledger/tokenledger/internal/session"
	"github.com/tokenledger/tokenledger/internal/store"
)

// EventSource is the read side of the store the pipeline aggregates from.
// One call returns a single consistent ordered view of all events.
type EventSource interface {
	ListEvents(ctx context.Context) ([]store.UsageEvent, error)
}

// Aggregator computes dashboard snapshots. All collaborators are injected;
// the pipeline itself holds no mutable state between passes.
type Aggregator struct {
	Source        EventSource
	Pricing       pricing.Resolver
	CycleStartDay int
	CurrencyRate  float64
	Now           func() time.Time
}

func New(source EventSource, resolver pricing.Resolver, cycleStartDay int, currencyRate float64) *Aggregator {
	if currencyRate <= 0 {
		currencyRate = 1
	}
	return &Aggregator{
		Source:        source,
		Pricing:       resolver,
		CycleStartDay: cycleStartDay,
		CurrencyRate:  currencyRate,
		Now:           time.Now,
	}
}

// Aggregate runs one full pass: a single consistent read of the store,
// then every rollup derived from that same event slice. The returned
// snapshot is a complete value; callers replace their previous one
// wholesale.
func (a *Aggregator) Aggregate(ctx context.Context) (Snapshot, error) {
	events, err := a.Source.ListEvents(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("aggregate: list events: %w", err)
	}

	now := a.now()
	events = a.prepare(events)

	segments := session.Split(events)
	reportable := session.Reportable(segments)

	return Snapshot{
		GeneratedAt: now,
		Totals:      a.totals(events),
		Projects:    a.projects(events),
		Sessions:    reportable,
		Daily:       a.daily(events),
		Monthly:     a.monthly(events, reportable),
		Active:      session.DetectActive(events, now),
	}, nil
}

// prepare applies the currency multiplier and backfills costs that were
// ingested before pricing was available, using the same formula as
// ingestion so the two passes agree.
func (a *Aggregator) prepare(events []store.UsageEvent) []store.UsageEvent {
	out := make([]store.UsageEvent, len(events))
	copy(out, events)
	for i := range out {
		if out[i].CostUSD == 0 && a.Pricing != nil && out[i].TotalTokens() > 0 {
			price := a.Pricing.PriceFor(out[i].Model)
			out[i].CostUSD = pricing.Cost(price,
				out[i].InputTokens, out[i].OutputTokens,
				out[i].CacheWriteTokens, out[i].CacheReadTokens)
		}
		out[i].CostUSD *= a.rate()
	}
	return out
}

func (a *Aggregator) totals(events []store.UsageEvent) Totals {
	var t Totals
	sessions := make(map[string]bool)
	projects := make(map[string]bool)
	models := make(map[string]bool)

	for _, e := range events {
		t.TotalCost += e.CostUSD
		t.TotalTokens += e.TotalTokens()
		t.InputTokens += e.InputTokens
		t.OutputTokens += e.OutputTokens
		t.CacheWriteTokens += e.CacheWriteTokens
		t.CacheReadTokens += e.CacheReadTokens
		t.EventCount++

		if e.SessionID != "" {
			sessions[e.SessionID] = true
		}
		if name := logscan.ExtractProjectName(e.Project); name != "" {
			projects[name] = true
		}
		if e.Model != "" {
			models[e.Model] = true
		}
		if t.FirstEventAt.IsZero() || e.Timestamp.Before(t.FirstEventAt) {
			t.FirstEventAt = e.Timestamp
		}
		if e.Timestamp.After(t.LastEventAt) {
			t.LastEventAt = e.Timestamp
		}
	}

	t.SessionCount = len(sessions)
	t.ProjectCount = len(projects)
	t.ModelCount = len(models)
	return t
}

// projects merges events under their extracted project name, so the same
// repository reached through different raw paths rolls up once.
func (a *Aggregator) projects(events []store.UsageEvent) []ProjectReport {
	type acc struct {
		report   ProjectReport
		sessions map[string]bool
		models   map[string]bool
	}

	byName := make(map[string]*acc)
	for _, e := range events {
		name := logscan.ExtractProjectName(e.Project)
		if name == "" {
			name = "unknown"
		}
		entry, ok := byName[name]
		if !ok {
			entry = &acc{
				report:   ProjectReport{Name: name},
				sessions: make(map[string]bool),
				models:   make(map[string]bool),
			}
			byName[name] = entry
		}
		entry.report.TotalCost += e.CostUSD
		entry.report.TotalTokens += e.TotalTokens()
		entry.report.EventCount++
		if e.SessionID != "" {
			entry.sessions[e.SessionID] = true
		}
		if e.Model != "" {
			entry.models[e.Model] = true
		}
		if e.Timestamp.After(entry.report.LastActivity) {
			entry.report.LastActivity = e.Timestamp
		}
	}

	out := make([]ProjectReport, 0, len(byName))
	for _, entry := range byName {
		entry.report.SessionCount = len(entry.sessions)
		entry.report.Models = sortedSet(entry.models)
		out = append(out, entry.report)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCost == out[j].TotalCost {
			return out[i].Name < out[j].Name
		}
		return out[i].TotalCost > out[j].TotalCost
	})
	return out
}

func (a *Aggregator) daily(events []store.UsageEvent) []DailyReport {
	type acc struct {
		report   DailyReport
		sessions map[string]bool
		models   map[string]bool
	}

	byDay := make(map[string]*acc)
	for _, e := range events {
		day := e.Timestamp.UTC().Format("2006-01-02")
		entry, ok := byDay[day]
		if !ok {
			entry = &acc{
				report:   DailyReport{Date: day, TokensByModel: make(map[string]int64)},
				sessions: make(map[string]bool),
				models:   make(map[string]bool),
			}
			byDay[day] = entry
		}
		entry.report.TotalCost += e.CostUSD
		entry.report.TotalTokens += e.TotalTokens()
		entry.report.EventCount++
		if e.SessionID != "" {
			entry.sessions[e.SessionID] = true
		}
		if e.Model != "" {
			entry.models[e.Model] = true
			entry.report.TokensByModel[e.Model] += e.TotalTokens()
		}
	}

	days := lo.Keys(byDay)
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	out := make([]DailyReport, 0, len(days))
	for _, day := range days {
		entry := byDay[day]
		entry.report.SessionCount = len(entry.sessions)
		entry.report.Models = sortedSet(entry.models)
		out = append(out, entry.report)
	}
	return out
}

// monthly groups by billing-period key, drops periods whose key fails the
// validity guard, and derives the summary statistics from the surviving
// set.
func (a *Aggregator) monthly(events []store.UsageEvent, reportable []session.Segment) MonthlySummary {
	byKey := make(map[string]*PeriodReport)
	for _, e := range events {
		period := billing.PeriodFor(e.Timestamp, a.CycleStartDay)
		if !billing.ValidKey(period.Key) {
			continue
		}
		entry, ok := byKey[period.Key]
		if !ok {
			entry = &PeriodReport{
				Key:   period.Key,
				Label: period.Label,
				Start: period.Start,
				End:   period.End,
			}
			byKey[period.Key] = entry
		}
		entry.TotalCost += e.CostUSD
		entry.TotalTokens += e.TotalTokens()
		entry.EventCount++
	}

	for _, seg := range reportable {
		period := billing.PeriodFor(seg.StartTime, a.CycleStartDay)
		if entry, ok := byKey[period.Key]; ok {
			entry.SessionCount++
		}
	}

	periods := make([]PeriodReport, 0, len(byKey))
	for _, entry := range byKey {
		periods = append(periods, *entry)
	}
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].Start.After(periods[j].Start)
	})

	summary := MonthlySummary{Periods: periods}
	if len(periods) == 0 {
		return summary
	}

	var totalCost float64
	for _, p := range periods {
		totalCost += p.TotalCost
	}
	summary.AverageCost = totalCost / float64(len(periods))
	summary.YearlyProjection = summary.AverageCost * 12
	summary.QuarterlyProjection = summary.AverageCost * 3

	if len(periods) >= 2 && periods[1].TotalCost > 0 {
		summary.GrowthRatePercent = (periods[0].TotalCost - periods[1].TotalCost) / periods[1].TotalCost * 100
	}

	highest := lo.MaxBy(periods, func(p, max PeriodReport) bool {
		return p.TotalCost > max.TotalCost
	})
	summary.HighestSpendKey = highest.Key

	busiest := lo.MaxBy(periods, func(p, max PeriodReport) bool {
		return p.SessionCount > max.SessionCount
	})
	summary.BusiestKey = busiest.Key

	return summary
}

func (a *Aggregator) rate() float64 {
	if a.CurrencyRate > 0 {
		return a.CurrencyRate
	}
	return 1
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func sortedSet(set map[string]bool) []string {
	keys := lo.Keys(set)
	sort.Strings(keys)
	return keys
}
