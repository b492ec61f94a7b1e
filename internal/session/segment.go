package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/tokenledger/tokenledger/internal/store"
)

const (
	// MaxSegmentMinutes bounds one session segment's wall-clock span.
	MaxSegmentMinutes = 300
	// MinReportableMinutes is the floor below which a segment is dropped
	// from session-level views. Its events still count in day and month
	// rollups.
	MinReportableMinutes = 10
)

// Segment is a time-bounded slice of one conversation's events. Segments
// are derived on every aggregation pass and never persisted.
type Segment struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Index       int       `json:"index"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	TotalCost   float64   `json:"total_cost"`
	TotalTokens int64     `json:"total_tokens"`
	EntryCount  int       `json:"entry_count"`
	Models      []string  `json:"models"`
	Projects    []string  `json:"projects"`
}

// DurationMinutes is the displayed segment duration, capped at
// MaxSegmentMinutes to absorb clock skew in source data.
func (s Segment) DurationMinutes() float64 {
	minutes := s.EndTime.Sub(s.StartTime).Minutes()
	if minutes > MaxSegmentMinutes {
		return MaxSegmentMinutes
	}
	return minutes
}

// Split partitions events into per-conversation segments. Each conversation
// is bucketed by elapsed minutes since its first observed event:
// segmentIndex = floor(minutesFromStart / 300). Buckets are anchored to the
// conversation's first event, not to wall-clock boundaries, so a
// conversation dormant for days resumes into whichever bucket its
// elapsed-from-first counter lands in.
func Split(events []store.UsageEvent) []Segment {
	if len(events) == 0 {
		return nil
	}

	bySession := make(map[string][]store.UsageEvent)
	for _, event := range events {
		bySession[event.SessionID] = append(bySession[event.SessionID], event)
	}

	var out []Segment
	for sessionID, sessionEvents := range bySession {
		sort.Slice(sessionEvents, func(i, j int) bool {
			return sessionEvents[i].Timestamp.Before(sessionEvents[j].Timestamp)
		})
		first := sessionEvents[0].Timestamp

		byIndex := make(map[int][]store.UsageEvent)
		for _, event := range sessionEvents {
			idx := int(event.Timestamp.Sub(first).Minutes() / MaxSegmentMinutes)
			byIndex[idx] = append(byIndex[idx], event)
		}

		indexes := lo.Keys(byIndex)
		sort.Ints(indexes)
		for _, idx := range indexes {
			out = append(out, buildSegment(sessionID, idx, byIndex[idx]))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Reportable filters segments for session-level views: a segment spanning
// less than ten minutes, or with a single event (undefined duration), is
// excluded.
func Reportable(segments []Segment) []Segment {
	return lo.Filter(segments, func(s Segment, _ int) bool {
		if s.EntryCount < 2 {
			return false
		}
		return s.EndTime.Sub(s.StartTime).Minutes() >= MinReportableMinutes
	})
}

func buildSegment(sessionID string, index int, events []store.UsageEvent) Segment {
	seg := Segment{
		ID:        fmt.Sprintf("%s-%d", sessionID, index),
		SessionID: sessionID,
		Index:     index,
		StartTime: events[0].Timestamp,
		EndTime:   events[len(events)-1].Timestamp,
	}

	models := make(map[string]bool)
	projects := make(map[string]bool)
	for _, event := range events {
		seg.TotalCost += event.CostUSD
		seg.TotalTokens += event.TotalTokens()
		seg.EntryCount++
		if event.Model != "" {
			models[event.Model] = true
		}
		if event.Project != "" {
			projects[event.Project] = true
		}
	}

	seg.Models = sortedKeys(models)
	seg.Projects = sortedKeys(projects)
	return seg
}

func sortedKeys(set map[string]bool) []string {
	keys := lo.Keys(set)
	sort.Strings(keys)
	return keys
}
