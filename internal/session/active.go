package session

import (
	"time"

	"github.com/tokenledger/tokenledger/internal/store"
)

// ActiveWindow is the trailing window used to decide whether any
// conversation is live.
const ActiveWindow = 30 * time.Minute

const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusIdle    = "idle"
)

// ActiveSnapshot describes the most recently live conversation and its
// projected end-of-window usage. When no conversation is live the status is
// "idle" and every metric is zero, never null, so the dashboard schema
// stays stable.
type ActiveSnapshot struct {
	Status          string    `json:"status"`
	SessionID       string    `json:"session_id,omitempty"`
	StartTime       time.Time `json:"start_time,omitempty"`
	LastEventTime   time.Time `json:"last_event_time,omitempty"`
	DurationMinutes float64   `json:"duration_minutes"`
	TimeLeftMinutes float64   `json:"time_left_minutes"`
	CurrentTokens   int64     `json:"current_tokens"`
	CurrentCost     float64   `json:"current_cost"`
	TokenBurnRate   float64   `json:"token_burn_rate"`
	ProjectedTokens float64   `json:"projected_tokens"`
	ProjectedCost   float64   `json:"projected_cost"`
}

// DetectActive finds the conversation with the most recent event strictly
// inside the trailing 30-minute window and projects its burn rate to the
// end of the 300-minute session window. The window boundary is exclusive:
// an event at exactly now-30m does not count as live.
func DetectActive(events []store.UsageEvent, now time.Time) ActiveSnapshot {
	cutoff := now.Add(-ActiveWindow)

	type convState struct {
		first  time.Time
		latest time.Time
		tokens int64
		cost   float64
	}

	states := make(map[string]*convState)
	for _, event := range events {
		state, ok := states[event.SessionID]
		if !ok {
			state = &convState{first: event.Timestamp, latest: event.Timestamp}
			states[event.SessionID] = state
		}
		if event.Timestamp.Before(state.first) {
			state.first = event.Timestamp
		}
		if event.Timestamp.After(state.latest) {
			state.latest = event.Timestamp
		}
		state.tokens += event.TotalTokens()
		state.cost += event.CostUSD
	}

	var (
		winnerID string
		winner   *convState
	)
	for sessionID, state := range states {
		if !state.latest.After(cutoff) {
			continue
		}
		if winner == nil || state.latest.After(winner.latest) {
			winnerID, winner = sessionID, state
		}
	}

	if winner == nil {
		return ActiveSnapshot{Status: StatusIdle}
	}

	duration := winner.latest.Sub(winner.first).Minutes()
	timeLeft := float64(MaxSegmentMinutes) - duration
	if timeLeft < 0 {
		timeLeft = 0
	}

	status := StatusActive
	if timeLeft <= 0 {
		status = StatusExpired
	}

	var burnRate float64
	if duration > 0 {
		burnRate = float64(winner.tokens) / duration
	}
	projectedTokens := burnRate * MaxSegmentMinutes

	var projectedCost float64
	if winner.tokens > 0 {
		projectedCost = projectedTokens * (winner.cost / float64(winner.tokens))
	}

	return ActiveSnapshot{
		Status:          status,
		SessionID:       winnerID,
		StartTime:       winner.first,
		LastEventTime:   winner.latest,
		DurationMinutes: duration,
		TimeLeftMinutes: timeLeft,
		CurrentTokens:   winner.tokens,
		CurrentCost:     winner.cost,
		TokenBurnRate:   burnRate,
		ProjectedTokens: projectedTokens,
		ProjectedCost:   projectedCost,
	}
}
