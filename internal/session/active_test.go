package session

import (
	"testing"
	"time"

	"github.com/tokenledger/tokenledger/internal/store"
)

func TestDetectActive_ThirtyMinuteBoundary(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	inside := DetectActive([]store.UsageEvent{
		event("conv-1", now.Add(-(29*time.Minute + 59*time.Second)), 100, 0.01),
	}, now)
	if inside.Status != StatusActive {
		t.Fatalf("event at now-29m59s: status = %q, want active", inside.Status)
	}

	outside := DetectActive([]store.UsageEvent{
		event("conv-1", now.Add(-(30*time.Minute + time.Second)), 100, 0.01),
	}, now)
	if outside.Status != StatusIdle {
		t.Fatalf("event at now-30m01s: status = %q, want idle", outside.Status)
	}

	exact := DetectActive([]store.UsageEvent{
		event("conv-1", now.Add(-30*time.Minute), 100, 0.01),
	}, now)
	if exact.Status != StatusIdle {
		t.Fatalf("event at exactly now-30m: status = %q, want idle (exclusive boundary)", exact.Status)
	}
}

func TestDetectActive_MostRecentConversationWins(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	events := []store.UsageEvent{
		event("conv-old", now.Add(-20*time.Minute), 100, 0.01),
		event("conv-new", now.Add(-5*time.Minute), 200, 0.02),
	}

	snap := DetectActive(events, now)
	if snap.SessionID != "conv-new" {
		t.Fatalf("winner = %q, want conv-new", snap.SessionID)
	}
}

func TestDetectActive_BurnRateProjection(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-100 * time.Minute)
	events := []store.UsageEvent{
		event("conv-1", start, 1000, 0.5),
		event("conv-1", now.Add(-10*time.Minute), 2000, 1.0),
	}

	snap := DetectActive(events, now)
	if snap.Status != StatusActive {
		t.Fatalf("status = %q, want active", snap.Status)
	}
	if snap.DurationMinutes != 90 {
		t.Fatalf("duration = %v, want 90 (latest - first)", snap.DurationMinutes)
	}
	if snap.TimeLeftMinutes != 210 {
		t.Fatalf("timeLeft = %v, want 210", snap.TimeLeftMinutes)
	}
	if snap.CurrentTokens != 3000 {
		t.Fatalf("currentTokens = %d, want 3000", snap.CurrentTokens)
	}

	wantBurn := 3000.0 / 90.0
	if diff := snap.TokenBurnRate - wantBurn; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("burn rate = %v, want %v", snap.TokenBurnRate, wantBurn)
	}
	wantProjTokens := wantBurn * 300
	if diff := snap.ProjectedTokens - wantProjTokens; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("projected tokens = %v, want %v", snap.ProjectedTokens, wantProjTokens)
	}
	wantProjCost := wantProjTokens * (1.5 / 3000.0)
	if diff := snap.ProjectedCost - wantProjCost; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("projected cost = %v, want %v", snap.ProjectedCost, wantProjCost)
	}
}

func TestDetectActive_ZeroDurationConversation(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	snap := DetectActive([]store.UsageEvent{
		event("conv-1", now.Add(-time.Minute), 500, 0.1),
	}, now)

	if snap.Status != StatusActive {
		t.Fatalf("status = %q, want active", snap.Status)
	}
	if snap.TokenBurnRate != 0 {
		t.Fatalf("burn rate = %v, want 0 for zero duration", snap.TokenBurnRate)
	}
	if snap.ProjectedTokens != 0 || snap.ProjectedCost != 0 {
		t.Fatalf("projections should be 0 for zero duration, got %v tokens / %v cost",
			snap.ProjectedTokens, snap.ProjectedCost)
	}
}

func TestDetectActive_ExpiredConversation(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	events := []store.UsageEvent{
		event("conv-1", now.Add(-320*time.Minute), 100, 0.01),
		event("conv-1", now.Add(-10*time.Minute), 100, 0.01),
	}

	snap := DetectActive(events, now)
	if snap.Status != StatusExpired {
		t.Fatalf("status = %q, want expired (duration 310 > 300)", snap.Status)
	}
	if snap.TimeLeftMinutes != 0 {
		t.Fatalf("timeLeft = %v, want 0", snap.TimeLeftMinutes)
	}
}

func TestDetectActive_IdleReportsZeroes(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	snap := DetectActive(nil, now)
	if snap.Status != StatusIdle {
		t.Fatalf("status = %q, want idle", snap.Status)
	}
	if snap.CurrentTokens != 0 || snap.CurrentCost != 0 || snap.DurationMinutes != 0 {
		t.Fatalf("idle snapshot should be all-zero, got %+v", snap)
	}
}
