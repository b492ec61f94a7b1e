package aggregate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenledger/tokenledger/internal/logscan"
	"github.com/tokenledger/tokenledger/internal/pricing"
	"github.com/tokenledger/tokenledger/internal/store"
)

// End-to-end: one log file with three valid assistant turns and one
// malformed line flows through scan, insert and a full aggregation pass.
func TestAggregate_EndToEndFromLogFile(t *testing.T) {
	ctx := context.Background()

	logPath := filepath.Join(t.TempDir(), "conversation.jsonl")
	logData := `{"type":"assistant","timestamp":"2025-03-10T10:00:00Z","sessionId":"conv-1","cwd":"/home/u/projects/my-app","requestId":"r1","message":{"id":"m-1","model":"m1","usage":{"input_tokens":1000,"output_tokens":500}}}
{"type":"assistant","timestamp":"2025-03-10T10:05:00Z","sessionId":"conv-1","cwd":"/home/u/projects/my-app","requestId":"r2","message":{"id":"m-2","model":"m1","usage":{"input_tokens":1000,"output_tokens":500}}}
{"type":"assistant","timestamp":"2025-03-10T10:10:00Z","sessionId":"conv-1","cwd":"/home/u/projects/my-app","requestId":"r3","message":{"id":"m-3","model":"m1","usage":{"input_tokens":1000,"output_tokens":500}}}
not a json line at all
`
	require.NoError(t, os.WriteFile(logPath, []byte(logData), 0o644))

	resolver := pricing.NewStaticTable(map[string]pricing.Price{
		"m1": {Input: 3.0, Output: 15.0},
	}, pricing.Price{Input: 3.0, Output: 15.0})

	scanner := logscan.NewScanner(resolver)
	events, result, err := scanner.ScanFile(logPath, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Accepted)
	assert.Equal(t, 1, result.Malformed)

	db, err := store.Open(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	defer db.Close()

	batch, err := db.InsertBatch(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Inserted)

	agg := New(db, resolver, 1, 1)
	agg.Now = func() time.Time {
		return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	}

	snap, err := agg.Aggregate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Totals.EventCount)
	assert.Equal(t, int64(4500), snap.Totals.TotalTokens)

	// 3 × (1000/1e6×3.0 + 500/1e6×15.0) = 3 × 0.0105
	assert.InDelta(t, 0.0315, snap.Totals.TotalCost, 1e-9)

	require.Len(t, snap.Sessions, 1, "one ten-minute segment survives the filter")
	seg := snap.Sessions[0]
	assert.Equal(t, 3, seg.EntryCount)
	assert.InDelta(t, 10.0, seg.DurationMinutes(), 1e-9)

	require.Len(t, snap.Projects, 1)
	assert.Equal(t, "my-app", snap.Projects[0].Name)
}
