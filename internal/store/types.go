package store

import "time"

// UsageEvent is one recorded model response with token and cost data.
// Rows are immutable after insert; the only delete path is Reset.
type UsageEvent struct {
	Timestamp        time.Time `json:"timestamp"`
	SessionID        string    `json:"session_id"`
	Model            string    `json:"model"`
	Project          string    `json:"project"`
	InputTokens      int64     `json:"input_tokens"`
	OutputTokens     int64     `json:"output_tokens"`
	CacheWriteTokens int64     `json:"cache_write_tokens"`
	CacheReadTokens  int64     `json:"cache_read_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	DedupeKey        string    `json:"dedupe_key"`
}

func (e UsageEvent) TotalTokens() int64 {
	return e.InputTokens + e.OutputTokens + e.CacheWriteTokens + e.CacheReadTokens
}

// BatchResult reports the outcome of one batched insert.
type BatchResult struct {
	Submitted int
	Inserted  int
	Deduped   int
}

// SourceState is the incremental-scan bookkeeping for one log file.
type SourceState struct {
	Path        string
	LastEventAt time.Time
	FileModTime time.Time
	ScannedAt   time.Time
}

// Stats summarizes store contents for diagnostics and the reset command.
type Stats struct {
	EventCount   int64
	SessionCount int64
	ProjectCount int64
	FirstEventAt time.Time
	LastEventAt  time.Time
}
