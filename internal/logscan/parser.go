package logscan

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tokenledger/tokenledger/internal/pricing"
	"github.com/tokenledger/tokenledger/internal/store"
)

// scanBufferSize accommodates log lines carrying large embedded tool
// output. Lines beyond this are treated as malformed.
const scanBufferSize = 10 * 1024 * 1024

// minValidYear guards against known upstream timestamp corruption; see
// normalizeTimestamp.
const minValidYear = 2020

// rawLine mirrors the subset of the assistant CLI's JSONL schema that
// ingestion cares about.
type rawLine struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	SessionID string      `json:"sessionId"`
	CWD       string      `json:"cwd"`
	RequestID string      `json:"requestId"`
	Message   *rawMessage `json:"message"`
}

type rawMessage struct {
	ID    string    `json:"id"`
	Model string    `json:"model"`
	Usage *rawUsage `json:"usage"`
}

// rawUsage uses pointers for the required token counts so a missing
// field is distinguishable from an explicit zero.
type rawUsage struct {
	InputTokens              *int64 `json:"input_tokens"`
	OutputTokens             *int64 `json:"output_tokens"`
	CacheCreationInputTokens int64  `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64  `json:"cache_read_input_tokens"`
}

// ScanResult counts what happened to each line of a scanned file, so
// degraded outcomes stay observable without becoming errors.
type ScanResult struct {
	Accepted    int
	Malformed   int
	Rejected    int
	BeforeCut   int
	DupesInFile int
	LastEventAt time.Time
}

// Scanner parses assistant log files into canonical usage events. Cost is
// computed at ingestion using the configured pricing resolver.
type Scanner struct {
	Pricing pricing.Resolver
	Now     func() time.Time
}

func NewScanner(resolver pricing.Resolver) *Scanner {
	return &Scanner{Pricing: resolver, Now: time.Now}
}

// ScanFile reads one JSONL log file and returns the usage events found
// after the cutoff. Each line parses independently: malformed lines are
// counted and skipped, never fatal. Duplicate dedupe keys within the file
// keep the first occurrence.
func (s *Scanner) ScanFile(path string, cutoff time.Time) ([]store.UsageEvent, ScanResult, error) {
	var result ScanResult

	f, err := os.Open(path)
	if err != nil {
		return nil, result, fmt.Errorf("logscan: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)

	seen := make(map[string]bool)
	var events []store.UsageEvent

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw rawLine
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			result.Malformed++
			continue
		}

		event, ok := s.convert(raw)
		if !ok {
			result.Rejected++
			continue
		}

		if !cutoff.IsZero() && !event.Timestamp.After(cutoff) {
			result.BeforeCut++
			continue
		}
		if seen[event.DedupeKey] {
			result.DupesInFile++
			continue
		}
		seen[event.DedupeKey] = true

		events = append(events, event)
		result.Accepted++
		if event.Timestamp.After(result.LastEventAt) {
			result.LastEventAt = event.Timestamp
		}
	}
	if err := scanner.Err(); err != nil {
		return events, result, fmt.Errorf("logscan: read %s: %w", path, err)
	}
	return events, result, nil
}

// convert applies the acceptance rules: only assistant-turn records with a
// non-empty timestamp and numeric input/output token counts become events.
func (s *Scanner) convert(raw rawLine) (store.UsageEvent, bool) {
	if raw.Type != "assistant" {
		return store.UsageEvent{}, false
	}
	if strings.TrimSpace(raw.Timestamp) == "" {
		return store.UsageEvent{}, false
	}
	if raw.Message == nil || raw.Message.Usage == nil {
		return store.UsageEvent{}, false
	}
	usage := raw.Message.Usage
	if usage.InputTokens == nil || usage.OutputTokens == nil {
		return store.UsageEvent{}, false
	}

	ts := s.normalizeTimestamp(raw.Timestamp)

	event := store.UsageEvent{
		Timestamp:        ts,
		SessionID:        raw.SessionID,
		Model:            raw.Message.Model,
		Project:          ExtractProjectName(raw.CWD),
		InputTokens:      *usage.InputTokens,
		OutputTokens:     *usage.OutputTokens,
		CacheWriteTokens: usage.CacheCreationInputTokens,
		CacheReadTokens:  usage.CacheReadInputTokens,
	}
	event.DedupeKey = store.BuildDedupeKey(
		raw.Message.ID, raw.RequestID,
		event.Timestamp, event.SessionID,
		event.InputTokens, event.OutputTokens,
	)

	if s.Pricing != nil {
		price := s.Pricing.PriceFor(event.Model)
		event.CostUSD = pricing.Cost(price,
			event.InputTokens, event.OutputTokens,
			event.CacheWriteTokens, event.CacheReadTokens)
	}
	return event, true
}

// normalizeTimestamp substitutes wall-clock now for non-parseable or
// pre-2020 timestamps. Upstream writers have shipped corrupted dates;
// dropping those records entirely would undercount usage.
func (s *Scanner) normalizeTimestamp(value string) time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil || ts.Year() < minValidYear {
		return s.now().UTC()
	}
	return ts.UTC()
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
