package ingest

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/tokenledger/tokenledger/internal/logscan"
	"github.com/tokenledger/tokenledger/internal/store"
)

// IngestStats summarizes one ingestion pass. Per-file failures land in
// counters instead of aborting the pass.
type IngestStats struct {
	FilesSeen      int
	FilesScanned   int
	FilesSkipped   int
	FilesFailed    int
	EventsInserted int
	EventsDeduped  int
	Malformed      int
	Rejected       int
}

// Ingestor discovers log files and feeds new events into the store. It is
// the store's only writer.
type Ingestor struct {
	Store   *store.Store
	Scanner *logscan.Scanner
	Dirs    []string
}

func New(st *store.Store, scanner *logscan.Scanner, dirs []string) *Ingestor {
	return &Ingestor{Store: st, Scanner: scanner, Dirs: dirs}
}

// Run performs one full ingestion pass: every .jsonl file under the
// configured directories is scanned incrementally from its recorded
// cutoff. A file whose mtime has not advanced since the last scan is
// skipped without being read.
func (ing *Ingestor) Run(ctx context.Context) (IngestStats, error) {
	var stats IngestStats

	for _, path := range logscan.CollectFiles(ing.Dirs) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.FilesSeen++

		if err := ing.ingestFile(ctx, path, &stats); err != nil {
			stats.FilesFailed++
			log.Printf("ingest: %s: %v", path, err)
		}
	}
	return stats, nil
}

func (ing *Ingestor) ingestFile(ctx context.Context, path string, stats *IngestStats) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	state, err := ing.Store.SourceCutoff(ctx, path)
	if err != nil {
		return err
	}
	if !state.FileModTime.IsZero() && !info.ModTime().After(state.FileModTime) {
		stats.FilesSkipped++
		return nil
	}

	events, result, err := ing.Scanner.ScanFile(path, state.LastEventAt)
	if err != nil {
		return err
	}
	stats.FilesScanned++
	stats.Malformed += result.Malformed
	stats.Rejected += result.Rejected

	if len(events) > 0 {
		batch, err := ing.Store.InsertBatch(ctx, events)
		if err != nil {
			return err
		}
		stats.EventsInserted += batch.Inserted
		stats.EventsDeduped += batch.Deduped
	}

	cutoff := state.LastEventAt
	if result.LastEventAt.After(cutoff) {
		cutoff = result.LastEventAt
	}
	return ing.Store.RecordSource(ctx, store.SourceState{
		Path:        path,
		LastEventAt: cutoff,
		FileModTime: info.ModTime(),
		ScannedAt:   time.Now(),
	})
}
