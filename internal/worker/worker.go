package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tokenledger/tokenledger/internal/aggregate"
	"github.com/tokenledger/tokenledger/internal/ingest"
)

// snapshotCacheKey is the cache entry for the full dashboard view; every
// successful pass invalidates and rebuilds it.
const snapshotCacheKey = "dashboard"

// Engine owns the single background refresh context. Each refresh runs
// ingestion and one aggregation pass, then publishes the resulting
// snapshot atomically; readers never see a half-built one. The engine is
// the store's only writer.
type Engine struct {
	mu       sync.RWMutex
	snapshot aggregate.Snapshot
	hasSnap  bool
	paused   bool

	cache *aggregate.Cache

	ingestor   *ingest.Ingestor
	aggregator *aggregate.Aggregator
	interval   time.Duration
	timeout    time.Duration

	group  singleflight.Group
	wake   chan struct{}
	resume chan struct{}

	onUpdate func(aggregate.Snapshot)
}

func NewEngine(ingestor *ingest.Ingestor, aggregator *aggregate.Aggregator, interval, timeout time.Duration) *Engine {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		cache:      aggregate.NewCache(2 * interval),
		ingestor:   ingestor,
		aggregator: aggregator,
		interval:   interval,
		timeout:    timeout,
		wake:       make(chan struct{}, 1),
		resume:     make(chan struct{}, 1),
	}
}

// OnUpdate registers a callback invoked with every newly published
// snapshot.
func (e *Engine) OnUpdate(fn func(aggregate.Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = fn
}

// Snapshot serves dashboard reads through the report cache; when the
// cached entry has aged out (the refresh loop stalled past two intervals)
// it falls back to the last published snapshot. The boolean is false
// until the first successful refresh.
func (e *Engine) Snapshot() (aggregate.Snapshot, bool) {
	if snap, ok := e.cache.Get(snapshotCacheKey); ok {
		return snap, true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot, e.hasSnap
}

// Refresh runs one ingest+aggregate pass bounded by the per-pass timeout.
// Concurrent callers coalesce onto a single in-flight pass. On error or
// timeout the last-known-good snapshot stays published and the error is
// returned to the callers only; routine polling swallows it.
func (e *Engine) Refresh(ctx context.Context) (aggregate.Snapshot, error) {
	result, err, _ := e.group.Do("refresh", func() (interface{}, error) {
		passCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		stats, err := e.ingestor.Run(passCtx)
		if err != nil {
			return nil, err
		}
		if stats.FilesFailed > 0 || stats.Malformed > 0 {
			log.Printf("worker: degraded pass: %+v", stats)
		}

		snap, err := e.aggregator.Aggregate(passCtx)
		if err != nil {
			return nil, err
		}

		e.publish(snap)
		return snap, nil
	})
	if err != nil {
		e.mu.RLock()
		last := e.snapshot
		e.mu.RUnlock()
		return last, err
	}
	return result.(aggregate.Snapshot), nil
}

// Poke requests an asynchronous refresh from the run loop. Used by the
// filesystem watcher; safe to call from any goroutine.
func (e *Engine) Poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pause suspends the recurring timer. Poke requests received while paused
// are also ignored.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume re-enables the timer and schedules an immediate catch-up pass.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	select {
	case e.resume <- struct{}{}:
	default:
	}
}

// Run drives the refresh loop until ctx is cancelled: one pass up front,
// then one per tick or wake-up.
func (e *Engine) Run(ctx context.Context) {
	e.refreshQuietly(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("worker: context cancelled, stopping refresh loop")
			return
		case <-ticker.C:
			if !e.isPaused() {
				e.refreshQuietly(ctx)
			}
		case <-e.wake:
			if !e.isPaused() {
				e.refreshQuietly(ctx)
			}
		case <-e.resume:
			e.refreshQuietly(ctx)
		}
	}
}

func (e *Engine) refreshQuietly(ctx context.Context) {
	if _, err := e.Refresh(ctx); err != nil && ctx.Err() == nil {
		log.Printf("worker: refresh: %v", err)
	}
}

func (e *Engine) isPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

func (e *Engine) publish(snap aggregate.Snapshot) {
	e.mu.Lock()
	e.snapshot = snap
	e.hasSnap = true
	fn := e.onUpdate
	e.mu.Unlock()

	// Stale reports never outlive fresher data: drop everything, then
	// seed the cache with the pass that just completed.
	e.cache.Invalidate()
	e.cache.Put(snapshotCacheKey, snap)

	if fn != nil {
		fn(snap)
	}
}
