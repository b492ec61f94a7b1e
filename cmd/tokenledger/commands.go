package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokenledger/tokenledger/internal/aggregate"
	"github.com/tokenledger/tokenledger/internal/config"
	"github.com/tokenledger/tokenledger/internal/ingest"
	"github.com/tokenledger/tokenledger/internal/logscan"
	"github.com/tokenledger/tokenledger/internal/pricing"
	"github.com/tokenledger/tokenledger/internal/store"
	"github.com/tokenledger/tokenledger/internal/worker"
)

type runtime struct {
	store  *store.Store
	engine *worker.Engine
}

func buildRuntime(cfg config.Config) (*runtime, error) {
	dbPath := cfg.DatabasePath
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	resolver := pricing.NewRemote(pricing.DefaultFeedURL, pricing.NewStatic())
	if err := resolver.Refresh(context.Background()); err != nil {
		log.Printf("pricing: remote feed unavailable, using static table: %v", err)
	}

	dirs := logscan.DefaultLogDirs(cfg.CustomLogDirs)
	ingestor := ingest.New(st, logscan.NewScanner(resolver), dirs)
	aggregator := aggregate.New(st, resolver, cfg.BillingCycleDay, cfg.CurrencyRate)

	engine := worker.NewEngine(ingestor, aggregator,
		time.Duration(cfg.RefreshIntervalSeconds)*time.Second,
		time.Duration(cfg.RefreshTimeoutSeconds)*time.Second)

	return &runtime{store: st, engine: engine}, nil
}

// runSnapshot performs one refresh and prints the dashboard snapshot as
// JSON.
func runSnapshot(cfg config.Config) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	snap, err := rt.engine.Refresh(context.Background())
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return printSnapshot(snap)
}

func newWatchCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the background refresh loop and print a snapshot on every update.",
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt.engine.OnUpdate(func(snap aggregate.Snapshot) {
				if err := printSnapshot(snap); err != nil {
					log.Printf("watch: print snapshot: %v", err)
				}
			})

			watcher := ingest.NewWatcher(logscan.DefaultLogDirs(cfg.CustomLogDirs), rt.engine.Poke)
			go func() {
				if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("watch: watcher stopped: %v", err)
				}
			}()

			rt.engine.Run(ctx)
			return nil
		},
	}
}

func newResetCommand(cfg config.Config) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all ingested events and scan bookkeeping from the store.",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !confirmed {
				return fmt.Errorf("reset deletes all ingested data; re-run with --yes to confirm")
			}

			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.store.Close()

			ctx := context.Background()
			before, err := rt.store.Stats(ctx)
			if err != nil {
				return err
			}
			if err := rt.store.Reset(ctx); err != nil {
				return err
			}
			fmt.Printf("Removed %d events.\n", before.EventCount)
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm deletion")
	return cmd
}

func printSnapshot(snap aggregate.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}
