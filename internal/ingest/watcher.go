package ingest

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches the bursts of writes the assistant CLI makes to
// a log file during a single turn.
const DefaultDebounce = 2 * time.Second

// Watcher observes the log directories and fires a trigger callback,
// debounced, whenever .jsonl content changes. The trigger is expected to
// request a refresh; the watcher itself never ingests.
type Watcher struct {
	Dirs     []string
	Debounce time.Duration
	Trigger  func()
}

func NewWatcher(dirs []string, trigger func()) *Watcher {
	return &Watcher{Dirs: dirs, Debounce: DefaultDebounce, Trigger: trigger}
}

// Run blocks until ctx is cancelled. Directories that appear under a
// watched root are added on the fly so new conversations are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	for _, dir := range w.Dirs {
		w.watchTree(fw, dir)
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					w.watchTree(fw, event.Name)
				}
			}
			if !relevant(event) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("ingest: watcher: %v", err)

		case <-timer.C:
			if w.Trigger != nil {
				w.Trigger()
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	return strings.HasSuffix(event.Name, ".jsonl")
}

func (w *Watcher) watchTree(fw *fsnotify.Watcher, root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if addErr := fw.Add(path); addErr != nil {
				log.Printf("ingest: watch %s: %v", path, addErr)
			}
		}
		return nil
	})
}
