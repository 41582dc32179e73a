package summary

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pearsedarcy/cam-tests/internal/logging"
)

// debounceWindow coalesces the burst of writes a finishing job produces.
const debounceWindow = 500 * time.Millisecond

// Watch re-runs render whenever a sampler log under dir is created or
// written, until ctx is cancelled. render receives the freshly aggregated
// entries; an empty directory simply waits for the first log to appear.
func Watch(ctx context.Context, dir string, render func([]Entry) error) error {
	logger := logging.GetLogger("summary")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Info("Watching results directory", "dir", dir)

	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(debounceWindow, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	// render once for whatever is already there
	schedule()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fire:
			entries, err := Summarize(dir)
			if err != nil {
				logger.Debug("Nothing to summarize yet", "error", err)
				continue
			}
			if err := render(entries); err != nil {
				logger.Error("Failed to render summary", "error", err)
			}
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			logger.Debug("Results changed", "file", ev.Name, "op", ev.Op.String())
			schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", "error", err)
		}
	}
}

// relevant reports whether an event should trigger a re-render: sampler logs
// and recordings, created or written.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) {
		return false
	}
	name := ev.Name
	if strings.HasSuffix(name, ".error.log") {
		return false
	}
	for _, suffix := range []string{".log", ".mp4", ".avi"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
