package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lucid-vigil/watchdog/pkg/scheduler"
	"github.com/lucid-vigil/watchdog/pkg/state"
)

// Watch runs live checks every live interval and a full run once new
// snapshot files have stopped changing for the settle period. Runs never
// overlap. Watch returns when ctx is done.
func (w *Watchdog) Watch(ctx context.Context, dryRun bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, dir := range w.reader.Dirs() {
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("dir", dir).Msg("Cannot watch snapshot directory")
			continue
		}
		w.logger.Info().Str("dir", dir).Msg("Watching snapshot directory")
	}

	var mu sync.Mutex
	run := func(ctx context.Context, mode scheduler.Mode) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		_, err := w.Run(ctx, Options{Mode: mode, DryRun: dryRun})
		switch {
		case errors.Is(err, state.ErrLocked):
			w.logger.Warn().Str("mode", string(mode)).Msg("Another watchdog run is in progress, skipping")
		case err != nil:
			w.logger.Error().Err(err).Str("mode", string(mode)).Msg("Watchdog run failed")
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Every(ctx, w.cfg.Watch.LiveInterval, func(ctx context.Context) {
			run(ctx, scheduler.ModeLive)
		})
	}()
	defer wg.Wait()

	// Armed only by snapshot events.
	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.reader.Matches(event.Name) {
				continue
			}
			w.logger.Debug().Str("file", event.Name).Msg("Snapshot changed")
			settle.Reset(w.cfg.Watch.Settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		case <-settle.C:
			w.logger.Info().Msg("New snapshots settled, starting full run")
			run(ctx, scheduler.ModeFull)
		}
	}
}
