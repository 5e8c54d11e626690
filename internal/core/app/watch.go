package app

import (
	"context"
	"log/slog"
	"os"

	"callmap/internal/core/watcher"
	"callmap/internal/shared/util"
)

// Watch re-analyzes changed modules until ctx is done. Batches arriving
// faster than watch.max_rebuilds_per_second are merged into the next rebuild.
// onUpdate, when set, receives every rebuild's outcome.
func (a *Analyzer) Watch(ctx context.Context, onUpdate func(*Report, error)) error {
	batches := make(chan []string, 16)
	w, err := watcher.NewWatcher(a.cfg.Watch.Debounce, a.cfg.Paths.ExcludeDirs, a.cfg.Paths.ExcludeFiles, func(paths []string) {
		select {
		case batches <- paths:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()
	w.SetFileFilter(a.scanner.Accept)

	if err := w.Watch(a.scanner.Roots()); err != nil {
		return err
	}
	slog.Info("watching for changes", "roots", a.scanner.Roots(), "debounce", a.cfg.Watch.Debounce)

	limiter := util.NewLimiter(a.cfg.Watch.MaxRebuildsPerSecond, 1)
	for {
		var paths []string
		select {
		case <-ctx.Done():
			return nil
		case paths = <-batches:
		}
		if err := limiter.Wait(ctx, 1); err != nil {
			return nil
		}
		paths = append(paths, drain(batches)...)

		changed, removed := splitExisting(paths)
		slog.Info("detected changes", "changed", len(changed), "removed", len(removed))
		report, err := a.Update(ctx, changed, removed)
		if err != nil {
			slog.Error("incremental analysis failed", "error", err)
		}
		if onUpdate != nil {
			onUpdate(report, err)
		}
	}
}

func drain(batches <-chan []string) []string {
	var out []string
	for {
		select {
		case paths := <-batches:
			out = append(out, paths...)
		default:
			return out
		}
	}
}

// splitExisting separates paths that still exist from deleted or renamed ones.
func splitExisting(paths []string) (changed, removed []string) {
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if seen[path] {
			continue
		}
		seen[path] = true
		if _, err := os.Stat(path); os.IsNotExist(err) {
			removed = append(removed, path)
			continue
		}
		changed = append(changed, path)
	}
	return changed, removed
}
