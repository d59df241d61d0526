package ics

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "dbcal/internal/log"
)

// WatchDebounce collapses the burst of events an editor save produces.
const WatchDebounce = 300 * time.Millisecond

// Watch calls onChange with the path of a local feed file after it is
// written, created or renamed into place. Parent directories are watched
// so atomic replaces are seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, paths []string, onChange func(path string)) error {
	if len(paths) == 0 {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	wanted := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		wanted[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return err
		}
	}

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			path, err := filepath.Abs(ev.Name)
			if err != nil || !wanted[path] {
				continue
			}
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Reset(WatchDebounce)
			} else {
				timers[path] = time.AfterFunc(WatchDebounce, func() {
					mu.Lock()
					delete(timers, path)
					mu.Unlock()
					appLog.Info("feed file changed", "path", path)
					onChange(path)
				})
			}
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Error("feed watcher error", err)
		}
	}
}
