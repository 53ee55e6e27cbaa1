package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const refreshDebounce = 150 * time.Millisecond

// All returns every option written to the database.
func (s *SQLite) All(ctx context.Context) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM options`)
	if err != nil {
		return nil, fmt.Errorf("listing options: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scanning option: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decoding option %s: %w", key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

// Refresh re-reads the database and notifies watchers, in one ChangeSet, of
// the values another process changed since this one last looked.
func (s *SQLite) Refresh(ctx context.Context) error {
	now, err := s.All(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	cs := make(ChangeSet)
	for key, v := range now {
		old, ok := s.seen[key]
		if !ok {
			old = Defaults[key]
		}
		if !equalValues(old, v) {
			cs[key] = Change{Old: old, New: v}
		}
	}
	for key, old := range s.seen {
		if _, ok := now[key]; !ok && !equalValues(old, Defaults[key]) {
			cs[key] = Change{Old: old, New: Defaults[key]}
		}
	}
	s.seen = now
	s.mu.Unlock()

	s.notify(cs)
	return nil
}

// WatchExternal follows writes to the database file made by other processes
// and runs Refresh after each burst. It returns once the watcher is set up
// and stops when ctx is done.
func (s *SQLite) WatchExternal(ctx context.Context, log *slog.Logger) error {
	if s.path == ":memory:" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating store watcher: %w", err)
	}
	// SQLite replaces the -wal and -shm files, so watch the directory.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("watching store directory: %w", err)
	}

	files := map[string]bool{
		filepath.Clean(s.path):          true,
		filepath.Clean(s.path + "-wal"): true,
	}
	go func() {
		defer w.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !files[filepath.Clean(ev.Name)] || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(refreshDebounce, func() {
					if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
						log.Warn("refreshing options", "err", err)
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("store watcher", "err", err)
			}
		}
	}()
	return nil
}
