// Package store persists user preferences and reports changes to them.
package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Option keys.
const (
	KeyPinned      = "pinned"
	KeyWidth       = "width"
	KeyHotkeys     = "hotkeys"
	KeyHoverOpen   = "hoverOpen"
	KeyPR          = "pr"
	KeyLazyLoad    = "lazyload"
	KeyIcons       = "icons"
	KeyFileSize    = "filesize"
	KeyDirection   = "direction"
	KeyLastVersion = "lastVersion"
	KeyTheme       = "theme" // content pane only

	KeyGitHubToken = "githubToken"
	KeyGitLabToken = "gitlabToken"
	KeyGiteeToken  = "giteeToken"
	KeyGiteaToken  = "giteaToken"
	KeyGogsToken   = "gogsToken"
)

// Defaults holds the value returned for a key that was never written.
var Defaults = map[string]any{
	KeyPinned:    false,
	KeyWidth:     280,
	KeyHotkeys:   "ctrl+b",
	KeyHoverOpen: true,
	KeyPR:        true,
	KeyLazyLoad:  false,
	KeyIcons:     true,
	KeyFileSize:  false,
	KeyDirection: "left",
}

// Change is the old and new value of one key.
type Change struct {
	Old any
	New any
}

// ChangeSet maps changed keys to their change. One write produces one set.
type ChangeSet map[string]Change

// Store is an asynchronous key/value store for preferences.
type Store interface {
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any) error
	// SetMany writes all values and notifies watchers with a single ChangeSet.
	SetMany(ctx context.Context, values map[string]any) error
	// Watch registers fn for change notifications. fn is called on the
	// writer's goroutine after the write is committed.
	Watch(fn func(ChangeSet)) (cancel func())
}

// watchers is the notification fan-out shared by the implementations.
type watchers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(ChangeSet)
}

func (w *watchers) add(fn func(ChangeSet)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]func(ChangeSet))
	}
	w.nextID++
	id := w.nextID
	w.fns[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.fns, id)
		w.mu.Unlock()
	}
}

func (w *watchers) notify(cs ChangeSet) {
	if len(cs) == 0 {
		return
	}
	w.mu.Lock()
	ids := make([]int, 0, len(w.fns))
	for id := range w.fns {
		ids = append(ids, id)
	}
	fns := make([]func(ChangeSet), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, w.fns[id])
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(cs)
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	values map[string]any
	watchers
}

// NewMemory returns an empty Memory store seeded with initial values.
func NewMemory(initial map[string]any) *Memory {
	m := &Memory{values: make(map[string]any)}
	for k, v := range initial {
		m.values[k] = v
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return Defaults[key], nil
}

func (m *Memory) Set(ctx context.Context, key string, value any) error {
	return m.SetMany(ctx, map[string]any{key: value})
}

func (m *Memory) SetMany(_ context.Context, values map[string]any) error {
	m.mu.Lock()
	cs := make(ChangeSet)
	for k, v := range values {
		old, ok := m.values[k]
		if !ok {
			old = Defaults[k]
		}
		m.values[k] = v
		if !equalValues(old, v) {
			cs[k] = Change{Old: old, New: v}
		}
	}
	m.mu.Unlock()
	m.notify(cs)
	return nil
}

func (m *Memory) Watch(fn func(ChangeSet)) func() { return m.add(fn) }

func equalValues(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Bool reads key as a boolean. Missing or unparsable values read as false.
func Bool(ctx context.Context, s Store, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return AsBool(v), nil
}

// String reads key as a string.
func String(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return AsString(v), nil
}

// Int reads key as an integer, accepting numeric strings.
func Int(ctx context.Context, s Store, key string) (int, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, ok := AsInt(v)
	if !ok {
		return 0, fmt.Errorf("option %s: not an integer: %v", key, v)
	}
	return n, nil
}

// AsBool converts a stored value to bool.
func AsBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	case float64:
		return x != 0
	case int:
		return x != 0
	default:
		return false
	}
}

// AsString converts a stored value to string. nil reads as "".
func AsString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// AsInt converts a stored value to int.
func AsInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	default:
		return 0, false
	}
}
