// Package hotkey keeps the sidebar's global key bindings.
package hotkey

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
)

var symbols = strings.NewReplacer(
	"⌃", "ctrl",
	"⌥", "alt",
	"⇧", "shift",
	"⌘", "cmd",
	" ", "",
)

// Parse splits a combination list such as "⌃+⇧+s, ctrl+b" into normalised
// key strings.
func Parse(combo string) []string {
	var keys []string
	for _, part := range strings.Split(combo, ",") {
		k := strings.ToLower(symbols.Replace(strings.TrimSpace(part)))
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

type binding struct {
	b  key.Binding
	fn func()
}

// Registry maps key combinations to actions. Handle consults the filter
// before matching, so bindings only fire while the filter allows it.
type Registry struct {
	mu       sync.Mutex
	filter   func() bool
	bindings map[string]binding
}

// NewRegistry returns an empty registry that accepts every key.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]binding)}
}

// SetFilter installs the guard checked on every key.
func (r *Registry) SetFilter(fn func() bool) {
	r.mu.Lock()
	r.filter = fn
	r.mu.Unlock()
}

// Bind attaches fn to combo. Binding the same combo again replaces it.
func (r *Registry) Bind(combo string, fn func()) error {
	keys := Parse(combo)
	if len(keys) == 0 {
		return fmt.Errorf("hotkey: empty combination %q", combo)
	}
	r.mu.Lock()
	r.bindings[canonical(combo)] = binding{
		b:  key.NewBinding(key.WithKeys(keys...), key.WithHelp(strings.Join(keys, "/"), "pin sidebar")),
		fn: fn,
	}
	r.mu.Unlock()
	return nil
}

// Unbind removes combo. Unknown combinations are ignored.
func (r *Registry) Unbind(combo string) {
	r.mu.Lock()
	delete(r.bindings, canonical(combo))
	r.mu.Unlock()
}

// Bound reports whether combo currently has an action.
func (r *Registry) Bound(combo string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bindings[canonical(combo)]
	return ok
}

// Len returns the number of bound combinations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// Help lists the bindings for a help screen.
func (r *Registry) Help() []key.Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]key.Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b.b)
	}
	return out
}

// Handle runs the action bound to k, if any, and reports whether it did.
func (r *Registry) Handle(k fmt.Stringer) bool {
	r.mu.Lock()
	filter := r.filter
	var matched func()
	for _, b := range r.bindings {
		if key.Matches(k, b.b) {
			matched = b.fn
			break
		}
	}
	r.mu.Unlock()

	if matched == nil || (filter != nil && !filter()) {
		return false
	}
	matched()
	return true
}

func canonical(combo string) string {
	return strings.Join(Parse(combo), ",")
}
