// Package bus is the sidebar's in-process event channel. Every event kind is
// its own struct type, subscribers are plain callbacks, and delivery is
// synchronous in emission order.
package bus

import (
	"sync"

	"codetree/internal/model"
)

// Kind identifies an event type on the bus.
type Kind int

const (
	KindViewReady Kind = iota
	KindViewClose
	KindViewShow
	KindFetchError
	KindReqStart
	KindReqEnd
	KindLayoutChange
	KindTogglePin
	KindLocChange
	KindToggle
	KindSidebarInserted
)

// Event is implemented by every payload type below.
type Event interface {
	Kind() Kind
}

// ViewReady is emitted by a view once it has finished rendering.
type ViewReady struct{ View model.ViewName }

// ViewClose asks the controller to leave the emitting view.
type ViewClose struct{ ShowSettings bool }

// ViewShow is emitted after a view became current.
type ViewShow struct{ View model.ViewName }

// FetchError carries an adapter failure raised by any view.
type FetchError struct{ Err error }

// ReqStart and ReqEnd bracket a tree load.
type ReqStart struct{}
type ReqEnd struct{}

// LayoutChange asks for a layout recompute.
type LayoutChange struct{}

// TogglePin is emitted when the pin marker flips.
type TogglePin struct{ Pinned bool }

// LocChange reports a host page navigation.
type LocChange struct{ Reload bool }

// Toggle is emitted when sidebar visibility flips.
type Toggle struct{ Visible bool }

// SidebarInserted is emitted once the scaffold is mounted.
type SidebarInserted struct{}

func (ViewReady) Kind() Kind       { return KindViewReady }
func (ViewClose) Kind() Kind       { return KindViewClose }
func (ViewShow) Kind() Kind        { return KindViewShow }
func (FetchError) Kind() Kind      { return KindFetchError }
func (ReqStart) Kind() Kind        { return KindReqStart }
func (ReqEnd) Kind() Kind          { return KindReqEnd }
func (LayoutChange) Kind() Kind    { return KindLayoutChange }
func (TogglePin) Kind() Kind       { return KindTogglePin }
func (LocChange) Kind() Kind       { return KindLocChange }
func (Toggle) Kind() Kind          { return KindToggle }
func (SidebarInserted) Kind() Kind { return KindSidebarInserted }

type subscriber struct {
	id uint64
	fn func(Event)
}

// Bus delivers events to subscribers. Emit is re-entrant: an event emitted
// from inside a handler is queued and delivered after the current one, so
// every subscriber observes events in emission order.
type Bus struct {
	mu     sync.Mutex
	subs   map[Kind][]subscriber
	nextID uint64

	queue      []Event
	delivering bool
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Kind][]subscriber)}
}

// On registers fn for events of type E and returns a function that removes it.
func On[E Event](b *Bus, fn func(E)) (unsubscribe func()) {
	var zero E
	kind := zero.Kind()

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscriber{id: id, fn: func(e Event) {
		if ev, ok := e.(E); ok {
			fn(ev)
		}
	}})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(kind, id) })
	}
}

func (b *Bus) remove(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[kind]
	for i, s := range subs {
		if s.id == id {
			b.subs[kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers e to every subscriber of its kind.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	if b.delivering {
		b.mu.Unlock()
		return
	}
	b.delivering = true
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.delivering = false
			b.mu.Unlock()
			return
		}
		next := b.queue[0]
		b.queue = b.queue[1:]
		subs := append([]subscriber(nil), b.subs[next.Kind()]...)
		b.mu.Unlock()

		for _, s := range subs {
			s.fn(next)
		}
	}
}

// Count returns the number of subscribers for kind.
func (b *Bus) Count(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[kind])
}
