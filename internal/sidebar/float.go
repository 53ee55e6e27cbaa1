package sidebar

import (
	"time"

	"codetree/internal/clock"
)

type floatState int

const (
	floatIdle floatState = iota
	floatArmed
	floatFired
)

// floatTimer is the single hide timer used in float mode. A fired timer
// stays fired until the pointer comes back into the sidebar, so moving around
// outside does not re-arm it.
type floatTimer struct {
	state floatState
	gen   uint64
	timer clock.Timer
}

func (f *floatTimer) clear() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
	f.state = floatIdle
}

// arm replaces any pending timer and returns the generation the callback
// must present to fire.
func (f *floatTimer) arm(s clock.Scheduler, d time.Duration, fire func(gen uint64)) {
	f.clear()
	gen := f.gen
	f.state = floatArmed
	f.timer = s.AfterFunc(d, func() { fire(gen) })
}

// fire reports whether the callback for gen is still the live one and, if
// so, moves to fired.
func (f *floatTimer) fire(gen uint64) bool {
	if gen != f.gen || f.state != floatArmed {
		return false
	}
	f.state = floatFired
	f.timer = nil
	return true
}

func (c *Controller) startHideTimer(d time.Duration) {
	if c.pointerIn || c.pinned {
		return
	}
	c.float.arm(c.sched, d, func(gen uint64) {
		c.exec.Post(func() { c.onHideTimer(gen) })
	})
}

func (c *Controller) onHideTimer(gen uint64) {
	if c.closed || !c.float.fire(gen) {
		return
	}
	c.setVisible(c.pinned)
}

// DocumentClick handles a click outside the sidebar. It hides an unpinned
// sidebar immediately.
func (c *Controller) DocumentClick() {
	if c.closed || c.pointerIn || c.pinned || !c.visible {
		return
	}
	c.setVisible(false)
}

// PointerOutside handles pointer movement over the page outside the
// sidebar. It arms the short hide timer once per excursion.
func (c *Controller) PointerOutside() {
	if c.closed || c.float.state != floatIdle {
		return
	}
	c.pointerIn = false
	c.startHideTimer(pointerLeaveDelay)
}

// PointerInSidebar handles pointer movement inside the sidebar, excluding
// the toggler. It cancels any pending hide and reveals a hidden sidebar.
func (c *Controller) PointerInSidebar() {
	if c.closed {
		return
	}
	c.pointerIn = true
	c.float.clear()
	if !c.visible {
		c.setVisible(true)
	}
}

// KeyInSidebar handles a key release inside the sidebar. It arms the long
// hide timer.
func (c *Controller) KeyInSidebar() {
	if c.closed {
		return
	}
	c.startHideTimer(keyPressDelay)
}

// TogglerHovered reveals the sidebar when hover-open is enabled.
func (c *Controller) TogglerHovered() {
	if c.closed || !c.hoverOpen {
		return
	}
	c.setVisible(true)
}

// TogglerClicked reveals the sidebar when hover-open is disabled. It reports
// whether the click was consumed; a consumed click must not also be
// delivered as a DocumentClick.
func (c *Controller) TogglerClicked() bool {
	if c.closed || c.hoverOpen {
		return false
	}
	c.setVisible(true)
	return true
}
