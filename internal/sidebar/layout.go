package sidebar

import (
	"codetree/internal/bus"
	"codetree/internal/model"
	"codetree/internal/store"
)

// setVisible shows or hides the sidebar. Showing from hidden also re-runs
// the load cycle, which does nothing when the repository is unchanged.
func (c *Controller) setVisible(v bool) {
	if c.visible == v {
		return
	}
	c.visible = v
	c.surface.SetVisible(v)
	c.bus.Emit(bus.Toggle{Visible: v})
	if v {
		c.surface.SetTogglerVisible(true)
		c.TryLoad(false)
	}
}

// TogglePin flips the persisted pin preference and returns the new value.
// The pin marker and visibility follow through the store notification.
func (c *Controller) TogglePin() bool {
	if c.closed {
		return c.pinned
	}
	v := !c.pinned
	if err := c.store.Set(c.ctx, store.KeyPinned, v); err != nil {
		c.log.Warn("writing option", "key", store.KeyPinned, "err", err)
		return c.pinned
	}
	return v
}

func (c *Controller) onPinToggled(v bool) {
	if c.pinned == v {
		return
	}
	c.pinned = v
	c.surface.SetPinned(v)
	c.bus.Emit(bus.TogglePin{Pinned: v})
	c.setVisible(v)
}

// layoutChanged tells the adapter how the sidebar sits on the page and,
// when persist is set, saves the rendered width.
func (c *Controller) layoutChanged(persist bool) {
	if c.closed {
		return
	}
	w := c.surface.Width()
	c.adapter.UpdateLayout(model.Layout{
		Pinned:  c.pinned,
		Visible: c.visible,
		Width:   w,
		Left:    c.isLeft(),
	})
	if persist {
		c.setPref(store.KeyWidth, w)
	}
}

// WindowResized handles a change of the page size.
func (c *Controller) WindowResized() {
	c.layoutChanged(false)
}

// SidebarResized handles the user dragging the sidebar edge. The width is
// clamped and persisted.
func (c *Controller) SidebarResized(width int) {
	if c.closed {
		return
	}
	c.width = c.clampWidth(width)
	c.surface.SetWidth(c.width)
	c.layoutChanged(true)
}

func (c *Controller) clampWidth(w int) int {
	return max(c.cfg.MinWidth, min(w, MaxWidth))
}

func (c *Controller) isLeft() bool {
	return c.prefString(store.KeyDirection) == "left"
}
