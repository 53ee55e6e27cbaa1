package sidebar

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"codetree/internal/store"
)

// optionsChanged applies one change set. Several keys may ask for a reload;
// the reload runs at most once, after every key has been applied.
func (c *Controller) optionsChanged(cs store.ChangeSet) {
	reload, relayout := false, false
	for _, key := range slices.Sorted(maps.Keys(cs)) {
		ch := cs[key]
		switch key {
		case store.KeyGitHubToken, store.KeyGitLabToken, store.KeyGiteeToken,
			store.KeyGiteaToken, store.KeyGogsToken,
			store.KeyLazyLoad, store.KeyIcons, store.KeyFileSize:
			reload = true
		case store.KeyPR:
			if c.adapter.IsPullRequestPage() {
				reload = true
			}
		case store.KeyHoverOpen:
			c.hoverOpen = store.AsBool(ch.New)
		case store.KeyHotkeys:
			c.setHotkeys(store.AsString(ch.New), store.AsString(ch.Old))
		case store.KeyPinned:
			c.onPinToggled(store.AsBool(ch.New))
		case store.KeyDirection:
			relayout = true
		}
	}
	if c.delegate != nil && c.delegate.ApplyOptions(cs) {
		reload = true
	}
	if relayout {
		c.layoutChanged(false)
	}
	if reload {
		c.log.Debug("options changed, reloading", "keys", len(cs))
		c.TryLoad(true)
	}
}

// setHotkeys binds the pin toggle to combo, unbinding old first. Hotkeys
// only fire while the sidebar is visible.
func (c *Controller) setHotkeys(combo, old string) {
	c.hotkeys.SetFilter(func() bool { return c.visible })
	if old != "" {
		c.hotkeys.Unbind(old)
	}
	if c.combo != "" && c.combo != old {
		c.hotkeys.Unbind(c.combo)
	}
	c.combo = ""
	if strings.TrimSpace(combo) == "" {
		return
	}
	if err := c.hotkeys.Bind(combo, c.onHotkey); err != nil {
		c.log.Warn("binding hotkey", "combo", combo, "err", err)
		return
	}
	c.combo = combo
}

func (c *Controller) onHotkey() {
	if c.TogglePin() {
		c.tree.Focus()
	}
}

func (c *Controller) initVersion() {
	if c.cfg.Version == "" {
		return
	}
	last := c.prefString(store.KeyLastVersion)
	c.newVersion = compareVersions(c.cfg.Version, last) > 0
	c.surface.SetVersion(c.cfg.Version, c.newVersion)
}

func (c *Controller) scheduleVersionSave() {
	v := c.cfg.Version
	c.versionTimer = c.sched.AfterFunc(versionSaveDelay, func() {
		c.exec.Post(func() {
			if !c.closed {
				c.setPref(store.KeyLastVersion, v)
			}
		})
	})
}

// compareVersions compares dotted numeric versions such as "1.4.10". A
// leading "v" and any pre-release suffix are ignored; missing parts count
// as zero.
func compareVersions(a, b string) int {
	pa, pb := versionParts(a), versionParts(b)
	for i := range max(len(pa), len(pb)) {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return nil
	}
	fields := strings.Split(v, ".")
	out := make([]int, len(fields))
	for i, f := range fields {
		out[i], _ = strconv.Atoi(f)
	}
	return out
}
