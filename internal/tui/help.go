package tui

import (
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"

	"codetree/internal/bus"
	"codetree/internal/hotkey"
	"codetree/internal/model"
)

// helpKeys adapts the global keys, the tree keys and the configured hotkeys
// to help.KeyMap.
type helpKeys struct {
	hotkeys *hotkey.Registry
}

func (h helpKeys) ShortHelp() []key.Binding {
	return []key.Binding{globalKeys.Help, globalKeys.Show, globalKeys.Settings, globalKeys.Quit}
}

func (h helpKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		append(h.hotkeys.Help(), globalKeys.Help, globalKeys.Goto, globalKeys.Reload, globalKeys.Quit),
		{globalKeys.Show, globalKeys.Narrow, globalKeys.Widen, globalKeys.Settings, globalKeys.Focus},
		{treeKeys.Toggle, treeKeys.Open, treeKeys.Browse, treeKeys.Filter, treeKeys.Clear},
	}
}

// helpPopup is the keyboard overlay. It sits above whichever view is current.
type helpPopup struct {
	bus   *bus.Bus
	keys  helpKeys
	model help.Model
	open  bool
}

func newHelpPopup(b *bus.Bus, r *hotkey.Registry) *helpPopup {
	return &helpPopup{bus: b, keys: helpKeys{hotkeys: r}}
}

func (p *helpPopup) Init() error {
	if p.keys.hotkeys == nil {
		return errors.New("help: no hotkey registry")
	}
	p.model = help.New()
	p.model.ShowAll = true
	return nil
}

func (p *helpPopup) toggle() {
	p.open = !p.open
	if p.open {
		p.bus.Emit(bus.ViewReady{View: model.ViewHelp})
	}
}

func (p *helpPopup) View(width int) string {
	p.model.Width = width
	return boldStyle.Render("Keys") + "\n\n" + p.model.View(p.keys)
}
