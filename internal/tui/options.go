package tui

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"codetree/internal/bus"
	"codetree/internal/forge"
	"codetree/internal/hotkey"
	"codetree/internal/model"
	"codetree/internal/site"
	"codetree/internal/store"
)

type fieldKind int

const (
	fieldText fieldKind = iota
	fieldSecret
	fieldBool
	fieldChoice
)

type field struct {
	key     string
	label   string
	kind    fieldKind
	choices []string

	input   textinput.Model
	on      bool
	idx     int
	initial any
}

func (f *field) editable() bool { return f.kind == fieldText || f.kind == fieldSecret }

func (f *field) value() any {
	switch f.kind {
	case fieldBool:
		return f.on
	case fieldChoice:
		return f.choices[f.idx]
	default:
		return strings.TrimSpace(f.input.Value())
	}
}

// optionsView is the settings panel. Saving writes the edited fields in one
// SetMany so the controller sees a single change set.
type optionsView struct {
	bus   *bus.Bus
	store store.Store
	log   *slog.Logger

	fields []*field
	cursor int
	errMsg string
	open   bool
}

func newOptionsView(b *bus.Bus, s store.Store, kind site.Kind, log *slog.Logger) *optionsView {
	text := func(key, label string, kind fieldKind, placeholder string) *field {
		ti := textinput.New()
		ti.Placeholder = placeholder
		ti.CharLimit = 200
		ti.Prompt = ""
		if kind == fieldSecret {
			ti.EchoMode = textinput.EchoPassword
		}
		return &field{key: key, label: label, kind: kind, input: ti}
	}
	flag := func(key, label string) *field {
		return &field{key: key, label: label, kind: fieldBool, input: textinput.New()}
	}
	choice := func(key, label string, choices ...string) *field {
		return &field{key: key, label: label, kind: fieldChoice, choices: choices, input: textinput.New()}
	}

	return &optionsView{
		bus:   b,
		store: s,
		log:   log,
		fields: []*field{
			text(forge.TokenKey(kind), "Access token", fieldSecret, "personal access token"),
			text(store.KeyHotkeys, "Hotkeys", fieldText, "ctrl+b"),
			flag(store.KeyHoverOpen, "Show sidebar on hover"),
			flag(store.KeyPR, "Show pull request changes"),
			flag(store.KeyLazyLoad, "Load directories on demand"),
			flag(store.KeyIcons, "Show icons"),
			flag(store.KeyFileSize, "Show file sizes"),
			choice(store.KeyDirection, "Dock", "left", "right"),
			choice(store.KeyTheme, "Theme", "auto", "dark", "light", "dracula", "pink", "ascii", "notty"),
		},
	}
}

// Open reads the current values into the form and reports it ready.
func (v *optionsView) Open() {
	ctx := context.Background()
	v.errMsg = ""
	for _, f := range v.fields {
		raw, err := v.store.Get(ctx, f.key)
		if err != nil {
			v.log.Warn("reading option", "key", f.key, "err", err)
		}
		switch f.kind {
		case fieldBool:
			f.on = store.AsBool(raw)
		case fieldChoice:
			f.idx = max(slices.Index(f.choices, store.AsString(raw)), 0)
		default:
			f.input.SetValue(store.AsString(raw))
		}
		f.initial = f.value()
	}
	v.cursor = 0
	v.focus()
	v.open = true
	v.bus.Emit(bus.ViewReady{View: model.ViewOptions})
}

// focus moves the text cursor to the field under the form cursor. Toggles
// and choices have no text input to focus.
func (v *optionsView) focus() {
	for i, f := range v.fields {
		if !f.editable() {
			continue
		}
		if i == v.cursor {
			f.input.Focus()
		} else {
			f.input.Blur()
		}
	}
}

func (v *optionsView) save() {
	values := make(map[string]any, len(v.fields))
	for _, f := range v.fields {
		if val := f.value(); val != f.initial {
			values[f.key] = val
		}
	}
	if combo, ok := values[store.KeyHotkeys].(string); ok && combo != "" && len(hotkey.Parse(combo)) == 0 {
		v.errMsg = fmt.Sprintf("invalid hotkey %q", combo)
		return
	}
	if len(values) == 0 {
		v.close()
		return
	}
	if err := v.store.SetMany(context.Background(), values); err != nil {
		v.errMsg = err.Error()
		return
	}
	v.close()
}

func (v *optionsView) close() {
	v.open = false
	for _, f := range v.fields {
		f.input.Blur()
	}
	v.bus.Emit(bus.ViewClose{})
}

func (v *optionsView) Update(msg tea.Msg) tea.Cmd {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	f := v.fields[v.cursor]
	switch k.String() {
	case "esc":
		v.close()
		return nil
	case "ctrl+s":
		v.save()
		return nil
	case "up", "shift+tab":
		v.cursor = (v.cursor + len(v.fields) - 1) % len(v.fields)
		v.focus()
		return nil
	case "down", "tab":
		v.cursor = (v.cursor + 1) % len(v.fields)
		v.focus()
		return nil
	case "enter":
		if f.editable() {
			v.save()
			return nil
		}
	}

	switch f.kind {
	case fieldBool:
		if k.String() == " " || k.String() == "enter" {
			f.on = !f.on
		}
	case fieldChoice:
		switch k.String() {
		case " ", "enter", "right":
			f.idx = (f.idx + 1) % len(f.choices)
		case "left":
			f.idx = (f.idx + len(f.choices) - 1) % len(f.choices)
		}
	default:
		var cmd tea.Cmd
		f.input, cmd = f.input.Update(msg)
		return cmd
	}
	return nil
}

func (v *optionsView) View() string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("Settings") + "\n\n")
	for i, f := range v.fields {
		cursor := "  "
		if i == v.cursor {
			cursor = "> "
		}
		var val string
		switch f.kind {
		case fieldBool:
			val = "[ ]"
			if f.on {
				val = okStyle.Render("[x]")
			}
		case fieldChoice:
			val = "‹ " + f.choices[f.idx] + " ›"
		default:
			val = f.input.View()
		}
		b.WriteString(cursor + labelStyle.Render(f.label) + "\n    " + val + "\n")
	}
	if v.errMsg != "" {
		b.WriteString("\n" + errStyle.Render(v.errMsg) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("ctrl+s save · esc cancel"))
	return b.String()
}
