package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"codetree/internal/bus"
	"codetree/internal/forge"
	"codetree/internal/model"
)

// errorView explains a failed load and offers the way out.
type errorView struct {
	bus *bus.Bus

	title  string
	detail string
	hint   string
	auth   bool
}

func newErrorView(b *bus.Bus) *errorView {
	return &errorView{bus: b}
}

// Render shows err and reports the view ready.
func (v *errorView) Render(err error) {
	v.title, v.hint, v.auth = describe(err)
	v.detail = ""
	if err != nil {
		v.detail = err.Error()
	}
	v.bus.Emit(bus.ViewReady{View: model.ViewError})
}

// describe maps an error to a headline, a hint and whether a token would help.
func describe(err error) (title, hint string, auth bool) {
	switch {
	case errors.Is(err, forge.ErrUnauthorized):
		return "Access denied", "This repository needs an access token, or the saved one is invalid.", true
	case errors.Is(err, forge.ErrRateLimited):
		return "API rate limit exceeded", "Add an access token to raise the limit.", true
	case errors.Is(err, forge.ErrNotFound):
		return "Repository not found", "It may be private. An access token with repo scope can see it.", true
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out", "The site took too long to answer.", false
	default:
		return "Something went wrong", "", false
	}
}

func (v *errorView) Update(msg tea.Msg) tea.Cmd {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch k.String() {
	case "s":
		v.bus.Emit(bus.ViewClose{ShowSettings: true})
	case "r":
		v.bus.Emit(bus.LocChange{Reload: true})
	case "esc":
		v.bus.Emit(bus.ViewClose{})
	}
	return nil
}

func (v *errorView) View() string {
	var b strings.Builder
	b.WriteString(errStyle.Bold(true).Render(v.title) + "\n\n")
	if v.hint != "" {
		b.WriteString(v.hint + "\n\n")
	}
	if v.detail != "" {
		b.WriteString(dimStyle.Render(v.detail) + "\n\n")
	}
	keys := "r retry · esc close"
	if v.auth {
		keys = "s settings · " + keys
	}
	b.WriteString(dimStyle.Render(keys))
	return b.String()
}
