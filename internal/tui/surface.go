package tui

import (
	"errors"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"codetree/internal/model"
)

// pxPerColumn converts stored widths, which are kept in the browser's pixel
// units, into terminal columns.
const pxPerColumn = 8

const togglerColumns = 2

var siteAccents = map[string]lipgloss.Color{
	"codetree-github": lipgloss.Color("255"),
	"codetree-gist":   lipgloss.Color("111"),
	"codetree-gitlab": lipgloss.Color("208"),
	"codetree-gitee":  lipgloss.Color("160"),
	"codetree-gitea":  lipgloss.Color("70"),
	"codetree-gogs":   lipgloss.Color("172"),
}

// surface is the sidebar scaffold drawn at the side of the screen.
type surface struct {
	mounted bool
	classes []string

	visible         bool
	pinned          bool
	toggler         bool
	loading         bool
	optionsSelected bool
	current         model.ViewName
	width           int

	version string
	isNew   bool
	frame   int
}

func (s *surface) Mount() error {
	if s.mounted {
		return errors.New("sidebar already mounted")
	}
	s.mounted = true
	return nil
}

func (s *surface) Unmount() {
	s.mounted = false
	s.visible = false
	s.toggler = false
}

func (s *surface) AddClass(name string) {
	if !slices.Contains(s.classes, name) {
		s.classes = append(s.classes, name)
	}
}

func (s *surface) SetVisible(v bool)               { s.visible = v }
func (s *surface) SetPinned(v bool)                { s.pinned = v }
func (s *surface) SetTogglerVisible(v bool)        { s.toggler = v }
func (s *surface) SetLoading(v bool)               { s.loading = v }
func (s *surface) SetOptionsSelected(v bool)       { s.optionsSelected = v }
func (s *surface) SetCurrent(v model.ViewName)     { s.current = v }
func (s *surface) SetWidth(w int)                  { s.width = w }
func (s *surface) Width() int                      { return s.width }
func (s *surface) SetVersion(v string, isNew bool) { s.version, s.isNew = v, isNew }
func (s *surface) hasClass(name string) bool       { return slices.Contains(s.classes, name) }
func (s *surface) showsToggler() bool              { return s.mounted && s.toggler && !s.visible }
func (s *surface) shown() bool                     { return s.mounted && s.visible }
func (s *surface) tick()                           { s.frame = (s.frame + 1) % len(spinnerFrames) }

// columns is the rendered width in terminal columns, border included.
func (s *surface) columns(screen int) int {
	c := max(s.width/pxPerColumn, 12)
	if screen > 0 {
		c = min(c, screen-togglerColumns)
	}
	return c
}

func (s *surface) accent() lipgloss.Color {
	for _, c := range s.classes {
		if col, ok := siteAccents[c]; ok {
			return col
		}
	}
	return lipgloss.Color("205")
}

// header is the title row: name, version badge, spinner, pin and settings
// markers.
func (s *surface) header(width int) string {
	title := titleStyle.Foreground(s.accent()).Render("codetree")
	if s.version != "" {
		v := dimStyle.Render(" v" + s.version)
		if s.isNew {
			v += " " + badgeStyle.Render("new")
		}
		title += v
	}

	var marks []string
	if s.loading {
		marks = append(marks, spinnerFrames[s.frame])
	}
	if s.pinned {
		marks = append(marks, boldStyle.Render("pinned"))
	} else {
		marks = append(marks, dimStyle.Render("float"))
	}
	gear := dimStyle.Render("⚙")
	if s.optionsSelected {
		gear = boldStyle.Foreground(s.accent()).Render("⚙")
	}
	marks = append(marks, gear)
	right := strings.Join(marks, " ")

	gap := max(width-lipgloss.Width(title)-lipgloss.Width(right), 1)
	return title + strings.Repeat(" ", gap) + right
}

// render frames body as the sidebar panel of the given size.
func (s *surface) render(body string, cols, height int, left bool) string {
	inner := cols - 1
	style := lipgloss.NewStyle().
		Width(inner).
		Height(height).
		MaxHeight(height).
		BorderForeground(s.accent())
	if left {
		style = style.Border(lipgloss.NormalBorder(), false, true, false, false)
	} else {
		style = style.Border(lipgloss.NormalBorder(), false, false, false, true)
	}
	return style.Render(s.header(inner) + "\n\n" + body)
}

// renderToggler is the narrow strip shown while the sidebar is hidden.
func (s *surface) renderToggler(height int) string {
	rows := make([]string, max(height, 1))
	rows[0] = togglerStyle.Foreground(s.accent()).Render("≡")
	return lipgloss.NewStyle().Width(togglerColumns).Render(strings.Join(rows, "\n"))
}
