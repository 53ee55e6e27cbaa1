package tui

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"codetree/internal/bus"
	"codetree/internal/forge"
	"codetree/internal/hotkey"
	"codetree/internal/model"
	"codetree/internal/sidebar"
	"codetree/internal/site"
	"codetree/internal/store"
)

// — styles ————————————————————————————————————————————————————————————————————

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Faint(true)
	boldStyle = lipgloss.NewStyle().Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	helpStyle = lipgloss.NewStyle().
			Faint(true).
			PaddingLeft(1)

	detailHeadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().Faint(true)

	selectedStyle = lipgloss.NewStyle().
			Reverse(true)

	dirStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("214")).
			Padding(0, 1)

	togglerStyle = lipgloss.NewStyle().Bold(true)
)

// — spinner ———————————————————————————————————————————————————————————————————

var spinnerFrames = []string{"|", "/", "-", "\\"}

type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// — keys ——————————————————————————————————————————————————————————————————————

type globalKeyMap struct {
	Quit     key.Binding
	Help     key.Binding
	Show     key.Binding
	Goto     key.Binding
	Reload   key.Binding
	Narrow   key.Binding
	Widen    key.Binding
	Settings key.Binding
	Focus    key.Binding
}

var globalKeys = globalKeyMap{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "keys")),
	Show:     key.NewBinding(key.WithKeys("\\"), key.WithHelp("\\", "show/hide sidebar")),
	Goto:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "go to url")),
	Reload:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Narrow:   key.NewBinding(key.WithKeys("["), key.WithHelp("[", "narrower")),
	Widen:    key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "wider")),
	Settings: key.NewBinding(key.WithKeys(","), key.WithHelp(",", "settings")),
	Focus:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
}

// resizeStep is how far [ and ] move the sidebar edge, in stored units.
const resizeStep = 5 * pxPerColumn

// — messages ——————————————————————————————————————————————————————————————————

type startMsg struct{}

// — model —————————————————————————————————————————————————————————————————————

// Options configures the terminal host.
type Options struct {
	Page    *site.Page
	Adapter forge.Adapter
	Store   store.Store
	Hotkeys *hotkey.Registry
	Logger  *slog.Logger

	Version      string
	MinWidth     int
	DefaultWidth int
	Timeout      time.Duration
	Theme        string
}

// Model hosts the sidebar next to a content pane that stands in for the
// page. It runs the controller on the Update goroutine.
type Model struct {
	page    *site.Page
	adapter forge.Adapter
	bus     *bus.Bus
	exec    *executor
	log     *slog.Logger
	hotkeys *hotkey.Registry

	ctl     *sidebar.Controller
	surface *surface
	tree    *treeView
	content *contentPane
	options *optionsView
	errs    *errorView
	help    *helpPopup

	width, height int
	sidebarFocus  bool
	dragging      bool
	locating      bool
	locInput      textinput.Model
	status        string
	err           error
	quitting      bool
}

// New wires the controller to the terminal views.
func New(opts Options) (*Model, error) {
	if opts.Page == nil {
		return nil, errors.New("page is required")
	}
	if opts.Adapter == nil {
		return nil, errors.New("adapter is required")
	}
	log := cmp.Or(opts.Logger, slog.Default())
	timeout := cmp.Or(opts.Timeout, 30*time.Second)
	hk := opts.Hotkeys
	if hk == nil {
		hk = hotkey.NewRegistry()
	}

	b := bus.New()
	e := newExecutor()
	m := &Model{
		page:         opts.Page,
		adapter:      opts.Adapter,
		bus:          b,
		exec:         e,
		log:          log,
		hotkeys:      hk,
		surface:      &surface{},
		tree:         newTreeView(b, opts.Adapter, opts.Store, e, log, timeout),
		content:      newContentPane(opts.Adapter, opts.Store, e, log, timeout, cmp.Or(opts.Theme, "auto")),
		options:      newOptionsView(b, opts.Store, opts.Adapter.Kind(), log),
		errs:         newErrorView(b),
		help:         newHelpPopup(b, hk),
		sidebarFocus: true,
	}

	ctl, err := sidebar.New(sidebar.Config{
		Adapter:      opts.Adapter,
		Store:        opts.Store,
		Bus:          b,
		Surface:      m.surface,
		Tree:         m.tree,
		Errors:       m.errs,
		Options:      m.options,
		Help:         m.help,
		Hotkeys:      hk,
		Exec:         e,
		Logger:       log,
		MinWidth:     opts.MinWidth,
		DefaultWidth: opts.DefaultWidth,
		Version:      opts.Version,
		Timeout:      timeout,
		Delegate:     m.content,
		Publisher:    m.content,
	})
	if err != nil {
		return nil, err
	}
	m.ctl = ctl

	m.tree.onOpen = m.openNode
	m.tree.onFocus = func() { m.sidebarFocus = true }

	ti := textinput.New()
	ti.Prompt = "url: "
	ti.Placeholder = "https://github.com/owner/repo"
	ti.CharLimit = 500
	m.locInput = ti
	return m, nil
}

// Err is the error that ended the program, if any.
func (m *Model) Err() error { return m.err }

// RepoMeta is the metadata of the loaded repository, nil until fetched.
func (m *Model) RepoMeta() *model.RepoMeta { return m.ctl.RepoMeta() }

// openNode shows a file and moves the page to it, which the controller
// answers with a selection sync.
func (m *Model) openNode(repo *model.Repo, n model.Node, token string) {
	m.content.open(repo, n, token)
	if err := m.page.Navigate(m.adapter.Link(repo, n)); err != nil {
		m.log.Warn("navigating", "path", n.Path, "err", err)
		return
	}
	m.bus.Emit(bus.LocChange{})
}

func (m *Model) navigate(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if err := m.page.Navigate(raw); err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
	m.bus.Emit(bus.LocChange{})
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	m.ctl.Close()
	m.exec.close()
	return tea.Quit
}

func openURLCmd(url string, log *slog.Logger) tea.Cmd {
	return func() tea.Msg {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", url)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
		default:
			cmd = exec.Command("xdg-open", url)
		}
		if err := cmd.Run(); err != nil {
			log.Warn("opening browser", "url", url, "cmd", cmd.Path, "err", err)
		}
		return nil
	}
}

// — tea.Model —————————————————————————————————————————————————————————————————

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return startMsg{} },
		m.exec.wait(),
		tickCmd(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.update(msg)
	if m.quitting {
		return m, cmd
	}
	if repo := m.ctl.Repo(); repo != nil {
		m.content.reset(repo)
	}
	m.layout()
	return m, cmd
}

func (m *Model) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case startMsg:
		if err := m.ctl.Initialize(context.Background()); err != nil {
			m.err = err
			return m.quit()
		}
		return nil

	case postedMsg:
		m.exec.drain()
		return m.exec.wait()

	case tickMsg:
		if m.ctl.Loading() {
			m.surface.tick()
		}
		return tickCmd()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.ctl.WindowResized()
		return nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)
	}

	if m.locating {
		var cmd tea.Cmd
		m.locInput, cmd = m.locInput.Update(msg)
		return cmd
	}
	if m.surface.shown() && m.sidebarFocus {
		return m.routeToView(msg)
	}
	return m.content.Update(msg)
}

func (m *Model) handleKey(k tea.KeyMsg) tea.Cmd {
	if k.String() == "ctrl+c" {
		return m.quit()
	}

	if m.locating {
		switch k.String() {
		case "enter":
			m.locating = false
			m.locInput.Blur()
			m.navigate(m.locInput.Value())
			return nil
		case "esc":
			m.locating = false
			m.locInput.Blur()
			return nil
		}
		var cmd tea.Cmd
		m.locInput, cmd = m.locInput.Update(k)
		return cmd
	}

	if m.capturing() {
		cmd := m.routeToView(k)
		m.ctl.KeyInSidebar()
		return cmd
	}
	if m.hotkeys.Handle(k) {
		return nil
	}

	if m.help.open {
		if key.Matches(k, globalKeys.Help) || k.String() == "esc" {
			m.help.toggle()
			return nil
		}
	}

	switch {
	case key.Matches(k, globalKeys.Quit):
		return m.quit()
	case key.Matches(k, globalKeys.Help):
		m.help.toggle()
		return nil
	case key.Matches(k, globalKeys.Show):
		m.toggleShown()
		return nil
	case key.Matches(k, globalKeys.Goto):
		m.locating = true
		m.locInput.SetValue(m.page.Location().String())
		m.locInput.CursorEnd()
		return m.locInput.Focus()
	case key.Matches(k, globalKeys.Reload):
		m.bus.Emit(bus.LocChange{Reload: true})
		return nil
	case key.Matches(k, globalKeys.Narrow):
		m.ctl.SidebarResized(m.surface.Width() - resizeStep)
		return nil
	case key.Matches(k, globalKeys.Widen):
		m.ctl.SidebarResized(m.surface.Width() + resizeStep)
		return nil
	case key.Matches(k, globalKeys.Settings):
		m.options.Open()
		m.sidebarFocus = true
		return nil
	case key.Matches(k, globalKeys.Focus):
		if m.sidebarFocus {
			m.sidebarFocus = false
			m.tree.blur()
		} else {
			m.tree.Focus()
		}
		return nil
	}

	if m.surface.shown() && m.sidebarFocus {
		cmd := m.routeToView(k)
		m.ctl.KeyInSidebar()
		return cmd
	}
	return m.content.Update(k)
}

// capturing reports whether the current view takes every key, e.g. while
// text is being typed.
func (m *Model) capturing() bool {
	if !m.surface.shown() || !m.sidebarFocus {
		return false
	}
	switch m.ctl.Current() {
	case model.ViewOptions:
		return true
	case model.ViewTree:
		return m.tree.capturing()
	}
	return false
}

func (m *Model) routeToView(msg tea.Msg) tea.Cmd {
	switch m.ctl.Current() {
	case model.ViewTree:
		return m.tree.Update(msg)
	case model.ViewError:
		return m.errs.Update(msg)
	case model.ViewOptions:
		return m.options.Update(msg)
	}
	return nil
}

// toggleShown opens the sidebar through whichever toggler gesture is live.
// A shown sidebar is unpinned when pinned, otherwise dismissed.
func (m *Model) toggleShown() {
	if m.surface.shown() {
		if m.ctl.State().Pinned {
			m.ctl.TogglePin()
			return
		}
		m.ctl.DocumentClick()
		return
	}
	if !m.ctl.TogglerClicked() {
		m.ctl.TogglerHovered()
	}
}

// — mouse —————————————————————————————————————————————————————————————————————

type region int

const (
	regionPage region = iota
	regionSidebar
	regionEdge
	regionToggler
)

func (m *Model) regionAt(x, y int) region {
	if y >= m.mainHeight() {
		return regionPage
	}
	left := m.ctl.State().Left
	switch {
	case m.surface.shown():
		cols := m.surface.columns(m.width)
		if left {
			switch {
			case x == cols-1:
				return regionEdge
			case x < cols:
				return regionSidebar
			}
		} else {
			switch {
			case x == m.width-cols:
				return regionEdge
			case x > m.width-cols:
				return regionSidebar
			}
		}
	case m.surface.showsToggler():
		if (left && x < togglerColumns) || (!left && x >= m.width-togglerColumns) {
			return regionToggler
		}
	}
	return regionPage
}

func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	r := m.regionAt(msg.X, msg.Y)

	switch msg.Action {
	case tea.MouseActionMotion:
		if m.dragging {
			cols := msg.X + 1
			if !m.ctl.State().Left {
				cols = m.width - msg.X
			}
			m.ctl.SidebarResized(cols * pxPerColumn)
			return nil
		}
		switch r {
		case regionSidebar, regionEdge:
			m.ctl.PointerInSidebar()
		case regionToggler:
			m.ctl.TogglerHovered()
		default:
			m.ctl.PointerOutside()
		}
		return nil

	case tea.MouseActionRelease:
		m.dragging = false
		return nil
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown:
		if r == regionSidebar && m.ctl.Current() == model.ViewTree {
			if msg.Button == tea.MouseButtonWheelUp {
				m.tree.list.CursorUp()
			} else {
				m.tree.list.CursorDown()
			}
			return nil
		}
		return m.content.Update(msg)

	case tea.MouseButtonLeft:
		switch r {
		case regionEdge:
			m.dragging = true
		case regionToggler:
			if !m.ctl.TogglerClicked() {
				m.ctl.DocumentClick()
			}
		case regionSidebar:
			m.sidebarFocus = true
			if m.ctl.Current() == model.ViewTree {
				m.tree.focused = true
				m.tree.clickRow(msg.Y - m.treeTop())
			}
		default:
			m.sidebarFocus = false
			m.tree.blur()
			m.ctl.DocumentClick()
		}
	}
	return nil
}

// treeTop is the screen row of the first tree entry: the sidebar header, a
// blank line, the repository heading and the filter line when shown.
func (m *Model) treeTop() int {
	top := 3
	if m.tree.filtering || m.tree.pattern != "" {
		top++
	}
	return top
}

// — layout helpers ————————————————————————————————————————————————————————————

// mainHeight leaves the bottom row for the status line.
func (m *Model) mainHeight() int { return max(m.height-1, 1) }

// contentBox reports where the content pane sits: its left column and width.
// A pinned sidebar pushes the page by the adapter's margins; a floating one
// covers it.
func (m *Model) contentBox() (x, w int) {
	left := m.ctl.State().Left
	switch {
	case m.surface.shown() && m.surface.pinned:
		l, r := m.adapter.Margins()
		push := min(ceilDiv(l+r, pxPerColumn), m.width-1)
		push = max(push, m.surface.columns(m.width))
		if left {
			return push, m.width - push
		}
		return 0, m.width - push
	case m.surface.showsToggler():
		if left {
			return togglerColumns, m.width - togglerColumns
		}
		return 0, m.width - togglerColumns
	}
	return 0, m.width
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	h := m.mainHeight()
	cols := m.surface.columns(m.width)
	m.tree.setSize(cols-1, h-2)
	_, w := m.contentBox()
	m.content.setSize(w, h)
	if !m.sidebarFocus || !m.surface.shown() {
		m.tree.blur()
	} else {
		m.tree.focused = true
	}
}

func (m *Model) View() string {
	if m.width == 0 || m.quitting {
		return ""
	}
	h := m.mainHeight()
	_, cw := m.contentBox()

	page := m.content.View()
	if m.help.open {
		page = m.help.View(cw)
	}
	page = fit(page, cw, h)

	left := m.ctl.State().Left
	var main string
	switch {
	case m.surface.shown():
		cols := m.surface.columns(m.width)
		panel := m.surface.render(m.sidebarBody(), cols, h, left)
		if m.surface.pinned {
			gap := strings.Repeat(" ", max(m.width-cw-cols, 0))
			if left {
				main = lipgloss.JoinHorizontal(lipgloss.Top, panel, gap, page)
			} else {
				main = lipgloss.JoinHorizontal(lipgloss.Top, page, gap, panel)
			}
		} else {
			main = overlay(page, fit(panel, cols, h), cols, m.width, left)
		}
	case m.surface.showsToggler():
		strip := m.surface.renderToggler(h)
		if left {
			main = lipgloss.JoinHorizontal(lipgloss.Top, strip, page)
		} else {
			main = lipgloss.JoinHorizontal(lipgloss.Top, page, strip)
		}
	default:
		main = page
	}
	return main + "\n" + m.statusLine()
}

func (m *Model) sidebarBody() string {
	switch m.ctl.Current() {
	case model.ViewTree:
		return m.tree.View()
	case model.ViewError:
		return m.errs.View()
	case model.ViewOptions:
		return m.options.View()
	}
	return dimStyle.Render("Loading…")
}

func (m *Model) statusLine() string {
	if m.locating {
		return m.locInput.View()
	}
	right := helpStyle.Render("? keys")
	text := dimStyle.Render(m.page.Location().String())
	if m.status != "" {
		text = warnStyle.Render(m.status)
	}
	avail := max(m.width-lipgloss.Width(right)-1, 1)
	text = ansi.Truncate(text, avail, "…")
	gap := max(m.width-lipgloss.Width(text)-lipgloss.Width(right), 1)
	return text + strings.Repeat(" ", gap) + right
}

// fit pads or cuts s to exactly w columns by h rows.
func fit(s string, w, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > h {
		lines = lines[:h]
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	for i, l := range lines {
		l = ansi.Truncate(l, w, "")
		lines[i] = l + strings.Repeat(" ", max(w-ansi.StringWidth(l), 0))
	}
	return strings.Join(lines, "\n")
}

// overlay draws panel over the left or right edge of base. Both must already
// be fitted to the same height.
func overlay(base, panel string, cols, width int, left bool) string {
	bl := strings.Split(base, "\n")
	pl := strings.Split(panel, "\n")
	for i := range bl {
		if i >= len(pl) {
			break
		}
		if left {
			bl[i] = pl[i] + ansi.TruncateLeft(bl[i], cols, "")
		} else {
			bl[i] = ansi.Truncate(bl[i], max(width-cols, 0), "") + pl[i]
		}
	}
	return strings.Join(bl, "\n")
}
