package tui

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"codetree/internal/bus"
	"codetree/internal/forge"
	"codetree/internal/model"
	"codetree/internal/sidebar"
	"codetree/internal/store"
)

// — list item —————————————————————————————————————————————————————————————————

type treeItem struct {
	node     model.Node
	depth    int
	expanded bool
	loading  bool
	flat     bool // filter results show the full path
}

func (i treeItem) FilterValue() string { return i.node.Path }

// treeDelegate draws one node per row.
type treeDelegate struct{ v *treeView }

func (d treeDelegate) Height() int                         { return 1 }
func (d treeDelegate) Spacing() int                        { return 0 }
func (d treeDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d treeDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(treeItem)
	if !ok {
		return
	}
	indent := strings.Repeat("  ", it.depth)
	marker := d.v.marker(it)

	var size string
	if d.v.sizes && !it.node.IsDir() && it.node.Size > 0 {
		size = " " + humanize.Bytes(uint64(it.node.Size))
	}

	name := it.node.Name
	if it.flat {
		name = it.node.Path
	}
	avail := m.Width() - runewidth.StringWidth(indent+marker) - runewidth.StringWidth(size)
	name = runewidth.Truncate(name, max(avail, 1), "…")
	pad := max(avail-runewidth.StringWidth(name), 0)

	line := indent + marker + name + strings.Repeat(" ", pad) + dimStyle.Render(size)
	switch {
	case index == m.Index() && d.v.focused:
		line = selectedStyle.Render(line)
	case index == m.Index():
		line = boldStyle.Render(line)
	case it.node.IsDir():
		line = dirStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// — view ——————————————————————————————————————————————————————————————————————

type treeKeyMap struct {
	Toggle key.Binding
	Open   key.Binding
	Browse key.Binding
	Filter key.Binding
	Clear  key.Binding
}

var treeKeys = treeKeyMap{
	Toggle: key.NewBinding(key.WithKeys(" ", "right", "left"), key.WithHelp("space", "expand/collapse")),
	Open:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Browse: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in browser")),
	Filter: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "glob filter")),
	Clear:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear filter")),
}

// treeView lists the repository tree. Fetches run on the executor; a load
// superseded by a later one is dropped.
type treeView struct {
	bus     *bus.Bus
	adapter forge.Adapter
	store   store.Store
	exec    sidebar.Executor
	log     *slog.Logger
	timeout time.Duration

	repo  *model.Repo
	token string
	seq   uint64

	children map[string][]model.Node // dir → entries, "" is the root
	loaded   map[string]bool
	expanded map[string]bool
	pending  map[string]bool

	lazy  bool
	icons bool
	sizes bool

	list      list.Model
	filter    textinput.Model
	filtering bool
	pattern   string
	focused   bool
	w, h      int

	onOpen  func(repo *model.Repo, n model.Node, token string)
	onFocus func()
}

func newTreeView(b *bus.Bus, a forge.Adapter, s store.Store, e sidebar.Executor, log *slog.Logger, timeout time.Duration) *treeView {
	v := &treeView{
		bus:      b,
		adapter:  a,
		store:    s,
		exec:     e,
		log:      log,
		timeout:  timeout,
		children: map[string][]model.Node{},
		loaded:   map[string]bool{},
		expanded: map[string]bool{},
		pending:  map[string]bool{},
	}
	l := list.New(nil, treeDelegate{v}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowPagination(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ForceQuit.SetEnabled(false)
	l.KeyMap.ShowFullHelp.SetEnabled(false)
	l.KeyMap.CloseFullHelp.SetEnabled(false)
	v.list = l

	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "**/*.go"
	ti.CharLimit = 200
	v.filter = ti
	return v
}

func (v *treeView) pref(name string) bool {
	b, err := store.Bool(context.Background(), v.store, name)
	if err != nil {
		v.log.Warn("reading option", "key", name, "err", err)
	}
	return b
}

// Load fetches the tree for repo. With lazy loading only the root level is
// listed and directories are fetched when expanded.
func (v *treeView) Load(repo *model.Repo, token string) {
	v.seq++
	seq := v.seq
	v.repo, v.token = repo, token
	v.lazy = v.pref(store.KeyLazyLoad)
	v.icons = v.pref(store.KeyIcons)
	v.sizes = v.pref(store.KeyFileSize)

	req := forge.TreeRequest{Recursive: !v.lazy}
	v.fetch(seq, repo, req, func(nodes []model.Node) {
		v.children = map[string][]model.Node{}
		v.loaded = map[string]bool{}
		v.expanded = map[string]bool{}
		v.pending = map[string]bool{}
		v.index(nodes, !v.lazy)
		v.loaded[""] = true
		v.clearFilter()
		v.reveal(repo.Path)
		v.bus.Emit(bus.ViewReady{View: model.ViewTree})
	})
}

func (v *treeView) fetch(seq uint64, repo *model.Repo, req forge.TreeRequest, apply func([]model.Node)) {
	token := v.token
	v.exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
		defer cancel()
		nodes, err := v.adapter.FetchTree(ctx, repo, req, token)
		v.exec.Post(func() {
			if seq != v.seq {
				return
			}
			if err != nil {
				v.bus.Emit(bus.FetchError{Err: fmt.Errorf("listing %s: %w", repo.FullName(), err)})
				return
			}
			apply(nodes)
		})
	})
}

// index files nodes under their parent directory.
func (v *treeView) index(nodes []model.Node, complete bool) {
	for _, n := range nodes {
		dir := parentDir(n.Path)
		v.children[dir] = append(v.children[dir], n)
		if complete && n.IsDir() {
			v.loaded[n.Path] = true
		}
	}
	for dir := range v.children {
		sortNodes(v.children[dir])
	}
}

func parentDir(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

func sortNodes(ns []model.Node) {
	slices.SortFunc(ns, func(a, b model.Node) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
}

// SyncSelection follows the page to another path of the loaded repository.
func (v *treeView) SyncSelection(repo *model.Repo) {
	v.repo = repo
	v.reveal(repo.Path)
}

// reveal expands the ancestors of p and selects it.
func (v *treeView) reveal(p string) {
	for d := parentDir(p); d != ""; d = parentDir(d) {
		if v.loaded[d] {
			v.expanded[d] = true
		}
	}
	v.rebuild()
	v.selectPath(p)
}

func (v *treeView) ExpandAll() {
	for d := range v.loaded {
		if d != "" {
			v.expanded[d] = true
		}
	}
	v.rebuild()
}

func (v *treeView) Focus() {
	v.focused = true
	if v.onFocus != nil {
		v.onFocus()
	}
}

func (v *treeView) blur() { v.focused = false }

// rebuild recomputes the visible rows, keeping the selected path.
func (v *treeView) rebuild() {
	selected := v.selected()
	var items []list.Item
	if v.pattern != "" {
		items = v.matches()
	} else {
		items = v.walk("", 0, nil)
	}
	v.list.SetItems(items)
	if selected != nil {
		v.selectPath(selected.Path)
	}
}

func (v *treeView) walk(dir string, depth int, out []list.Item) []list.Item {
	for _, n := range v.children[dir] {
		open := n.IsDir() && v.expanded[n.Path]
		out = append(out, treeItem{node: n, depth: depth, expanded: open, loading: v.pending[n.Path]})
		if open {
			out = v.walk(n.Path, depth+1, out)
		}
	}
	return out
}

// matches lists loaded files matching the glob filter. A pattern without a
// slash is also tried against the base name.
func (v *treeView) matches() []list.Item {
	var out []list.Item
	for _, dir := range slices.Sorted(maps.Keys(v.children)) {
		for _, n := range v.children[dir] {
			if n.IsDir() {
				continue
			}
			ok, _ := doublestar.Match(v.pattern, n.Path)
			if !ok && !strings.Contains(v.pattern, "/") {
				ok, _ = doublestar.Match(v.pattern, n.Name)
			}
			if ok {
				out = append(out, treeItem{node: n, flat: true})
			}
		}
	}
	return out
}

func (v *treeView) selectPath(p string) {
	if p == "" {
		return
	}
	for i, it := range v.list.Items() {
		if it.(treeItem).node.Path == p {
			v.list.Select(i)
			return
		}
	}
}

func (v *treeView) selected() *model.Node {
	it, ok := v.list.SelectedItem().(treeItem)
	if !ok {
		return nil
	}
	return &it.node
}

func (v *treeView) marker(it treeItem) string {
	switch {
	case it.loading:
		return "… "
	case it.node.IsDir() && v.icons && it.expanded:
		return "▾ "
	case it.node.IsDir() && v.icons:
		return "▸ "
	case it.node.IsDir() && it.expanded:
		return "- "
	case it.node.IsDir():
		return "+ "
	case v.icons:
		return "• "
	default:
		return "  "
	}
}

// toggle expands or collapses dir, fetching it first when lazily loaded.
func (v *treeView) toggle(n model.Node) {
	if !n.IsDir() {
		return
	}
	if v.expanded[n.Path] {
		delete(v.expanded, n.Path)
		v.rebuild()
		return
	}
	if v.loaded[n.Path] {
		v.expanded[n.Path] = true
		v.rebuild()
		return
	}
	if v.pending[n.Path] {
		return
	}
	v.pending[n.Path] = true
	v.rebuild()
	dir := n.Path
	v.fetch(v.seq, v.repo, forge.TreeRequest{Dir: dir}, func(nodes []model.Node) {
		delete(v.pending, dir)
		v.index(nodes, false)
		v.loaded[dir] = true
		v.expanded[dir] = true
		v.rebuild()
	})
}

func (v *treeView) applyFilter(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		v.bus.Emit(bus.FetchError{Err: fmt.Errorf("invalid filter %q", pattern)})
		return
	}
	v.pattern = pattern
	v.resize()
	v.rebuild()
}

func (v *treeView) clearFilter() {
	v.pattern = ""
	v.filtering = false
	v.filter.Reset()
	v.filter.Blur()
	v.resize()
}

// leaveFilter drops the filter and shows the selected match in place.
func (v *treeView) leaveFilter() {
	sel := v.selected()
	v.clearFilter()
	if sel == nil {
		v.rebuild()
		return
	}
	v.reveal(sel.Path)
}

func (v *treeView) setSize(w, h int) {
	v.w, v.h = w, h
	v.resize()
}

// resize fits the list under the heading and the filter line.
func (v *treeView) resize() {
	h := v.h - 1
	if v.filtering || v.pattern != "" {
		h--
	}
	v.list.SetSize(v.w, max(h, 1))
	v.filter.Width = max(v.w-2, 1)
}

// capturing reports whether keys should go to the filter input.
func (v *treeView) capturing() bool { return v.filtering }

// clickRow selects the row at y, relative to the top of the list.
func (v *treeView) clickRow(y int) {
	i := v.list.Paginator.Page*v.list.Paginator.PerPage + y
	if y >= 0 && i < len(v.list.Items()) {
		v.list.Select(i)
		if n := v.selected(); n != nil && n.IsDir() {
			v.toggle(*n)
		}
	}
}

func (v *treeView) Update(msg tea.Msg) tea.Cmd {
	if v.filtering {
		if k, ok := msg.(tea.KeyMsg); ok {
			switch k.String() {
			case "enter":
				v.filtering = false
				v.filter.Blur()
				v.applyFilter(v.filter.Value())
				return nil
			case "esc":
				v.leaveFilter()
				return nil
			}
		}
		var cmd tea.Cmd
		v.filter, cmd = v.filter.Update(msg)
		return cmd
	}

	if k, ok := msg.(tea.KeyMsg); ok {
		n := v.selected()
		switch {
		case key.Matches(k, treeKeys.Filter):
			v.filtering = true
			v.resize()
			return v.filter.Focus()
		case key.Matches(k, treeKeys.Clear) && v.pattern != "":
			v.leaveFilter()
			return nil
		case key.Matches(k, treeKeys.Toggle) && n != nil:
			if k.String() == "left" && !v.expanded[n.Path] {
				v.selectPath(parentDir(n.Path))
				return nil
			}
			v.toggle(*n)
			return nil
		case key.Matches(k, treeKeys.Open) && n != nil:
			if n.IsDir() {
				v.toggle(*n)
				return nil
			}
			if v.onOpen != nil {
				v.onOpen(v.repo, *n, v.token)
			}
			return nil
		case key.Matches(k, treeKeys.Browse) && n != nil && v.repo != nil:
			return openURLCmd(v.adapter.Link(v.repo, *n), v.log)
		}
	}

	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return cmd
}

func (v *treeView) View() string {
	if v.repo == nil {
		return dimStyle.Render("No repository loaded")
	}
	head := labelStyle.Render(v.repo.FullName()) + dimStyle.Render(" @ "+v.repo.Branch)
	if v.repo.PullNumber > 0 {
		head += dimStyle.Render(fmt.Sprintf(" #%d", v.repo.PullNumber))
	}
	body := v.list.View()
	if len(v.list.Items()) == 0 {
		body = dimStyle.Render("Nothing to show")
	}
	switch {
	case v.filtering:
		body = v.filter.View() + "\n" + body
	case v.pattern != "":
		body = dimStyle.Render("filter: "+v.pattern) + "\n" + body
	}
	return head + "\n" + body
}
