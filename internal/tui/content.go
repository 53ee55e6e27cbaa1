package tui

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"

	"codetree/internal/forge"
	"codetree/internal/model"
	"codetree/internal/sidebar"
	"codetree/internal/store"
)

var chromaStyles = map[string]string{
	"auto":    "monokai",
	"dark":    "monokai",
	"dracula": "dracula",
	"light":   "github",
	"pink":    "friendly",
}

// contentPane is the host page area: the open file, or the repository summary
// when none is open. It also listens for theme changes as the sidebar's
// extension delegate.
type contentPane struct {
	adapter  forge.Adapter
	store    store.Store
	exec     sidebar.Executor
	log      *slog.Logger
	timeout  time.Duration
	fallback string

	theme string
	meta  *model.RepoMeta
	repo  *model.Repo
	node  *model.Node
	raw   []byte
	err   error
	busy  bool
	seq   uint64

	vp viewport.Model
}

func newContentPane(a forge.Adapter, s store.Store, e sidebar.Executor, log *slog.Logger, timeout time.Duration, theme string) *contentPane {
	return &contentPane{
		adapter:  a,
		store:    s,
		exec:     e,
		log:      log,
		timeout:  timeout,
		fallback: theme,
		theme:    theme,
		vp:       viewport.New(0, 0),
	}
}

// Activate picks up a theme saved from an earlier session.
func (p *contentPane) Activate(ctx context.Context) error {
	t, err := store.String(ctx, p.store, store.KeyTheme)
	if err != nil {
		return fmt.Errorf("reading theme: %w", err)
	}
	if t != "" {
		p.theme = t
	}
	return nil
}

// ApplyOptions re-renders on a theme change. The tree never needs reloading
// for it.
func (p *contentPane) ApplyOptions(cs store.ChangeSet) bool {
	ch, ok := cs[store.KeyTheme]
	if !ok {
		return false
	}
	p.theme = cmp.Or(store.AsString(ch.New), p.fallback)
	p.render()
	return false
}

// PublishRepoMeta shows metadata for the loaded repository.
func (p *contentPane) PublishRepoMeta(meta *model.RepoMeta) {
	p.meta = meta
	if p.node == nil {
		p.render()
	}
}

// open fetches and shows the file n of repo.
func (p *contentPane) open(repo *model.Repo, n model.Node, token string) {
	p.seq++
	seq := p.seq
	p.repo, p.node, p.raw, p.err, p.busy = repo, &n, nil, nil, true
	p.render()
	p.exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		raw, err := p.adapter.FetchContent(ctx, repo, n.Path, token)
		p.exec.Post(func() {
			if seq != p.seq {
				return
			}
			p.raw, p.err, p.busy = raw, err, false
			if err != nil {
				p.log.Warn("fetching file", "path", n.Path, "err", err)
			}
			p.render()
			p.vp.GotoTop()
		})
	})
}

// reset forgets the open file, e.g. after the repository changed.
func (p *contentPane) reset(repo *model.Repo) {
	if model.SameRepo(repo, p.repo) {
		return
	}
	p.seq++
	p.repo, p.node, p.raw, p.err, p.busy = repo, nil, nil, nil, false
	if p.meta != nil && !strings.EqualFold(p.meta.FullName, repo.FullName()) {
		p.meta = nil
	}
	p.render()
}

func (p *contentPane) setSize(w, h int) {
	if p.vp.Width == w && p.vp.Height == h {
		return
	}
	p.vp.Width, p.vp.Height = w, h
	p.render()
}

func (p *contentPane) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.vp, cmd = p.vp.Update(msg)
	return cmd
}

func (p *contentPane) View() string { return p.vp.View() }

func (p *contentPane) render() {
	p.vp.SetContent(p.body())
}

func (p *contentPane) body() string {
	width := max(p.vp.Width-2, 20)
	switch {
	case p.node == nil:
		return renderMeta(p.meta, p.repo)
	case p.busy:
		return dimStyle.Render("Loading " + p.node.Path + "…")
	case p.err != nil:
		return errStyle.Render(p.err.Error())
	}

	head := detailHeadStyle.Render(p.node.Path) + dimStyle.Render("  "+humanize.Bytes(uint64(len(p.raw)))) + "\n\n"
	if bytes.IndexByte(p.raw, 0) >= 0 {
		return head + dimStyle.Render("Binary file not shown")
	}
	switch strings.ToLower(path.Ext(p.node.Name)) {
	case ".md", ".markdown":
		if out, err := renderMarkdown(string(p.raw), p.theme, width); err == nil {
			return head + out
		}
	}
	return head + highlight(p.node.Name, string(p.raw), p.theme)
}

func renderMarkdown(src, theme string, width int) (string, error) {
	style := glamour.WithAutoStyle()
	if theme != "auto" {
		style = glamour.WithStandardStyle(theme)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", err
	}
	return r.Render(src)
}

// highlight colours code for a 256-colour terminal. Unknown languages and
// the plain themes come back unchanged.
func highlight(name, code, theme string) string {
	styleName, ok := chromaStyles[theme]
	if !ok {
		return code
	}
	lexer := lexers.Match(name)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return code
	}
	lexer = chroma.Coalesce(lexer)

	formatter := formatters.Get("terminal256")
	iter, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var b strings.Builder
	if err := formatter.Format(&b, styles.Get(styleName), iter); err != nil {
		return code
	}
	return b.String()
}

func renderMeta(meta *model.RepoMeta, repo *model.Repo) string {
	if meta == nil {
		if repo == nil {
			return dimStyle.Render("Open a repository page with g")
		}
		return detailHeadStyle.Render(repo.FullName())
	}

	row := func(lbl, val string) string {
		return labelStyle.Render(lbl) + val + "\n"
	}

	var b strings.Builder
	b.WriteString(detailHeadStyle.Render(meta.FullName) + "\n\n")
	if meta.Description != "" {
		b.WriteString(meta.Description + "\n\n")
	}
	if meta.DefaultBranch != "" {
		b.WriteString(row("Default  ", meta.DefaultBranch))
	}
	b.WriteString(row("Stars    ", humanize.Comma(int64(meta.Stars))))
	if meta.SizeKB > 0 {
		b.WriteString(row("Size     ", humanize.Bytes(uint64(meta.SizeKB)*1024)))
	}

	if len(meta.Languages) > 0 {
		total := 0
		for _, n := range meta.Languages {
			total += n
		}
		langs := slices.SortedFunc(maps.Keys(meta.Languages), func(a, b string) int {
			return cmp.Or(cmp.Compare(meta.Languages[b], meta.Languages[a]), cmp.Compare(a, b))
		})
		b.WriteString("\n")
		for _, l := range langs {
			pct := 0.0
			if total > 0 {
				pct = 100 * float64(meta.Languages[l]) / float64(total)
			}
			b.WriteString(row(fmt.Sprintf("%-9s", l), fmt.Sprintf("%5.1f%%", pct)))
		}
	}
	return b.String()
}
