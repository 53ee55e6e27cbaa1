package tui

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"codetree/internal/bus"
	"codetree/internal/forge"
	"codetree/internal/model"
	"codetree/internal/site"
)

// stepExec runs background work inline and queues continuations. With hold
// set it queues the background work too.
type stepExec struct {
	hold  bool
	jobs  []func()
	posts []func()
}

func (e *stepExec) Go(fn func()) {
	if e.hold {
		e.jobs = append(e.jobs, fn)
		return
	}
	fn()
}

func (e *stepExec) Post(fn func()) { e.posts = append(e.posts, fn) }

func (e *stepExec) settle() {
	for len(e.jobs) > 0 || len(e.posts) > 0 {
		jobs := e.jobs
		e.jobs = nil
		for _, j := range jobs {
			j()
		}
		for len(e.posts) > 0 {
			p := e.posts[0]
			e.posts = e.posts[1:]
			p()
		}
	}
}

// stubForge is a GitHub-like adapter over canned trees.
type stubForge struct {
	mu      sync.Mutex
	repo    *model.Repo
	trees   map[string][]model.Node // keyed by TreeRequest.Dir
	files   map[string]string
	treeErr error
	reqs    []forge.TreeRequest
	layout  model.Layout
}

func newStubForge() *stubForge {
	return &stubForge{
		repo: &model.Repo{Owner: "acme", Name: "widgets", Branch: "main", Site: "github"},
		trees: map[string][]model.Node{
			"": {
				{Path: "src", Name: "src", Type: model.NodeTree},
				{Path: "src/main.go", Name: "main.go", Type: model.NodeBlob, Size: 2048},
				{Path: "README.md", Name: "README.md", Type: model.NodeBlob, Size: 120},
			},
			"src": {
				{Path: "src/main.go", Name: "main.go", Type: model.NodeBlob, Size: 2048},
			},
		},
		files: map[string]string{
			"src/main.go": "package main\n",
		},
	}
}

func (f *stubForge) Kind() site.Kind                             { return site.GitHub }
func (f *stubForge) AccessToken(context.Context) (string, error) { return "", nil }
func (f *stubForge) IsPullRequestPage() bool                     { return false }
func (f *stubForge) CSSClass() string                            { return "codetree-github" }
func (f *stubForge) Init(d forge.Decorator)                      { d.AddClass("codetree-github-host") }

func (f *stubForge) ResolveRepo(context.Context, *model.Repo, string) (*model.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repo == nil {
		return nil, nil
	}
	r := *f.repo
	return &r, nil
}

func (f *stubForge) FetchTree(_ context.Context, _ *model.Repo, req forge.TreeRequest, _ string) ([]model.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	if req.Dir == "" && !req.Recursive {
		var top []model.Node
		for _, n := range f.trees[""] {
			if parentDir(n.Path) == "" {
				top = append(top, n)
			}
		}
		return top, nil
	}
	return f.trees[req.Dir], nil
}

func (f *stubForge) FetchContent(_ context.Context, _ *model.Repo, path, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.files[path]
	if !ok {
		return nil, forge.ErrNotFound
	}
	return []byte(s), nil
}

func (f *stubForge) UpdateLayout(l model.Layout) {
	f.mu.Lock()
	f.layout = l
	f.mu.Unlock()
}

func (f *stubForge) Margins() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.layout.Pinned || !f.layout.Visible {
		return 0, 0
	}
	if f.layout.Left {
		return f.layout.Width, 0
	}
	return 0, f.layout.Width
}

func (f *stubForge) Link(repo *model.Repo, n model.Node) string {
	kind := "blob"
	if n.IsDir() {
		kind = "tree"
	}
	return "https://github.com/" + repo.FullName() + "/" + kind + "/" + repo.Branch + "/" + n.Path
}

func (f *stubForge) requests() []forge.TreeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forge.TreeRequest(nil), f.reqs...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects bus events of one type.
func recorder[E bus.Event](t *testing.T, b *bus.Bus) *[]E {
	t.Helper()
	var got []E
	t.Cleanup(bus.On(b, func(e E) { got = append(got, e) }))
	return &got
}

func paths(v *treeView) []string {
	var out []string
	for _, it := range v.list.Items() {
		out = append(out, it.(treeItem).node.Path)
	}
	return out
}
