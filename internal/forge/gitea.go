package forge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"codetree/internal/model"
	"codetree/internal/site"
)

// gitea serves Gitea and Gogs, which share the /api/v1 surface. Gogs has no
// git trees endpoint, so its recursive listings walk the contents API.
type gitea struct {
	base
	api  *client
	gogs bool
}

func newGitea(opts Options) Adapter { return newGiteaLike(site.Gitea, opts) }
func newGogs(opts Options) Adapter  { return newGiteaLike(site.Gogs, opts) }

func newGiteaLike(kind site.Kind, opts Options) Adapter {
	b := newBase(kind, opts, 0)
	api := opts.BaseURL
	if api == "" {
		api = b.origin() + "/api/v1"
	}
	return &gitea{
		base: b,
		api:  newClient(opts.Client, api, authHeaderToken, opts.RateLimit),
		gogs: kind == site.Gogs,
	}
}

type gtRepo struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Size          int    `json:"size"`
	Stars         int    `json:"stars_count"`
}

type gtContent struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "file" | "dir" | "symlink" | "submodule"
	Size int64  `json:"size"`
	SHA  string `json:"sha"`
}

func (g *gitea) IsPullRequestPage() bool {
	return pullNumber(g.segments(), "pulls") > 0
}

func (g *gitea) ResolveRepo(ctx context.Context, prev *model.Repo, token string) (*model.Repo, error) {
	segs := g.segments()
	if len(segs) < 2 || reservedOwners[strings.ToLower(segs[0])] || segs[0] == "user" || segs[0] == "admin" {
		return nil, nil
	}
	repo := &model.Repo{
		Owner: segs[0],
		Name:  strings.TrimSuffix(segs[1], ".git"),
		Site:  string(g.kind),
	}
	rest := segs[2:]

	if n := pullNumber(segs, "pulls"); n > 0 && g.showPR(ctx) {
		var pr ghPull
		if err := g.api.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d", repo.Owner, repo.Name, n), nil, token, &pr); err != nil {
			return nil, fmt.Errorf("resolving pull request %d: %w", n, err)
		}
		repo.PullNumber = n
		repo.Branch = pr.Head.Ref
		repo.Commit = pr.Head.SHA
		return repo, nil
	}

	// Gitea: /src/branch/<ref>/<path>, /src/commit/<sha>/<path>
	// Gogs:  /src/<ref>/<path>
	if len(rest) >= 2 && rest[0] == "src" {
		ref := rest[1:]
		if !g.gogs && len(ref) >= 2 && (ref[0] == "branch" || ref[0] == "commit" || ref[0] == "tag") {
			ref = ref[1:]
		}
		repo.Branch, repo.Path = splitRef(ref, prev, repo.Owner, repo.Name)
		return repo, nil
	}

	if prev != nil && prev.Owner == repo.Owner && prev.Name == repo.Name && prev.DefaultBranch != "" {
		repo.Branch = prev.DefaultBranch
		repo.DefaultBranch = prev.DefaultBranch
		repo.Private = prev.Private
		return repo, nil
	}
	var info gtRepo
	if err := g.api.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", repo.Owner, repo.Name), nil, token, &info); err != nil {
		return nil, fmt.Errorf("resolving %s: %w", repo.FullName(), err)
	}
	repo.Branch = info.DefaultBranch
	repo.DefaultBranch = info.DefaultBranch
	repo.Private = info.Private
	return repo, nil
}

func (g *gitea) ref(repo *model.Repo) string {
	if repo.Commit != "" {
		return repo.Commit
	}
	return repo.Branch
}

func (g *gitea) FetchTree(ctx context.Context, repo *model.Repo, req TreeRequest, token string) ([]model.Node, error) {
	if req.Recursive && req.Dir == "" && !g.gogs {
		var out struct {
			Tree []ghTreeEntry `json:"tree"`
		}
		path := fmt.Sprintf("/repos/%s/%s/git/trees/%s", repo.Owner, repo.Name, url.PathEscape(g.ref(repo)))
		q := url.Values{"recursive": {"true"}, "per_page": {"10000"}}
		if err := g.api.getJSON(ctx, path, q, token, &out); err != nil {
			return nil, fmt.Errorf("listing %s: %w", repo.FullName(), err)
		}
		nodes := make([]model.Node, 0, len(out.Tree))
		for _, e := range out.Tree {
			nodes = append(nodes, model.Node{Path: e.Path, Name: lastSegment(e.Path), Type: nodeType(e.Type), Size: e.Size, SHA: e.SHA})
		}
		return nodes, nil
	}
	if !req.Recursive {
		return g.listDir(ctx, repo, req.Dir, token)
	}
	return g.walk(ctx, repo, req.Dir, token)
}

func (g *gitea) listDir(ctx context.Context, repo *model.Repo, dir, token string) ([]model.Node, error) {
	var entries []gtContent
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Name, escapePath(dir))
	if err := g.api.getJSON(ctx, path, url.Values{"ref": {g.ref(repo)}}, token, &entries); err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", repo.FullName(), dir, err)
	}
	nodes := make([]model.Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, model.Node{Path: e.Path, Name: e.Name, Type: nodeType(e.Type), Size: e.Size, SHA: e.SHA})
	}
	return nodes, nil
}

// walk lists dir and every directory below it, one level at a time with a
// few requests in flight.
func (g *gitea) walk(ctx context.Context, repo *model.Repo, dir, token string) ([]model.Node, error) {
	var nodes []model.Node
	level := []string{dir}
	for len(level) > 0 {
		var (
			mu   sync.Mutex
			next []string
		)
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(4)
		for _, d := range level {
			eg.Go(func() error {
				entries, err := g.listDir(ctx, repo, d, token)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				nodes = append(nodes, entries...)
				for _, e := range entries {
					if e.IsDir() {
						next = append(next, e.Path)
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		level = next
	}
	return nodes, nil
}

func (g *gitea) FetchContent(ctx context.Context, repo *model.Repo, path, token string) ([]byte, error) {
	p := fmt.Sprintf("/repos/%s/%s/raw/%s/%s", repo.Owner, repo.Name, url.PathEscape(g.ref(repo)), escapePath(path))
	data, err := g.api.getRaw(ctx, p, nil, token)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (g *gitea) FetchMeta(ctx context.Context, repo *model.Repo, token string) (*model.RepoMeta, error) {
	var info gtRepo
	var langs map[string]int
	err := fetchBoth(ctx,
		func(ctx context.Context) error {
			return g.api.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", repo.Owner, repo.Name), nil, token, &info)
		},
		func(ctx context.Context) error {
			err := g.api.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/languages", repo.Owner, repo.Name), nil, token, &langs)
			// Gogs and older Gitea releases have no languages endpoint.
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", repo.FullName(), err)
	}
	return &model.RepoMeta{
		FullName:      info.FullName,
		Description:   info.Description,
		DefaultBranch: info.DefaultBranch,
		SizeKB:        info.Size,
		Stars:         info.Stars,
		Languages:     langs,
	}, nil
}

func (g *gitea) Link(repo *model.Repo, n model.Node) string {
	if g.gogs {
		return fmt.Sprintf("%s/%s/%s/src/%s/%s", g.origin(), repo.Owner, repo.Name, repo.Branch, n.Path)
	}
	return fmt.Sprintf("%s/%s/%s/src/branch/%s/%s", g.origin(), repo.Owner, repo.Name, repo.Branch, n.Path)
}
