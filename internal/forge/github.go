package forge

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"codetree/internal/model"
	"codetree/internal/site"
)

// gitHub serves github.com and, through the same v3-style API, gitee.com.
type gitHub struct {
	base
	api        *client
	pullMarker string // "pull" on GitHub, "pulls" on Gitee
}

// reservedOwners are first path segments that never name a repository owner.
var reservedOwners = map[string]bool{
	"about": true, "apps": true, "codespaces": true, "dashboard": true,
	"enterprise": true, "explore": true, "features": true, "issues": true,
	"join": true, "login": true, "marketplace": true, "new": true,
	"notifications": true, "orgs": true, "pulls": true, "search": true,
	"settings": true, "site": true, "sponsors": true, "topics": true,
	"trending": true, "organizations": true,
}

func newGitHub(opts Options) Adapter {
	api := opts.BaseURL
	if api == "" {
		api = "https://api.github.com"
	}
	return &gitHub{
		base:       newBase(site.GitHub, opts, 10),
		api:        newClient(opts.Client, api, authHeaderToken, opts.RateLimit),
		pullMarker: "pull",
	}
}

func newGitee(opts Options) Adapter {
	api := opts.BaseURL
	if api == "" {
		api = "https://gitee.com/api/v5"
	}
	return &gitHub{
		base:       newBase(site.Gitee, opts, 0),
		api:        newClient(opts.Client, api, authQuery, opts.RateLimit),
		pullMarker: "pulls",
	}
}

type ghRepo struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Size          int    `json:"size"`
	Stars         int    `json:"stargazers_count"`
}

type ghPull struct {
	Head struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
}

type ghTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	SHA  string `json:"sha"`
}

type ghContent struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (g *gitHub) IsPullRequestPage() bool {
	return pullNumber(g.segments(), g.pullMarker) > 0
}

func (g *gitHub) ResolveRepo(ctx context.Context, prev *model.Repo, token string) (*model.Repo, error) {
	segs := g.segments()
	if len(segs) < 2 || reservedOwners[strings.ToLower(segs[0])] {
		return nil, nil
	}
	repo := &model.Repo{
		Owner: segs[0],
		Name:  strings.TrimSuffix(segs[1], ".git"),
		Site:  string(g.kind),
	}
	rest := segs[2:]

	if n := pullNumber(segs, g.pullMarker); n > 0 && g.showPR(ctx) {
		var pr ghPull
		if err := g.api.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d", repo.Owner, repo.Name, n), nil, token, &pr); err != nil {
			return nil, fmt.Errorf("resolving pull request %d: %w", n, err)
		}
		repo.PullNumber = n
		repo.Branch = pr.Head.Ref
		repo.Commit = pr.Head.SHA
		return repo, nil
	}

	if len(rest) >= 2 && (rest[0] == "tree" || rest[0] == "blob") {
		repo.Branch, repo.Path = splitRef(rest[1:], prev, repo.Owner, repo.Name)
		return repo, nil
	}

	// No branch in the URL: reuse what we already know about this repo.
	if prev != nil && prev.Owner == repo.Owner && prev.Name == repo.Name && prev.DefaultBranch != "" {
		repo.Branch = prev.DefaultBranch
		repo.DefaultBranch = prev.DefaultBranch
		repo.Private = prev.Private
		return repo, nil
	}
	var info ghRepo
	if err := g.api.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", repo.Owner, repo.Name), nil, token, &info); err != nil {
		return nil, fmt.Errorf("resolving %s: %w", repo.FullName(), err)
	}
	repo.Branch = info.DefaultBranch
	repo.DefaultBranch = info.DefaultBranch
	repo.Private = info.Private
	return repo, nil
}

func (g *gitHub) ref(repo *model.Repo) string {
	if repo.Commit != "" {
		return repo.Commit
	}
	return repo.Branch
}

func (g *gitHub) FetchTree(ctx context.Context, repo *model.Repo, req TreeRequest, token string) ([]model.Node, error) {
	if req.Recursive && req.Dir == "" {
		var out struct {
			Tree      []ghTreeEntry `json:"tree"`
			Truncated bool          `json:"truncated"`
		}
		path := fmt.Sprintf("/repos/%s/%s/git/trees/%s", repo.Owner, repo.Name, url.PathEscape(g.ref(repo)))
		if err := g.api.getJSON(ctx, path, url.Values{"recursive": {"1"}}, token, &out); err != nil {
			return nil, fmt.Errorf("listing %s: %w", repo.FullName(), err)
		}
		if out.Truncated {
			g.log.Warn("tree truncated by api", "repo", repo.FullName())
		}
		nodes := make([]model.Node, 0, len(out.Tree))
		for _, e := range out.Tree {
			nodes = append(nodes, model.Node{
				Path: e.Path,
				Name: lastSegment(e.Path),
				Type: nodeType(e.Type),
				Size: e.Size,
				SHA:  e.SHA,
			})
		}
		return nodes, nil
	}

	var entries []ghContent
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Name, escapePath(req.Dir))
	if err := g.api.getJSON(ctx, path, url.Values{"ref": {g.ref(repo)}}, token, &entries); err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", repo.FullName(), req.Dir, err)
	}
	nodes := make([]model.Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, model.Node{Path: e.Path, Name: e.Name, Type: nodeType(e.Type), Size: e.Size, SHA: e.SHA})
	}
	return nodes, nil
}

func (g *gitHub) FetchContent(ctx context.Context, repo *model.Repo, path, token string) ([]byte, error) {
	var c ghContent
	p := fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Name, escapePath(path))
	if err := g.api.getJSON(ctx, p, url.Values{"ref": {g.ref(repo)}}, token, &c); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return decodeContent(c.Content, c.Encoding)
}

func decodeContent(content, encoding string) ([]byte, error) {
	if encoding != "base64" {
		return []byte(content), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decoding content: %w", err)
	}
	return data, nil
}

func (g *gitHub) FetchMeta(ctx context.Context, repo *model.Repo, token string) (*model.RepoMeta, error) {
	var info ghRepo
	var langs map[string]int
	err := fetchBoth(ctx,
		func(ctx context.Context) error {
			return g.api.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", repo.Owner, repo.Name), nil, token, &info)
		},
		func(ctx context.Context) error {
			return g.api.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/languages", repo.Owner, repo.Name), nil, token, &langs)
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

func (g *gitHub) Link(repo *model.Repo, n model.Node) string {
	kind := "blob"
	if n.IsDir() {
		kind = "tree"
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s", g.origin(), repo.Owner, repo.Name, kind, repo.Branch, n.Path)
}
