package forge

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"codetree/internal/model"
	"codetree/internal/site"
)

// gitLab serves gitlab.com and self-hosted GitLab. Projects may live in
// nested groups, so Owner holds the full namespace.
type gitLab struct {
	base
	api *client
}

var reservedGitLab = map[string]bool{
	"-": true, "admin": true, "dashboard": true, "explore": true,
	"help": true, "search": true, "users": true, "groups": true, "projects": true,
}

func newGitLab(opts Options) Adapter {
	b := newBase(site.GitLab, opts, 0)
	api := opts.BaseURL
	if api == "" {
		api = b.origin() + "/api/v4"
	}
	return &gitLab{base: b, api: newClient(opts.Client, api, authPrivateToken, opts.RateLimit)}
}

type glProject struct {
	PathWithNamespace string `json:"path_with_namespace"`
	Description       string `json:"description"`
	DefaultBranch     string `json:"default_branch"`
	Visibility        string `json:"visibility"`
	StarCount         int    `json:"star_count"`
	Statistics        *struct {
		RepositorySize int64 `json:"repository_size"`
	} `json:"statistics"`
}

type glMergeRequest struct {
	SourceBranch string `json:"source_branch"`
	SHA          string `json:"sha"`
}

type glTreeEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// split locates the project path and whatever follows the "/-/" separator.
func (g *gitLab) split() (project []string, tail []string) {
	segs := g.segments()
	for i, s := range segs {
		if s == "-" {
			return segs[:i], segs[i+1:]
		}
	}
	return segs, nil
}

func (g *gitLab) IsPullRequestPage() bool {
	_, tail := g.split()
	return pullNumber(tail, "merge_requests") > 0
}

func projectID(repo *model.Repo) string {
	return url.PathEscape(repo.Owner + "/" + repo.Name)
}

func (g *gitLab) ResolveRepo(ctx context.Context, prev *model.Repo, token string) (*model.Repo, error) {
	project, tail := g.split()
	if len(project) < 2 || reservedGitLab[strings.ToLower(project[0])] {
		return nil, nil
	}
	repo := &model.Repo{
		Owner: strings.Join(project[:len(project)-1], "/"),
		Name:  strings.TrimSuffix(project[len(project)-1], ".git"),
		Site:  string(g.kind),
	}

	if n := pullNumber(tail, "merge_requests"); n > 0 && g.showPR(ctx) {
		var mr glMergeRequest
		if err := g.api.getJSON(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d", projectID(repo), n), nil, token, &mr); err != nil {
			return nil, fmt.Errorf("resolving merge request %d: %w", n, err)
		}
		repo.PullNumber = n
		repo.Branch = mr.SourceBranch
		repo.Commit = mr.SHA
		return repo, nil
	}

	if len(tail) >= 2 && (tail[0] == "tree" || tail[0] == "blob") {
		repo.Branch, repo.Path = splitRef(tail[1:], prev, repo.Owner, repo.Name)
		return repo, nil
	}

	if prev != nil && prev.Owner == repo.Owner && prev.Name == repo.Name && prev.DefaultBranch != "" {
		repo.Branch = prev.DefaultBranch
		repo.DefaultBranch = prev.DefaultBranch
		repo.Private = prev.Private
		return repo, nil
	}
	var p glProject
	if err := g.api.getJSON(ctx, "/projects/"+projectID(repo), nil, token, &p); err != nil {
		return nil, fmt.Errorf("resolving %s: %w", repo.FullName(), err)
	}
	repo.Branch = p.DefaultBranch
	repo.DefaultBranch = p.DefaultBranch
	repo.Private = p.Visibility != "" && p.Visibility != "public"
	return repo, nil
}

func (g *gitLab) ref(repo *model.Repo) string {
	if repo.Commit != "" {
		return repo.Commit
	}
	return repo.Branch
}

func (g *gitLab) FetchTree(ctx context.Context, repo *model.Repo, req TreeRequest, token string) ([]model.Node, error) {
	var nodes []model.Node
	page := 1
	for page > 0 {
		q := url.Values{
			"ref":      {g.ref(repo)},
			"per_page": {"100"},
			"page":     {strconv.Itoa(page)},
		}
		if req.Dir != "" {
			q.Set("path", req.Dir)
		}
		if req.Recursive {
			q.Set("recursive", "true")
		}
		var entries []glTreeEntry
		next, err := g.api.getJSONPage(ctx, fmt.Sprintf("/projects/%s/repository/tree", projectID(repo)), q, token, &entries)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", repo.FullName(), err)
		}
		for _, e := range entries {
			nodes = append(nodes, model.Node{Path: e.Path, Name: e.Name, Type: nodeType(e.Type), SHA: e.ID})
		}
		page = next
	}
	return nodes, nil
}

func (g *gitLab) FetchContent(ctx context.Context, repo *model.Repo, path, token string) ([]byte, error) {
	p := fmt.Sprintf("/projects/%s/repository/files/%s/raw", projectID(repo), url.PathEscape(path))
	data, err := g.api.getRaw(ctx, p, url.Values{"ref": {g.ref(repo)}}, token)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (g *gitLab) FetchMeta(ctx context.Context, repo *model.Repo, token string) (*model.RepoMeta, error) {
	var p glProject
	var shares map[string]float64
	err := fetchBoth(ctx,
		func(ctx context.Context) error {
			return g.api.getJSON(ctx, "/projects/"+projectID(repo), url.Values{"statistics": {"true"}}, token, &p)
		},
		func(ctx context.Context) error {
			return g.api.getJSON(ctx, fmt.Sprintf("/projects/%s/languages", projectID(repo)), nil, token, &shares)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", repo.FullName(), err)
	}
	meta := &model.RepoMeta{
		FullName:      p.PathWithNamespace,
		Description:   p.Description,
		DefaultBranch: p.DefaultBranch,
		Stars:         p.StarCount,
		Languages:     make(map[string]int, len(shares)),
	}
	if p.Statistics != nil {
		meta.SizeKB = int(p.Statistics.RepositorySize / 1024)
	}
	// GitLab reports percentages rather than bytes.
	for lang, pct := range shares {
		meta.Languages[lang] = int(math.Round(pct))
	}
	return meta, nil
}

func (g *gitLab) Link(repo *model.Repo, n model.Node) string {
	kind := "blob"
	if n.IsDir() {
		kind = "tree"
	}
	return fmt.Sprintf("%s/%s/%s/-/%s/%s/%s", g.origin(), repo.Owner, repo.Name, kind, repo.Branch, n.Path)
}
