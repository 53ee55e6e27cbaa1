package forge

import (
	"context"
	"fmt"
	"sort"

	"codetree/internal/model"
	"codetree/internal/site"
)

// gist serves gist.github.com. A gist is a flat list of files, so every tree
// request returns the same listing.
type gist struct {
	base
	api *client
}

func newGist(opts Options) Adapter {
	api := opts.BaseURL
	if api == "" {
		api = "https://api.github.com"
	}
	return &gist{
		base: newBase(site.Gist, opts, 10),
		api:  newClient(opts.Client, api, authHeaderToken, opts.RateLimit),
	}
}

type gistFile struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
}

type gistInfo struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]gistFile `json:"files"`
	History     []struct {
		Version string `json:"version"`
	} `json:"history"`
}

func (g *gist) IsPullRequestPage() bool { return false }

// ResolveRepo maps /<owner>/<id>[/<revision>] onto a descriptor whose Name is
// the gist id and Branch the revision, "" for the latest.
func (g *gist) ResolveRepo(_ context.Context, _ *model.Repo, _ string) (*model.Repo, error) {
	segs := g.segments()
	if len(segs) < 2 || segs[0] == "discover" || segs[0] == "starred" {
		return nil, nil
	}
	repo := &model.Repo{Owner: segs[0], Name: segs[1], Site: string(g.kind)}
	if len(segs) >= 3 && segs[2] != "revisions" && segs[2] != "stargazers" && segs[2] != "forks" {
		repo.Branch = segs[2]
	}
	return repo, nil
}

func (g *gist) fetch(ctx context.Context, repo *model.Repo, token string) (*gistInfo, error) {
	path := "/gists/" + repo.Name
	if repo.Branch != "" {
		path += "/" + repo.Branch
	}
	var info gistInfo
	if err := g.api.getJSON(ctx, path, nil, token, &info); err != nil {
		return nil, fmt.Errorf("fetching gist %s: %w", repo.Name, err)
	}
	return &info, nil
}

func (g *gist) FetchTree(ctx context.Context, repo *model.Repo, _ TreeRequest, token string) ([]model.Node, error) {
	info, err := g.fetch(ctx, repo, token)
	if err != nil {
		return nil, err
	}
	nodes := make([]model.Node, 0, len(info.Files))
	for name, f := range info.Files {
		nodes = append(nodes, model.Node{Path: name, Name: name, Type: model.NodeBlob, Size: f.Size})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes, nil
}

func (g *gist) FetchContent(ctx context.Context, repo *model.Repo, path, token string) ([]byte, error) {
	info, err := g.fetch(ctx, repo, token)
	if err != nil {
		return nil, err
	}
	f, ok := info.Files[path]
	if !ok {
		return nil, fmt.Errorf("gist %s has no file %s: %w", repo.Name, path, ErrNotFound)
	}
	if f.Truncated && f.RawURL != "" {
		raw := newClient(g.api.http, f.RawURL, authHeaderToken, 0)
		return raw.getRaw(ctx, "", nil, token)
	}
	return []byte(f.Content), nil
}

func (g *gist) Link(repo *model.Repo, n model.Node) string {
	return fmt.Sprintf("%s/%s/%s#file-%s", g.origin(), repo.Owner, repo.Name, n.Name)
}
