package forge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"codetree/internal/model"
	"codetree/internal/site"
	"codetree/internal/store"
)

// Decorator is the part of the sidebar scaffold an adapter may touch.
type Decorator interface {
	AddClass(name string)
}

// TreeRequest selects which part of a repository tree to list.
type TreeRequest struct {
	Dir       string // "" for the repo root
	Recursive bool
}

// Adapter abstracts one Git-hosting site.
type Adapter interface {
	Kind() site.Kind
	// AccessToken returns the stored token for the site, "" when unset.
	AccessToken(ctx context.Context) (string, error)
	// ResolveRepo turns the page location into a descriptor. A nil Repo and
	// nil error mean the page is not a browsable repository page. prev is the
	// descriptor currently loaded and is used as a hint only.
	ResolveRepo(ctx context.Context, prev *model.Repo, token string) (*model.Repo, error)
	FetchTree(ctx context.Context, repo *model.Repo, req TreeRequest, token string) ([]model.Node, error)
	FetchContent(ctx context.Context, repo *model.Repo, path, token string) ([]byte, error)
	IsPullRequestPage() bool
	CSSClass() string
	Init(d Decorator)
	UpdateLayout(l model.Layout)
	// Margins reports how far the host content is pushed in by the sidebar.
	Margins() (left, right int)
	// Link returns the web URL of a node.
	Link(repo *model.Repo, n model.Node) string
}

// MetaFetcher is implemented by adapters that can describe a repository.
type MetaFetcher interface {
	FetchMeta(ctx context.Context, repo *model.Repo, token string) (*model.RepoMeta, error)
}

// Options configures an adapter.
type Options struct {
	Page      *site.Page
	Store     store.Store
	Client    *http.Client
	BaseURL   string     // API root override, e.g. for enterprise installs
	RateLimit rate.Limit // requests per second, 0 for unlimited
	Logger    *slog.Logger
}

// Constructor builds an adapter for one kind.
type Constructor func(Options) Adapter

var constructors = map[site.Kind]Constructor{
	site.GitHub: newGitHub,
	site.Gitee:  newGitee,
	site.GitLab: newGitLab,
	site.Gitea:  newGitea,
	site.Gogs:   newGogs,
	site.Gist:   newGist,
}

// New returns the adapter for kind.
func New(kind site.Kind, opts Options) (Adapter, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter for site %q", kind)
	}
	if opts.Page == nil {
		return nil, fmt.Errorf("adapter %s: page is required", kind)
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return ctor(opts), nil
}

var tokenKeys = map[site.Kind]string{
	site.GitHub: store.KeyGitHubToken,
	site.Gist:   store.KeyGitHubToken,
	site.GitLab: store.KeyGitLabToken,
	site.Gitee:  store.KeyGiteeToken,
	site.Gitea:  store.KeyGiteaToken,
	site.Gogs:   store.KeyGogsToken,
}

// TokenKey returns the option key holding the token for kind.
func TokenKey(kind site.Kind) string { return tokenKeys[kind] }

// base carries what every adapter shares.
type base struct {
	kind  site.Kind
	page  *site.Page
	store store.Store
	log   *slog.Logger
	gap   int

	mu     *sync.Mutex
	layout model.Layout
}

func newBase(kind site.Kind, opts Options, gap int) base {
	return base{
		kind:  kind,
		page:  opts.Page,
		store: opts.Store,
		log:   opts.Logger.With(slog.String("site", string(kind))),
		gap:   gap,
		mu:    new(sync.Mutex),
	}
}

func (b *base) Kind() site.Kind { return b.kind }

func (b *base) CSSClass() string { return "codetree-" + string(b.kind) }

func (b *base) AccessToken(ctx context.Context) (string, error) {
	tok, err := store.String(ctx, b.store, tokenKeys[b.kind])
	if err != nil {
		return "", fmt.Errorf("reading %s token: %w", b.kind, err)
	}
	return strings.TrimSpace(tok), nil
}

func (b *base) UpdateLayout(l model.Layout) {
	b.mu.Lock()
	b.layout = l
	b.mu.Unlock()
	b.log.Debug("layout updated", "pinned", l.Pinned, "visible", l.Visible, "width", l.Width, "left", l.Left)
}

// Margins pushes host content aside only while the sidebar is pinned open.
func (b *base) Margins() (left, right int) {
	b.mu.Lock()
	l := b.layout
	b.mu.Unlock()
	if !l.Pinned || !l.Visible {
		return 0, 0
	}
	if l.Left {
		return l.Width + b.gap, 0
	}
	return 0, l.Width + b.gap
}

// segments splits the page path, dropping empty parts.
func (b *base) segments() []string {
	var out []string
	for _, s := range strings.Split(b.page.Location().Path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (b *base) origin() string {
	u := b.page.Location()
	return u.Scheme + "://" + u.Host
}

// pullNumber parses the segment after marker, e.g. "pull" in /o/r/pull/12.
func pullNumber(segs []string, marker string) int {
	for i := 0; i+1 < len(segs); i++ {
		if segs[i] == marker {
			if n, err := strconv.Atoi(segs[i+1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// splitRef separates "branch/dir/file" into branch and path. Branch names may
// contain slashes, so when the previous descriptor is on the same repo and its
// branch prefixes rest, that branch wins. Otherwise the first segment is the
// branch.
func splitRef(rest []string, prev *model.Repo, owner, name string) (branch, path string) {
	if len(rest) == 0 {
		return "", ""
	}
	joined := strings.Join(rest, "/")
	if prev != nil && prev.Owner == owner && prev.Name == name && prev.Branch != "" {
		if joined == prev.Branch {
			return prev.Branch, ""
		}
		if strings.HasPrefix(joined, prev.Branch+"/") {
			return prev.Branch, strings.TrimPrefix(joined, prev.Branch+"/")
		}
	}
	return rest[0], strings.Join(rest[1:], "/")
}

// showPR reports whether pull request pages should list the PR head.
func (b *base) showPR(ctx context.Context) bool {
	pr, err := store.Bool(ctx, b.store, store.KeyPR)
	return err == nil && pr
}

func (b *base) Init(d Decorator) {
	if d == nil {
		return
	}
	d.AddClass(b.CSSClass() + "-host")
}

// nodeType maps an API entry type onto a model node type.
func nodeType(t string) model.NodeType {
	switch t {
	case "tree", "dir":
		return model.NodeTree
	default:
		return model.NodeBlob
	}
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
