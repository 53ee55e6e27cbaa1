// Package git turns a local checkout into the hosting-site page it mirrors.
package git

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"

	"codetree/internal/site"
)

// ErrNoRemote is returned when the checkout has no usable remote.
var ErrNoRemote = errors.New("no remote configured")

// Checkout describes the checkout containing a directory.
type Checkout struct {
	Root   string // worktree root
	Rel    string // directory relative to Root, slash separated, "" at the root
	Web    string // web URL of the remote repository, e.g. https://github.com/o/r
	Branch string // branch name, or the commit hash when HEAD is detached
}

// Open inspects the checkout containing dir. remote names the remote to use;
// "" means origin, falling back to the only remote when there is just one.
func Open(dir, remote string) (*Checkout, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	root := wt.Filesystem.Root()
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." {
		rel = ""
	}

	rawURL, err := remoteURL(repo, remote)
	if err != nil {
		return nil, err
	}
	web, err := WebURL(rawURL)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("get HEAD: %w", err)
	}
	branch := head.Hash().String()
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	return &Checkout{Root: root, Rel: filepath.ToSlash(rel), Web: web, Branch: branch}, nil
}

func remoteURL(repo *git.Repository, name string) (string, error) {
	if name == "" {
		name = git.DefaultRemoteName
		if _, err := repo.Remote(name); errors.Is(err, git.ErrRemoteNotFound) {
			remotes, err := repo.Remotes()
			if err != nil {
				return "", fmt.Errorf("list remotes: %w", err)
			}
			if len(remotes) != 1 {
				return "", ErrNoRemote
			}
			name = remotes[0].Config().Name
		}
	}
	r, err := repo.Remote(name)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return "", fmt.Errorf("remote %s: %w", name, ErrNoRemote)
	}
	if err != nil {
		return "", fmt.Errorf("remote %s: %w", name, err)
	}
	urls := r.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s: %w", name, ErrNoRemote)
	}
	return urls[0], nil
}

// WebURL maps a clone URL onto the repository's web URL. It accepts HTTPS,
// ssh:// and scp-like (git@host:owner/name.git) forms.
func WebURL(remote string) (string, error) {
	raw := strings.TrimSpace(remote)
	var host, path string
	switch {
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parsing remote %q: %w", remote, err)
		}
		host, path = u.Hostname(), u.Path
		if u.Scheme == "http" || u.Scheme == "https" {
			host = u.Host
		}
	case strings.Contains(raw, ":"):
		at := strings.LastIndex(raw[:strings.Index(raw, ":")], "@")
		rest := raw[at+1:]
		i := strings.Index(rest, ":")
		host, path = rest[:i], rest[i+1:]
	default:
		return "", fmt.Errorf("unsupported remote %q", remote)
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	if host == "" || strings.Count(path, "/") < 1 {
		return "", fmt.Errorf("unsupported remote %q", remote)
	}
	return "https://" + host + "/" + path, nil
}

// PageURL is the tree page for the checkout's branch and directory on a site
// of the given kind.
func (c *Checkout) PageURL(kind site.Kind) string {
	var seg string
	switch kind {
	case site.GitLab:
		seg = "/-/tree/"
	case site.Gitea:
		seg = "/src/branch/"
	case site.Gogs:
		seg = "/src/"
	default:
		seg = "/tree/"
	}
	u := c.Web + seg + c.Branch
	if c.Rel != "" {
		u += "/" + c.Rel
	}
	return u
}
