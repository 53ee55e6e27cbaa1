package model

// Repo identifies the repository, branch and pull request shown on a page.
// Adapters produce a fresh Repo for every location change.
type Repo struct {
	Owner      string
	Name       string
	Branch     string
	PullNumber int // 0 when the page is not a pull request

	Path          string // file or directory under the repo root, "" for the root
	Commit        string // exact revision to list when the branch name is not enough (pull requests)
	Site          string // "github" | "gitlab" | "gitee" | "gitea" | "gogs" | "gist"
	DefaultBranch string
	Private       bool
}

// FullName returns "owner/name".
func (r *Repo) FullName() string {
	if r == nil {
		return ""
	}
	return r.Owner + "/" + r.Name
}

// SameRepo reports whether a and b point at the same tree. Only owner, name,
// branch and pull number take part; everything else is ignored.
func SameRepo(a, b *Repo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Owner == b.Owner &&
		a.Name == b.Name &&
		a.Branch == b.Branch &&
		a.PullNumber == b.PullNumber
}

// RepoMeta is auxiliary metadata fetched once per successful load.
type RepoMeta struct {
	FullName      string
	Description   string
	DefaultBranch string
	SizeKB        int
	Stars         int
	Languages     map[string]int // language → bytes
}

// NodeType distinguishes files from directories.
type NodeType string

const (
	NodeBlob NodeType = "blob"
	NodeTree NodeType = "tree"
)

// Node is one entry of a repository tree.
type Node struct {
	Path string // full path from the repo root
	Name string // last path segment
	Type NodeType
	Size int64
	SHA  string
}

// IsDir reports whether n is a directory.
func (n Node) IsDir() bool { return n.Type == NodeTree }

// SidebarState is the controller-owned sidebar state.
type SidebarState struct {
	Visible bool
	Pinned  bool
	Width   int
	Left    bool
}

// Layout is what adapters receive to reflow the host page.
type Layout struct {
	Pinned  bool
	Visible bool
	Width   int
	Left    bool
}

// ViewName names one of the sidebar views.
type ViewName string

const (
	ViewTree    ViewName = "tree"
	ViewError   ViewName = "error"
	ViewOptions ViewName = "options"
	ViewHelp    ViewName = "help" // overlay, never current
)
