// Package sidebar implements the controller that drives the file tree
// sidebar: visibility, pinning, float behaviour, view routing and the
// repository load cycle. A Controller is not safe for concurrent use; all of
// its methods must be called from one goroutine, and asynchronous work comes
// back to that goroutine through the Executor.
package sidebar

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"codetree/internal/bus"
	"codetree/internal/clock"
	"codetree/internal/forge"
	"codetree/internal/model"
	"codetree/internal/site"
	"codetree/internal/store"
)

// MaxWidth bounds the sidebar width from above.
const MaxWidth = 1000

const (
	pointerLeaveDelay = 400 * time.Millisecond
	keyPressDelay     = 4 * time.Second
	versionSaveDelay  = 10 * time.Second
	defaultTimeout    = 30 * time.Second
)

// Adapter is what the controller needs from a site adapter. forge.Adapter
// satisfies it; adapters that also implement forge.MetaFetcher get their
// repository metadata published after each load.
type Adapter interface {
	Kind() site.Kind
	AccessToken(ctx context.Context) (string, error)
	ResolveRepo(ctx context.Context, prev *model.Repo, token string) (*model.Repo, error)
	IsPullRequestPage() bool
	CSSClass() string
	Init(d forge.Decorator)
	UpdateLayout(l model.Layout)
}

// Surface is the sidebar scaffold: the container, its toggler, pin button,
// spinner and view slots.
type Surface interface {
	Mount() error
	Unmount()
	AddClass(name string)
	SetVisible(v bool)
	SetPinned(v bool)
	SetTogglerVisible(v bool)
	SetLoading(v bool)
	SetOptionsSelected(v bool)
	SetCurrent(v model.ViewName)
	SetWidth(w int)
	// Width reports the rendered width, which may differ from the last
	// SetWidth while the host is resizing.
	Width() int
	SetVersion(v string, isNew bool)
}

// TreeView renders a repository tree. Load is asynchronous: the view emits
// ViewReady or FetchError on the bus when it is done.
type TreeView interface {
	Load(repo *model.Repo, token string)
	SyncSelection(repo *model.Repo)
	ExpandAll()
	Focus()
}

// ErrorView renders a load failure and emits ViewReady.
type ErrorView interface {
	Render(err error)
}

// OptionsView opens the settings panel, which emits ViewReady when shown.
type OptionsView interface {
	Open()
}

// HelpPopup is the keyboard help overlay. It is not one of the routed views.
type HelpPopup interface {
	Init() error
}

// Hotkeys binds global key combinations. hotkey.Registry satisfies it.
type Hotkeys interface {
	SetFilter(fn func() bool)
	Bind(combo string, fn func()) error
	Unbind(combo string)
}

// Executor runs blocking work off the controller goroutine and brings
// continuations back onto it. Post must not run fn synchronously.
type Executor interface {
	Go(fn func())
	Post(fn func())
}

// Delegate is an optional extension hook run after the scaffold is built.
// ApplyOptions may request a reload for option changes the controller does
// not know about.
type Delegate interface {
	Activate(ctx context.Context) error
	ApplyOptions(cs store.ChangeSet) bool
}

// MetaPublisher receives repository metadata after a successful load.
type MetaPublisher interface {
	PublishRepoMeta(meta *model.RepoMeta)
}

// Config wires a Controller to its collaborators.
type Config struct {
	Adapter   Adapter
	Store     store.Store
	Bus       *bus.Bus
	Surface   Surface
	Tree      TreeView
	Errors    ErrorView
	Options   OptionsView
	Help      HelpPopup
	Hotkeys   Hotkeys
	Exec      Executor
	Scheduler clock.Scheduler // defaults to clock.RealScheduler
	Delegate  Delegate        // optional
	Publisher MetaPublisher   // optional
	Logger    *slog.Logger

	MinWidth     int
	DefaultWidth int
	Version      string        // build version for the "new" badge, "" to skip
	Timeout      time.Duration // per adapter call
}

func (c *Config) validate() error {
	var errs []error
	need := func(ok bool, name string) {
		if !ok {
			errs = append(errs, errors.New(name+" is required"))
		}
	}
	need(c.Adapter != nil, "adapter")
	need(c.Store != nil, "store")
	need(c.Bus != nil, "bus")
	need(c.Surface != nil, "surface")
	need(c.Tree != nil, "tree view")
	need(c.Errors != nil, "error view")
	need(c.Options != nil, "options view")
	need(c.Help != nil, "help popup")
	need(c.Hotkeys != nil, "hotkeys")
	need(c.Exec != nil, "executor")
	if c.MinWidth > MaxWidth {
		errs = append(errs, errors.New("min width exceeds max width"))
	}
	return errors.Join(errs...)
}
