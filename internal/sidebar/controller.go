package sidebar

import (
	"context"
	"fmt"
	"log/slog"

	"codetree/internal/bus"
	"codetree/internal/clock"
	"codetree/internal/model"
	"codetree/internal/store"
)

// Controller owns the sidebar state and routes events between the views,
// the option store and the site adapter.
type Controller struct {
	adapter   Adapter
	store     store.Store
	bus       *bus.Bus
	surface   Surface
	tree      TreeView
	errView   ErrorView
	optsView  OptionsView
	help      HelpPopup
	hotkeys   Hotkeys
	exec      Executor
	sched     clock.Scheduler
	delegate  Delegate
	publisher MetaPublisher
	log       *slog.Logger
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	initialized bool
	closed      bool

	visible   bool
	pinned    bool
	width     int
	loading   bool
	hasError  bool
	current   model.ViewName
	repo      *model.Repo
	meta      *model.RepoMeta
	seq       uint64
	hoverOpen bool
	combo     string

	float        floatTimer
	pointerIn    bool
	newVersion   bool
	versionTimer clock.Timer

	unsubscribe []func()
}

// New checks cfg and returns a controller. Nothing is mounted until
// Initialize.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("sidebar config: %w", err)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = clock.RealScheduler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.DefaultWidth <= 0 {
		cfg.DefaultWidth, _ = store.AsInt(store.Defaults[store.KeyWidth])
	}
	return &Controller{
		adapter:   cfg.Adapter,
		store:     cfg.Store,
		bus:       cfg.Bus,
		surface:   cfg.Surface,
		tree:      cfg.Tree,
		errView:   cfg.Errors,
		optsView:  cfg.Options,
		help:      cfg.Help,
		hotkeys:   cfg.Hotkeys,
		exec:      cfg.Exec,
		sched:     cfg.Scheduler,
		delegate:  cfg.Delegate,
		publisher: cfg.Publisher,
		log:       cfg.Logger.With(slog.String("site", string(cfg.Adapter.Kind()))),
		cfg:       cfg,
	}, nil
}

// Initialize builds the scaffold, restores persisted state, subscribes to
// the bus and the store and starts the first load. It runs once; later calls
// return nil without doing anything. A non-nil error means the sidebar could
// not be built and the controller has been closed.
func (c *Controller) Initialize(ctx context.Context) error {
	if c.initialized || c.closed {
		return nil
	}
	if err := c.surface.Mount(); err != nil {
		c.closed = true
		return fmt.Errorf("mounting sidebar: %w", err)
	}
	c.initialized = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.pinned = c.prefBool(store.KeyPinned)
	c.surface.SetPinned(c.pinned)
	c.width = c.clampWidth(c.prefInt(store.KeyWidth, c.cfg.DefaultWidth))
	c.surface.SetWidth(c.width)
	c.surface.SetVisible(false)
	c.surface.SetTogglerVisible(false)

	c.hoverOpen = c.prefBool(store.KeyHoverOpen)
	c.setHotkeys(c.prefString(store.KeyHotkeys), "")

	c.subscribe()
	c.surface.AddClass(c.adapter.CSSClass())
	c.bus.Emit(bus.SidebarInserted{})

	c.adapter.Init(c.surface)
	if err := c.help.Init(); err != nil {
		c.Close()
		return fmt.Errorf("initializing help: %w", err)
	}
	if c.delegate != nil {
		if err := c.delegate.Activate(c.ctx); err != nil {
			c.Close()
			return fmt.Errorf("activating extensions: %w", err)
		}
	}
	c.initVersion()

	c.log.Debug("sidebar initialized", "pinned", c.pinned, "width", c.width)
	c.TryLoad(false)
	return nil
}

func (c *Controller) subscribe() {
	c.unsubscribe = append(c.unsubscribe,
		bus.On(c.bus, c.onViewReady),
		bus.On(c.bus, c.onViewClose),
		bus.On(c.bus, func(e bus.FetchError) { c.showError(e.Err) }),
		bus.On(c.bus, func(bus.ReqStart) { c.setLoading(true) }),
		bus.On(c.bus, func(bus.ReqEnd) { c.setLoading(false) }),
		bus.On(c.bus, func(bus.LayoutChange) { c.layoutChanged(false) }),
		bus.On(c.bus, func(bus.TogglePin) { c.layoutChanged(false) }),
		bus.On(c.bus, func(e bus.LocChange) { c.TryLoad(e.Reload) }),
	)
	cancel := c.store.Watch(func(cs store.ChangeSet) {
		c.exec.Post(func() {
			if !c.closed {
				c.optionsChanged(cs)
			}
		})
	})
	c.unsubscribe = append(c.unsubscribe, cancel)
}

// Close releases subscriptions, hotkeys and timers and unmounts the
// scaffold. Results of in-flight loads are dropped.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	for _, fn := range c.unsubscribe {
		fn()
	}
	c.unsubscribe = nil
	if c.combo != "" {
		c.hotkeys.Unbind(c.combo)
		c.combo = ""
	}
	c.float.clear()
	if c.versionTimer != nil {
		c.versionTimer.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.initialized {
		c.surface.Unmount()
	}
}

func (c *Controller) onViewReady(e bus.ViewReady) {
	if e.View == model.ViewHelp {
		return
	}
	if e.View != model.ViewOptions {
		c.bus.Emit(bus.ReqEnd{})
		c.surface.SetOptionsSelected(false)
		if c.adapter.IsPullRequestPage() && c.prefBool(store.KeyPR) {
			c.tree.ExpandAll()
		}
		if e.View == model.ViewTree && c.newVersion {
			c.newVersion = false
			c.scheduleVersionSave()
		}
	}
	c.showView(e.View)
}

func (c *Controller) onViewClose(e bus.ViewClose) {
	switch {
	case e.ShowSettings:
		c.optsView.Open()
	case c.hasError:
		c.showView(model.ViewError)
	default:
		c.showView(model.ViewTree)
	}
}

func (c *Controller) showView(v model.ViewName) {
	c.current = v
	c.surface.SetCurrent(v)
	c.bus.Emit(bus.ViewShow{View: v})
}

func (c *Controller) setLoading(v bool) {
	c.loading = v
	c.surface.SetLoading(v)
}

// State reports the current sidebar state.
func (c *Controller) State() model.SidebarState {
	return model.SidebarState{
		Visible: c.visible,
		Pinned:  c.pinned,
		Width:   c.width,
		Left:    c.isLeft(),
	}
}

// Current is the routed view marked current, "" before any view is ready.
func (c *Controller) Current() model.ViewName { return c.current }

// Repo is the descriptor currently loaded in the tree.
func (c *Controller) Repo() *model.Repo { return c.repo }

// RepoMeta is the metadata published for the last load, nil if none.
func (c *Controller) RepoMeta() *model.RepoMeta { return c.meta }

// Loading reports whether a tree load is in flight.
func (c *Controller) Loading() bool { return c.loading }

// HasError reports whether the last load failed and the error view is pending.
func (c *Controller) HasError() bool { return c.hasError }

func (c *Controller) prefBool(key string) bool {
	v, err := store.Bool(c.ctx, c.store, key)
	if err != nil {
		c.log.Warn("reading option", "key", key, "err", err)
	}
	return v
}

func (c *Controller) prefString(key string) string {
	v, err := store.String(c.ctx, c.store, key)
	if err != nil {
		c.log.Warn("reading option", "key", key, "err", err)
	}
	return v
}

func (c *Controller) prefInt(key string, fallback int) int {
	v, err := store.Int(c.ctx, c.store, key)
	if err != nil {
		c.log.Warn("reading option", "key", key, "err", err)
		return fallback
	}
	return v
}

func (c *Controller) setPref(key string, value any) {
	if err := c.store.Set(c.ctx, key, value); err != nil {
		c.log.Warn("writing option", "key", key, "err", err)
	}
}
