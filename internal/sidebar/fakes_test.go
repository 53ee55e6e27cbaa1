package sidebar

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"codetree/internal/bus"
	"codetree/internal/clock"
	"codetree/internal/forge"
	"codetree/internal/hotkey"
	"codetree/internal/model"
	"codetree/internal/site"
	"codetree/internal/store"
)

// manualExec queues work so tests decide when, and in which order, it runs.
type manualExec struct {
	jobs  []func()
	posts []func()
}

func (e *manualExec) Go(fn func())   { e.jobs = append(e.jobs, fn) }
func (e *manualExec) Post(fn func()) { e.posts = append(e.posts, fn) }

// runJobs runs the queued background jobs, leaving their continuations queued.
func (e *manualExec) runJobs() {
	jobs := e.jobs
	e.jobs = nil
	for _, j := range jobs {
		j()
	}
}

func (e *manualExec) runPost(i int) {
	p := e.posts[i]
	e.posts = slices.Delete(e.posts, i, i+1)
	p()
}

func (e *manualExec) drainPosts() {
	for len(e.posts) > 0 {
		e.runPost(0)
	}
}

// settle runs jobs and continuations until nothing is left.
func (e *manualExec) settle() {
	for len(e.jobs) > 0 || len(e.posts) > 0 {
		e.runJobs()
		e.drainPosts()
	}
}

type resolveResult struct {
	repo *model.Repo
	err  error
}

type fakeAdapter struct {
	repo  *model.Repo
	err   error
	token string
	pr    bool
	queue []resolveResult

	resolves int
	prevs    []*model.Repo
	layouts  []model.Layout
	inits    int

	meta      *model.RepoMeta
	metaErr   error
	metaCalls int
}

func (a *fakeAdapter) Kind() site.Kind { return site.GitHub }

func (a *fakeAdapter) AccessToken(context.Context) (string, error) { return a.token, nil }

func (a *fakeAdapter) ResolveRepo(_ context.Context, prev *model.Repo, _ string) (*model.Repo, error) {
	a.resolves++
	a.prevs = append(a.prevs, prev)
	if len(a.queue) > 0 {
		r := a.queue[0]
		a.queue = a.queue[1:]
		return r.repo, r.err
	}
	if a.err != nil {
		return nil, a.err
	}
	if a.repo == nil {
		return nil, nil
	}
	cp := *a.repo
	return &cp, nil
}

func (a *fakeAdapter) IsPullRequestPage() bool { return a.pr }
func (a *fakeAdapter) CSSClass() string        { return "codetree-test" }

func (a *fakeAdapter) Init(d forge.Decorator) {
	a.inits++
	d.AddClass("codetree-test-host")
}

func (a *fakeAdapter) UpdateLayout(l model.Layout) { a.layouts = append(a.layouts, l) }

func (a *fakeAdapter) lastLayout() model.Layout {
	if len(a.layouts) == 0 {
		return model.Layout{}
	}
	return a.layouts[len(a.layouts)-1]
}

// metaAdapter adds repository metadata, as every site but gists does.
type metaAdapter struct{ *fakeAdapter }

func (a metaAdapter) FetchMeta(context.Context, *model.Repo, string) (*model.RepoMeta, error) {
	a.metaCalls++
	return a.meta, a.metaErr
}

type fakeSurface struct {
	mountErr error
	mounts   int
	unmounts int

	classes         []string
	visible         bool
	pinned          bool
	toggler         bool
	loading         bool
	loadingCalls    int
	optionsSelected bool
	current         model.ViewName
	marked          map[model.ViewName]bool
	width           int
	version         string
	newVersion      bool
}

func (s *fakeSurface) Mount() error {
	s.mounts++
	return s.mountErr
}

func (s *fakeSurface) Unmount()                  { s.unmounts++ }
func (s *fakeSurface) AddClass(name string)      { s.classes = append(s.classes, name) }
func (s *fakeSurface) SetVisible(v bool)         { s.visible = v }
func (s *fakeSurface) SetPinned(v bool)          { s.pinned = v }
func (s *fakeSurface) SetTogglerVisible(v bool)  { s.toggler = v }
func (s *fakeSurface) SetOptionsSelected(v bool) { s.optionsSelected = v }
func (s *fakeSurface) SetWidth(w int)            { s.width = w }
func (s *fakeSurface) Width() int                { return s.width }

func (s *fakeSurface) SetLoading(v bool) {
	s.loading = v
	s.loadingCalls++
}

func (s *fakeSurface) SetCurrent(v model.ViewName) {
	s.current = v
	s.marked = map[model.ViewName]bool{v: true}
}

func (s *fakeSurface) SetVersion(v string, isNew bool) {
	s.version = v
	s.newVersion = isNew
}

type eventLog struct{ entries []string }

func (l *eventLog) add(s string) { l.entries = append(l.entries, s) }

func (l *eventLog) count(s string) int {
	n := 0
	for _, e := range l.entries {
		if e == s {
			n++
		}
	}
	return n
}

func (l *eventLog) index(s string) int { return slices.Index(l.entries, s) }

func (l *eventLog) watch(b *bus.Bus) {
	bus.On(b, func(bus.ReqStart) { l.add("req.start") })
	bus.On(b, func(bus.ReqEnd) { l.add("req.end") })
	bus.On(b, func(e bus.Toggle) {
		if e.Visible {
			l.add("toggle.show")
		} else {
			l.add("toggle.hide")
		}
	})
	bus.On(b, func(e bus.TogglePin) {
		if e.Pinned {
			l.add("pin.on")
		} else {
			l.add("pin.off")
		}
	})
	bus.On(b, func(e bus.ViewShow) { l.add("show." + string(e.View)) })
	bus.On(b, func(bus.SidebarInserted) { l.add("inserted") })
}

type fakeTree struct {
	bus    *bus.Bus
	log    *eventLog
	manual bool

	loads   []*model.Repo
	tokens  []string
	syncs   int
	expands int
	focuses int
}

func (v *fakeTree) Load(repo *model.Repo, token string) {
	v.log.add("tree.load")
	v.loads = append(v.loads, repo)
	v.tokens = append(v.tokens, token)
	if !v.manual {
		v.bus.Emit(bus.ViewReady{View: model.ViewTree})
	}
}

func (v *fakeTree) SyncSelection(*model.Repo) {
	v.log.add("tree.sync")
	v.syncs++
}

func (v *fakeTree) ExpandAll() { v.expands++ }
func (v *fakeTree) Focus()     { v.focuses++ }

type fakeErrors struct {
	bus      *bus.Bus
	rendered []error
}

func (v *fakeErrors) Render(err error) {
	v.rendered = append(v.rendered, err)
	v.bus.Emit(bus.ViewReady{View: model.ViewError})
}

type fakeOptions struct {
	bus   *bus.Bus
	opens int
}

func (v *fakeOptions) Open() {
	v.opens++
	v.bus.Emit(bus.ViewReady{View: model.ViewOptions})
}

type fakeHelp struct {
	err   error
	inits int
}

func (h *fakeHelp) Init() error {
	h.inits++
	return h.err
}

type fakeDelegate struct {
	reload    bool
	activated int
	applied   []store.ChangeSet
}

func (d *fakeDelegate) Activate(context.Context) error {
	d.activated++
	return nil
}

func (d *fakeDelegate) ApplyOptions(cs store.ChangeSet) bool {
	d.applied = append(d.applied, cs)
	return d.reload
}

type fakePublisher struct{ published []*model.RepoMeta }

func (p *fakePublisher) PublishRepoMeta(m *model.RepoMeta) { p.published = append(p.published, m) }

// recordingStore remembers which keys were written.
type recordingStore struct {
	*store.Memory
	writes []string
}

func (s *recordingStore) Set(ctx context.Context, key string, value any) error {
	s.writes = append(s.writes, key)
	return s.Memory.Set(ctx, key, value)
}

func (s *recordingStore) SetMany(ctx context.Context, values map[string]any) error {
	for k := range values {
		s.writes = append(s.writes, k)
	}
	return s.Memory.SetMany(ctx, values)
}

func (s *recordingStore) wrote(key string) int {
	n := 0
	for _, k := range s.writes {
		if k == key {
			n++
		}
	}
	return n
}

type keyPress string

func (k keyPress) String() string { return string(k) }

type harness struct {
	t         *testing.T
	ctl       *Controller
	bus       *bus.Bus
	store     *recordingStore
	adapter   *fakeAdapter
	surface   *fakeSurface
	tree      *fakeTree
	errs      *fakeErrors
	opts      *fakeOptions
	help      *fakeHelp
	keys      *hotkey.Registry
	exec      *manualExec
	sched     *clock.FakeScheduler
	log       *eventLog
	publisher *fakePublisher
	cfg       Config
}

var repoMain = &model.Repo{Owner: "octo", Name: "hello", Branch: "main", Site: "github"}

// newHarness builds a controller over fakes. The store starts from initial
// and the adapter resolves to repoMain unless the caller changes it.
func newHarness(t *testing.T, initial map[string]any, opts ...func(*harness)) *harness {
	t.Helper()
	b := bus.New()
	h := &harness{
		t:         t,
		bus:       b,
		store:     &recordingStore{Memory: store.NewMemory(initial)},
		adapter:   &fakeAdapter{repo: repoMain, token: "tok", meta: &model.RepoMeta{FullName: "octo/hello"}},
		surface:   &fakeSurface{},
		errs:      &fakeErrors{bus: b},
		opts:      &fakeOptions{bus: b},
		help:      &fakeHelp{},
		keys:      hotkey.NewRegistry(),
		exec:      &manualExec{},
		sched:     clock.NewFakeScheduler(time.Unix(0, 0)),
		log:       &eventLog{},
		publisher: &fakePublisher{},
	}
	h.tree = &fakeTree{bus: b, log: h.log}
	h.log.watch(b)
	h.cfg = Config{
		Adapter:   metaAdapter{h.adapter},
		Store:     h.store,
		Bus:       b,
		Surface:   h.surface,
		Tree:      h.tree,
		Errors:    h.errs,
		Options:   h.opts,
		Help:      h.help,
		Hotkeys:   h.keys,
		Exec:      h.exec,
		Scheduler: h.sched,
		Publisher: h.publisher,
		MinWidth:  100,
	}
	for _, o := range opts {
		o(h)
	}
	ctl, err := New(h.cfg)
	require.NoError(t, err)
	h.ctl = ctl
	t.Cleanup(ctl.Close)
	return h
}

// start initializes the controller and lets the first load finish.
func (h *harness) start() *harness {
	h.t.Helper()
	require.NoError(h.t, h.ctl.Initialize(context.Background()))
	h.exec.settle()
	return h
}

func (h *harness) set(key string, value any) {
	h.t.Helper()
	require.NoError(h.t, h.store.Memory.Set(context.Background(), key, value))
	h.exec.settle()
}

func (h *harness) advance(d time.Duration) {
	h.sched.Advance(d)
	h.exec.settle()
}

var errBoom = errors.New("boom")
