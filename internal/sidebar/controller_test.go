package sidebar

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codetree/internal/bus"
	"codetree/internal/forge"
	"codetree/internal/model"
	"codetree/internal/store"
)

func pinned() map[string]any { return map[string]any{store.KeyPinned: true} }

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adapter is required")
	assert.Contains(t, err.Error(), "executor is required")
}

func TestInitialize_Idempotent(t *testing.T) {
	h := newHarness(t, nil).start()
	require.NoError(t, h.ctl.Initialize(context.Background()))
	h.exec.settle()

	assert.Equal(t, 1, h.surface.mounts)
	assert.Equal(t, 1, h.adapter.inits)
	assert.Equal(t, 1, h.help.inits)
	assert.Equal(t, 1, h.log.count("inserted"))
	assert.Equal(t, 1, h.bus.Count(bus.KindViewReady))
	assert.Equal(t, 1, h.bus.Count(bus.KindLocChange))
	assert.Equal(t, 1, h.keys.Len())
	assert.Equal(t, 1, h.adapter.resolves)

	h.set(store.KeyPinned, true)
	assert.Equal(t, 1, h.log.count("pin.on"), "store watched once")
}

func TestInitialize_Scaffold(t *testing.T) {
	h := newHarness(t, nil).start()

	assert.Equal(t, []string{"codetree-test", "codetree-test-host"}, h.surface.classes)
	assert.False(t, h.surface.visible)
	assert.True(t, h.surface.toggler, "hidden sidebar on a repo page shows the toggler")
	assert.Empty(t, h.tree.loads)
	assert.Equal(t, 280, h.surface.width)
}

func TestInitialize_RestoresWidth(t *testing.T) {
	cases := []struct {
		stored any
		want   int
	}{
		{5000, MaxWidth},
		{"320", 320},
		{10, 100},
		{"junk", 280},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.stored), func(t *testing.T) {
			h := newHarness(t, map[string]any{store.KeyWidth: tc.stored}).start()
			assert.Equal(t, tc.want, h.surface.width)
			assert.Equal(t, tc.want, h.ctl.State().Width)
		})
	}
}

func TestInitialize_MountFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.surface.mountErr = errBoom

	err := h.ctl.Initialize(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, h.bus.Count(bus.KindViewReady))
	assert.Empty(t, h.exec.jobs)

	require.NoError(t, h.ctl.Initialize(context.Background()))
	assert.Equal(t, 1, h.surface.mounts)
}

func TestInitialize_HelpFailureTearsDown(t *testing.T) {
	h := newHarness(t, nil)
	h.help.err = errBoom

	err := h.ctl.Initialize(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, h.surface.unmounts)
	assert.Zero(t, h.bus.Count(bus.KindViewReady))
	assert.Zero(t, h.keys.Len())
	assert.Empty(t, h.exec.jobs)
}

func TestTryLoad_PinnedRevealsAndLoads(t *testing.T) {
	h := newHarness(t, pinned()).start()

	assert.True(t, h.surface.visible)
	assert.True(t, h.surface.pinned)
	require.Len(t, h.tree.loads, 1)
	assert.Equal(t, "main", h.tree.loads[0].Branch)
	assert.Equal(t, []string{"tok"}, h.tree.tokens)
	assert.Equal(t, 1, h.log.count("req.start"))
	assert.Equal(t, 1, h.log.count("req.end"))
	assert.False(t, h.ctl.Loading())
	assert.Equal(t, model.ViewTree, h.ctl.Current())
	assert.Equal(t, 1, h.adapter.metaCalls, "superseded load does not fetch metadata")
}

func TestTryLoad_SameRepoTakesCheapPath(t *testing.T) {
	h := newHarness(t, pinned()).start()

	h.adapter.repo = &model.Repo{
		Owner: "octo", Name: "hello", Branch: "main",
		Path: "src/app", Commit: "abc", DefaultBranch: "main", Private: true,
	}
	h.bus.Emit(bus.LocChange{})
	h.exec.settle()

	assert.Len(t, h.tree.loads, 1)
	assert.Equal(t, 1, h.tree.syncs)
	assert.Equal(t, 1, h.log.count("req.start"))
	last := h.adapter.prevs[len(h.adapter.prevs)-1]
	require.NotNil(t, last)
	assert.Equal(t, "main", last.Branch, "loaded descriptor is passed as the hint")
}

func TestTryLoad_ChangedProjectionReloads(t *testing.T) {
	cases := map[string]func(r *model.Repo){
		"owner":  func(r *model.Repo) { r.Owner = "other" },
		"name":   func(r *model.Repo) { r.Name = "world" },
		"branch": func(r *model.Repo) { r.Branch = "dev" },
		"pull":   func(r *model.Repo) { r.PullNumber = 9 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, pinned()).start()
			next := *repoMain
			mutate(&next)
			h.adapter.repo = &next

			h.bus.Emit(bus.LocChange{})
			h.exec.settle()

			require.Len(t, h.tree.loads, 2)
			assert.Zero(t, h.tree.syncs)
			var seq []string
			for _, e := range h.log.entries {
				if e == "req.start" || e == "tree.load" {
					seq = append(seq, e)
				}
			}
			assert.Equal(t, []string{"req.start", "tree.load", "req.start", "tree.load"}, seq)
			assert.True(t, model.SameRepo(&next, h.ctl.Repo()))
		})
	}
}

func TestTryLoad_ForcedReload(t *testing.T) {
	h := newHarness(t, pinned()).start()

	h.bus.Emit(bus.LocChange{Reload: true})
	h.exec.settle()

	assert.Len(t, h.tree.loads, 2)
	assert.Equal(t, 2, h.log.count("req.start"))
}

func TestTryLoad_StaleResponseSuppressed(t *testing.T) {
	h := newHarness(t, pinned()).start()
	first := &model.Repo{Owner: "octo", Name: "hello", Branch: "first"}
	second := &model.Repo{Owner: "octo", Name: "hello", Branch: "second"}
	h.adapter.queue = []resolveResult{{repo: first}, {repo: second}}

	h.ctl.TryLoad(false)
	h.ctl.TryLoad(false)
	h.exec.runJobs()
	require.Len(t, h.exec.posts, 2)

	// The later call resolves first.
	h.exec.runPost(1)
	h.exec.runPost(0)
	h.exec.settle()

	assert.Equal(t, "second", h.ctl.Repo().Branch)
	require.Len(t, h.tree.loads, 2)
	assert.Equal(t, "second", h.tree.loads[1].Branch)
}

func TestTryLoad_NonRepoPage(t *testing.T) {
	h := newHarness(t, nil)
	h.adapter.repo = nil
	h.start()

	assert.False(t, h.surface.toggler)
	assert.False(t, h.surface.visible)
	assert.Zero(t, h.log.count("req.start"))
	assert.Zero(t, h.surface.loadingCalls)
	assert.Zero(t, h.adapter.metaCalls)
	assert.NotEmpty(t, h.adapter.layouts)
}

func TestTryLoad_LeavingRepoForcesClose(t *testing.T) {
	h := newHarness(t, pinned()).start()
	require.True(t, h.surface.visible)

	h.adapter.repo = nil
	h.bus.Emit(bus.LocChange{})
	h.exec.settle()

	assert.False(t, h.surface.visible)
	assert.False(t, h.surface.toggler)
	assert.Equal(t, 1, h.log.count("toggle.hide"))
	assert.False(t, h.adapter.lastLayout().Visible)
}

func TestErrorPath(t *testing.T) {
	h := newHarness(t, pinned()).start()

	h.adapter.err = fmt.Errorf("resolving octo/hello: %w", forge.ErrUnauthorized)
	h.bus.Emit(bus.LocChange{})
	h.exec.settle()

	require.Len(t, h.errs.rendered, 1)
	assert.ErrorIs(t, h.errs.rendered[0], forge.ErrUnauthorized)
	assert.True(t, h.ctl.HasError())
	assert.Equal(t, model.ViewError, h.ctl.Current())
	assert.False(t, h.surface.pinned, "error unpins the sidebar")
	assert.False(t, h.surface.visible)
	assert.Equal(t, 1, h.log.count("pin.off"))
	v, err := store.Bool(context.Background(), h.store, store.KeyPinned)
	require.NoError(t, err)
	assert.False(t, v)

	h.bus.Emit(bus.ViewClose{})
	assert.Equal(t, model.ViewError, h.ctl.Current())

	h.bus.Emit(bus.ViewClose{ShowSettings: true})
	assert.Equal(t, 1, h.opts.opens)
	assert.Equal(t, model.ViewOptions, h.ctl.Current())

	// Recovery: the next successful load reloads and clears the error.
	h.adapter.err = nil
	h.ctl.PointerInSidebar()
	h.exec.settle()
	assert.False(t, h.ctl.HasError())
	assert.Len(t, h.tree.loads, 2)
	h.bus.Emit(bus.ViewClose{})
	assert.Equal(t, model.ViewTree, h.ctl.Current())
}

func TestErrorPath_HiddenShowsTogglerOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.adapter.err = errBoom
	h.start()

	assert.False(t, h.surface.visible)
	assert.True(t, h.surface.toggler)
	assert.Len(t, h.errs.rendered, 1)
}

func TestFetchErrorFromView(t *testing.T) {
	h := newHarness(t, pinned()).start()

	h.bus.Emit(bus.FetchError{Err: errBoom})
	h.exec.settle()

	require.Len(t, h.errs.rendered, 1)
	assert.Equal(t, model.ViewError, h.ctl.Current())
}

func TestViewRouting_OneCurrent(t *testing.T) {
	h := newHarness(t, pinned()).start()

	events := []bus.Event{
		bus.ViewReady{View: model.ViewOptions},
		bus.ViewClose{},
		bus.FetchError{Err: errBoom},
		bus.ViewClose{ShowSettings: true},
		bus.ViewReady{View: model.ViewHelp},
		bus.ViewClose{},
		bus.ViewReady{View: model.ViewTree},
		bus.ViewReady{View: model.ViewError},
	}
	for _, e := range events {
		h.bus.Emit(e)
		h.exec.settle()
		assert.Len(t, h.surface.marked, 1, "%T", e)
		assert.Equal(t, h.surface.current, h.ctl.Current())
		assert.NotEqual(t, model.ViewHelp, h.ctl.Current())
	}
}

func TestViewReady_SpinnerAndPullRequestExpand(t *testing.T) {
	h := newHarness(t, pinned())
	h.adapter.pr = true
	h.start()
	assert.Equal(t, 1, h.tree.expands)

	ends := h.log.count("req.end")
	h.surface.optionsSelected = true
	h.bus.Emit(bus.ViewReady{View: model.ViewOptions})
	assert.Equal(t, ends, h.log.count("req.end"))
	assert.True(t, h.surface.optionsSelected)

	h.bus.Emit(bus.ViewReady{View: model.ViewTree})
	assert.Equal(t, ends+1, h.log.count("req.end"))
	assert.False(t, h.surface.optionsSelected)
	assert.Equal(t, 2, h.tree.expands)

	off := newHarness(t, map[string]any{store.KeyPinned: true, store.KeyPR: false})
	off.adapter.pr = true
	off.start()
	assert.Zero(t, off.tree.expands)
}

func showFloating(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, nil).start()
	h.ctl.PointerInSidebar()
	h.exec.settle()
	require.True(t, h.surface.visible)
	return h
}

func TestFloat_HoverHideFiresOnce(t *testing.T) {
	h := showFloating(t)

	for range 5 {
		h.ctl.PointerOutside()
	}
	assert.Equal(t, 1, h.sched.Pending())
	h.advance(pointerLeaveDelay + 100*time.Millisecond)
	assert.False(t, h.surface.visible)
	assert.Equal(t, 1, h.log.count("toggle.hide"))

	for range 5 {
		h.ctl.PointerOutside()
	}
	h.advance(time.Second)
	assert.Equal(t, 1, h.log.count("toggle.hide"))
	assert.Zero(t, h.sched.Pending())
}

func TestFloat_ReentryCancelsHide(t *testing.T) {
	h := showFloating(t)

	h.ctl.PointerOutside()
	h.advance(200 * time.Millisecond)
	h.ctl.PointerInSidebar()
	h.advance(time.Second)

	assert.True(t, h.surface.visible)
	assert.Zero(t, h.log.count("toggle.hide"))
	assert.Zero(t, h.sched.Pending())
}

func TestFloat_KeyPressUsesLongDelay(t *testing.T) {
	h := showFloating(t)

	h.ctl.PointerOutside()
	h.ctl.KeyInSidebar()
	assert.Equal(t, 1, h.sched.Pending(), "arming replaces the pending timer")

	h.advance(time.Second)
	assert.True(t, h.surface.visible)
	h.advance(keyPressDelay)
	assert.False(t, h.surface.visible)
	assert.Equal(t, 1, h.log.count("toggle.hide"))
}

func TestFloat_KeyPressWithPointerInsideDoesNothing(t *testing.T) {
	h := showFloating(t)

	h.ctl.KeyInSidebar()
	assert.Zero(t, h.sched.Pending())
}

func TestFloat_PinnedIgnoresPointer(t *testing.T) {
	h := newHarness(t, pinned()).start()

	h.ctl.PointerOutside()
	assert.Zero(t, h.sched.Pending())
	h.ctl.DocumentClick()
	h.advance(5 * time.Second)
	assert.True(t, h.surface.visible)
}

func TestDocumentClick(t *testing.T) {
	h := showFloating(t)

	h.ctl.DocumentClick()
	assert.True(t, h.surface.visible, "click with the pointer inside is ignored")

	h.ctl.PointerOutside()
	h.ctl.DocumentClick()
	assert.False(t, h.surface.visible)

	h.advance(time.Second)
	assert.Equal(t, 1, h.log.count("toggle.hide"))
}

func TestToggler_HoverOpenOption(t *testing.T) {
	h := newHarness(t, nil).start()

	assert.False(t, h.ctl.TogglerClicked(), "click falls through while hover-open is on")
	assert.False(t, h.surface.visible)
	h.ctl.TogglerHovered()
	h.exec.settle()
	assert.True(t, h.surface.visible)

	h.ctl.DocumentClick()
	require.False(t, h.surface.visible)

	h.set(store.KeyHoverOpen, false)
	h.ctl.TogglerHovered()
	assert.False(t, h.surface.visible)
	assert.True(t, h.ctl.TogglerClicked())
	assert.True(t, h.surface.visible)
}

func TestHotkey_TogglesPin(t *testing.T) {
	h := newHarness(t, nil).start()

	assert.False(t, h.keys.Handle(keyPress("ctrl+b")), "hotkeys are inert while hidden")

	h.ctl.TogglerHovered()
	h.exec.settle()
	require.True(t, h.keys.Handle(keyPress("ctrl+b")))
	h.exec.settle()
	assert.True(t, h.surface.pinned)
	assert.True(t, h.surface.visible)
	assert.Equal(t, 1, h.tree.focuses)
	assert.Equal(t, 1, h.log.count("pin.on"))

	require.True(t, h.keys.Handle(keyPress("ctrl+b")))
	h.exec.settle()
	assert.False(t, h.surface.pinned)
	assert.False(t, h.surface.visible)
	assert.Equal(t, 1, h.tree.focuses)
}

func TestHotkey_Rebind(t *testing.T) {
	h := newHarness(t, pinned()).start()

	h.set(store.KeyHotkeys, "alt+t, ⌃+⇧+p")

	assert.False(t, h.keys.Bound("ctrl+b"))
	assert.True(t, h.keys.Bound("alt+t,ctrl+shift+p"))
	assert.Equal(t, 1, h.keys.Len())
	assert.False(t, h.keys.Handle(keyPress("ctrl+b")))
	assert.True(t, h.keys.Handle(keyPress("alt+t")))
}

func TestOptionsChanged_OneReloadPerChangeSet(t *testing.T) {
	h := newHarness(t, pinned()).start()
	resolves := h.adapter.resolves

	require.NoError(t, h.store.Memory.SetMany(context.Background(), map[string]any{
		store.KeyGitHubToken: "new",
		store.KeyHoverOpen:   false,
		store.KeyLazyLoad:    true,
	}))
	h.exec.settle()

	assert.Equal(t, resolves+1, h.adapter.resolves)
	assert.Len(t, h.tree.loads, 2)
	assert.Equal(t, 2, h.log.count("req.start"))
	assert.True(t, h.ctl.TogglerClicked(), "hover-open applied from the same batch")
}

func TestOptionsChanged_PullRequestPreference(t *testing.T) {
	h := newHarness(t, pinned()).start()

	h.set(store.KeyPR, false)
	assert.Len(t, h.tree.loads, 1, "not a pull request page")

	h.adapter.pr = true
	h.set(store.KeyPR, true)
	assert.Len(t, h.tree.loads, 2)
}

func TestOptionsChanged_Delegate(t *testing.T) {
	d := &fakeDelegate{reload: true}
	h := newHarness(t, pinned(), func(h *harness) { h.cfg.Delegate = d }).start()
	assert.Equal(t, 1, d.activated)

	h.set("customBadge", "x")
	assert.Len(t, h.tree.loads, 2)
	require.Len(t, d.applied, 1)
	assert.Contains(t, d.applied[0], "customBadge")

	h.set(store.KeyGitHubToken, "t2")
	assert.Len(t, h.tree.loads, 3, "delegate and token together still reload once")
}

func TestOptionsChanged_DirectionRelayout(t *testing.T) {
	h := newHarness(t, pinned()).start()
	require.True(t, h.adapter.lastLayout().Left)

	h.set(store.KeyDirection, "right")
	assert.False(t, h.adapter.lastLayout().Left)
	assert.False(t, h.ctl.State().Left)
}

func TestScenario_PinnedBranchChange(t *testing.T) {
	h := newHarness(t, pinned()).start()
	layouts := len(h.adapter.layouts)

	dev := *repoMain
	dev.Branch = "dev"
	h.adapter.repo = &dev
	h.bus.Emit(bus.LocChange{})
	h.exec.settle()

	require.Len(t, h.tree.loads, 2)
	assert.Equal(t, "dev", h.tree.loads[1].Branch)
	assert.Equal(t, 2, h.adapter.metaCalls)
	assert.Len(t, h.publisher.published, 2)
	assert.Greater(t, len(h.adapter.layouts), layouts)
	assert.Equal(t, model.Layout{Pinned: true, Visible: true, Width: 280, Left: true}, h.adapter.lastLayout())
	assert.Zero(t, h.store.wrote(store.KeyWidth), "layout recomputed without persisting")
}

func TestSidebarResized_PersistsClampedWidth(t *testing.T) {
	h := newHarness(t, pinned()).start()

	h.ctl.SidebarResized(5000)
	assert.Equal(t, MaxWidth, h.surface.width)
	assert.Equal(t, MaxWidth, h.adapter.lastLayout().Width)
	w, err := store.Int(context.Background(), h.store, store.KeyWidth)
	require.NoError(t, err)
	assert.Equal(t, MaxWidth, w)

	h.ctl.SidebarResized(10)
	assert.Equal(t, 100, h.surface.width)
	assert.Equal(t, 2, h.store.wrote(store.KeyWidth))

	n := len(h.adapter.layouts)
	h.ctl.WindowResized()
	assert.Len(t, h.adapter.layouts, n+1)
	assert.Equal(t, 2, h.store.wrote(store.KeyWidth))
}

func TestRepoMeta(t *testing.T) {
	h := newHarness(t, pinned()).start()
	require.NotNil(t, h.ctl.RepoMeta())
	assert.Equal(t, "octo/hello", h.ctl.RepoMeta().FullName)
	assert.Len(t, h.publisher.published, 1)
}

func TestRepoMeta_FailureIsNotAnError(t *testing.T) {
	h := newHarness(t, pinned())
	h.adapter.metaErr = errBoom
	h.adapter.meta = nil
	h.start()

	assert.Nil(t, h.ctl.RepoMeta())
	assert.Empty(t, h.errs.rendered)
	assert.Equal(t, model.ViewTree, h.ctl.Current())
}

func TestRepoMeta_AdapterWithoutMetadata(t *testing.T) {
	h := newHarness(t, pinned(), func(h *harness) { h.cfg.Adapter = h.adapter }).start()

	assert.Len(t, h.tree.loads, 1)
	assert.Nil(t, h.ctl.RepoMeta())
	assert.Empty(t, h.publisher.published)
	assert.Zero(t, h.adapter.metaCalls)
}

func TestVersionBadge(t *testing.T) {
	withVersion := func(h *harness) { h.cfg.Version = "1.2.0" }

	h := newHarness(t, map[string]any{store.KeyPinned: true, store.KeyLastVersion: "1.1.9"}, withVersion).start()
	assert.Equal(t, "1.2.0", h.surface.version)
	assert.True(t, h.surface.newVersion)
	assert.Equal(t, 1, h.sched.Pending())

	h.bus.Emit(bus.ViewReady{View: model.ViewTree})
	assert.Equal(t, 1, h.sched.Pending(), "scheduled once")

	h.advance(versionSaveDelay)
	v, err := store.String(context.Background(), h.store, store.KeyLastVersion)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", v)

	same := newHarness(t, map[string]any{store.KeyPinned: true, store.KeyLastVersion: "1.2.0"}, withVersion).start()
	assert.False(t, same.surface.newVersion)
	assert.Zero(t, same.sched.Pending())
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.1.9", 1},
		{"1.2", "1.2.0", 0},
		{"v2.0.0", "1.9.9", 1},
		{"1.10.0", "1.9.0", 1},
		{"1.0.0-beta", "1.0.0", 0},
		{"0.9", "", 1},
		{"", "", 0},
		{"1.0.0", "1.0.1", -1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, compareVersions(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, pinned()).start()
	loads := len(h.tree.loads)

	h.ctl.TryLoad(true)
	h.ctl.Close()
	h.ctl.Close()
	h.exec.settle()

	assert.Equal(t, loads, len(h.tree.loads), "in-flight result dropped")
	assert.Equal(t, 1, h.surface.unmounts)
	assert.Zero(t, h.keys.Len())
	for _, k := range []bus.Kind{bus.KindViewReady, bus.KindViewClose, bus.KindFetchError, bus.KindLocChange, bus.KindLayoutChange} {
		assert.Zero(t, h.bus.Count(k))
	}

	h.set(store.KeyPinned, false)
	assert.True(t, h.surface.pinned, "store no longer watched")

	h.ctl.TryLoad(false)
	assert.Empty(t, h.exec.jobs)
}
