package sidebar

import (
	"context"
	"fmt"

	"codetree/internal/bus"
	"codetree/internal/forge"
	"codetree/internal/model"
	"codetree/internal/store"
)

// TryLoad resolves the page into a descriptor and reconciles it with what is
// loaded. Concurrent calls are not serialized; only the result of the most
// recently issued call is applied.
func (c *Controller) TryLoad(force bool) {
	if !c.initialized || c.closed {
		return
	}
	c.seq++
	seq := c.seq
	prev := c.repo
	c.exec.Go(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.Timeout)
		defer cancel()
		token, repo, err := c.resolve(ctx, prev)
		c.exec.Post(func() { c.applyLoad(seq, force, token, repo, err) })
	})
}

// resolve runs off the controller goroutine and touches no controller state.
func (c *Controller) resolve(ctx context.Context, prev *model.Repo) (string, *model.Repo, error) {
	token, err := c.adapter.AccessToken(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("reading access token: %w", err)
	}
	repo, err := c.adapter.ResolveRepo(ctx, prev, token)
	if err != nil {
		return token, nil, err
	}
	return token, repo, nil
}

func (c *Controller) stale(seq uint64) bool {
	return c.closed || seq != c.seq
}

func (c *Controller) applyLoad(seq uint64, force bool, token string, repo *model.Repo, err error) {
	if c.stale(seq) {
		c.log.Debug("dropping stale load", "seq", seq, "latest", c.seq)
		return
	}
	defer c.layoutChanged(false)

	if err != nil {
		c.log.Warn("resolving repository", "err", err)
		c.showError(err)
		if !c.visible {
			c.surface.SetTogglerVisible(true)
		}
		return
	}
	if repo == nil {
		c.log.Debug("not a repository page")
		c.surface.SetTogglerVisible(false)
		c.setVisible(false)
		return
	}

	switch {
	case c.prefBool(store.KeyPinned) && !c.visible:
		// Pinned from an earlier page but not shown yet. Showing re-enters
		// TryLoad, which does the actual reload.
		if c.pinned {
			c.setVisible(true)
		} else {
			c.onPinToggled(true)
		}
	case c.visible:
		if force || !model.SameRepo(repo, c.repo) {
			c.log.Debug("loading repository", "repo", repo.FullName(), "branch", repo.Branch, "force", force)
			c.hasError = false
			c.bus.Emit(bus.ReqStart{})
			c.repo = repo
			c.tree.Load(repo, token)
		} else {
			c.tree.SyncSelection(repo)
		}
	default:
		c.surface.SetTogglerVisible(true)
	}

	if !c.stale(seq) {
		c.fetchMeta(seq, repo, token)
	}
}

func (c *Controller) fetchMeta(seq uint64, repo *model.Repo, token string) {
	mf, ok := c.adapter.(forge.MetaFetcher)
	if !ok {
		return
	}
	c.exec.Go(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.Timeout)
		defer cancel()
		meta, err := mf.FetchMeta(ctx, repo, token)
		c.exec.Post(func() { c.applyMeta(seq, meta, err) })
	})
}

func (c *Controller) applyMeta(seq uint64, meta *model.RepoMeta, err error) {
	if c.stale(seq) {
		return
	}
	if err != nil {
		c.log.Warn("fetching repository metadata", "err", err)
		return
	}
	if meta == nil {
		return
	}
	c.meta = meta
	if c.publisher != nil {
		c.publisher.PublishRepoMeta(meta)
	}
}

// showError renders err in the error view. A pinned sidebar is unpinned so
// a failed load does not leave an empty panel open. The loaded descriptor is
// forgotten so the next successful resolution reloads the tree.
func (c *Controller) showError(err error) {
	c.hasError = true
	c.repo = nil
	c.errView.Render(err)
	if c.prefBool(store.KeyPinned) {
		c.setPref(store.KeyPinned, false)
	}
}
