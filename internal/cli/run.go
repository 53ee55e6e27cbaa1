package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"codetree/internal/config"
	"codetree/internal/forge"
	"codetree/internal/git"
	"codetree/internal/hotkey"
	"codetree/internal/site"
	"codetree/internal/store"
	"codetree/internal/tui"
)

func run(cmd *cobra.Command, flags *rootFlags, target string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log, closeLog, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client := &http.Client{Timeout: cfg.Timeout}
	overrides := cfg.SiteOverrides()
	forced, err := forcedKind(flags.site)
	if err != nil {
		return err
	}

	rawURL, err := resolveTarget(ctx, client, target, flags.remote, cfg, forced)
	if err != nil {
		return err
	}
	page, err := site.Load(ctx, client, rawURL, overrides)
	if err != nil {
		return err
	}
	kind := forced
	if kind == site.None {
		kind = site.Detect(page, overrides)
	}
	if kind == site.None {
		return fmt.Errorf("%s is not a supported site; map its host under sites in %s", page.Host(), flags.config)
	}

	st, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	adapter, err := forge.New(kind, forge.Options{
		Page:      page,
		Store:     st,
		Client:    client,
		BaseURL:   cfg.APIBase(kind),
		RateLimit: rate.Limit(cfg.RateLimit),
		Logger:    log,
	})
	if err != nil {
		return err
	}

	m, err := tui.New(tui.Options{
		Page:         page,
		Adapter:      adapter,
		Store:        st,
		Hotkeys:      hotkey.NewRegistry(),
		Logger:       log,
		Version:      version,
		MinWidth:     cfg.MinWidth,
		DefaultWidth: cfg.DefaultWidth,
		Timeout:      cfg.Timeout,
		Theme:        cfg.Theme,
	})
	if err != nil {
		return err
	}

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if cfg.Mouse {
		opts = append(opts, tea.WithMouseAllMotion())
	}
	p := tea.NewProgram(m, opts...)

	log.Info("starting", "url", page.Location().String(), "site", kind, "store", st.Path())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := st.WatchExternal(gctx, log); err != nil {
			log.Warn("watching option store", "err", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return m.Err()
}

func forcedKind(flag string) (site.Kind, error) {
	if flag == "" {
		return site.None, nil
	}
	return site.ParseKind(flag)
}

// resolveTarget turns the argument into a page URL. A directory is read as
// a git checkout and mapped onto the tree page of its branch.
func resolveTarget(ctx context.Context, client *http.Client, target, remote string, cfg *config.Config, forced site.Kind) (string, error) {
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return target, nil
	}
	co, err := git.Open(target, cmp.Or(remote, cfg.Remote))
	if err != nil {
		return "", fmt.Errorf("%s: %w", target, err)
	}
	kind := forced
	if kind == site.None {
		page, err := site.Load(ctx, client, co.Web, cfg.SiteOverrides())
		if err != nil {
			return "", err
		}
		kind = site.Detect(page, cfg.SiteOverrides())
	}
	return co.PageURL(kind), nil
}

// openLog sends structured logs to the configured file; the terminal belongs
// to the UI.
func openLog(cfg *config.Config) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := tea.LogToFile(cfg.LogFile, "codetree")
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.Level()}))
	return log, func() { f.Close() }, nil
}
