package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/vistamin/starrand/internal/backend"
	"github.com/vistamin/starrand/internal/config"
	"github.com/vistamin/starrand/internal/history"
)

// kvFileName is the flat keyed substrate's database file inside the data
// directory.
const kvFileName = "history.db"

// appEnv bundles the loaded settings and the opened backends for one
// command invocation.
type appEnv struct {
	Config   config.Config
	Selector *backend.Selector

	closers []func() error
}

// openEnv loads settings and opens both durable substrates. A substrate
// that fails to open is logged and skipped; the selector's probe order
// handles the rest.
func openEnv(opts *RootOptions) (*appEnv, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading settings", err)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}

	env := &appEnv{Config: cfg}

	var fsAd backend.Adapter
	if a, err := backend.NewFS(cfg.DataDir); err != nil {
		slog.Warn("directory backend unavailable", "dir", cfg.DataDir, "error", err)
	} else {
		fsAd = a
	}

	var kvAd backend.Adapter
	if a, err := backend.OpenKV(filepath.Join(cfg.DataDir, kvFileName)); err != nil {
		slog.Warn("flat keyed backend unavailable", "dir", cfg.DataDir, "error", err)
	} else {
		kvAd = a
		env.closers = append(env.closers, a.Close)
	}

	env.Selector = backend.NewSelector(fsAd, kvAd, backend.SelectorOptions{
		AppVersion:    Version,
		ConfigVersion: strconv.Itoa(config.CurrentVersion),
	})
	return env, nil
}

// Store opens the history store over the authoritative adapter.
func (a *appEnv) Store(ctx context.Context) (*history.Store, error) {
	ad, err := a.Selector.Active(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "selecting storage backend", err)
	}
	return a.storeOver(ad), nil
}

// storeOver builds a history store over a specific adapter, honoring the
// configured index cap.
func (a *appEnv) storeOver(ad backend.Adapter) *history.Store {
	return history.New(ad, history.Options{IndexCap: a.Config.History.IndexCap})
}

// Close releases everything openEnv acquired.
func (a *appEnv) Close() {
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			slog.Warn("closing backend", "error", err)
		}
	}
}
