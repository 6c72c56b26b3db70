// Package app wires the session core, the cache and the API client into one client.
package app

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/fitsync/internal/auth"
	"github.com/and161185/fitsync/internal/cache"
	"github.com/and161185/fitsync/internal/cache/postgres"
	"github.com/and161185/fitsync/internal/cache/sqlite"
	"github.com/and161185/fitsync/internal/config"
	"github.com/and161185/fitsync/internal/coordinator"
	"github.com/and161185/fitsync/internal/migrate"
	"github.com/and161185/fitsync/internal/model"
	"github.com/and161185/fitsync/internal/remote/httpapi"
	"github.com/and161185/fitsync/internal/session"
	"github.com/and161185/fitsync/internal/tokenstore"
	"github.com/and161185/fitsync/internal/training"
	"github.com/and161185/fitsync/internal/vault"
)

// App holds every long-lived component. Build it with New and release it with Close.
type App struct {
	Log         *zap.Logger
	Tokens      *session.Manager
	Selection   *session.SelectionStore
	Auth        *auth.Repository
	Coordinator *coordinator.Coordinator
	API         *httpapi.Client
	Cache       cache.Store
	Plans       *training.Plans
	Executions  *training.Executions
}

// New builds the client. Storage is opened with ctx; nothing blocks outside it.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	v, err := vault.OpenFile(ctx, filepath.Join(cfg.DataDir, "vault"), []byte(cfg.DeviceSecret))
	if err != nil {
		return nil, fmt.Errorf("app.vault: %w", err)
	}
	store := tokenstore.New(v, nil)
	tokens := session.NewManager(store,
		session.WithRefreshInterval(cfg.RefreshInterval),
		session.WithLogger(log.Named("session")),
	)
	selection := session.NewSelectionStore(v)

	api, err := httpapi.New(cfg.APIBaseURL, cfg.HTTPTimeout, log.Named("http"))
	if err != nil {
		return nil, fmt.Errorf("app.api: %w", err)
	}

	// The coordinator needs the repository as refresher and the repository fetches the
	// current user through the coordinator; the closure breaks the cycle.
	var coord *coordinator.Coordinator
	authRepo := auth.NewRepository(api, tokens.Store(),
		auth.WithSelection(selection),
		auth.WithLogger(log.Named("auth")),
		auth.WithUserFetcher(auth.UserFetcherFunc(func(ctx context.Context) (model.User, error) {
			return api.CurrentUser(ctx, coord)
		})),
	)
	coord = coordinator.New(tokens, authRepo, cfg.RefreshWaitTimeout, log.Named("coordinator"))

	c, err := OpenCache(ctx, cfg.CacheURL, log.Named("cache"))
	if err != nil {
		return nil, err
	}

	return &App{
		Log:         log,
		Tokens:      tokens,
		Selection:   selection,
		Auth:        authRepo,
		Coordinator: coord,
		API:         api,
		Cache:       c,
		Plans: training.NewPlans(c,
			httpapi.NewCollection[model.TrainingPlan](api, coord, httpapi.PathPlans), log.Named("plans")),
		Executions: training.NewExecutions(c,
			httpapi.NewCollection[model.TrainingExecution](api, coord, httpapi.PathExecutions), log.Named("executions")),
	}, nil
}

// OpenCache picks the cache backend from the URL scheme. Postgres caches are migrated first.
func OpenCache(ctx context.Context, rawURL string, log *zap.Logger) (cache.Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("app.cache: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "sqlite", "sqlite3":
		dsn, err := sqlite.DSNFromURL(u)
		if err != nil {
			return nil, fmt.Errorf("app.cache: %w", err)
		}
		return sqlite.Open(ctx, dsn, log)
	case "postgres", "postgresql":
		if err := migrate.Up(ctx, rawURL, log); err != nil {
			return nil, fmt.Errorf("app.cache: %w", err)
		}
		db, err := postgres.New(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("app.cache: %w", err)
		}
		return postgres.NewStore(db, log), nil
	}
	return nil, fmt.Errorf("app.cache: unsupported scheme %q", u.Scheme)
}

// Close lets detached sync fetches finish and then closes the cache.
func (a *App) Close() error {
	a.Plans.Wait()
	a.Executions.Wait()
	if err := a.Cache.Close(); err != nil {
		return fmt.Errorf("app.close: %w", err)
	}
	return nil
}
