// Package app initializes and runs the sync daemon. It opens the local
// database, wires the backend gateway and both state stores, and drives
// them with periodic wake ticks and OS signals until shutdown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"github.com/aegisdns/syncd/internal/api"
	"github.com/aegisdns/syncd/internal/common"
	"github.com/aegisdns/syncd/internal/config"
	"github.com/aegisdns/syncd/internal/dnsprofile"
	"github.com/aegisdns/syncd/internal/keys"
	"github.com/aegisdns/syncd/internal/kv"
	"github.com/aegisdns/syncd/internal/logging"
	"github.com/aegisdns/syncd/internal/notify"
	"github.com/aegisdns/syncd/internal/store"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	notifier *notify.Notifier
	accounts *store.AccountStore
	devices  *store.DeviceStore
}

func NewApp(c *config.Config) (*App, error) {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	ctx := context.Background()

	db, err := sql.Open("sqlite", c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := kv.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	local := kv.NewSQLiteStore(db, "local")
	remote := kv.NewSQLiteStore(db, "remote")

	appID, err := loadOrCreateAppID(ctx, local)
	if err != nil {
		return nil, fmt.Errorf("app id error: %w", err)
	}

	backend := api.New(c.APIBaseURL, c.AuthToken, appID, logger)
	notifier := notify.NewNotifier()

	accounts := store.NewAccountStore(store.AccountConfig{
		UserDebounce:    c.UserDebounce,
		RefreshInterval: c.AccountRefreshInterval,
	}, backend, keys.NewX25519Generator(), local, remote, notifier, logger)

	accountIDs, _ := accounts.AccountIDUpdates()

	devices := store.NewDeviceStore(store.DeviceConfig{
		UserDebounce:    c.UserDebounce,
		RefreshDebounce: c.DeviceRefreshDebounce,
		DeviceName:      c.DeviceName,
	}, backend, dnsprofile.NewFileManager(c.DNSProfilePath, c.DNSDomain), accountIDs, notifier, logger)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		notifier: notifier,
		accounts: accounts,
		devices:  devices,
	}, nil
}

// loadOrCreateAppID returns the stable per-install identifier, minting one
// on first start.
func loadOrCreateAppID(ctx context.Context, local kv.Store) (string, error) {
	id, err := local.Get(ctx, common.AppIDKey)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return "", err
	}

	id = uuid.NewString()
	if err := local.Set(ctx, common.AppIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// initRefreshHandler forces a device refresh on SIGHUP, mirroring what a
// user-visible settings screen would do on open.
func (app *App) initRefreshHandler(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(sigs)
				return
			case <-sigs:
				app.logger.Info(ctx, "refresh requested")
				app.devices.RequestRefresh()
			}
		}
	}()
}

// logEvents mirrors the operation stream into the log until ctx is done.
func (app *App) logEvents(ctx context.Context) {
	events, cancel := app.notifier.Events()

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if ev.State == notify.Failed {
					app.logger.Warn(ctx, "operation failed",
						"op", ev.Op, "major", ev.Major, "error", ev.Err)
				} else {
					app.logger.Info(ctx, "operation", "op", ev.Op, "state", ev.State.String())
				}
			}
		}
	}()
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc, wg *sync.WaitGroup) {
	if app.config.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// Restore enqueues an account restore for id and blocks until the operation
// finishes or ctx expires. Used by the one-shot restore mode.
func (app *App) Restore(ctx context.Context, id string) error {
	events, cancel := app.notifier.Events()
	defer cancel()

	app.accounts.RestoreAccount(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.Op != store.OpAccountRestore {
				continue
			}
			switch ev.State {
			case notify.Succeeded:
				return nil
			case notify.Failed:
				return ev.Err
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting syncd")

	app.initSignalHandler(cancelFunc)
	app.initRefreshHandler(ctx)
	app.logEvents(ctx)

	var wg sync.WaitGroup
	app.startMetricsServer(ctx, cancelFunc, &wg)

	// Wake ticks stand in for app-foreground transitions: the stores decide
	// for themselves whether anything is stale enough to refetch.
	cr := cron.New()
	if _, err := cr.AddFunc("@every 1m", func() {
		app.accounts.NotifyForeground()
		app.devices.NotifyForeground()
	}); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
	cr.Start()

	<-ctx.Done()

	app.logger.Info(ctx, "shutting down")
	<-cr.Stop().Done()
	app.devices.Close()
	app.accounts.Close()
	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
