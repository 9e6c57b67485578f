package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/internal/api"
	"github.com/shehryarbajwa/browserbase-control/internal/browser"
	"github.com/shehryarbajwa/browserbase-control/internal/config"
	"github.com/shehryarbajwa/browserbase-control/internal/hub"
	"github.com/shehryarbajwa/browserbase-control/internal/logging"
	"github.com/shehryarbajwa/browserbase-control/internal/metrics"
	"github.com/shehryarbajwa/browserbase-control/internal/profile"
	"github.com/shehryarbajwa/browserbase-control/internal/proxy"
	"github.com/shehryarbajwa/browserbase-control/internal/ratelimit"
	"github.com/shehryarbajwa/browserbase-control/internal/session"
	"github.com/shehryarbajwa/browserbase-control/internal/store"
)

// durableStore keeps session records and captured credentials
type durableStore interface {
	store.RecordStore
	store.CredentialSink
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting browser control plane", zap.String("version", version), zap.String("mode", cfg.Browser.Mode))

	m := metrics.New()
	h := hub.New()
	h.OnDrop = func(token, viewerID string) {
		m.DroppedEvents.Inc()
	}

	records, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var profiles session.ProfileStore
	if cfg.Storage.ProfileDir != "" {
		ps, err := profile.NewStore(cfg.Storage.ProfileDir)
		if err != nil {
			return fmt.Errorf("failed to open profile store: %w", err)
		}
		profiles = ps
	}

	launcher, closeLauncher, err := newLauncher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLauncher()

	registry := session.NewRegistry(session.Deps{
		Launcher:    launcher,
		Records:     records,
		Credentials: records,
		Profiles:    profiles,
		Hub:         h,
		Metrics:     m,
		Logger:      logger,
	}, session.Options{
		TargetURLs:        cfg.Browser.TargetURLs,
		AuthHosts:         cfg.Browser.AuthHosts,
		ReportBase:        cfg.Server.PublicURL,
		DataDir:           cfg.Browser.DataDir,
		LaunchTimeout:     cfg.Session.LaunchTimeout,
		NavigationTimeout: cfg.Session.NavigationTimeout,
		MaxAge:            cfg.Session.MaxAge,
		MaxPerCampaign:    cfg.Session.MaxPerCampaign,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
	})

	go session.NewReaper(registry, cfg.Session.CleanupInterval, logger).Run(ctx)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		go pruneLimiter(ctx, limiter, cfg.Session.CleanupInterval, logger)
	}

	handler := api.NewHandler(registry, cfg.Server.ViewerPath, logger)
	router := handler.SetupRoutes(api.Routes{
		DevTools:    proxy.NewDevToolsServer(registry, logger),
		Viewers:     proxy.NewViewerServer(registry, h, m, logger),
		Limiter:     limiter,
		Metrics:     m,
		OperatorKey: cfg.Server.OperatorKey,
	})
	if cfg.Server.OperatorKey == "" {
		logger.Warn("OPERATOR_KEY is empty: the operator API is unauthenticated")
	}

	// No write timeout: websocket connections are long-lived
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("public_url", cfg.Server.PublicURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server forced to shutdown", zap.Error(err))
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sessions did not close cleanly", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
	return nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (durableStore, func(), error) {
	if cfg.Storage.SQLitePath == "" {
		logger.Warn("SQLITE_PATH is empty: session records will not survive a restart")
		return store.NewMemory(), func() {}, nil
	}
	db, err := store.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("session records opened", zap.String("path", cfg.Storage.SQLitePath))
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close session records", zap.Error(err))
		}
	}, nil
}

func newLauncher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browser.Launcher, func(), error) {
	probe := browser.NewDevToolsProbe(logger)

	if cfg.Browser.Mode != "docker" {
		return browser.NewLocalLauncher(cfg.Browser.ExecPath, cfg.Browser.DataDir, probe, logger), func() {}, nil
	}

	cl, err := browser.NewContainerLauncher(cfg.Browser.Image, cfg.Browser.DataDir, probe, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create container launcher: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	logger.Info("ensuring browser image is available", zap.String("image", cfg.Browser.Image))
	if err := cl.EnsureImage(pullCtx); err != nil {
		cl.Close()
		return nil, nil, fmt.Errorf("failed to ensure image: %w", err)
	}

	return cl, func() {
		if err := cl.Close(); err != nil {
			logger.Warn("failed to close docker client", zap.Error(err))
		}
	}, nil
}

func pruneLimiter(ctx context.Context, limiter *ratelimit.Limiter, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := limiter.Prune(now); removed > 0 {
				logger.Debug("pruned idle rate limit buckets", zap.Int("removed", removed), zap.Int("tracked", limiter.Len()))
			}
		}
	}
}
