package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bidwatch/internal/adapters/broadcast"
	"bidwatch/internal/adapters/browser"
	"bidwatch/internal/adapters/email"
	web "bidwatch/internal/adapters/http"
	"bidwatch/internal/adapters/http/perf"
	"bidwatch/internal/adapters/ocr"
	outboxStore "bidwatch/internal/adapters/storage/outbox"
	watcherStore "bidwatch/internal/adapters/storage/watcher"
	"bidwatch/internal/application/orchestrators"
	"bidwatch/internal/config"
	"bidwatch/internal/domain/bidparse"
	"bidwatch/internal/domain/outbox"
)

const (
	shutdownTimeout = 15 * time.Second
	outboxInterval  = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Resume watchers and serve the control API.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

// serve runs until ctx is cancelled. Watchers still running at shutdown keep
// their running flag and are resumed on the next start.
func serve(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collector := perf.NewCollector(perf.DefaultRingSize)
	bids, timedDB, err := openStores(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer bids.Close()
	watchers := watcherStore.NewSQLiteStore(timedDB)

	launcher, err := browser.NewLauncher(browser.Options{
		Headless:          cfg.BrowserHeadless,
		CookiesPath:       cfg.CookiesPath,
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: cfg.NavigationTimeout,
	})
	if err != nil {
		return err
	}
	defer launcher.Close()

	recognizer, err := newRecognizer(cfg)
	if err != nil {
		return err
	}

	if cfg.ResendKey == "" {
		slog.Info("email_sender_configured", "provider", "noop", "hint", "set BIDWATCH_RESEND_KEY for real delivery")
	}
	newID := func() string { return uuid.New().String() }
	var observer orchestrators.SnapshotObserver
	if len(cfg.NotifyTo) > 0 {
		sender := email.New(cfg.ResendKey, cfg.NotifyFrom)
		alerts := outboxStore.NewSQLiteStore(timedDB)
		observer = orchestrators.NewOutbidNotifier(sender, cfg.NotifyTo).WithRetryQueue(alerts, newID, time.Now)
		processor := orchestrators.NewOutboxProcessor(orchestrators.OutboxProcessorDeps{
			Store:     alerts,
			Executors: map[string]orchestrators.ActionExecutor{outbox.KindOutbidAlert: orchestrators.EmailExecutor{Sender: sender}},
		})
		go processor.Run(ctx, outboxInterval)
	}

	hub := broadcast.NewHub()
	manager := orchestrators.NewWatcherManager(ctx, orchestrators.WatcherManagerDeps{
		WatcherStore: watchers,
		NewSession:   launcher.NewSession,
		Runner: orchestrators.WatcherRunnerDeps{
			BidStore:          bids,
			Parser:            bidparse.New(cfg.SellerAliases),
			Recognizer:        recognizer,
			Publisher:         hub,
			Observer:          observer,
			Ticks:             collector,
			GenerateID:        newID,
			Now:               time.Now,
			InactivityMinutes: cfg.InactivityMinutes(),
			Backoff:           cfg.Backoff,
		},
		MaxWatchers:     cfg.MaxWatchers,
		DefaultInterval: cfg.Interval,
		GenerateID:      newID,
		Now:             time.Now,
	})
	if _, err := manager.Resume(ctx); err != nil {
		return err
	}

	csrfKey, err := cfg.CSRFSecret()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: web.NewMux(ctx, web.Deps{
			Watchers:    manager,
			Snapshots:   hub,
			BidStore:    bids,
			Perf:        collector,
			MyName:      cfg.MyName,
			CSRFKey:     csrfKey,
			APIToken:    cfg.APIToken,
			SlowRequest: cfg.SlowRequest,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_started", "version", version, "addr", cfg.ListenAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server_shutdown_failed", "error", err)
	}
	cancel()
	manager.Wait()
	return nil
}

// newRecognizer returns a cached OCR client, or a no-op when no OCR service
// is configured.
func newRecognizer(cfg config.Config) (orchestrators.Recognizer, error) {
	if cfg.OCRURL == "" {
		slog.Info("ocr_disabled", "hint", "set ocr_url to read bids from images")
		return ocr.Noop{}, nil
	}
	return ocr.NewCachedRecognizer(ocr.NewHTTPRecognizer(cfg.OCRURL, cfg.OCRTimeout), cfg.OCRCacheSize)
}
