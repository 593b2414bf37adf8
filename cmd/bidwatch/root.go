package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"bidwatch/internal/adapters/http/perf"
	"bidwatch/internal/adapters/storage"
	bidStore "bidwatch/internal/adapters/storage/bid"
	"bidwatch/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "bidwatch",
	Short:         "bidwatch follows comment-driven auctions and ranks the bids per item.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("BIDWATCH_CONFIG"), "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, parseCmd, leaderboardCmd)
}

// ExecuteContext runs the root command and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the console logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.SlogLevel(),
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
	return cfg, nil
}

// bidBackend is the bid store selected by configuration.
type bidBackend struct {
	bidStore.Store
	db      *sql.DB
	closeFn func()
}

// Close releases the store and the SQLite database.
func (b *bidBackend) Close() {
	if b.closeFn != nil {
		b.closeFn()
	}
	b.db.Close()
}

// openStores opens SQLite and, when a DSN is configured, the Postgres bid
// store. Watchers always live in SQLite.
// POST: caller must Close the returned backend
func openStores(ctx context.Context, cfg config.Config, collector *perf.Collector) (*bidBackend, *storage.TimedDB, error) {
	db, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database unreachable: %w", err)
	}
	timedDB := storage.NewTimedDB(db, collector, cfg.SlowQuery)

	if cfg.PostgresDSN == "" {
		return &bidBackend{Store: bidStore.NewSQLiteStore(timedDB), db: db}, timedDB, nil
	}
	pg, err := bidStore.OpenPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	slog.Info("bid_store_selected", "backend", "postgres")
	return &bidBackend{Store: pg, db: db, closeFn: pg.Close}, timedDB, nil
}
