package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/moviesync/internal/api"
	"github.com/kalambet/moviesync/internal/config"
	"github.com/kalambet/moviesync/internal/index"
	"github.com/kalambet/moviesync/internal/pipeline"
	"github.com/kalambet/moviesync/internal/retry"
	"github.com/kalambet/moviesync/internal/source"
	"github.com/kalambet/moviesync/internal/state"
	"github.com/kalambet/moviesync/internal/transform"
)

func runDaemon(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("starting moviesync",
		"version", version,
		"db_driver", cfg.DB.Driver,
		"index_backend", cfg.Index.Backend,
		"index", cfg.Index.Name,
		"chunk_size", cfg.ETL.ChunkSize)

	loader, closeLoader, err := openLoader(cfg.Index, logger)
	if err != nil {
		return err
	}
	defer closeLoader()

	// The index often starts slower than the catalogue; wait for it first.
	connect := retry.DefaultPolicy()
	connect.Attempts = cfg.DB.ConnectAttempts
	err = retry.Do(ctx, connect, loader.Ping, func(attempt int, err error, wait time.Duration) {
		logger.Error("index not reachable", "backend", cfg.Index.Backend, "attempt", attempt, "retry_in", wait, "error", err)
	})
	if err != nil {
		return fmt.Errorf("waiting for index: %w", err)
	}

	ext, err := source.Connect(ctx, source.Config{
		Driver:    cfg.DB.Driver,
		DSN:       cfg.DB.DataSourceName(),
		Schema:    cfg.DB.Schema,
		ChunkSize: cfg.ETL.ChunkSize,
	}, connect, logger)
	if err != nil {
		return err
	}
	defer ext.Close()

	st := openState(cfg, logger)
	driver := pipeline.New(pipeline.Config{
		StateKey:        cfg.ETL.StateKey,
		IndexName:       cfg.Index.Name,
		PollInterval:    cfg.ETL.PollInterval,
		MaxCycleRetries: cfg.ETL.MaxCycleRetries,
		DrainTimeout:    cfg.ETL.DrainTimeout,
	}, st, ext, transform.New(logger), loader, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return driver.Run(gctx)
	})
	if cfg.HTTP.Addr != "" {
		handler := api.NewOpsHandler(api.OpsDeps{
			Stats: driver.Stats(),
			State: st,
			Index: loader,
			Token: cfg.HTTP.Token,
		})
		g.Go(func() error {
			return api.Serve(gctx, cfg.HTTP.Addr, handler, logger)
		})
	}
	return g.Wait()
}

func openState(cfg config.Config, logger *slog.Logger) *state.State {
	return state.New(state.NewJSONFileStorage(cfg.ETL.StateStorage, logger), logger)
}

func openLoader(cfg config.IndexConfig, logger *slog.Logger) (index.Loader, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := index.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening local index: %w", err)
		}
		return s, func() { s.Close() }, nil
	default:
		e, err := index.NewElastic(index.ElasticConfig{URL: cfg.URL, BulkSize: cfg.BulkSize}, logger)
		if err != nil {
			return nil, nil, err
		}
		return e, func() {}, nil
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
