package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/pipecanvas/internal/config"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/gateway"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve templates and the operator catalogue over HTTP",
		Long: `serve starts the gateway the editor talks to. Settings come from the
environment (a .env file in the working directory is loaded first):
PIPECANVAS_ADDR, DATABASE_TYPE, DATABASE_PATH, DATABASE_URL, REDIS_ADDRESS,
MANIFEST_DIR, MANIFEST_CACHE_TTL and SEED_SYSTEM_TEMPLATES.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}

			cfg := config.Load()
			if addr != "" {
				cfg.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			flags := cmd.Root().PersistentFlags()
			if !flags.Changed("log-level") && !flags.Changed("log-format") {
				if err := initLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
					return err
				}
			}

			return serve(signalContext(cmd.Context()), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides PIPECANVAS_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(ctx, cfg.Store())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if cfg.SeedSystemTemplates {
		if err := store.Seed(ctx, st); err != nil {
			return err
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddress != "" {
		db, _ := cfg.RedisDBNumber()
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       db,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, manifest cache falls back to the source", "addr", cfg.RedisAddress, "error", err)
		}
	}
	ttl, _ := cfg.CacheTTL()
	cache := manifest.NewCache(manifestSource(cfg.ManifestDir), rdb, ttl)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gateway.NewServer(st, cache),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", cfg.Addr, "database", cfg.DatabaseType, "redis", cfg.RedisAddress != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("gateway stopped")
	return nil
}
