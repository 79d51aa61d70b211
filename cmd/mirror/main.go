package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/api"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/config"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/domains"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/logging"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/mirror"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/rewrite"
	gcsstorage "github.com/inconceivableza/ghosts-toaster-site-generator/internal/storage/gcs"
	localstorage "github.com/inconceivableza/ghosts-toaster-site-generator/internal/storage/local"
	memorystorage "github.com/inconceivableza/ghosts-toaster-site-generator/internal/storage/memory"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if syncErr := logger.Sync(); syncErr != nil {
		fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "mirror failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	dc := domains.Load(
		cfg.Domains.Source,
		cfg.Domains.Alternates,
		cfg.Domains.Production,
		cfg.Domains.Fetch,
		logger.Named("domains"),
	)
	rw := rewrite.New(dc, rewrite.Options{
		Mode:     cfg.RewriteMode(),
		Residual: cfg.Rewrite.Residual,
	}, logger.Named("rewrite"))

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	m, err := mirror.New(mirror.Config{
		Seeds:          cfg.Crawler.Seeds,
		UserAgent:      cfg.Crawler.UserAgent,
		Concurrency:    cfg.Crawler.Concurrency,
		Delay:          cfg.Delay(),
		Timeout:        cfg.Timeout(),
		MaxDepth:       cfg.Crawler.MaxDepth,
		MaxBodyBytes:   cfg.Crawler.MaxBodyBytes,
		HostHeader:     cfg.Crawler.HostHeader,
		ForwardedProto: cfg.Crawler.ForwardedProto,

		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		Burst:             cfg.Crawler.Burst,
	}, dc, rw, store, logger.Named("mirror"))
	if err != nil {
		return fmt.Errorf("build mirror: %w", err)
	}

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(dc, rw, logger.Named("api")).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server started", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
		}()
	}

	stats, err := m.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("mirror complete",
		zap.String("run_id", stats.RunID),
		zap.Int64("saved", stats.Saved),
		zap.Int64("failed", stats.Failed),
	)
	return nil
}

// openStore builds the configured blob store and a function releasing it.
func openStore(ctx context.Context, cfg config.StorageConfig) (mirror.BlobStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendMemory:
		return memorystorage.NewBlobStore(), noop, nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local store: %w", err)
		}
		return store, noop, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:       cfg.GCSBucket,
			Prefix:       cfg.Prefix,
			CacheControl: cfg.CacheControl,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("open gcs store: %w", err)
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
