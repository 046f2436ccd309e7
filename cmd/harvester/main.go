package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/api"
	"github.com/user/listing-harvester/internal/config"
	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/harvest"
	"github.com/user/listing-harvester/internal/monitoring"
	"github.com/user/listing-harvester/internal/proxy"
	"github.com/user/listing-harvester/internal/sink"
	"github.com/user/listing-harvester/internal/storage"
	"github.com/user/listing-harvester/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet("harvester", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	// Bootstrap logger until the configured one is available
	boot, _ := zap.NewProduction()

	cfg, err := config.Load(flags)
	if err != nil {
		boot.Fatal("could not load config", zap.Error(err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		boot.Fatal("could not build logger", zap.Error(err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Monitoring, Proxies
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	agents, err := proxy.NewManager(cfg.Proxies, nil)
	if err != nil {
		log.Fatal("invalid proxy list", zap.Error(err))
	}

	var fetcher harvest.Fetcher
	switch cfg.FetchMode {
	case config.FetchBrowser:
		browser := harvest.NewBrowserFetcher(cfg.Timeout(), agents)
		defer browser.Close()
		fetcher = browser
	default:
		fetcher = harvest.NewHTTPFetcher(cfg.Timeout(), cfg.RequestsPerSecond, agents)
	}

	table, err := harvest.LoadSelectorTable(cfg.SelectorsFile)
	if err != nil {
		log.Fatal("could not load selector table", zap.Error(err))
	}
	extractor, err := harvest.NewExtractor(table, cfg.BaseURL)
	if err != nil {
		log.Fatal("could not build extractor", zap.Error(err))
	}

	// Initialize Storage Layer
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
	}

	newSink := func(job domain.ScrapeJob) (sink.Sink, error) {
		path := filepath.Join(cfg.OutputDir, sink.FileName(job.Region, job.Filter, time.Now()))
		log.Info("writing region output", zap.String("region", string(job.Region)), zap.String("path", path))
		return sink.NewCSVSink(path, job.Filter), nil
	}

	harvester := harvest.NewHarvester(cfg, fetcher, extractor, newSink, metrics, log)
	if pool != nil {
		harvester.SetMirror(func(job domain.ScrapeJob) (sink.Sink, error) {
			return sink.NewPostgresSink(pool, job.Region, job.Filter), nil
		})
	}

	var runs api.RunStore = storage.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisStore := storage.NewRedisStore(cfg.RedisAddr)
		defer redisStore.Close()
		if err := redisStore.Ping(ctx); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		harvester.SetCache(redisStore)
		runs = redisStore
	}

	if cfg.Serve {
		serve(ctx, cfg, harvester, runs, metrics, log)
		return
	}

	harvester.SetProgress(progressBars())
	results, err := harvester.RunMany(ctx, cfg.Regions, cfg.Furnished, cfg.FastMode, cfg.MaxWorkers)
	if err != nil {
		log.Fatal("harvest rejected", zap.Error(err))
	}
	for region, pages := range results {
		log.Info("harvest summary", zap.String("region", string(region)), zap.Int("successful_pages", pages))
	}
}

func serve(ctx context.Context, cfg *config.Config, h *harvest.Harvester, runs api.RunStore, m *monitoring.Metrics, log *zap.Logger) {
	server := api.NewServer(cfg, h, runs, prometheus.DefaultGatherer, m, log)

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not start server", zap.Error(err))
		}
	}()

	log.Info("server started", zap.String("port", cfg.ServerPort))
	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exiting")
}
