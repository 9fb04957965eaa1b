package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aluiziolira/go-ring-crawler/config"
	"github.com/aluiziolira/go-ring-crawler/downloader"
	"github.com/aluiziolira/go-ring-crawler/enrich"
	"github.com/aluiziolira/go-ring-crawler/extractor"
	"github.com/aluiziolira/go-ring-crawler/fetcher"
	"github.com/aluiziolira/go-ring-crawler/llm"
	"github.com/aluiziolira/go-ring-crawler/scraper"
)

func newFetcher(cfg *config.Config) (fetcher.Fetcher, func() error, error) {
	if cfg.Engine == config.EngineHTTP {
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: cfg.AcceptLanguage,
			Timeout:        cfg.Timeout,
		})
		return f, func() error { return nil }, nil
	}

	opts := fetcher.DefaultBrowserOptions()
	opts.Headless = cfg.Headless
	opts.UserAgent = cfg.UserAgent
	opts.AcceptLanguage = cfg.AcceptLanguage
	opts.Timeout = cfg.Timeout
	f, err := fetcher.NewBrowserFetcher(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("start browser: %w", err)
	}
	return f, f.Close, nil
}

// llmConfig resolves credentials and applies the configured limits.
func llmConfig(cfg *config.Config, getenv func(string) string) (llm.Config, error) {
	c, err := llm.ResolveConfig(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.APIKey, getenv)
	if err != nil {
		return llm.Config{}, err
	}
	if cfg.LLM.BaseURL != "" {
		c.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.LLM.MaxTokens > 0 {
		c.MaxTokens = cfg.LLM.MaxTokens
	}
	if cfg.LLM.ChunkTokens > 0 {
		c.ChunkTokens = cfg.LLM.ChunkTokens
	}
	c.Temperature = cfg.LLM.Temperature
	return c, nil
}

// newExtractor picks the extraction strategy for mode. Auto mode without
// credentials degrades to structural extraction.
func newExtractor(cfg *config.Config, mode string) (scraper.Extractor, error) {
	if mode == config.ExtractionStructural {
		return extractor.Structural{}, nil
	}

	llmCfg, err := llmConfig(cfg, os.Getenv)
	var client *llm.Client
	if err == nil {
		client, err = llm.NewClient(llmCfg, nil)
	}
	if err != nil {
		if mode == config.ExtractionAuto && errors.Is(err, llm.ErrMissingAPIKey) {
			slog.Warn("no llm credentials, using structural extraction only")
			return extractor.Structural{}, nil
		}
		return nil, err
	}

	slog.Info("llm extraction enabled",
		slog.String("provider", string(llmCfg.Provider)),
		slog.String("model", llmCfg.Model),
	)
	if mode == config.ExtractionAI {
		return client, nil
	}
	return scraper.FallbackExtractor{Primary: extractor.Structural{}, Fallback: client}, nil
}

// newEnricher builds the detail-page enricher. The in-process LRU is always
// used; a reachable Redis is layered behind it.
func newEnricher(ctx context.Context, cfg *config.Config, f fetcher.Fetcher) (*enrich.Enricher, func() error, error) {
	var cache enrich.Cache = enrich.NewLRUCache(cfg.DetailCacheSize, cfg.DetailCacheTTL)
	closeCache := func() error { return nil }

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		cache = enrich.Tiered{cache, enrich.NewRedisCache(client, cfg.DetailCacheTTL)}
		closeCache = client.Close
		slog.Info("redis detail cache enabled", slog.String("addr", cfg.RedisAddr))
	}

	e := enrich.New(f, cache, enrich.Options{
		Parallelism: cfg.EnrichParallelism,
		MaxImages:   cfg.MaxImages,
		Wait:        cfg.DetailWait,
	})
	return e, closeCache, nil
}

func newDownloader(cfg *config.Config) (*downloader.Downloader, error) {
	return downloader.New(downloader.Options{
		Dir:         cfg.ImageDir,
		Parallelism: cfg.DownloadParallelism,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
	})
}

func newRouter(metrics *scraper.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return r
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return srv
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
