package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/star/czmlgo/internal/api"
	"github.com/star/czmlgo/internal/auth"
	"github.com/star/czmlgo/internal/cache"
	"github.com/star/czmlgo/internal/config"
	"github.com/star/czmlgo/internal/ingest"
	"github.com/star/czmlgo/internal/link"
	"github.com/star/czmlgo/internal/observability"
	"github.com/star/czmlgo/internal/sp3"
	"github.com/star/czmlgo/internal/stream"
	"github.com/star/czmlgo/web"
)

// sp3Config holds SP3 source and cache settings.
type sp3Config struct {
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxSnapshots    int
	Keyword         string
	RefreshInterval time.Duration // 0 disables periodic refresh
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("CZMLGO_LOG_LEVEL")),
	}))

	addr := os.Getenv("CZMLGO_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	appearance, err := config.LoadAppearance(os.Getenv("CZMLGO_APPEARANCE_FILE"))
	if err != nil {
		logger.Error("invalid appearance file", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	sp3Cfg := loadSP3Config(logger)
	store := sp3.NewStore()
	pool := ingest.NewPool(loadWorkers(logger), sp3Cfg.Keyword, logger)

	var fetcher *sp3.Fetcher
	if sp3Cfg.SourceURL != "" {
		fetcher = sp3.NewFetcher(sp3Cfg.SourceURL, logger, sp3Cfg.ExtraSourceURLs...)
	}
	loader := ingest.NewLoader(fetcher, pool, store, sp3.NewCache(sp3Cfg.CacheDir, sp3Cfg.MaxSnapshots), logger)

	// Attempt to load cached SP3 data on startup.
	if _, err := loader.LoadCached(ctx); err != nil {
		logger.Info("no usable SP3 cache, starting without SP3 data", "error", err)
	}

	docs := cache.NewDocumentCache(loadCacheConfig(logger), store, appearance, appearance.Event.Target, logger)

	if path := os.Getenv("CZMLGO_EVENTS_FILE"); path != "" {
		if err := loadEvents(docs, path); err != nil {
			logger.Error("failed to load events file", "path", path, "error", err)
			os.Exit(1)
		}
	}

	streamHandler := stream.NewHandler(docs, loadStreamConfig(logger), logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Store:      store,
		Loader:     loader,
		Pool:       pool,
		Docs:       docs,
		Stream:     streamHandler,
		Appearance: appearance,
		Web:        web.Content,
	})

	// Start cache background worker.
	go docs.Start(ctx)

	if loader.FetchEnabled() {
		go refreshLoop(ctx, loader, store, sp3Cfg.RefreshInterval, logger)
	}

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "sp3_fetch_enabled", loader.FetchEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// refreshLoop fetches right away unless the loaded dataset is fresher than
// interval, then every interval. A zero interval fetches once.
func refreshLoop(ctx context.Context, loader *ingest.Loader, store *sp3.Store, interval time.Duration, logger *slog.Logger) {
	age := store.AgeSeconds()
	if age < 0 || interval == 0 || age >= interval.Seconds() {
		if _, err := loader.Refresh(ctx); err != nil {
			logger.Warn("SP3 refresh failed", "error", err)
		}
	}
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := loader.Refresh(ctx); err != nil {
				logger.Warn("SP3 refresh failed", "error", err)
			}
		}
	}
}

func loadEvents(docs *cache.DocumentCache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	links, err := link.Decode(f)
	if err != nil {
		return err
	}
	return docs.SetEvents(links)
}

func logLevel(v string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("CZMLGO_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("CZMLGO_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("CZMLGO_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("CZMLGO_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

// envSeconds reads a positive whole number of seconds, warning and keeping
// def otherwise.
func envSeconds(logger *slog.Logger, name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+name+" value, using default", "value", v, "default", def.Seconds())
		return def
	}
	return time.Duration(n) * time.Second
}

func envPositive(logger *slog.Logger, name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+name+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

func loadWorkers(logger *slog.Logger) int {
	workers := envPositive(logger, "CZMLGO_INGEST_WORKERS", runtime.NumCPU())
	logger.Info("ingest config", "workers", workers)
	return workers
}

func loadCacheConfig(logger *slog.Logger) cache.Config {
	cfg := cache.Config{
		Name:          "czmlgo",
		CheckInterval: envSeconds(logger, "CZMLGO_CACHE_CHECK_INTERVAL", 5*time.Second),
	}
	if v := os.Getenv("CZMLGO_DOCUMENT_NAME"); v != "" {
		cfg.Name = v
	}

	logger.Info("cache config",
		"name", cfg.Name,
		"check_interval_seconds", cfg.CheckInterval.Seconds(),
	)
	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: envPositive(logger, "CZMLGO_STREAM_MAX_CONCURRENT", 10),
		MaxConcurrent:      envPositive(logger, "CZMLGO_STREAM_MAX_TOTAL", 1000),
		KeepaliveInterval:  envSeconds(logger, "CZMLGO_STREAM_KEEPALIVE_INTERVAL", 30*time.Second),
	}

	if v := os.Getenv("CZMLGO_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid CZMLGO_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent", cfg.MaxConcurrent,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)
	return cfg
}

func loadSP3Config(logger *slog.Logger) sp3Config {
	cfg := sp3Config{
		SourceURL:       os.Getenv("CZMLGO_SP3_SOURCE_URL"),
		CacheDir:        "/tmp/czmlgo/sp3",
		MaxSnapshots:    envPositive(logger, "CZMLGO_SP3_MAX_FILES", 5),
		Keyword:         os.Getenv("CZMLGO_SP3_KEYWORD"),
		RefreshInterval: 6 * time.Hour,
	}

	if v := os.Getenv("CZMLGO_SP3_EXTRA_URLS"); v != "" {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.ExtraSourceURLs = append(cfg.ExtraSourceURLs, u)
			}
		}
	}

	if v := os.Getenv("CZMLGO_SP3_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("CZMLGO_SP3_REFRESH_INTERVAL"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 0 {
			logger.Warn("invalid CZMLGO_SP3_REFRESH_INTERVAL value, defaulting to 21600", "value", v)
		} else {
			cfg.RefreshInterval = time.Duration(seconds) * time.Second
		}
	}

	logger.Info("SP3 config",
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"cache_dir", cfg.CacheDir,
		"keyword", cfg.Keyword,
		"refresh_interval_seconds", cfg.RefreshInterval.Seconds(),
	)
	return cfg
}
