package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "connectlist/discoveryservice/internal/api/http"
	"connectlist/discoveryservice/internal/app"
	"connectlist/discoveryservice/internal/catalog"
	"connectlist/discoveryservice/internal/discovery"
	"connectlist/discoveryservice/internal/metrics"
	"connectlist/discoveryservice/internal/normalize"
	"connectlist/discoveryservice/internal/providers/googlebooks"
	"connectlist/discoveryservice/internal/providers/places"
	"connectlist/discoveryservice/internal/providers/rawg"
	"connectlist/discoveryservice/internal/providers/tmdb"
	"connectlist/discoveryservice/internal/providers/youtube"
	"connectlist/discoveryservice/internal/search"
	"connectlist/discoveryservice/internal/telemetry"
)

const serviceName = "discovery-service"

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTP.Addr),
		slog.String("logLevel", cfg.Logging.Level),
		slog.String("logFormat", cfg.Logging.Format),
		slog.Duration("providerTimeout", cfg.Search.ProviderTimeout),
		slog.Bool("hasTMDBKey", cfg.Providers.TMDB.APIKey != "" || cfg.Providers.TMDB.BearerToken != ""),
		slog.Bool("hasRAWGKey", cfg.Providers.RAWG.APIKey != ""),
		slog.Bool("hasYouTubeKey", cfg.Providers.YouTube.APIKey != ""),
		slog.Bool("hasPlacesKey", cfg.Providers.Places.APIKey != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.Cache.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.Cache.TTL),
	)

	providers := buildProviders(cfg, logger)
	if cache := buildCache(cfg, logger); cache != nil {
		for i, provider := range providers {
			providers[i] = cache.Cached(provider)
		}
	}
	registry := catalog.NewRegistry(providers...)

	invoker := catalog.NewInvoker(
		catalog.WithTimeout(cfg.Search.ProviderTimeout),
		catalog.WithRetry(cfg.RetryConfig()),
		catalog.WithRateLimit(cfg.Providers.RateLimitRPS, cfg.Providers.RateLimitBurst),
		catalog.WithHealth(catalog.NewHealth(cfg.BreakerConfig(), logger)),
		catalog.WithInvokerLogger(logger),
	)
	normalizer := normalize.New(cfg.NormalizerConfig())

	searchService := search.NewService(registry, cfg.AggregatorConfig(),
		search.WithLogger(logger),
		search.WithInvoker(invoker),
		search.WithNormalizer(normalizer),
	)
	feedCfg := cfg.DiscoveryConfig()
	newFeed := func() *discovery.Manager {
		return discovery.NewManager(registry, feedCfg,
			discovery.WithLogger(logger),
			discovery.WithInvoker(invoker),
			discovery.WithNormalizer(normalizer),
		)
	}

	api := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithDiscovery(newFeed),
		apihttp.WithMaxQueryLength(cfg.HTTP.MaxQueryLength),
		apihttp.WithRateLimit(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst),
		apihttp.WithSessionTTL(cfg.HTTP.SessionTTL),
		apihttp.WithImageProxy(cfg.Providers.UserAgent, apihttp.DefaultImageHosts...),
		apihttp.WithPlacePhotos(cfg.Providers.Places.APIKey),
	)
	defer api.Close()

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /search/stream holds the response open until every provider reports.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("discovery service started",
		slog.String("addr", cfg.HTTP.Addr),
		slog.Int("providers", len(registry.Providers())),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("discovery service stopped")
}

// buildProviders wires every catalog whose credentials are present. Google
// Books works without a key.
func buildProviders(cfg app.Config, logger *slog.Logger) []catalog.Provider {
	client := &http.Client{
		Timeout:   cfg.Search.ProviderTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	userAgent := cfg.Providers.UserAgent
	pageSize := cfg.Discovery.PageSize

	var providers []catalog.Provider

	tmdbCfg := cfg.Providers.TMDB
	tmdbClient := tmdb.NewClient(tmdb.Config{
		APIKey:      tmdbCfg.APIKey,
		BearerToken: tmdbCfg.BearerToken,
		BaseURL:     tmdbCfg.BaseURL,
		Language:    tmdbCfg.Language,
		UserAgent:   userAgent,
		PageSize:    pageSize,
		Client:      client,
	})
	if tmdbClient.Enabled() {
		providers = append(providers, tmdbClient.Movies(), tmdbClient.Series(), tmdbClient.People())
	} else {
		logger.Info("tmdb credentials not configured, movies, series and people disabled")
	}

	if key := cfg.Providers.RAWG.APIKey; key != "" {
		providers = append(providers, rawg.NewProvider(rawg.Config{
			APIKey:    key,
			BaseURL:   cfg.Providers.RAWG.BaseURL,
			UserAgent: userAgent,
			PageSize:  pageSize,
			Client:    client,
		}))
	} else {
		logger.Info("rawg api key not configured, games disabled")
	}

	providers = append(providers, googlebooks.NewProvider(googlebooks.Config{
		APIKey:    cfg.Providers.GoogleBooks.APIKey,
		BaseURL:   cfg.Providers.GoogleBooks.BaseURL,
		UserAgent: userAgent,
		PageSize:  pageSize,
		Client:    client,
	}))

	if key := cfg.Providers.YouTube.APIKey; key != "" {
		youtubeCfg := youtube.Config{
			APIKey:    key,
			BaseURL:   cfg.Providers.YouTube.BaseURL,
			UserAgent: userAgent,
			PageSize:  pageSize,
			Client:    client,
		}
		providers = append(providers, youtube.NewVideos(youtubeCfg), youtube.NewMusics(youtubeCfg))
	} else {
		logger.Info("youtube api key not configured, videos and musics use fallback items")
	}

	if key := cfg.Providers.Places.APIKey; key != "" {
		providers = append(providers, places.NewProvider(places.Config{
			APIKey:    key,
			BaseURL:   cfg.Providers.Places.BaseURL,
			Language:  cfg.Providers.Places.Language,
			Region:    cfg.Providers.Places.Region,
			UserAgent: userAgent,
			PageSize:  pageSize,
			Client:    client,
		}))
	} else {
		logger.Info("places api key not configured, places disabled")
	}
	return providers
}

func buildCache(cfg app.Config, logger *slog.Logger) *catalog.RedisCache {
	redisURL := strings.TrimSpace(cfg.Cache.RedisURL)
	if cfg.Cache.Disabled || redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, provider cache disabled", slog.String("error", err.Error()))
		return nil
	}
	cache := catalog.NewRedisCache(redis.NewClient(redisOpts), cfg.Cache.TTL, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("redis not reachable, provider cache disabled", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return cache
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
