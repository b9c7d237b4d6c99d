package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"connectlist/discoveryservice/internal/catalog"
	"connectlist/discoveryservice/internal/discovery"
	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/normalize"
	"connectlist/discoveryservice/internal/search"
)

const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are tried in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Logging   LoggingConfig   `koanf:"logging"`
	Search    SearchConfig    `koanf:"search"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Providers ProvidersConfig `koanf:"providers"`
	Cache     CacheConfig     `koanf:"cache"`
}

type HTTPConfig struct {
	Addr           string        `koanf:"addr"`
	RateLimitRPS   float64       `koanf:"rate_limit_rps"`
	RateLimitBurst int           `koanf:"rate_limit_burst"`
	MaxQueryLength int           `koanf:"max_query_length"`
	SessionTTL     time.Duration `koanf:"session_ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type SearchConfig struct {
	MaxConcurrent     int           `koanf:"max_concurrent"`
	AllPerProviderCap int           `koanf:"all_per_provider_cap"`
	CategoryCap       int           `koanf:"category_cap"`
	MinQueryLength    int           `koanf:"min_query_length"`
	ProviderTimeout   time.Duration `koanf:"provider_timeout"`
	AllPlan           []string      `koanf:"all_plan"`
}

type DiscoveryConfig struct {
	Eager         []string      `koanf:"eager"`
	PacingDelay   time.Duration `koanf:"pacing_delay"`
	PageSize      int           `koanf:"page_size"`
	MaxConcurrent int           `koanf:"max_concurrent"`
}

type ProvidersConfig struct {
	UserAgent          string        `koanf:"user_agent"`
	RateLimitRPS       float64       `koanf:"rate_limit_rps"`
	RateLimitBurst     int           `koanf:"rate_limit_burst"`
	RetryAttempts      int           `koanf:"retry_attempts"`
	BreakerThreshold   uint32        `koanf:"breaker_threshold"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`

	TMDB        TMDBConfig   `koanf:"tmdb"`
	RAWG        APIConfig    `koanf:"rawg"`
	GoogleBooks APIConfig    `koanf:"googlebooks"`
	YouTube     APIConfig    `koanf:"youtube"`
	Places      PlacesConfig `koanf:"places"`
}

type APIConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

type TMDBConfig struct {
	APIKey       string `koanf:"api_key"`
	BearerToken  string `koanf:"bearer_token"`
	BaseURL      string `koanf:"base_url"`
	Language     string `koanf:"language"`
	ImageBaseURL string `koanf:"image_base_url"`
}

type PlacesConfig struct {
	APIKey        string `koanf:"api_key"`
	BaseURL       string `koanf:"base_url"`
	Language      string `koanf:"language"`
	Region        string `koanf:"region"`
	PhotoMaxWidth int    `koanf:"photo_max_width"`
}

type CacheConfig struct {
	RedisURL string        `koanf:"redis_url"`
	TTL      time.Duration `koanf:"ttl"`
	Disabled bool          `koanf:"disabled"`
}

func defaultConfig() Config {
	aggregator := search.DefaultAggregatorConfig()
	feed := discovery.DefaultConfig()
	breaker := catalog.DefaultBreakerConfig()
	return Config{
		HTTP: HTTPConfig{
			Addr:           ":8090",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			MaxQueryLength: 500,
			SessionTTL:     30 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Search: SearchConfig{
			MaxConcurrent:     aggregator.MaxConcurrent,
			AllPerProviderCap: aggregator.AllPerProviderCap,
			CategoryCap:       aggregator.CategoryCap,
			MinQueryLength:    aggregator.MinQueryLength,
			ProviderTimeout:   aggregator.ProviderTimeout,
			AllPlan:           categoryNames(aggregator.AllPlan),
		},
		Discovery: DiscoveryConfig{
			Eager:         categoryNames(feed.Eager),
			PacingDelay:   feed.PacingDelay,
			PageSize:      feed.PageSize,
			MaxConcurrent: feed.MaxConcurrent,
		},
		Providers: ProvidersConfig{
			UserAgent:          "connectlist-discovery/1.0",
			RateLimitRPS:       5,
			RateLimitBurst:     10,
			RetryAttempts:      catalog.DefaultRetryConfig().MaxAttempts,
			BreakerThreshold:   breaker.FailureThreshold,
			BreakerOpenTimeout: breaker.OpenTimeout,
			TMDB: TMDBConfig{
				BaseURL:      "https://api.themoviedb.org/3",
				Language:     "en-US",
				ImageBaseURL: "https://image.tmdb.org/t/p",
			},
			RAWG:        APIConfig{BaseURL: "https://api.rawg.io/api"},
			GoogleBooks: APIConfig{BaseURL: "https://www.googleapis.com/books/v1"},
			YouTube:     APIConfig{BaseURL: "https://www.googleapis.com/youtube/v3"},
			Places: PlacesConfig{
				BaseURL:       "https://maps.googleapis.com/maps/api/place",
				Language:      "en",
				PhotoMaxWidth: 400,
			},
		},
		Cache: CacheConfig{TTL: 6 * time.Hour},
	}
}

// LoadConfig layers struct defaults, an optional YAML file and mapped
// environment variables, in that order of precedence.
func LoadConfig() (Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.HTTP.MaxQueryLength <= 0 {
		return fmt.Errorf("http.max_query_length must be positive")
	}
	if _, err := parseCategories(c.Search.AllPlan); err != nil {
		return fmt.Errorf("search.all_plan: %w", err)
	}
	if _, err := parseCategories(c.Discovery.Eager); err != nil {
		return fmt.Errorf("discovery.eager: %w", err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}

// AggregatorConfig projects the search settings. Unset values fall back to
// the aggregator defaults.
func (c Config) AggregatorConfig() search.AggregatorConfig {
	plan, _ := parseCategories(c.Search.AllPlan)
	return search.AggregatorConfig{
		MaxConcurrent:     c.Search.MaxConcurrent,
		AllPerProviderCap: c.Search.AllPerProviderCap,
		CategoryCap:       c.Search.CategoryCap,
		MinQueryLength:    c.Search.MinQueryLength,
		ProviderTimeout:   c.Search.ProviderTimeout,
		AllPlan:           plan,
	}
}

func (c Config) DiscoveryConfig() discovery.Config {
	eager, _ := parseCategories(c.Discovery.Eager)
	return discovery.Config{
		Eager:         eager,
		PacingDelay:   c.Discovery.PacingDelay,
		PageSize:      c.Discovery.PageSize,
		MaxConcurrent: c.Discovery.MaxConcurrent,
	}
}

// NormalizerConfig points Places artwork at the photo relay when a Places key
// is configured, so the key never reaches clients.
func (c Config) NormalizerConfig() normalize.Config {
	cfg := normalize.Config{
		ImageBaseURL:  c.Providers.TMDB.ImageBaseURL,
		PhotoMaxWidth: c.Providers.Places.PhotoMaxWidth,
	}
	if c.Providers.Places.APIKey != "" {
		cfg.PhotoRelayURL = normalize.PlacePhotoPath
	}
	return cfg
}

func (c Config) BreakerConfig() catalog.BreakerConfig {
	cfg := catalog.DefaultBreakerConfig()
	if c.Providers.BreakerThreshold > 0 {
		cfg.FailureThreshold = c.Providers.BreakerThreshold
	}
	if c.Providers.BreakerOpenTimeout > 0 {
		cfg.OpenTimeout = c.Providers.BreakerOpenTimeout
	}
	return cfg
}

func (c Config) RetryConfig() catalog.RetryConfig {
	cfg := catalog.DefaultRetryConfig()
	if c.Providers.RetryAttempts > 0 {
		cfg.MaxAttempts = c.Providers.RetryAttempts
	}
	return cfg
}

func findConfigFile() string {
	if path := strings.TrimSpace(os.Getenv(ConfigPathEnvVar)); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"http_addr":             "http.addr",
	"rate_limit_rps":        "http.rate_limit_rps",
	"rate_limit_burst":      "http.rate_limit_burst",
	"max_query_length":      "http.max_query_length",
	"session_ttl":           "http.session_ttl",
	"log_level":             "logging.level",
	"log_format":            "logging.format",
	"search_max_concurrent": "search.max_concurrent",
	"search_all_cap":        "search.all_per_provider_cap",
	"search_category_cap":   "search.category_cap",
	"search_min_query":      "search.min_query_length",
	"provider_timeout":      "search.provider_timeout",
	"search_all_plan":       "search.all_plan",

	"discovery_eager":          "discovery.eager",
	"discovery_pacing_delay":   "discovery.pacing_delay",
	"discovery_page_size":      "discovery.page_size",
	"discovery_max_concurrent": "discovery.max_concurrent",

	"provider_user_agent":           "providers.user_agent",
	"provider_rate_limit_rps":       "providers.rate_limit_rps",
	"provider_rate_limit_burst":     "providers.rate_limit_burst",
	"provider_retry_attempts":       "providers.retry_attempts",
	"provider_breaker_threshold":    "providers.breaker_threshold",
	"provider_breaker_open_timeout": "providers.breaker_open_timeout",

	"tmdb_api_key":           "providers.tmdb.api_key",
	"tmdb_bearer_token":      "providers.tmdb.bearer_token",
	"tmdb_base_url":          "providers.tmdb.base_url",
	"tmdb_language":          "providers.tmdb.language",
	"tmdb_image_base_url":    "providers.tmdb.image_base_url",
	"rawg_api_key":           "providers.rawg.api_key",
	"rawg_base_url":          "providers.rawg.base_url",
	"google_books_api_key":   "providers.googlebooks.api_key",
	"google_books_base_url":  "providers.googlebooks.base_url",
	"youtube_api_key":        "providers.youtube.api_key",
	"youtube_base_url":       "providers.youtube.base_url",
	"places_api_key":         "providers.places.api_key",
	"places_base_url":        "providers.places.base_url",
	"places_language":        "providers.places.language",
	"places_region":          "providers.places.region",
	"places_photo_max_width": "providers.places.photo_max_width",

	"redis_url":      "cache.redis_url",
	"cache_ttl":      "cache.ttl",
	"cache_disabled": "cache.disabled",
}

// envKey maps an environment variable to its config key. Unmapped variables
// are skipped.
func envKey(key string) string {
	return envMappings[strings.ToLower(key)]
}

func parseCategories(names []string) ([]domain.Category, error) {
	out := make([]domain.Category, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		category, ok := domain.ParseCategory(name)
		if !ok || !category.Concrete() {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		out = append(out, category)
	}
	return out, nil
}

func categoryNames(categories []domain.Category) []string {
	out := make([]string, len(categories))
	for i, category := range categories {
		out[i] = string(category)
	}
	return out
}
