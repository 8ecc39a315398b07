// Package config assembles process configuration from .env files, the
// environment and an optional YAML file of crawl defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/Harvey-AU/knowledge-crawler/internal/db"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Port                 string // HTTP port to listen on
	Env                  string // Environment (development/production)
	SentryDSN            string // Sentry DSN for error tracking
	LogLevel             string // Log level (debug, info, warn, error)
	ObservabilityEnabled bool   // Toggle OpenTelemetry + Prometheus exporters
	MetricsAddr          string // Address for Prometheus metrics endpoint (":9464" style)
	OTLPEndpoint         string // OTLP HTTP endpoint for trace export
	OTLPHeaders          map[string]string
	OTLPInsecure         bool
	RedisURL             string // Empty selects the in-memory cache
	CrawlerConfigPath    string

	DB    *db.Config
	Crawl crawler.Settings
}

// fileConfig is the shape of the optional YAML file
type fileConfig struct {
	Crawl *crawler.Settings `yaml:"crawl"`
}

// Load reads .env.local and .env (without overriding variables already set),
// then builds the configuration from the environment.
func Load() (*Config, error) {
	// Missing files are fine; the environment may be fully populated
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                 getEnvWithDefault("PORT", "8080"),
		Env:                  getEnvWithDefault("APP_ENV", "development"),
		SentryDSN:            os.Getenv("SENTRY_DSN"),
		LogLevel:             getEnvWithDefault("LOG_LEVEL", "info"),
		ObservabilityEnabled: getEnvBool("OBSERVABILITY_ENABLED", true),
		MetricsAddr:          getEnvWithDefault("METRICS_ADDR", ":9464"),
		OTLPEndpoint:         strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPHeaders:          ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		OTLPInsecure:         getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		RedisURL:             os.Getenv("REDIS_URL"),
		CrawlerConfigPath:    os.Getenv("CRAWLER_CONFIG"),
		DB:                   db.ConfigFromEnv(),
	}

	settings, err := LoadCrawlSettings(cfg.CrawlerConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Crawl = settings

	return cfg, nil
}

// LoadCrawlSettings starts from the built-in defaults, applies the YAML file
// at path (if any) and then the CRAWL_* environment variables.
func LoadCrawlSettings(path string) (crawler.Settings, error) {
	settings := crawler.DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return settings, fmt.Errorf("failed to read crawler config %s: %w", path, err)
		}

		file := fileConfig{Crawl: &settings}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return settings, fmt.Errorf("failed to parse crawler config %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Loaded crawl defaults from file")
	}

	if err := applyCrawlEnv(&settings); err != nil {
		return settings, err
	}

	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

func applyCrawlEnv(s *crawler.Settings) error {
	if v, ok := os.LookupEnv("CRAWL_MAX_LINKS_PER_PAGE"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid CRAWL_MAX_LINKS_PER_PAGE %q: %w", v, err)
		}
		s.MaxLinksPerPage = n
	}
	if v, ok := os.LookupEnv("CRAWL_MAX_WORKERS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid CRAWL_MAX_WORKERS %q: %w", v, err)
		}
		s.MaxWorkers = n
	}
	if v, ok := os.LookupEnv("CRAWL_DELAY"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid CRAWL_DELAY %q: %w", v, err)
		}
		s.InterRequestDelay = d
	}
	if v, ok := os.LookupEnv("CRAWL_FETCH_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid CRAWL_FETCH_TIMEOUT %q: %w", v, err)
		}
		s.FetchTimeout = d
	}
	if v, ok := os.LookupEnv("CRAWL_ALLOWED_FILE_TYPES"); ok {
		// A trailing comma keeps the empty suffix, e.g. ".html,.htm,"
		types := strings.Split(v, ",")
		for i := range types {
			types[i] = strings.ToLower(strings.TrimSpace(types[i]))
		}
		s.AllowedFileTypes = types
	}
	if v := os.Getenv("CRAWL_USER_AGENT"); v != "" {
		s.UserAgent = v
	}
	if v, ok := os.LookupEnv("CRAWL_STRICT_ROBOTS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid CRAWL_STRICT_ROBOTS %q: %w", v, err)
		}
		s.StrictRobots = b
	}
	return nil
}

// ParseOTLPHeaders parses "k1=v1,k2=v2" into a map, skipping malformed pairs
func ParseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return headers
	}

	for pair := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}

	return headers
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
		return defaultValue
	}
	return b
}
