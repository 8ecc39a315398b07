package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/api"
	"github.com/Harvey-AU/knowledge-crawler/internal/cache"
	"github.com/Harvey-AU/knowledge-crawler/internal/classify"
	"github.com/Harvey-AU/knowledge-crawler/internal/config"
	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/Harvey-AU/knowledge-crawler/internal/db"
	"github.com/Harvey-AU/knowledge-crawler/internal/jobs"
	"github.com/Harvey-AU/knowledge-crawler/internal/observability"
	"github.com/Harvey-AU/knowledge-crawler/internal/util"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const serviceName = "knowledge-crawler"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logging is not configured yet; the default writer is fine here
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			TracesSampleRate: func() float64 {
				if cfg.Env == "production" {
					return 0.1
				}
				return 1.0
			}(),
			AttachStacktrace: true,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Info().Str("environment", cfg.Env).Msg("Sentry initialised successfully")
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Warn().Msg("Sentry DSN not configured, error tracking disabled")
	}

	ctx := context.Background()

	var obsProviders *observability.Providers
	if cfg.ObservabilityEnabled {
		obsProviders, err = observability.Init(ctx, observability.Config{
			Enabled:        true,
			ServiceName:    serviceName,
			Environment:    cfg.Env,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			OTLPHeaders:    cfg.OTLPHeaders,
			OTLPInsecure:   cfg.OTLPInsecure,
			MetricsAddress: cfg.MetricsAddr,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise observability providers")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := obsProviders.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush telemetry providers cleanly")
				}
			}()

			if metricsSrv := startMetricsServer(cfg.MetricsAddr, obsProviders); metricsSrv != nil {
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := metricsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Warn().Err(err).Msg("Graceful shutdown of metrics server failed")
					}
				}()
			}
		}
	}

	database, err := db.InitWithRetry(ctx, cfg.DB, db.DefaultRetryConfig())
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	store := newCache(ctx, cfg.RedisURL)

	classifier := classify.NewKeywordClassifier()
	estimator := trainEstimator(ctx, database)
	fetcher := crawler.NewFetcher(crawler.NewHTTPClient(cfg.Crawl.FetchTimeout), cfg.Crawl.UserAgent)
	predictor := classify.NewPredictor(fetcher, classifier, estimator, store)

	service := jobs.NewService(database, store, cfg.Crawl, jobs.WithClassifier(classifier))
	restored, err := service.RestoreSchedules(ctx)
	if err != nil {
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("Failed to restore scheduled knowledge bases")
	} else if restored > 0 {
		log.Info().Int("count", restored).Msg("Restored scheduled knowledge bases")
	}

	handler := buildHandler(api.NewHandler(service, predictor, database), newRateLimiter(), obsProviders)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		<-stop
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		// In-flight crawl waves finish and store their pages before this returns
		if err := service.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Crawl service did not stop cleanly")
		}

		close(done)
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("driver", string(database.Driver())).
		Str("health", fmt.Sprintf("http://localhost:%s/health", cfg.Port)).
		Msg("Starting server")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Server error")
	}

	<-done
	log.Info().Msg("Server stopped")
}

// buildHandler mounts the API routes behind rate limiting, the standard
// middleware chain and OpenTelemetry instrumentation.
func buildHandler(apiHandler *api.Handler, limiter *RateLimiter, obsProviders *observability.Providers) http.Handler {
	mux := http.NewServeMux()
	apiHandler.SetupRoutes(mux)

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.getLimiter(util.GetClientIP(r)).Allow() {
			api.TooManyRequests(w, r, "Too many requests", time.Second)
			return
		}
		mux.ServeHTTP(w, r)
	})

	handler = api.Chain(handler)
	return observability.WrapHandler(handler, obsProviders)
}

func startMetricsServer(addr string, obsProviders *observability.Providers) *http.Server {
	if obsProviders.MetricsHandler == nil || addr == "" {
		return nil
	}

	metricsSrv := &http.Server{
		Addr:              addr,
		Handler:           obsProviders.MetricsHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return metricsSrv
}

// newCache connects to Redis when configured and falls back to process memory
func newCache(ctx context.Context, redisURL string) cache.Cache {
	if redisURL == "" {
		log.Info().Msg("REDIS_URL not set, using in-memory cache")
		return cache.NewInMemoryCache()
	}

	redisCache, err := cache.NewRedisCache(ctx, redisURL, serviceName+":")
	if err != nil {
		sentry.CaptureException(err)
		log.Warn().Err(err).Msg("Redis unavailable, falling back to in-memory cache")
		return cache.NewInMemoryCache()
	}

	log.Info().Msg("Connected to Redis")
	return redisCache
}

// trainEstimator fits the page estimator on stored crawl history. An empty
// history leaves prediction unavailable until rows are imported.
func trainEstimator(ctx context.Context, database *db.DB) *classify.Estimator {
	estimator := classify.NewEstimator()

	history, err := database.ListHistory(ctx)
	if err != nil {
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("Failed to load crawl history")
		return estimator
	}

	if err := estimator.Train(history); err != nil {
		log.Warn().Err(err).Int("rows", len(history)).Msg("Page estimator not trained")
		return estimator
	}

	log.Info().Int("rows", len(history)).Msg("Page estimator trained")
	return estimator
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		return
	}

	log.Logger = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// RateLimiter represents a rate limiting system based on client IP addresses
type RateLimiter struct {
	limits   map[string]*IPRateLimiter
	mu       sync.Mutex
	rate     rate.Limit
	capacity int
}

// IPRateLimiter wraps a token bucket rate limiter specific to an IP address
type IPRateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter creates a new rate limiter with default settings
func newRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits:   make(map[string]*IPRateLimiter),
		rate:     rate.Limit(20),
		capacity: 10,
	}
}

// getLimiter returns the rate limiter for a specific IP address
func (rl *RateLimiter) getLimiter(ip string) *IPRateLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limits[ip]
	if !exists {
		limiter = &IPRateLimiter{
			limiter: rate.NewLimiter(rl.rate, rl.capacity),
		}
		rl.limits[ip] = limiter
	}

	return limiter
}

// Allow checks if a request from this IP should be allowed
func (ipl *IPRateLimiter) Allow() bool {
	return ipl.limiter.Allow()
}
