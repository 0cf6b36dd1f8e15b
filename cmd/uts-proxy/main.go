package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/uts-client/pkg/auth"
	"github.com/Sternrassler/uts-client/pkg/cache"
	"github.com/Sternrassler/uts-client/pkg/client"
	"github.com/Sternrassler/uts-client/pkg/logging"
	"github.com/Sternrassler/uts-client/pkg/metrics"
	"github.com/Sternrassler/uts-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// config is the proxy configuration read from the environment.
type config struct {
	APIKey    string
	BaseURL   string
	LoginURL  string
	RateLimit int
	Limiter   ratelimit.Strategy
	RedisURL  string
	Port      string
	LogLevel  string
	LogPretty string
}

func loadConfig(getenv func(string) string) (config, error) {
	get := func(key, defaultValue string) string {
		if value := getenv(key); value != "" {
			return value
		}
		return defaultValue
	}

	cfg := config{
		APIKey:    getenv("UTS_API_KEY"),
		BaseURL:   get("UTS_BASE_URL", client.DefaultBaseURL),
		LoginURL:  get("UTS_LOGIN_URL", auth.DefaultLoginURL),
		RedisURL:  getenv("REDIS_URL"),
		Port:      get("PORT", "8080"),
		LogLevel:  get("LOG_LEVEL", "info"),
		LogPretty: getenv("LOG_PRETTY"),
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("UTS_API_KEY is required")
	}

	rps, err := strconv.Atoi(get("UTS_RATE_LIMIT", strconv.Itoa(ratelimit.DefaultRequestsPerSecond)))
	if err != nil || rps < 0 {
		return cfg, fmt.Errorf("invalid UTS_RATE_LIMIT %q", getenv("UTS_RATE_LIMIT"))
	}
	cfg.RateLimit = rps

	strategy, err := ratelimit.ParseStrategy(getenv("UTS_LIMITER"))
	if err != nil {
		return cfg, err
	}
	cfg.Limiter = strategy

	return cfg, nil
}

func newRedisClient(raw string) (*redis.Client, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: raw}), nil
}

func main() {
	cfg, err := loadConfig(os.Getenv)
	logging.Setup(logging.ParseConfig(cfg.LogLevel, cfg.LogPretty))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger := logging.NewLogger(logging.ComponentProxy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid Redis configuration")
		}
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", cfg.RedisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis", cfg.RedisURL).Msg("Connected to Redis")
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		Strategy:          cfg.Limiter,
		RequestsPerSecond: cfg.RateLimit,
		Redis:             redisClient,
		Logger:            logging.NewLogger(logging.ComponentRateLimit),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create rate limiter")
	}

	authCfg := auth.DefaultConfig(limiter)
	authCfg.LoginURL = cfg.LoginURL
	session, err := auth.Login(ctx, authCfg, cfg.APIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("UTS login failed")
	}

	clientCfg := client.DefaultConfig(session, limiter)
	clientCfg.BaseURL = cfg.BaseURL
	if redisClient != nil {
		clientCfg.Cache = cache.NewManager(redisClient)
	}
	utsClient, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create UTS client")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(utsClient, redisClient),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", server.Addr).
		Str("limiter", string(cfg.Limiter)).
		Int("rate_limit", cfg.RateLimit).
		Bool("cache", redisClient != nil).
		Msg("Starting UTS proxy server")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

func newMux(utsClient *client.Client, redisClient *redis.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/uts/", utsProxyHandler(utsClient))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 when the configured Redis is unreachable.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// utsProxyHandler maps /uts/<path>?<query> onto client.Get. The limitPages
// query key caps pagination and is not forwarded.
func utsProxyHandler(utsClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Example: /uts/content/current/CUI/C0009044 -> content, current, CUI, C0009044
		var path client.Path
		for _, segment := range strings.Split(strings.TrimPrefix(r.URL.Path, "/uts/"), "/") {
			if segment != "" {
				path = append(path, segment)
			}
		}
		if len(path) == 0 {
			http.Error(w, "missing resource path", http.StatusBadRequest)
			return
		}

		params := r.URL.Query()
		var opts []client.GetOption
		if v := params.Get("limitPages"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limitPages", http.StatusBadRequest)
				return
			}
			opts = append(opts, client.WithLimitPages(n))
		}
		params.Del("limitPages")

		res, err := utsClient.Get(r.Context(), path, params, opts...)
		if err != nil {
			writeFatal(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-UTS-Pages", strconv.Itoa(res.Pages))
		if res.Partial {
			w.Header().Set("X-UTS-Partial", "true")
		}

		if res.Kind == client.KindServiceError {
			writeServiceError(w, res)
			return
		}

		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(res.Payload); err != nil {
			log.Warn().Err(err).Msg("Failed to write response")
		}
	}
}

// writeServiceError answers 404 with the service message and whatever
// records were accumulated before the failing page.
func writeServiceError(w http.ResponseWriter, res *client.Result) {
	records, err := res.Records()
	if err != nil {
		log.Warn().Err(err).Int("error_page", res.ErrorPage).Msg("Failed to read accumulated records")
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	body, err := json.Marshal(struct {
		Error  string            `json:"error"`
		Result []json.RawMessage `json:"result"`
	}{res.Message, records})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode service error")
		http.Error(w, res.Message, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	if _, err := w.Write(body); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeFatal(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var overload *client.OverloadError
	if errors.As(err, &overload) {
		status = http.StatusServiceUnavailable
	}
	log.Error().Err(err).Int("status", status).Msg("UTS request failed")
	http.Error(w, fmt.Sprintf("UTS request failed: %v", err), status)
}
