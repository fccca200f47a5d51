// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the settings of the
// chat client daemon: the loopback HTTP server, logging, partitions, client
// storage, the cache tier, send limits, the feed and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "campus-chat")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// PartitionConfig locates the database of every partition.
type PartitionConfig struct {
	Main     string // PARTITION_MAIN_PATH (confessions)
	General  string // PARTITION_GENERAL_PATH
	Support  string // PARTITION_SUPPORT_PATH
	Location string // PARTITION_LOCATION_PATH
	// Migrate creates schema and indexes on open.
	Migrate bool // PARTITION_MIGRATE
	// NameConnections caps concurrently open name-reservation connections.
	NameConnections int // NAME_MAX_CONNECTIONS
}

// Paths returns the partition paths keyed by partition.
func (p PartitionConfig) Paths() map[domain.Partition]string {
	return map[domain.Partition]string{
		domain.PartitionMain:     p.Main,
		domain.PartitionGeneral:  p.General,
		domain.PartitionSupport:  p.Support,
		domain.PartitionLocation: p.Location,
	}
}

// StorageConfig is the durable client storage.
type StorageConfig struct {
	Path       string // CLIENT_STORAGE_PATH; empty keeps state in memory
	QuotaBytes int64  // CLIENT_STORAGE_QUOTA_BYTES; 0 = unlimited
}

// CacheConfig is the Redis cache tier.
type CacheConfig struct {
	RedisAddr string        // REDIS_ADDR; empty disables the tier
	RedisDB   int           // REDIS_DB
	Capacity  int           // CACHE_CAPACITY messages per channel
	TTL       time.Duration // CACHE_TTL
	Timeout   time.Duration // CACHE_TIMEOUT per call
}

// LimitConfig holds the per-channel send limits.
type LimitConfig struct {
	Burst      int           // SEND_BURST
	Window     time.Duration // SEND_WINDOW
	Cooldown   time.Duration // SEND_COOLDOWN
	Retention  time.Duration // SEND_RECORD_RETENTION
	SweepEvery int           // SEND_SWEEP_EVERY
	// Duplicate rejects resending the last message within this window.
	Duplicate time.Duration // SEND_DUPLICATE_WINDOW
}

// FeedConfig tunes the feed controller and live subscriptions.
type FeedConfig struct {
	PageSize     int           // FEED_PAGE_SIZE
	SafetyMargin time.Duration // FEED_LIVE_SAFETY_MARGIN
	RetryInitial time.Duration // FEED_RETRY_INITIAL
	RetryMax     time.Duration // FEED_RETRY_MAX
	Locations    []string      // LOCATION_CHANNELS
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Host              string        // loopback by default
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // 0 allows long-lived feed streams
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // trace|debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Chat client
	Partitions PartitionConfig
	Storage    StorageConfig
	Cache      CacheConfig
	Limits     LimitConfig
	Feed       FeedConfig

	// Edge rate limiting of the HTTP API
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, after merging a
// dotenv file (DOTENV_PATH, default ".env") when one exists. Variables already
// set in the environment win over the file.
func Load() (Config, error) {
	if err := loadDotEnv(getenv("DOTENV_PATH", ".env")); err != nil {
		return Config{}, err
	}

	dataDir := getenv("DATA_DIR", "data")
	cfg := Config{
		// Server
		Host:              getenv("HOST", "127.0.0.1"),
		Port:              getenv("PORT", "8787"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 0),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		Partitions: PartitionConfig{
			Main:            getenv("PARTITION_MAIN_PATH", filepath.Join(dataDir, "main.db")),
			General:         getenv("PARTITION_GENERAL_PATH", filepath.Join(dataDir, "general.db")),
			Support:         getenv("PARTITION_SUPPORT_PATH", filepath.Join(dataDir, "support.db")),
			Location:        getenv("PARTITION_LOCATION_PATH", filepath.Join(dataDir, "location.db")),
			Migrate:         getbool("PARTITION_MIGRATE", true),
			NameConnections: getint("NAME_MAX_CONNECTIONS", 2),
		},
		Storage: StorageConfig{
			Path:       getenv("CLIENT_STORAGE_PATH", filepath.Join(dataDir, "client.db")),
			QuotaBytes: int64(getint("CLIENT_STORAGE_QUOTA_BYTES", 5<<20)),
		},
		Cache: CacheConfig{
			RedisAddr: getenv("REDIS_ADDR", ""),
			RedisDB:   getint("REDIS_DB", 0),
			Capacity:  getint("CACHE_CAPACITY", 500),
			TTL:       getdur("CACHE_TTL", 24*time.Hour),
			Timeout:   getdur("CACHE_TIMEOUT", 500*time.Millisecond),
		},
		Limits: LimitConfig{
			Burst:      getint("SEND_BURST", 3),
			Window:     getdur("SEND_WINDOW", 120*time.Second),
			Cooldown:   getdur("SEND_COOLDOWN", 30*time.Second),
			Retention:  getdur("SEND_RECORD_RETENTION", 5*time.Minute),
			SweepEvery: getint("SEND_SWEEP_EVERY", 200),
			Duplicate:  getdur("SEND_DUPLICATE_WINDOW", 30*time.Second),
		},
		Feed: FeedConfig{
			PageSize:     getint("FEED_PAGE_SIZE", 25),
			SafetyMargin: getdur("FEED_LIVE_SAFETY_MARGIN", 2*time.Second),
			RetryInitial: getdur("FEED_RETRY_INITIAL", 250*time.Millisecond),
			RetryMax:     getdur("FEED_RETRY_MAX", 15*time.Second),
			Locations:    splitCSV(getenv("LOCATION_CHANNELS", strings.Join(domain.DefaultLocationChannels, ","))),
		},

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 10.0),
		RateBurst: getint("RATE_BURST", 20),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 10*time.Minute),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "campus-chat"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	for i, id := range cfg.Feed.Locations {
		cfg.Feed.Locations[i] = strings.ToLower(id)
	}

	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once, joined.
func (c Config) Validate() error {
	var errs []error
	check := func(bad bool, msg string) {
		if bad {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) == "", "PORT must not be empty")
	check(c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.IdleTimeout <= 0 || c.WriteTimeout < 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0")
	if err := validatePartitions(c.Partitions); err != nil {
		errs = append(errs, err)
	}
	check(c.Storage.QuotaBytes < 0, "CLIENT_STORAGE_QUOTA_BYTES must be >= 0")
	check(c.Cache.Capacity < 1 || c.Cache.TTL <= 0 || c.Cache.Timeout <= 0,
		"CACHE_CAPACITY, CACHE_TTL and CACHE_TIMEOUT must be positive")
	check(c.Limits.Burst < 1, "SEND_BURST must be >= 1")
	check(c.Limits.Window <= 0 || c.Limits.Cooldown <= 0 || c.Limits.Retention <= 0 || c.Limits.Duplicate < 0,
		"send limit durations must be positive")
	check(c.Feed.PageSize < 1 || c.Feed.SafetyMargin < 0 || c.Feed.RetryInitial <= 0 || c.Feed.RetryMax < c.Feed.RetryInitial,
		"feed settings are invalid")
	for _, id := range c.Feed.Locations {
		ch, err := domain.ParseChannel(id)
		if err != nil || ch.Kind != domain.KindLocation {
			errs = append(errs, fmt.Errorf("LOCATION_CHANNELS: %q is not a location channel", id))
		}
	}
	check(c.RateRPS < 0, "RATE_RPS must be >= 0")
	check(c.RateBurst < 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// validatePartitions rejects missing paths and partitions sharing a database.
func validatePartitions(p PartitionConfig) error {
	seen := map[string]domain.Partition{}
	for _, part := range domain.Partitions {
		path := strings.TrimSpace(p.Paths()[part])
		if path == "" {
			return fmt.Errorf("partition %s: database path must not be empty", part)
		}
		key := filepath.Clean(path)
		if other, dup := seen[key]; dup {
			return fmt.Errorf("partitions %s and %s must not share database %q", other, part, path)
		}
		seen[key] = part
	}
	if p.NameConnections < 1 {
		return errors.New("NAME_MAX_CONNECTIONS must be >= 1")
	}
	return nil
}

// loadDotEnv merges path into the environment when it exists.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("dotenv %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("dotenv %s: %w", path, err)
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
