// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, the durable store, authentication, the realtime websocket
// layer, the retention scheduler, seeding and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "slotboard")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the durable store driver.
type DBConfig struct {
	Driver string // sqlite|postgres
	DSN    string // file path for sqlite, connection string for postgres
}

// AuthConfig configures token issuing and verification.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration

	// Optional bootstrap admin, created if absent at startup.
	AdminUsername string
	AdminPassword string
	AdminNickname string
}

// RealtimeConfig configures websocket connections.
type RealtimeConfig struct {
	PingInterval    time.Duration // WS_PING_INTERVAL
	PongWait        time.Duration // WS_PONG_WAIT, must exceed PingInterval
	WriteWait       time.Duration // WS_WRITE_WAIT
	MaxMessageBytes int64         // WS_MAX_MESSAGE_BYTES
	SendBuffer      int           // WS_SEND_BUFFER (frames)
	RateRPS         float64       // WS_RATE_RPS inbound events per second
	RateBurst       int           // WS_RATE_BURST
}

// RetentionConfig configures the housekeeping engine and its schedule.
type RetentionConfig struct {
	Enabled       bool
	Schedule      string // standard 5-field cron expression
	Timezone      string
	RunOnStart    bool
	TrackerMaxAge time.Duration
	ChatMaxAge    time.Duration
	ChatMaxCount  int
	Parallelism   int  // concurrent passes (1 for SQLite)
	Notify        bool // broadcast deletions to live connections
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Store
	DB DBConfig

	// Seeding
	SeedPath string // optional YAML catalog

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Auth      AuthConfig
	Realtime  RealtimeConfig
	Retention RetentionConfig

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

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DSN:    getenv("DB_DSN", getenv("DB_PATH", "slotboard.db")),
		},

		SeedPath: getenv("SEED_PATH", ""),

		// Rate limiting
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

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Auth: AuthConfig{
			JWTSecret:     getenv("JWT_SECRET", ""),
			TokenTTL:      getdur("JWT_TTL", 7*24*time.Hour),
			AdminUsername: getenv("ADMIN_USERNAME", ""),
			AdminPassword: getenv("ADMIN_PASSWORD", ""),
			AdminNickname: getenv("ADMIN_NICKNAME", "admin"),
		},

		Realtime: RealtimeConfig{
			PingInterval:    getdur("WS_PING_INTERVAL", 10*time.Second),
			PongWait:        getdur("WS_PONG_WAIT", 20*time.Second),
			WriteWait:       getdur("WS_WRITE_WAIT", 10*time.Second),
			MaxMessageBytes: int64(getint("WS_MAX_MESSAGE_BYTES", 1<<20)),
			SendBuffer:      getint("WS_SEND_BUFFER", 256),
			RateRPS:         getfloat("WS_RATE_RPS", 20.0),
			RateBurst:       getint("WS_RATE_BURST", 40),
		},

		Retention: RetentionConfig{
			Enabled:       getbool("RETENTION_ENABLED", true),
			Schedule:      getenv("RETENTION_SCHEDULE", "0 3 * * *"),
			Timezone:      getenv("RETENTION_TIMEZONE", "UTC"),
			RunOnStart:    getbool("RETENTION_RUN_ON_START", false),
			TrackerMaxAge: getdur("RETENTION_TRACKER_MAX_AGE", 24*time.Hour),
			ChatMaxAge:    getdur("RETENTION_CHAT_MAX_AGE", 30*24*time.Hour),
			ChatMaxCount:  getint("RETENTION_CHAT_MAX_COUNT", 3000),
			Parallelism:   getint("RETENTION_PARALLELISM", 1),
			Notify:        getbool("RETENTION_NOTIFY", true),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "slotboard"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "sqlite3" {
		cfg.DB.Driver = "sqlite"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite", "postgres":
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if len(cfg.Auth.JWTSecret) < 16 {
		return cfg, errors.New("JWT_SECRET must be at least 16 characters")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("JWT_TTL must be > 0")
	}
	if (cfg.Auth.AdminUsername == "") != (cfg.Auth.AdminPassword == "") {
		return cfg, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	if err := validateRealtime(cfg.Realtime); err != nil {
		return cfg, err
	}
	if err := validateRetention(cfg.Retention); err != nil {
		return cfg, err
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func validateRealtime(rt RealtimeConfig) error {
	if rt.PingInterval <= 0 || rt.PongWait <= 0 || rt.WriteWait <= 0 {
		return errors.New("WS_* durations must be positive")
	}
	if rt.PongWait <= rt.PingInterval {
		return errors.New("WS_PONG_WAIT must be greater than WS_PING_INTERVAL")
	}
	if rt.MaxMessageBytes <= 0 {
		return errors.New("WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if rt.SendBuffer < 1 {
		return errors.New("WS_SEND_BUFFER must be >= 1")
	}
	if rt.RateRPS < 0 || rt.RateBurst < 1 {
		return errors.New("WS_RATE_RPS must be >= 0 and WS_RATE_BURST >= 1")
	}
	return nil
}

func validateRetention(rc RetentionConfig) error {
	if _, err := cron.ParseStandard(rc.Schedule); err != nil {
		return errors.New("RETENTION_SCHEDULE must be a valid 5-field cron expression")
	}
	if _, err := time.LoadLocation(rc.Timezone); err != nil {
		return errors.New("RETENTION_TIMEZONE must be a valid IANA zone")
	}
	if rc.TrackerMaxAge <= 0 || rc.ChatMaxAge <= 0 {
		return errors.New("RETENTION_*_MAX_AGE must be positive durations")
	}
	if rc.ChatMaxCount < 1 {
		return errors.New("RETENTION_CHAT_MAX_COUNT must be >= 1")
	}
	if rc.Parallelism < 1 {
		return errors.New("RETENTION_PARALLELISM must be >= 1")
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
