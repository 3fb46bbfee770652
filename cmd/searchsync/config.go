package main

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"searchsync/internal/cache"
	"searchsync/internal/events"
	"searchsync/internal/indexing"
	"searchsync/internal/settings"
)

const (
	backendSwiftype  = "swiftype"
	backendTypesense = "typesense"
)

type Config struct {
	Env          string
	LogLevel     slog.Level
	WorkerPort   string
	AdminAddr    string
	CatalogFile  string
	DatabaseURL  string
	NatsURL      string
	CollectorURL string

	Redis       cache.Config
	SettingsKey string

	Backend       string
	Swiftype      indexing.SwiftypeConfig
	TypesenseURL  string
	TypesenseKey  string
	BatchLength   int
	SettleTimeout time.Duration
	ClientName    string

	// Dates without a zone are read in this location.
	TimeZone      string
	StrictNumeric bool

	Admin          AdminConfig
	Files          FilesConfig
	EventsConfig   *events.EventConfig
	HandlerTimeout time.Duration
	// MaxAckPending caps the jobs a worker holds per subject.
	MaxAckPending int
}

// AdminConfig secures the admin API. Without an issuer it is unauthenticated.
type AdminConfig struct {
	IssuerURL      string
	ClientID       string
	Role           string
	AllowedOrigins []string
}

// FilesConfig locates uploaded files for {relation}_URL fields. An S3
// endpoint wins over the plain public base URL.
type FilesConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Public          bool
	Verify          bool
	PresignExpiry   time.Duration
	PublicBaseURL   string
}

func loadConfig() Config {
	// Helper to get env with fallback
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	getInt := func(key string, fallback int) int {
		n, err := strconv.Atoi(os.Getenv(key))
		if err != nil {
			return fallback
		}
		return n
	}
	getFloat := func(key string, fallback float64) float64 {
		f, err := strconv.ParseFloat(os.Getenv(key), 64)
		if err != nil {
			return fallback
		}
		return f
	}
	getBool := func(key string, fallback bool) bool {
		b, err := strconv.ParseBool(os.Getenv(key))
		if err != nil {
			return fallback
		}
		return b
	}
	getDuration := func(key string, fallback time.Duration) time.Duration {
		d, err := time.ParseDuration(os.Getenv(key))
		if err != nil {
			return fallback
		}
		return d
	}

	getList := func(key string) []string {
		var out []string
		for _, v := range strings.Split(os.Getenv(key), ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}

	return Config{
		Env:          get("SEARCHSYNC_ENV", "production"),
		LogLevel:     level,
		WorkerPort:   get("SEARCHSYNC_WORKER_PORT", "8081"),
		AdminAddr:    ":" + get("SEARCHSYNC_ADMIN_PORT", "8080"),
		CatalogFile:  get("SEARCH_CATALOG_FILE", "catalog.toml"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		NatsURL:      get("NATS_URL", "nats://localhost:4222"),
		CollectorURL: os.Getenv("OTEL_COLLECTOR_URL"),

		Redis: cache.Config{
			Addr:         os.Getenv("REDIS_ADDR"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 0),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 0),
		},
		SettingsKey: get("SEARCHSYNC_SETTINGS_KEY", settings.DefaultKey),

		Backend: get("SEARCH_BACKEND", backendSwiftype),
		Swiftype: indexing.SwiftypeConfig{
			Endpoint:           get("SWIFTYPE_ENDPOINT", indexing.DefaultSwiftypeEndpoint),
			InsecureSkipVerify: getBool("SWIFTYPE_INSECURE_SKIP_VERIFY", false),
			RequestsPerSecond:  getFloat("SWIFTYPE_REQUESTS_PER_SECOND", 5),
			Timeout:            getDuration("SWIFTYPE_TIMEOUT", 30*time.Second),
		},
		TypesenseURL:  get("TYPESENSE_URL", "http://localhost:8108"),
		TypesenseKey:  os.Getenv("TYPESENSE_API_KEY"),
		BatchLength:   getInt("SEARCHSYNC_BATCH_LENGTH", indexing.DefaultBatchLength),
		SettleTimeout: getDuration("SEARCHSYNC_SETTLE_TIMEOUT", indexing.DefaultSettleTimeout),
		ClientName:    get("SEARCHSYNC_CLIENT_NAME", backendSwiftype),

		TimeZone:      get("SEARCHSYNC_TIME_ZONE", "UTC"),
		StrictNumeric: getBool("SEARCHSYNC_STRICT_NUMERIC", false),

		Files: FilesConfig{
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			UseSSL:          getBool("S3_USE_SSL", true),
			Bucket:          get("S3_FILES_BUCKET", "assets"),
			Public:          getBool("S3_FILES_PUBLIC", false),
			Verify:          getBool("S3_FILES_VERIFY", false),
			PresignExpiry:   getDuration("S3_PRESIGN_EXPIRY", 7*24*time.Hour),
			PublicBaseURL:   os.Getenv("PUBLIC_FILES_URL"),
		},
		Admin: AdminConfig{
			IssuerURL:      os.Getenv("AUTHORIZATION_URL"),
			ClientID:       get("AUTHORIZATION_CLIENT_ID", "searchsync"),
			Role:           get("AUTHORIZATION_ROLE", "search-admin"),
			AllowedOrigins: getList("ADMIN_ALLOWED_ORIGINS"),
		},
		EventsConfig:   events.NewEventConfig(),
		HandlerTimeout: getDuration("SEARCHSYNC_HANDLER_TIMEOUT", 5*time.Minute),
		MaxAckPending:  getInt("SEARCHSYNC_MAX_ACK_PENDING", events.DefaultMaxAckPending),
	}
}
