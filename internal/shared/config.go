package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	HTTPTimeout time.Duration

	StoreDriver string // badger | mysql
	BadgerPath  string
	MySQLDSN    string

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration

	IdentityMode    string // jwt | remote
	JWTSecret       string
	IdentityBaseURL string
	IdentityRPS     int

	TxMaxAttempts    int
	TxBackoff        time.Duration
	ReconcileWorkers int
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, seeds variables that are not already set.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg(".env could not be parsed")
	}

	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		HTTPTimeout: time.Duration(atoi("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,

		StoreDriver: strings.ToLower(env("STORE_DRIVER", "badger")),
		BadgerPath:  env("BADGER_PATH", "./data/badger"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/housing?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),

		RedisAddr: env("REDIS_ADDR", ""),
		RedisPass: env("REDIS_PASSWORD", ""),
		RedisDB:   atoi("REDIS_DB", 0),
		CacheTTL:  time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,

		IdentityMode:    strings.ToLower(env("IDENTITY_MODE", "jwt")),
		JWTSecret:       env("JWT_SECRET", ""),
		IdentityBaseURL: env("IDENTITY_BASE_URL", ""),
		IdentityRPS:     atoi("IDENTITY_RPS", 50),

		TxMaxAttempts:    atoi("TX_MAX_ATTEMPTS", 8),
		TxBackoff:        time.Duration(atoi("TX_BACKOFF_MS", 5)) * time.Millisecond,
		ReconcileWorkers: atoi("RECONCILE_WORKERS", 8),
	}
	if c.IdentityMode == "jwt" && c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty")
	}
	if c.RedisAddr == "" {
		log.Warn().Msg("REDIS_ADDR is empty; rating summaries will not be cached")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer; using default")
	}
	return def
}
