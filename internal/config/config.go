package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultDSN         = "host=localhost user=postgres password=postgres dbname=transport port=5432 sslmode=disable"
	defaultCORSOrigins = "http://localhost:3000"
)

type Config struct {
	HTTPPort    string
	CORSOrigins string

	DatabaseDSN      string
	DBMaxOpenConns   int
	DBMaxIdleConns   int
	DBConnectRetries int
	DBRetryBackoff   time.Duration

	JWTSecret          string
	LoginRatePerMinute int
	LoginRateBurst     int

	RedisAddr            string // empty disables redis
	RedisPassword        string
	RedisDB              int
	NotificationCacheTTL time.Duration

	WhatsAppCountryCode string
	FanoutConcurrency   int

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and the environment. A missing or short JWT
// secret is an error; default DSN and CORS values only produce warnings.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("CORS_ALLOWED_ORIGINS", defaultCORSOrigins)
	v.SetDefault("DATABASE_DSN", defaultDSN)
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONNECT_RETRIES", 5)
	v.SetDefault("DB_RETRY_BACKOFF", "2s")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 10)
	v.SetDefault("LOGIN_RATE_BURST", 5)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NOTIFICATION_CACHE_TTL", "30s")
	v.SetDefault("WHATSAPP_COUNTRY_CODE", "91")
	v.SetDefault("FANOUT_CONCURRENCY", 8)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	cfg := &Config{
		HTTPPort:             v.GetString("HTTP_PORT"),
		CORSOrigins:          v.GetString("CORS_ALLOWED_ORIGINS"),
		DatabaseDSN:          v.GetString("DATABASE_DSN"),
		DBMaxOpenConns:       v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:       v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnectRetries:     v.GetInt("DB_CONNECT_RETRIES"),
		DBRetryBackoff:       v.GetDuration("DB_RETRY_BACKOFF"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		LoginRatePerMinute:   v.GetInt("LOGIN_RATE_PER_MINUTE"),
		LoginRateBurst:       v.GetInt("LOGIN_RATE_BURST"),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDB:              v.GetInt("REDIS_DB"),
		NotificationCacheTTL: v.GetDuration("NOTIFICATION_CACHE_TTL"),
		WhatsAppCountryCode:  strings.TrimPrefix(v.GetString("WHATSAPP_COUNTRY_CODE"), "+"),
		FanoutConcurrency:    v.GetInt("FANOUT_CONCURRENCY"),
		LogLevel:             strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:            strings.ToLower(v.GetString("LOG_FORMAT")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN is using the default value, set your own Postgres DSN in production.")
	}
	if cfg.CORSOrigins == defaultCORSOrigins {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS is using the default value, set your own domain in production.")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.FanoutConcurrency <= 0 {
		c.FanoutConcurrency = 1
	}
	if c.DBConnectRetries <= 0 {
		c.DBConnectRetries = 1
	}
	return nil
}

// CORSOriginList splits the comma separated origin list and trims each entry.
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String masks secrets.
func (c *Config) String() string {
	return fmt.Sprintf("Config{HTTP: %s, Redis: %q, LogLevel: %s, JWT: ***}", c.HTTPPort, c.RedisAddr, c.LogLevel)
}
