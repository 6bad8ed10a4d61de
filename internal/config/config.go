package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Crawl    CrawlConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
}

type DatabaseConfig struct {
	Host           string
	Port           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	PoolMaxConns   int32
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

type CrawlConfig struct {
	// OpenFDAAPIKey raises the openFDA rate limit; requests work without it.
	OpenFDAAPIKey string
	// KeywordsFile points at the newline-delimited search keyword list.
	KeywordsFile string
	// JoinTimeout bounds the wait for all parallel crawler types.
	JoinTimeout time.Duration
	// DuplicateStreak is the consecutive all-duplicate-batch stop threshold.
	DuplicateStreak int
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

func Load() (Config, error) {
	cfg := Config{}

	var missing []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key, def string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		return v
	}

	cfg.App = AppConfig{
		AppName:     opt("APP_NAME", "regcrawl"),
		Environment: opt("APP_ENV", "development"),
		HTTPPort:    req("HTTP_PORT"),
	}

	cfg.Database = DatabaseConfig{
		Host:           req("DB_HOST"),
		Port:           opt("DB_PORT", "5432"),
		Name:           req("DB_NAME"),
		User:           req("DB_USER"),
		Password:       os.Getenv("DB_PASSWORD"),
		SSLMode:        opt("DB_SSL_MODE", "disable"),
		PoolMaxConns:   int32(intEnv("DB_POOL_MAX_CONNS", 0)),
		ConnectTimeout: durationEnv("DB_CONNECT_TIMEOUT", 0),
	}

	cfg.Redis = RedisConfig{
		Host:     opt("REDIS_HOST", "localhost"),
		Port:     opt("REDIS_PORT", "6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret: req("JWT_SECRET"),
	}

	cfg.Crawl = CrawlConfig{
		OpenFDAAPIKey:   strings.TrimSpace(os.Getenv("OPENFDA_API_KEY")),
		KeywordsFile:    opt("CRAWL_KEYWORDS_FILE", "keywords.txt"),
		JoinTimeout:     durationEnv("CRAWL_JOIN_TIMEOUT", 30*time.Minute),
		DuplicateStreak: intEnv("CRAWL_DUPLICATE_STREAK", 3),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	return cfg, nil
}

func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
