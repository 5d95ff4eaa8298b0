package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// StorageBackend はセッションストレージの保存先を表す。
type StorageBackend string

const (
	StoragePostgres StorageBackend = "postgres"
	StorageRedis    StorageBackend = "redis"
	StorageMemory   StorageBackend = "memory"
)

// dotEnvFile は起動時に任意で読み込む.envファイルのパス。
const dotEnvFile = ".env"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Gateway
	GatewayBaseURL     string        `env:"GATEWAY_BASE_URL"`
	IdentityPath       string        `env:"GATEWAY_IDENTITY_PATH, default=auth"`
	CatalogPath        string        `env:"GATEWAY_CATALOG_PATH, default=games"`
	InventoryPath      string        `env:"GATEWAY_INVENTORY_PATH, default=inventory"`
	WishlistPath       string        `env:"GATEWAY_WISHLIST_PATH, default=wishlist"`
	PaymentPath        string        `env:"GATEWAY_PAYMENT_PATH, default=payment"`
	GatewayTimeout     time.Duration `env:"GATEWAY_TIMEOUT, default=10s"`
	CatalogPageSize    int           `env:"CATALOG_PAGE_SIZE, default=12"`
	LibraryConcurrency int           `env:"LIBRARY_FETCH_CONCURRENCY, default=4"`

	// Storage
	StorageBackend StorageBackend `env:"STORAGE_BACKEND, default=postgres"`
	DatabaseURL    string         `env:"DATABASE_URL"`
	RedisAddr      string         `env:"REDIS_ADDR, default=localhost:6379"`
	RedisDB        int            `env:"REDIS_DB, default=0"`

	// Session
	SessionMaxAge int `env:"SESSION_MAX_AGE, default=604800"`

	// Indicator
	IndicatorPollInterval time.Duration `env:"INDICATOR_POLL_INTERVAL, default=5s"`

	// Rate Limit（req/min/IP）
	LoginRateLimit int `env:"LOGIN_RATE_LIMIT, default=20"`

	// Media
	MediaFetchTimeout time.Duration `env:"MEDIA_FETCH_TIMEOUT, default=10s"`
	MediaMaxSize      int64         `env:"MEDIA_MAX_SIZE, default=5242880"`

	// Logging
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// Server
	ServerPort string `env:"SERVER_PORT, default=8080"`
	BaseURL    string `env:"BASE_URL, default=http://localhost:8080"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", dotEnvFile, err)
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	// Required fields
	var missing []string

	if cfg.GatewayBaseURL == "" {
		missing = append(missing, "GATEWAY_BASE_URL")
	}

	switch cfg.StorageBackend {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StorageRedis:
		if cfg.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND: %q", cfg.StorageBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.GatewayBaseURL = strings.TrimRight(cfg.GatewayBaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	if cfg.LibraryConcurrency <= 0 {
		cfg.LibraryConcurrency = 1
	}

	return cfg, nil
}

// ServiceURL はゲートウェイのベースURLとサービスパスを結合する。
func (c *Config) ServiceURL(path string) string {
	return c.GatewayBaseURL + "/" + strings.TrimLeft(path, "/")
}
