package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Payment    PaymentConfig    `yaml:"payment"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	AMQP       AMQPConfig       `yaml:"amqp"`
	Google     GoogleConfig     `yaml:"google"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Bot        BotConfig        `yaml:"bot"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type APIConfig struct {
	HTTP           APIHTTPConfig      `yaml:"http"`
	GRPC           APIGRPCConfig      `yaml:"grpc"`
	Keys           APIKeysConfig      `yaml:"keys"`
	RateLimit      APIRateLimitConfig `yaml:"rate_limit"`
	RequestTimeout time.Duration      `yaml:"request_timeout"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	// TrustProxy reads the client IP from X-Forwarded-For set by a proxy on
	// a private network. Off, the socket peer address is used.
	TrustProxy bool `yaml:"trust_proxy"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// APIKeysConfig guards the machine-to-machine gRPC surface.
type APIKeysConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	Clients      []APIClientKey `yaml:"clients"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	AdminUsername string        `yaml:"admin_username"`
	AdminEmail    string        `yaml:"admin_email"`
	AdminPassword string        `yaml:"admin_password"`
}

type PaymentConfig struct {
	SimulatedDelay time.Duration `yaml:"simulated_delay"`
}

type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
	Debug       bool   `yaml:"debug"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	CartTTL  time.Duration `yaml:"cart_ttl"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	CredentialsFile       string           `yaml:"credentials_file"`
	BookingsSpreadsheetID string           `yaml:"bookings_spreadsheet_id"`
	BookingsSheetName     string           `yaml:"bookings_sheet_name"`
	Sync                  GoogleSyncConfig `yaml:"sync"`
}

// GoogleSyncConfig controls how failed sheet writes are retried before they
// land in the dead letter list.
type GoogleSyncConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Jitter     float64       `yaml:"jitter"`
}

type CatalogConfig struct {
	SeedFile string `yaml:"seed_file"`
	// CacheTTL bounds how stale a resolved record may be after a change made
	// outside the API. Negative turns the cache off.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// BotConfig configures the storefront bot in cmd/bot.
type BotConfig struct {
	APIBaseURL   string        `yaml:"api_base_url"`
	APIToken     string        `yaml:"api_token"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	UseRedis     bool          `yaml:"use_redis"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional, values may come from the real environment
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth jwt_secret must be at least 16 characters")
	}
	if c.API.RateLimit.RPS < 0 || c.API.RateLimit.Burst < 0 {
		return errors.New("api rate_limit values must be non-negative")
	}
	if c.Google.BookingsSpreadsheetID != "" && c.Google.CredentialsFile == "" {
		return errors.New("google credentials_file is required when bookings_spreadsheet_id is set")
	}
	if c.Google.Sync.Jitter < 0 || c.Google.Sync.Jitter > 1 {
		return errors.New("google sync jitter must be between 0 and 1")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "urban-harvest-hub"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = 10 * time.Second
	}
	if c.API.Keys.HeaderAPIKey == "" {
		c.API.Keys.HeaderAPIKey = "x-api-key"
	}
	if c.API.Keys.HeaderExtra == "" {
		c.API.Keys.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.AdminUsername == "" {
		c.Auth.AdminUsername = "admin"
	}
	if c.Payment.SimulatedDelay == 0 {
		c.Payment.SimulatedDelay = 1500 * time.Millisecond
	}
	if c.Redis.CartTTL == 0 {
		c.Redis.CartTTL = 7 * 24 * time.Hour
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "urbanharvest.events"
	}
	if c.Google.BookingsSheetName == "" {
		c.Google.BookingsSheetName = "Bookings"
	}
	if c.Catalog.CacheTTL == 0 {
		c.Catalog.CacheTTL = 30 * time.Second
	}
	if c.Google.Sync.MaxRetries == 0 {
		c.Google.Sync.MaxRetries = 5
	}
	if c.Google.Sync.BaseDelay == 0 {
		c.Google.Sync.BaseDelay = 2 * time.Second
	}
	if c.Google.Sync.MaxDelay == 0 {
		c.Google.Sync.MaxDelay = time.Minute
	}
	if c.Backup.Enabled && c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Bot.CacheTTL == 0 {
		c.Bot.CacheTTL = 5 * time.Minute
	}
	if c.Bot.APIBaseURL == "" {
		c.Bot.APIBaseURL = fmt.Sprintf("http://localhost:%d", c.API.HTTP.Port)
	}
}
