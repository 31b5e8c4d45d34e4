// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database    DatabaseConfig    `json:"database"`
	Server      ServerConfig      `json:"server"`
	Security    SecurityConfig    `json:"security"`
	JWT         JWTConfig         `json:"jwt"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Cache       CacheConfig       `json:"cache"`
	Deployment  DeploymentConfig  `json:"deployment"`
	Admin       AdminConfig       `json:"admin"`
	Integration IntegrationConfig `json:"integration"`
	RateLimit   RateLimitConfig   `json:"rate_limit"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	EnableMetrics     bool          `json:"enable_metrics"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// HTTP rate limiting in front of every route
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per window
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	// Headers
	CSPPolicy      string `json:"csp_policy"`
	XFrameOptions  string `json:"x_frame_options"`
	ReferrerPolicy string `json:"referrer_policy"`
	HSTSMaxAge     int    `json:"hsts_max_age"`

	// Credentials stored with the partner API configuration are sealed with this key (base64, 32 bytes)
	CredentialsEncryptionKey string `json:"-"`
}

type JWTConfig struct {
	SecretKey       string        `json:"secret_key"`
	PrivateKey      string        `json:"private_key"`  // RSA private key in PEM format
	PublicKey       string        `json:"public_key"`   // RSA public key in PEM format
	UseRSAKeys      bool          `json:"use_rsa_keys"` // Whether to use RSA keys instead of secret key
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
}

type LoggingConfig struct {
	Level      string `json:"level"` // debug, info, warn, error
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	Provider    string        `json:"provider"` // redis, memory
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// AdminConfig holds the single operator account allowed to use the admin API
type AdminConfig struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // bcrypt hash
}

// IntegrationConfig drives the partner delivery pipeline and its retry queue
type IntegrationConfig struct {
	QueueEnabled      bool          `json:"queue_enabled"`
	PollInterval      time.Duration `json:"poll_interval"`
	BatchSize         int           `json:"batch_size"`
	MaxAttempts       int           `json:"max_attempts"`
	DefaultRetryDelay time.Duration `json:"default_retry_delay"`
	FallbackDelay     time.Duration `json:"fallback_delay"`
	QueueLockTTL      time.Duration `json:"queue_lock_ttl"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
	CleanupOlderThan  time.Duration `json:"cleanup_older_than"`

	HTTPTimeout    time.Duration `json:"http_timeout"`
	HealthTimeout  time.Duration `json:"health_timeout"`
	ConfigCacheTTL time.Duration `json:"config_cache_ttl"`
	ClientRPS      float64       `json:"client_rps"`

	BackoffBase       time.Duration `json:"backoff_base"`
	BackoffMax        time.Duration `json:"backoff_max"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	BackoffJitter     bool          `json:"backoff_jitter"`

	MockEnabled     bool          `json:"mock_enabled"`
	MockDelay       time.Duration `json:"mock_delay"`
	MockFailureRate float64       `json:"mock_failure_rate"`
}

// RateLimitConfig holds the admission policies applied before each delivery
type RateLimitConfig struct {
	UserMaxRequests   int           `json:"user_max_requests"`
	UserWindow        time.Duration `json:"user_window"`
	GlobalMaxRequests int           `json:"global_max_requests"`
	GlobalWindow      time.Duration `json:"global_window"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
	StatsRetention    time.Duration `json:"stats_retention"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Load()

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads the configuration from the environment without validating it
func Load() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "instituto"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 1024*1024), // 1MB
			EnableMetrics:     getEnvBool("SERVER_ENABLE_METRICS", true),
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:           getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://coracaovalente.org.br"}),
			AllowedMethods:           getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:           getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Request-ID"}),
			AllowCredentials:         getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:               getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:          getEnvInt("GLOBAL_RATE_LIMIT", 600),
			RateLimitWindow:          getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			CSPPolicy:                getEnvString("CSP_POLICY", "default-src 'self'"),
			XFrameOptions:            getEnvString("X_FRAME_OPTIONS", "DENY"),
			ReferrerPolicy:           getEnvString("REFERRER_POLICY", "strict-origin-when-cross-origin"),
			HSTSMaxAge:               getEnvInt("HSTS_MAX_AGE", 31536000),
			CredentialsEncryptionKey: getEnvString("CREDENTIALS_ENCRYPTION_KEY", ""),
		},
		JWT: JWTConfig{
			SecretKey:       getEnvString("JWT_SECRET_KEY", ""),
			PrivateKey:      getEnvString("JWT_PRIVATE_KEY", ""),
			PublicKey:       getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys:      getEnvBool("JWT_USE_RSA_KEYS", false),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Issuer:          getEnvString("JWT_ISSUER", "instituto-integration"),
			Audience:        getEnvString("JWT_AUDIENCE", "instituto-integration-admin"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			FilePath:   getEnvString("LOG_FILE_PATH", "data/integration.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			Provider:    getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "instituto:"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
		Admin: AdminConfig{
			Username:     getEnvString("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnvString("ADMIN_PASSWORD_HASH", ""),
		},
		Integration: IntegrationConfig{
			QueueEnabled:      getEnvBool("INTEGRATION_QUEUE_ENABLED", true),
			PollInterval:      getEnvDuration("INTEGRATION_POLL_INTERVAL", 30*time.Second),
			BatchSize:         getEnvInt("INTEGRATION_BATCH_SIZE", 10),
			MaxAttempts:       getEnvInt("INTEGRATION_MAX_ATTEMPTS", 3),
			DefaultRetryDelay: getEnvDuration("INTEGRATION_DEFAULT_RETRY_DELAY", 5*time.Minute),
			FallbackDelay:     getEnvDuration("INTEGRATION_FALLBACK_DELAY", 60*time.Second),
			QueueLockTTL:      getEnvDuration("INTEGRATION_QUEUE_LOCK_TTL", 2*time.Minute),
			CleanupInterval:   getEnvDuration("INTEGRATION_CLEANUP_INTERVAL", 1*time.Hour),
			CleanupOlderThan:  getEnvDuration("INTEGRATION_CLEANUP_OLDER_THAN", 24*time.Hour),
			HTTPTimeout:       getEnvDuration("INTEGRATION_HTTP_TIMEOUT", 30*time.Second),
			HealthTimeout:     getEnvDuration("INTEGRATION_HEALTH_TIMEOUT", 10*time.Second),
			ConfigCacheTTL:    getEnvDuration("INTEGRATION_CONFIG_CACHE_TTL", 5*time.Minute),
			ClientRPS:         getEnvFloat("INTEGRATION_CLIENT_RPS", 5),
			BackoffBase:       getEnvDuration("INTEGRATION_BACKOFF_BASE", 5*time.Second),
			BackoffMax:        getEnvDuration("INTEGRATION_BACKOFF_MAX", 5*time.Minute),
			BackoffMultiplier: getEnvFloat("INTEGRATION_BACKOFF_MULTIPLIER", 2),
			BackoffJitter:     getEnvBool("INTEGRATION_BACKOFF_JITTER", true),
			MockEnabled:       getEnvBool("INTEGRATION_MOCK_ENABLED", false),
			MockDelay:         getEnvDuration("INTEGRATION_MOCK_DELAY", 1*time.Second),
			MockFailureRate:   getEnvFloat("INTEGRATION_MOCK_FAILURE_RATE", 0),
		},
		RateLimit: RateLimitConfig{
			UserMaxRequests:   getEnvInt("RATE_LIMIT_USER_MAX", 5),
			UserWindow:        getEnvDuration("RATE_LIMIT_USER_WINDOW", 5*time.Minute),
			GlobalMaxRequests: getEnvInt("RATE_LIMIT_GLOBAL_MAX", 100),
			GlobalWindow:      getEnvDuration("RATE_LIMIT_GLOBAL_WINDOW", 1*time.Hour),
			CleanupInterval:   getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
			StatsRetention:    getEnvDuration("RATE_LIMIT_STATS_RETENTION", 24*time.Hour),
		},
	}
}

// loadEnvFile loads variables from path when it exists; variables already set in the environment win
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	// Database
	if cfg.Database.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errs = append(errs, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// JWT
	if !cfg.JWT.UseRSAKeys && len(cfg.JWT.SecretKey) < 32 {
		errs = append(errs, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.UseRSAKeys && (cfg.JWT.PrivateKey == "" || cfg.JWT.PublicKey == "") {
		errs = append(errs, "JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when JWT_USE_RSA_KEYS is set")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, "JWT_REFRESH_TOKEN_TTL must be positive")
	}

	// Server
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Security
	if cfg.Security.CredentialsEncryptionKey == "" {
		errs = append(errs, "CREDENTIALS_ENCRYPTION_KEY is required")
	}
	if cfg.Admin.PasswordHash == "" {
		errs = append(errs, "ADMIN_PASSWORD_HASH is required")
	}

	// Logging
	if cfg.Logging.Level != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.Logging.Level) {
		errs = append(errs, "LOG_LEVEL must be one of: [debug info warn error]")
	}

	// Cache
	if cfg.Cache.Enabled && cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
		errs = append(errs, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
	}

	// Integration
	errs = append(errs, validateIntegration(cfg.Integration, cfg.RateLimit)...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateIntegration(ic IntegrationConfig, rl RateLimitConfig) []string {
	var errs []string
	if ic.PollInterval <= 0 {
		errs = append(errs, "INTEGRATION_POLL_INTERVAL must be positive")
	}
	if ic.BatchSize <= 0 {
		errs = append(errs, "INTEGRATION_BATCH_SIZE must be positive")
	}
	if ic.MaxAttempts <= 0 {
		errs = append(errs, "INTEGRATION_MAX_ATTEMPTS must be positive")
	}
	if ic.FallbackDelay <= 0 {
		errs = append(errs, "INTEGRATION_FALLBACK_DELAY must be positive")
	}
	if ic.HTTPTimeout <= 0 {
		errs = append(errs, "INTEGRATION_HTTP_TIMEOUT must be positive")
	}
	if ic.BackoffBase <= 0 || ic.BackoffMax < ic.BackoffBase {
		errs = append(errs, "INTEGRATION_BACKOFF_BASE must be positive and not exceed INTEGRATION_BACKOFF_MAX")
	}
	if ic.BackoffMultiplier < 1 {
		errs = append(errs, "INTEGRATION_BACKOFF_MULTIPLIER must be at least 1")
	}
	if ic.MockFailureRate < 0 || ic.MockFailureRate > 1 {
		errs = append(errs, "INTEGRATION_MOCK_FAILURE_RATE must be between 0 and 1")
	}
	if ic.ClientRPS <= 0 {
		errs = append(errs, "INTEGRATION_CLIENT_RPS must be positive")
	}
	if rl.UserMaxRequests <= 0 || rl.UserWindow <= 0 {
		errs = append(errs, "RATE_LIMIT_USER_MAX and RATE_LIMIT_USER_WINDOW must be positive")
	}
	if rl.GlobalMaxRequests <= 0 || rl.GlobalWindow <= 0 {
		errs = append(errs, "RATE_LIMIT_GLOBAL_MAX and RATE_LIMIT_GLOBAL_WINDOW must be positive")
	}
	return errs
}
