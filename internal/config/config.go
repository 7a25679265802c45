package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	AppMode  string
	Port     string
	Timezone string
	Database DatabaseConfig
	JWT      JWTConfig
	Cookie   CookieConfig
	Links    LinkConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Limits   RateLimitConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string // mysql, postgres or memory
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds portal credential configuration
type JWTConfig struct {
	Secret      string
	TokenHours  int
	RefreshLead time.Duration
}

// CookieConfig holds cookie configuration
type CookieConfig struct {
	Secure   bool
	SameSite string
	Domain   string
}

// LinkConfig holds contractor link settings
type LinkConfig struct {
	ScheduleTTL        time.Duration
	InvoiceTTL         time.Duration
	InvoiceUnlockDelay time.Duration
	PublicBaseURL      string
}

// StorageConfig selects where invoice documents go
type StorageConfig struct {
	Driver     string // local or s3
	Dir        string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string
}

// RedisConfig holds the credential denylist connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig holds per-IP request limits per minute. Zero disables a limit.
type RateLimitConfig struct {
	General int
	Auth    int
	Links   int
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Get APP_MODE (default to "dev") - trim spaces for Windows compatibility
	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	config := &Config{
		AppMode:  appMode,
		Port:     getEnv("PORT", "3000"),
		Timezone: getEnv("APP_TIMEZONE", "Local"),
		Database: loadDatabaseConfig(appMode),
		JWT:      loadJWTConfig(appMode),
		Cookie:   loadCookieConfig(appMode),
		Links:    loadLinkConfig(),
		Storage:  loadStorageConfig(),
		Redis:    loadRedisConfig(),
		Limits:   loadRateLimitConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Set global config
	AppConfig = config

	log.Printf("✅ Configuration loaded successfully [MODE: %s, DB: %s, STORAGE: %s]",
		appMode, config.Database.Driver, config.Storage.Driver)
	return config, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("invalid DB_DRIVER: '%s' (must be mysql, postgres or memory)", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local", "s3":
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER: '%s' (must be local or s3)", c.Storage.Driver)
	}
	if c.Storage.Driver == "s3" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
	}
	if c.JWT.TokenHours < 1 {
		return fmt.Errorf("PORTAL_TOKEN_HOURS must be at least 1")
	}
	if c.IsProd() && c.JWT.Secret == "default_secret" {
		return fmt.Errorf("PROD_JWT_SECRET must be set in prod mode")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	return nil
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) DatabaseConfig {
	prefix := modePrefix(mode)
	driver := strings.ToLower(getEnv("DB_DRIVER", "mysql"))

	defaultPort := "3306"
	if driver == "postgres" {
		defaultPort = "5432"
	}

	return DatabaseConfig{
		Driver:   driver,
		Host:     getEnv(prefix+"DB_HOST", "localhost"),
		Port:     getEnv(prefix+"DB_PORT", defaultPort),
		User:     getEnv(prefix+"DB_USER", "root"),
		Password: getEnv(prefix+"DB_PASS", ""),
		DBName:   getEnv(prefix+"DB_NAME", "propdesk"),
		SSLMode:  getEnv(prefix+"DB_SSLMODE", "disable"),
	}
}

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(mode string) JWTConfig {
	return JWTConfig{
		Secret:      getEnv(modePrefix(mode)+"JWT_SECRET", "default_secret"),
		TokenHours:  getEnvInt("PORTAL_TOKEN_HOURS", 24),
		RefreshLead: time.Duration(getEnvInt("PORTAL_REFRESH_LEAD_MINUTES", 5)) * time.Minute,
	}
}

// loadCookieConfig loads cookie config based on mode
func loadCookieConfig(mode string) CookieConfig {
	secure, _ := strconv.ParseBool(getEnv(modePrefix(mode)+"COOKIE_SECURE", "false"))

	return CookieConfig{
		Secure:   secure,
		SameSite: getEnv("COOKIE_SAMESITE", "lax"),
		Domain:   getEnv("COOKIE_DOMAIN", ""),
	}
}

func loadLinkConfig() LinkConfig {
	return LinkConfig{
		ScheduleTTL:        time.Duration(getEnvInt("SCHEDULE_LINK_TTL_HOURS", 168)) * time.Hour,
		InvoiceTTL:         time.Duration(getEnvInt("INVOICE_LINK_TTL_HOURS", 720)) * time.Hour,
		InvoiceUnlockDelay: time.Duration(getEnvInt("INVOICE_UNLOCK_DELAY_MINUTES", 60)) * time.Minute,
		PublicBaseURL:      strings.TrimRight(getEnv("PORTAL_PUBLIC_URL", "http://localhost:5173"), "/"),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Driver:     strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
		Dir:        getEnv("STORAGE_DIR", "./uploads"),
		S3Bucket:   getEnv("S3_BUCKET", ""),
		S3Region:   getEnv("S3_REGION", "us-east-1"),
		S3Endpoint: getEnv("S3_ENDPOINT", ""),
		S3Prefix:   getEnv("S3_PREFIX", "invoices/"),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		General: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		Auth:    getEnvInt("AUTH_RATE_LIMIT_PER_MINUTE", 5),
		Links:   getEnvInt("LINK_RATE_LIMIT_PER_MINUTE", 30),
	}
}

func modePrefix(mode string) string {
	if mode == "prod" {
		return "PROD_"
	}
	return "DEV_"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// Location returns the business time zone used for appointment slots.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// PortalTokenLifetime returns how long an issued portal credential lives.
func (c *Config) PortalTokenLifetime() time.Duration {
	return time.Duration(c.JWT.TokenHours) * time.Hour
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		return c.Links.PublicBaseURL
	}
	return origins
}
