package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Proxy    ProxyConfig
	Pricing  PricingConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryJitterPct    float64
	BreakerThreshold  int
	BreakerCooldown   time.Duration
	BreakerWindow     time.Duration
	SettleDelay       time.Duration
	WalmartGatewayURL string
}

type BrowserConfig struct {
	Capacity          int
	Headless          bool
	NavigationTimeout time.Duration
	MinDelay          time.Duration
	MaxDelay          time.Duration
}

type ProxyConfig struct {
	GatewayURL      string
	Endpoints       []string
	ReactivateEvery time.Duration
}

type PricingConfig struct {
	DefaultShipping float64
	TargetMargin    float64
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			MaxRetries:        getIntOrDefault("SCRAPER_MAX_RETRIES", 2),
			RetryBaseDelay:    getDurationOrDefault("SCRAPER_RETRY_BASE_DELAY", 2*time.Second),
			RetryJitterPct:    getFloatOrDefault("SCRAPER_RETRY_JITTER_PCT", 0.25),
			BreakerThreshold:  getIntOrDefault("SCRAPER_BREAKER_THRESHOLD", 5),
			BreakerCooldown:   getDurationOrDefault("SCRAPER_BREAKER_COOLDOWN", 5*time.Minute),
			BreakerWindow:     getDurationOrDefault("SCRAPER_BREAKER_WINDOW", 10*time.Minute),
			SettleDelay:       getDurationOrDefault("SCRAPER_SETTLE_DELAY", 3*time.Second),
			WalmartGatewayURL: getEnvOrDefault("WALMART_GATEWAY_URL", ""),
		},
		Browser: BrowserConfig{
			Capacity:          getIntOrDefault("BROWSER_CAPACITY", 3),
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", true),
			NavigationTimeout: getDurationOrDefault("BROWSER_NAVIGATION_TIMEOUT", 30*time.Second),
			MinDelay:          getDurationOrDefault("BROWSER_MIN_DELAY", 2*time.Second),
			MaxDelay:          getDurationOrDefault("BROWSER_MAX_DELAY", 5*time.Second),
		},
		Proxy: ProxyConfig{
			GatewayURL:      getEnvOrDefault("PROXY_GATEWAY_URL", ""),
			Endpoints:       getStringSliceOrDefault("PROXY_ENDPOINTS", []string{}),
			ReactivateEvery: getDurationOrDefault("PROXY_REACTIVATE_EVERY", 10*time.Minute),
		},
		Pricing: PricingConfig{
			DefaultShipping: getFloatOrDefault("PRICING_DEFAULT_SHIPPING", 5.00),
			TargetMargin:    getFloatOrDefault("PRICING_TARGET_MARGIN", 0.20),
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Browser.Capacity < 1 {
		return fmt.Errorf("BROWSER_CAPACITY must be at least 1")
	}
	if c.Browser.MinDelay > c.Browser.MaxDelay {
		return fmt.Errorf("BROWSER_MIN_DELAY cannot be greater than BROWSER_MAX_DELAY")
	}
	if c.Scraper.RetryJitterPct <= 0 || c.Scraper.RetryJitterPct > 1 {
		return fmt.Errorf("SCRAPER_RETRY_JITTER_PCT must be between 0 and 1")
	}
	if c.Scraper.BreakerThreshold < 1 {
		return fmt.Errorf("SCRAPER_BREAKER_THRESHOLD must be at least 1")
	}
	if c.Pricing.TargetMargin <= 0 || c.Pricing.TargetMargin >= 1 {
		return fmt.Errorf("PRICING_TARGET_MARGIN must be between 0 and 1")
	}
	return nil
}

// Addr is the host:port pair the HTTP server binds to.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
