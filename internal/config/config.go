package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Scraper    ScraperConfig
	Browser    BrowserConfig
	Downloader DownloaderConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Consumer   ConsumerConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CreateRate      float64
	CreateBurst     int
}

type ScraperConfig struct {
	MaxItems            int
	IncludeVideos       bool
	IncludeLivestreams  bool
	JobTimeout          time.Duration
	NavigationTimeout   time.Duration
	ContentTimeout      time.Duration
	MaxStagnantAttempts int
	UserAgents          []string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type DownloaderConfig struct {
	Binary    string
	OutputDir string
	Delay     time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PollInterval time.Duration
	BatchSize    int
}

// ConsumerConfig drives the catalog stream consumer.
type ConsumerConfig struct {
	Group         string
	Name          string
	ExportDir     string
	DownloadAudio bool
	ClaimIdle     time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8084),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			CreateRate:      getFloatOrDefault("SERVER_CREATE_RATE", 0.2),
			CreateBurst:     getIntOrDefault("SERVER_CREATE_BURST", 3),
		},
		Scraper: ScraperConfig{
			MaxItems:            getIntOrDefault("SCRAPER_MAX_ITEMS", 1000),
			IncludeVideos:       getBoolOrDefault("SCRAPER_INCLUDE_VIDEOS", true),
			IncludeLivestreams:  getBoolOrDefault("SCRAPER_INCLUDE_LIVESTREAMS", true),
			JobTimeout:          getDurationOrDefault("SCRAPER_JOB_TIMEOUT", 30*time.Minute),
			NavigationTimeout:   getDurationOrDefault("SCRAPER_NAVIGATION_TIMEOUT", 60*time.Second),
			ContentTimeout:      getDurationOrDefault("SCRAPER_CONTENT_TIMEOUT", 10*time.Second),
			MaxStagnantAttempts: getIntOrDefault("SCRAPER_MAX_STAGNANT_ATTEMPTS", 5),
			UserAgents:          getListOrDefault("SCRAPER_USER_AGENTS", "|\n", nil),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1280),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Downloader: DownloaderConfig{
			Binary:    getEnvOrDefault("DOWNLOADER_BINARY", "yt-dlp"),
			OutputDir: getEnvOrDefault("DOWNLOADER_OUTPUT_DIR", "downloaded_audio"),
			Delay:     getDurationOrDefault("DOWNLOADER_DELAY", 2*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "channel_catalog"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Consumer: ConsumerConfig{
			Group:         getEnvOrDefault("CONSUMER_GROUP", "catalog-consumer-group"),
			Name:          getEnvOrDefault("CONSUMER_NAME", "consumer-1"),
			ExportDir:     getEnvOrDefault("CONSUMER_EXPORT_DIR", "catalogs"),
			DownloadAudio: getBoolOrDefault("CONSUMER_DOWNLOAD_AUDIO", false),
			ClaimIdle:     getDurationOrDefault("CONSUMER_CLAIM_IDLE", time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxItems < 1 {
		return fmt.Errorf("SCRAPER_MAX_ITEMS must be at least 1")
	}

	if !c.Scraper.IncludeVideos && !c.Scraper.IncludeLivestreams {
		return fmt.Errorf("at least one of SCRAPER_INCLUDE_VIDEOS and SCRAPER_INCLUDE_LIVESTREAMS must be enabled")
	}

	if c.Scraper.MaxStagnantAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_STAGNANT_ATTEMPTS must be at least 1")
	}

	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive")
	}

	if c.Server.CreateRate <= 0 || c.Server.CreateBurst < 1 {
		return fmt.Errorf("SERVER_CREATE_RATE must be positive and SERVER_CREATE_BURST at least 1")
	}

	if c.Downloader.Delay < 0 {
		return fmt.Errorf("DOWNLOADER_DELAY cannot be negative")
	}

	return nil
}

// DSN returns the postgres connection string for the database section.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
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

// getListOrDefault splits on any rune of seps. User agents contain commas,
// so that list is separated by "|" or newlines.
func getListOrDefault(key, seps string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		parts := strings.FieldsFunc(value, func(r rune) bool { return strings.ContainsRune(seps, r) })
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
