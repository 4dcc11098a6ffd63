package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// YouTube
	YouTubeAPIKey string

	// Store
	StoreDriver string // bolt or sqlite

	// Refresh
	RefreshTTL         time.Duration // Age after which remote metadata is stale (default: 6h)
	RefreshSchedule    string        // Cron expression for periodic refresh passes
	RefreshConcurrency int           // In-flight refreshes, clamped to 1..4

	// Remote calls
	RemoteTimeout time.Duration // Per-call timeout, independent of the HTTP client
	RemoteRetries int           // Retries of transient failures within one call

	// Catalog
	LoadConcurrency    int
	MaxPages           int
	LocalCountCacheTTL time.Duration
	WatchLocal         bool
	SortOrder          string // configured or title

	// Server
	ServerPort string

	// Paths
	ConfigDir    string
	SourcesFile  string // $CONFIG_DIR/sources.yaml
	IgnoreFile   string // $CONFIG_DIR/ignore.txt
	ThumbnailDir string // $CONFIG_DIR/thumbnails
	DatabaseFile string // $CONFIG_DIR/tubenest.db or tubenest.sqlite

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("STORE_DRIVER", "bolt")
	viper.SetDefault("REFRESH_TTL_HOURS", 6)
	viper.SetDefault("REFRESH_SCHEDULE", "0 * * * *")
	viper.SetDefault("REFRESH_CONCURRENCY", 4)
	viper.SetDefault("REMOTE_TIMEOUT_SECONDS", 20)
	viper.SetDefault("REMOTE_RETRIES", 2)
	viper.SetDefault("LOAD_CONCURRENCY", 4)
	viper.SetDefault("MAX_PAGES", 20)
	viper.SetDefault("LOCAL_COUNT_CACHE_MINUTES", 5)
	viper.SetDefault("WATCH_LOCAL", true)
	viper.SetDefault("SORT_ORDER", "configured")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "tubenest")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		// YouTube
		YouTubeAPIKey: viper.GetString("YOUTUBE_API_KEY"),

		// Store
		StoreDriver: viper.GetString("STORE_DRIVER"),

		// Refresh
		RefreshTTL:         time.Duration(viper.GetInt("REFRESH_TTL_HOURS")) * time.Hour,
		RefreshSchedule:    viper.GetString("REFRESH_SCHEDULE"),
		RefreshConcurrency: clamp(viper.GetInt("REFRESH_CONCURRENCY"), 1, 4),

		// Remote calls
		RemoteTimeout: time.Duration(viper.GetInt("REMOTE_TIMEOUT_SECONDS")) * time.Second,
		RemoteRetries: viper.GetInt("REMOTE_RETRIES"),

		// Catalog
		LoadConcurrency:    clamp(viper.GetInt("LOAD_CONCURRENCY"), 1, 16),
		MaxPages:           viper.GetInt("MAX_PAGES"),
		LocalCountCacheTTL: time.Duration(viper.GetInt("LOCAL_COUNT_CACHE_MINUTES")) * time.Minute,
		WatchLocal:         viper.GetBool("WATCH_LOCAL"),
		SortOrder:          viper.GetString("SORT_ORDER"),

		// Server
		ServerPort: viper.GetString("SERVER_PORT"),

		// Paths
		ConfigDir:    configDir,
		SourcesFile:  filepath.Join(configDir, "sources.yaml"),
		IgnoreFile:   filepath.Join(configDir, "ignore.txt"),
		ThumbnailDir: filepath.Join(configDir, "thumbnails"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	switch config.StoreDriver {
	case "bolt":
		config.DatabaseFile = filepath.Join(configDir, "tubenest.db")
	case "sqlite":
		config.DatabaseFile = filepath.Join(configDir, "tubenest.sqlite")
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be bolt or sqlite, got %q", config.StoreDriver)
	}

	// Validate
	if config.RefreshTTL <= 0 {
		return nil, fmt.Errorf("REFRESH_TTL_HOURS must be positive")
	}
	if config.RemoteTimeout <= 0 {
		return nil, fmt.Errorf("REMOTE_TIMEOUT_SECONDS must be positive")
	}
	if config.MaxPages < 1 {
		return nil, fmt.Errorf("MAX_PAGES must be at least 1")
	}
	if config.RemoteRetries < 0 {
		config.RemoteRetries = 0
	}
	if config.SortOrder != "configured" && config.SortOrder != "title" {
		return nil, fmt.Errorf("SORT_ORDER must be configured or title, got %q", config.SortOrder)
	}

	return config, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
