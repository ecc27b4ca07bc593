package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Game     GameConfig     `mapstructure:"game"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Database DatabaseConfig `mapstructure:"database"`
	API      APIConfig      `mapstructure:"api"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Server   ServerConfig   `mapstructure:"server"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// GameConfig locates the game's save file and where tracker state is kept
type GameConfig struct {
	SaveFile string `mapstructure:"save_file"`
	DataDir  string `mapstructure:"data_dir"`
}

// WatchConfig controls when the save file is re-evaluated
type WatchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	PollInterval time.Duration `mapstructure:"poll_interval"` // 0 = rely on file events only
}

// DatabaseConfig holds the match database sink configuration
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // sqlite or postgres
	DSN     string `mapstructure:"dsn"`
}

// APIConfig holds the remote stats API sink configuration
type APIConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Token          string        `mapstructure:"token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// ServerConfig holds the query HTTP server configuration
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// NotifyConfig controls match notification fan-out
type NotifyConfig struct {
	QueueSize   int           `mapstructure:"queue_size"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file, an optional .env file and environment
// variables. A missing file at path is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ARCHERSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	saveFile, dataDir := DefaultPaths(runtime.GOOS)

	// Game defaults
	v.SetDefault("game.save_file", saveFile)
	v.SetDefault("game.data_dir", dataDir)

	// Watch defaults
	v.SetDefault("watch.debounce", "500ms")
	v.SetDefault("watch.poll_interval", "30s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(dataDir, "archerstats.db"))

	// API defaults
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_delay_base", "1s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", "127.0.0.1:8089")

	// Notify defaults
	v.SetDefault("notify.queue_size", 64)
	v.SetDefault("notify.sink_timeout", "15s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// DefaultPaths returns where the game keeps tf_saveData on goos, and the directory used
// for tracker state by default.
func DefaultPaths(goos string) (saveFile, dataDir string) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch goos {
	case "darwin":
		dir := filepath.Join(home, "Library", "Application Support", "TowerFall")
		return filepath.Join(dir, "tf_saveData"), dir
	case "windows":
		return filepath.Join("C:\\", "Program Files (x86)", "Steam", "steamapps", "common", "TowerFall", "tf_saveData"),
			filepath.Join(home, "Documents", "TowerFall Stats")
	default:
		dir := filepath.Join(home, ".local", "share", "TowerFall")
		return filepath.Join(dir, "tf_saveData"), dir
	}
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Game config
	if c.Game.SaveFile == "" {
		return fmt.Errorf("game.save_file is required")
	}
	if c.Game.DataDir == "" {
		return fmt.Errorf("game.data_dir is required")
	}

	// Validate Watch config
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if c.Watch.PollInterval != 0 && c.Watch.PollInterval < time.Second {
		return fmt.Errorf("watch.poll_interval must be 0 or at least 1 second")
	}

	// Validate Database config
	if c.Database.Enabled {
		validDrivers := map[string]bool{"sqlite": true, "postgres": true}
		if !validDrivers[c.Database.Driver] {
			return fmt.Errorf("database.driver must be one of: sqlite, postgres")
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when database is enabled")
		}
	}

	// Validate API config
	if c.API.Enabled {
		if c.API.URL == "" {
			return fmt.Errorf("api.url is required when api is enabled")
		}
		if c.API.Timeout <= 0 {
			return fmt.Errorf("api.timeout must be positive")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Server config
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server is enabled")
	}

	// Validate Notify config
	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("notify.queue_size must be at least 1")
	}
	if c.Notify.SinkTimeout <= 0 {
		return fmt.Errorf("notify.sink_timeout must be positive")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// SnapshotFile is where the last observed lifetime counters are kept
func (c *Config) SnapshotFile() string {
	return filepath.Join(c.Game.DataDir, "liveSnapshot.json")
}

// LiveStatsFile is where the current session aggregate is kept
func (c *Config) LiveStatsFile() string {
	return filepath.Join(c.Game.DataDir, "liveStats.json")
}
