package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nufang/internal/playlist"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override the file
const (
	EnvMusicBaseURL = "NUFANG_MUSIC_BASE_URL"
	EnvBasePath     = "NUFANG_BASE_PATH"
	EnvNgrokToken   = "NGROK_AUTHTOKEN"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Player   PlayerConfig   `toml:"player"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Ngrok    NgrokConfig    `toml:"ngrok"`
}

// ServerConfig contains HTTP control surface configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
	MusicRoot   string `toml:"music_root"`
}

// PlayerConfig contains playback configuration
type PlayerConfig struct {
	Output       string  `toml:"output"` // speaker, silent or auto
	BasePath     string  `toml:"base_path"`
	MusicBaseURL string  `toml:"music_base_url"`
	DefaultMode  string  `toml:"default_mode"`
	Volume       float64 `toml:"volume"`
	FetchTimeout int     `toml:"fetch_timeout_seconds"`
}

// CatalogConfig contains album catalog configuration
type CatalogConfig struct {
	Source         string `toml:"source"` // file path or http(s) URL
	Watch          bool   `toml:"watch"`
	ProbeDurations bool   `toml:"probe_durations"`
}

// DatabaseConfig contains play history configuration
type DatabaseConfig struct {
	Enabled      bool   `toml:"enabled"`
	Path         string `toml:"path"`
	RestoreQueue bool   `toml:"restore_queue"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	RequestLogging bool   `toml:"request_logging"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled      bool   `toml:"enabled"`
	AuthToken    string `toml:"auth_token"`
	Domain       string `toml:"domain"`
	EnableAuth   bool   `toml:"enable_auth"`
	AuthProvider string `toml:"auth_provider"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			EnableCORS:  true,
			ReadTimeout: 30,
			MusicRoot:   "./public/music",
		},
		Player: PlayerConfig{
			Output:       "auto",
			BasePath:     "./public",
			DefaultMode:  string(playlist.Sequential),
			Volume:       0.7,
			FetchTimeout: 30,
		},
		Catalog: CatalogConfig{
			Source:         "./public/data/albums.json",
			Watch:          true,
			ProbeDurations: true,
		},
		Database: DatabaseConfig{
			Enabled:      true,
			Path:         "./nufang.db",
			RestoreQueue: true,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			File:           "",
			RequestLogging: true,
		},
		Ngrok: NgrokConfig{
			Enabled:      false,
			AuthToken:    "",
			Domain:       "",
			EnableAuth:   false,
			AuthProvider: "google",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating it with defaults
// when missing, then applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	} else {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads variables from a .env file when present. Variables
// already set in the environment win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides locator and tunnel settings from the environment
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvMusicBaseURL); ok {
		c.Player.MusicBaseURL = v
	}
	if v, ok := os.LookupEnv(EnvBasePath); ok {
		c.Player.BasePath = v
	}
	if c.Ngrok.AuthToken == "" {
		c.Ngrok.AuthToken = os.Getenv(EnvNgrokToken)
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# nufang player configuration
# Edit the values below to customize the player daemon.
# NUFANG_MUSIC_BASE_URL and NUFANG_BASE_PATH in the environment or .env override [player].

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	validOutputs := map[string]bool{
		"speaker": true, "silent": true, "auto": true,
	}
	if !validOutputs[c.Player.Output] {
		return fmt.Errorf("invalid player output: %s (must be speaker, silent, or auto)", c.Player.Output)
	}
	if _, err := playlist.ParseMode(c.Player.DefaultMode); err != nil {
		return fmt.Errorf("invalid default mode: %w", err)
	}
	if c.Player.Volume < 0 || c.Player.Volume > 1 {
		return fmt.Errorf("player volume must be between 0 and 1")
	}
	if c.Player.FetchTimeout < 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.Player.MusicBaseURL != "" &&
		!strings.HasPrefix(c.Player.MusicBaseURL, "http://") && !strings.HasPrefix(c.Player.MusicBaseURL, "https://") {
		return fmt.Errorf("music base url must be an http(s) URL")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// DefaultMode returns the configured starting play mode
func (c *Config) DefaultMode() playlist.Mode {
	mode, err := playlist.ParseMode(c.Player.DefaultMode)
	if err != nil {
		return playlist.Sequential
	}
	return mode
}
