package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig groups HTTP server settings.
type ServerConfig struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutDownTimeout    time.Duration
	RequestTimeout     time.Duration
	CORSAllowedOrigins string
}

// DataConfig groups persistence settings.
type DataConfig struct {
	FilePath        string
	WatcherDebounce time.Duration
}

// AutosaveConfig groups the write-coalescing scheduler settings.
type AutosaveConfig struct {
	IdleInterval   time.Duration
	ImmediateFirst bool
	Disabled       bool
}

// MiscConfig groups everything else.
type MiscConfig struct {
	GinMode  string
	LogLevel string
}

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Autosave AutosaveConfig
	Misc     MiscConfig
}

// LoadConfig reads config.yaml (if present), applies defaults and environment
// overrides (GO_COALESCE_* variables), and validates the result.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Defaults to allow running without config file
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "5s")
	viper.SetDefault("server.request_timeout", "1s")
	viper.SetDefault("server.cors_allowed_origins", "*")
	viper.SetDefault("data.file_path", "./config/data/document.json")
	viper.SetDefault("data.watcher_debounce", "200ms")
	viper.SetDefault("autosave.idle_interval", "5s")
	viper.SetDefault("autosave.immediate_first", true)
	viper.SetDefault("autosave.disabled", false)
	viper.SetDefault("misc.gin_mode", "release")
	viper.SetDefault("misc.log_level", "info")

	// Environment variables automatically override config file values,
	// e.g. GO_COALESCE_SERVER_PORT overrides server.port.
	viper.AutomaticEnv()
	viper.SetEnvPrefix("GO_COALESCE")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               viper.GetInt("server.port"),
			ReadTimeout:        viper.GetDuration("server.read_timeout"),
			WriteTimeout:       viper.GetDuration("server.write_timeout"),
			IdleTimeout:        viper.GetDuration("server.idle_timeout"),
			ShutDownTimeout:    viper.GetDuration("server.shutdown_timeout"),
			RequestTimeout:     viper.GetDuration("server.request_timeout"),
			CORSAllowedOrigins: viper.GetString("server.cors_allowed_origins"),
		},
		Data: DataConfig{
			FilePath:        viper.GetString("data.file_path"),
			WatcherDebounce: viper.GetDuration("data.watcher_debounce"),
		},
		Autosave: AutosaveConfig{
			IdleInterval:   viper.GetDuration("autosave.idle_interval"),
			ImmediateFirst: viper.GetBool("autosave.immediate_first"),
			Disabled:       viper.GetBool("autosave.disabled"),
		},
		Misc: MiscConfig{
			GinMode:  viper.GetString("misc.gin_mode"),
			LogLevel: viper.GetString("misc.log_level"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return errors.New("server read/write timeouts must be positive")
	}
	if c.Server.ShutDownTimeout <= 0 {
		return errors.New("server shutdown timeout must be positive")
	}
	if c.Data.FilePath == "" {
		return errors.New("data file path is required")
	}
	if c.Data.WatcherDebounce <= 0 {
		return errors.New("watcher debounce must be positive")
	}
	if !c.Autosave.Disabled && c.Autosave.IdleInterval <= 0 {
		return errors.New("autosave idle interval must be positive")
	}
	return nil
}
