// Package config loads the shell configuration from config.toml plus
// SPYGLASS_ environment overrides.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" toml:"server" json:"server"`
	Store     StoreConfig     `mapstructure:"store" toml:"store" json:"store"`
	MCP       mcp.Config      `mapstructure:"mcp" toml:"mcp" json:"mcp"`
	Retention RetentionConfig `mapstructure:"retention" toml:"retention" json:"retention"`
	LogLevel  string          `mapstructure:"log_level" toml:"log_level" json:"log_level"`
}

// ServerConfig configures the boundary API server.
type ServerConfig struct {
	Host          string   `mapstructure:"host" toml:"host" json:"host"`
	Port          int      `mapstructure:"port" toml:"port" json:"port"`
	CORSOrigins   []string `mapstructure:"cors_origins" toml:"cors_origins" json:"cors_origins"`
	EnableWS      bool     `mapstructure:"enable_ws" toml:"enable_ws" json:"enable_ws"`
	EnableMetrics bool     `mapstructure:"enable_metrics" toml:"enable_metrics" json:"enable_metrics"`
}

// StoreConfig names the on-disk databases.
type StoreConfig struct {
	DBPath         string `mapstructure:"db_path" toml:"db_path" json:"db_path"`
	SettingsDBPath string `mapstructure:"settings_db_path" toml:"settings_db_path" json:"settings_db_path"`
}

// RetentionConfig controls the scheduled pruning sweep.
type RetentionConfig struct {
	HistoryDays   int    `mapstructure:"history_days" toml:"history_days" json:"history_days"`
	PruneSchedule string `mapstructure:"prune_schedule" toml:"prune_schedule" json:"prune_schedule"`
}

func Load(configPath string) (*Config, error) {
	config := &Config{}

	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("$HOME/.spyglass")
	}

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Default returns the configuration used when no config file exists.
// `spyglass init` serializes this to config.toml.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "localhost",
			Port:          7833,
			CORSOrigins:   []string{"*"},
			EnableWS:      true,
			EnableMetrics: true,
		},
		Store: StoreConfig{
			DBPath:         "./data/spyglass.db",
			SettingsDBPath: "./data/settings.db",
		},
		MCP: mcp.DefaultConfig(),
		Retention: RetentionConfig{
			HistoryDays:   90,
			PruneSchedule: "0 3 * * *",
		},
		LogLevel: "info",
	}
}

func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 7833)
	viper.SetDefault("server.cors_origins", []string{"*"})
	viper.SetDefault("server.enable_ws", true)
	viper.SetDefault("server.enable_metrics", true)

	viper.SetDefault("store.db_path", "./data/spyglass.db")
	viper.SetDefault("store.settings_db_path", "./data/settings.db")

	viper.SetDefault("mcp.enabled", true)
	viper.SetDefault("mcp.log_level", "info")
	viper.SetDefault("mcp.connect_timeout", "15s")
	viper.SetDefault("mcp.default_timeout", "30s")
	viper.SetDefault("mcp.health_check_interval", "60s")
	viper.SetDefault("mcp.health_failure_threshold", 3)

	viper.SetDefault("retention.history_days", 90)
	viper.SetDefault("retention.prune_schedule", "0 3 * * *")

	viper.SetDefault("log_level", "info")
}

func bindEnvVars() {
	viper.SetEnvPrefix("SPYGLASS")
	viper.AutomaticEnv()

	bindings := [][2]string{
		{"server.host", "SPYGLASS_SERVER_HOST"},
		{"server.port", "SPYGLASS_SERVER_PORT"},
		{"server.enable_ws", "SPYGLASS_SERVER_ENABLE_WS"},
		{"server.enable_metrics", "SPYGLASS_SERVER_ENABLE_METRICS"},
		{"store.db_path", "SPYGLASS_STORE_DB_PATH"},
		{"store.settings_db_path", "SPYGLASS_STORE_SETTINGS_DB_PATH"},
		{"mcp.enabled", "SPYGLASS_MCP_ENABLED"},
		{"mcp.connect_timeout", "SPYGLASS_MCP_CONNECT_TIMEOUT"},
		{"mcp.default_timeout", "SPYGLASS_MCP_DEFAULT_TIMEOUT"},
		{"retention.history_days", "SPYGLASS_RETENTION_HISTORY_DAYS"},
		{"log_level", "SPYGLASS_LOG_LEVEL"},
	}
	for _, b := range bindings {
		if err := viper.BindEnv(b[0], b[1]); err != nil {
			log.Printf("Warning: failed to bind %s env var: %v", b[0], err)
		}
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if c.Store.DBPath == "" {
		return fmt.Errorf("store database path cannot be empty")
	}

	if c.Store.SettingsDBPath == "" {
		return fmt.Errorf("settings database path cannot be empty")
	}

	if c.MCP.ConnectTimeout <= 0 {
		c.MCP.ConnectTimeout = 15 * time.Second
	}
	if c.MCP.DefaultTimeout <= 0 {
		c.MCP.DefaultTimeout = 30 * time.Second
	}

	if c.Retention.HistoryDays <= 0 {
		return fmt.Errorf("retention history days must be positive: %d", c.Retention.HistoryDays)
	}

	for i := range c.MCP.Servers {
		if err := c.MCP.Servers[i].Validate(); err != nil {
			return fmt.Errorf("mcp server %d: %w", i, err)
		}
	}

	return nil
}
