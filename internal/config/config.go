// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Search    SearchConfig    `mapstructure:"search"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Clients   ClientsConfig   `mapstructure:"clients"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// CacheConfig holds provider result cache configuration.
type CacheConfig struct {
	// Trimming enables age-based deletion of cached results.
	Trimming bool `mapstructure:"trimming"`
	// MaxAgeDays is the retention window applied when trimming is enabled.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// SearchConfig holds search scheduling configuration.
type SearchConfig struct {
	// DailyFrequencyMinutes is how often the daily search scheduler fires.
	DailyFrequencyMinutes int `mapstructure:"daily_frequency_minutes"`
	// BacklogFrequencyMinutes is the minimum spacing between full backlog cycles.
	BacklogFrequencyMinutes int `mapstructure:"backlog_frequency_minutes"`
	// BacklogDays bounds limited backlog cycles to recently aired episodes.
	BacklogDays int `mapstructure:"backlog_days"`
	// CPUPreset selects the inter-snatch delay: "low", "normal" or "high".
	CPUPreset string `mapstructure:"cpu_preset"`
}

// ProvidersConfig holds provider definition loading configuration.
type ProvidersConfig struct {
	// DefinitionsDir is the directory of per-provider YAML definition files.
	DefinitionsDir string `mapstructure:"definitions_dir"`
}

// ClientConfig holds one download client's connection settings.
type ClientConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseSSL   bool   `mapstructure:"use_ssl"`
	APIKey   string `mapstructure:"api_key"`
	Category string `mapstructure:"category"`
}

// ClientsConfig holds download client configuration per protocol.
type ClientsConfig struct {
	SABnzbd     ClientConfig `mapstructure:"sabnzbd"`
	QBittorrent ClientConfig `mapstructure:"qbittorrent"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8989},
		Database: DatabaseConfig{Path: "./data/fetcharr.db"},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Cache:    CacheConfig{Trimming: false, MaxAgeDays: 30},
		Search: SearchConfig{
			DailyFrequencyMinutes:   40,
			BacklogFrequencyMinutes: 10080,
			BacklogDays:             7,
			CPUPreset:               "normal",
		},
		Providers: ProvidersConfig{DefinitionsDir: "./definitions"},
		Clients: ClientsConfig{
			SABnzbd:     ClientConfig{Host: "localhost", Port: 8080, Category: "tv"},
			QBittorrent: ClientConfig{Host: "localhost", Port: 8081, Category: "tv"},
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.fetcharr")
	}

	v.SetEnvPrefix("FETCHARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)

	v.SetDefault("cache.trimming", d.Cache.Trimming)
	v.SetDefault("cache.max_age_days", d.Cache.MaxAgeDays)

	v.SetDefault("search.daily_frequency_minutes", d.Search.DailyFrequencyMinutes)
	v.SetDefault("search.backlog_frequency_minutes", d.Search.BacklogFrequencyMinutes)
	v.SetDefault("search.backlog_days", d.Search.BacklogDays)
	v.SetDefault("search.cpu_preset", d.Search.CPUPreset)

	v.SetDefault("providers.definitions_dir", d.Providers.DefinitionsDir)

	v.SetDefault("clients.sabnzbd.enabled", false)
	v.SetDefault("clients.sabnzbd.host", d.Clients.SABnzbd.Host)
	v.SetDefault("clients.sabnzbd.port", d.Clients.SABnzbd.Port)
	v.SetDefault("clients.sabnzbd.category", d.Clients.SABnzbd.Category)
	v.SetDefault("clients.qbittorrent.enabled", false)
	v.SetDefault("clients.qbittorrent.host", d.Clients.QBittorrent.Host)
	v.SetDefault("clients.qbittorrent.port", d.Clients.QBittorrent.Port)
	v.SetDefault("clients.qbittorrent.category", d.Clients.QBittorrent.Category)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
