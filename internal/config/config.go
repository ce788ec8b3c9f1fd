package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Live feed modes
const (
	LiveModePoll      = "poll"
	LiveModeWebSocket = "websocket"
	LiveModeNATS      = "nats"
)

// EnvPrefix is the prefix of environment overrides, e.g. BENCHCONSOLE_API_BASE_URL
const EnvPrefix = "BENCHCONSOLE"

// Config is the console configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Poll     PollConfig     `mapstructure:"poll"`
	Network  NetworkConfig  `mapstructure:"network"`
	Live     LiveConfig     `mapstructure:"live"`
	NATS     NATSConfig     `mapstructure:"nats"`
	History  HistoryConfig  `mapstructure:"history"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PollConfig struct {
	ExecutionInterval time.Duration `mapstructure:"execution_interval"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	MetricsWindow     int           `mapstructure:"metrics_window"`
	ClientsInterval   time.Duration `mapstructure:"clients_interval"`
}

type NetworkConfig struct {
	SuggestionTTL   time.Duration `mapstructure:"suggestion_ttl"`
	ProfileDuration time.Duration `mapstructure:"profile_duration"`
	HealthTTL       time.Duration `mapstructure:"health_ttl"`
}

type LiveConfig struct {
	Mode string `mapstructure:"mode"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	Name           string        `mapstructure:"name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type HistoryConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

type ScheduleConfig struct {
	HealthCheck    string `mapstructure:"health_check"`
	HistoryCleanup string `mapstructure:"history_cleanup"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("poll.execution_interval", 2*time.Second)
	v.SetDefault("poll.metrics_interval", 2*time.Second)
	v.SetDefault("poll.metrics_window", 120)
	v.SetDefault("poll.clients_interval", 5*time.Second)

	v.SetDefault("network.suggestion_ttl", 60*time.Second)
	v.SetDefault("network.profile_duration", 5*time.Second)
	v.SetDefault("network.health_ttl", 15*time.Second)

	v.SetDefault("live.mode", LiveModeWebSocket)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "benchconsole")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("history.path", "benchconsole.db")
	v.SetDefault("history.retention", 30*24*time.Hour)

	v.SetDefault("schedule.health_check", "0 */5 * * * *")
	v.SetDefault("schedule.history_cleanup", "0 0 3 * * *")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("log.development", false)
}

// Load reads the configuration. With an empty path the file config.yaml is
// looked up in ./config and /etc/benchconsole; a missing file is not an error.
// Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/benchconsole")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	switch c.Live.Mode {
	case LiveModePoll, LiveModeWebSocket, LiveModeNATS:
	default:
		return fmt.Errorf("unknown live.mode %q", c.Live.Mode)
	}
	if c.Poll.MetricsWindow <= 0 {
		return fmt.Errorf("poll.metrics_window must be positive, got %d", c.Poll.MetricsWindow)
	}
	return nil
}
