package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Signaling SignalingConfig `yaml:"signaling"`
	Transport TransportConfig `yaml:"transport"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SignalingConfig holds the coordinator's sweep cadence and limits.
type SignalingConfig struct {
	InviteSweepInterval    time.Duration `yaml:"invite_sweep_interval"`
	HeartbeatPruneInterval time.Duration `yaml:"heartbeat_prune_interval"`
	HeartbeatMaxAge        time.Duration `yaml:"heartbeat_max_age"`
	PresenceMaxAge         time.Duration `yaml:"presence_max_age"`
	RateLimitPerSec        float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst         int           `yaml:"rate_limit_burst"`
	MaxIDLength            int           `yaml:"max_id_length"`
}

type TransportConfig struct {
	WSReadLimit    int64         `yaml:"ws_read_limit"`
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout"`
	WSPongTimeout  time.Duration `yaml:"ws_pong_timeout"`
	WSPingInterval time.Duration `yaml:"ws_ping_interval"`
}

type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadDotEnv reads a .env file into the environment. A missing file is not
// an error; variables already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            getEnv("SIGNAL_HOST", "0.0.0.0"),
			Port:            getEnvInt("SIGNAL_PORT", 8080),
			ReadTimeout:     time.Duration(getEnvInt("SIGNAL_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("SIGNAL_WRITE_TIMEOUT", 30)) * time.Second,
			AllowedOrigins:  getEnvList("SIGNAL_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout: time.Duration(getEnvInt("SIGNAL_SHUTDOWN_TIMEOUT", 10)) * time.Second,
		},
		Signaling: SignalingConfig{
			InviteSweepInterval:    time.Duration(getEnvInt("SIGNAL_INVITE_SWEEP_INTERVAL_MS", 5000)) * time.Millisecond,
			HeartbeatPruneInterval: time.Duration(getEnvInt("SIGNAL_HEARTBEAT_PRUNE_INTERVAL_MS", 10000)) * time.Millisecond,
			HeartbeatMaxAge:        time.Duration(getEnvInt("SIGNAL_HEARTBEAT_MAX_AGE_MS", 30000)) * time.Millisecond,
			PresenceMaxAge:         time.Duration(getEnvInt("SIGNAL_PRESENCE_MAX_AGE_MS", 90000)) * time.Millisecond,
			RateLimitPerSec:        float64(getEnvInt("SIGNAL_RATE_LIMIT_PER_SEC", 30)),
			RateLimitBurst:         getEnvInt("SIGNAL_RATE_LIMIT_BURST", 60),
			MaxIDLength:            getEnvInt("SIGNAL_MAX_ID_LENGTH", 128),
		},
		Transport: TransportConfig{
			WSReadLimit:    int64(getEnvInt("SIGNAL_WS_READ_LIMIT", 65536)),
			WSWriteTimeout: time.Duration(getEnvInt("SIGNAL_WS_WRITE_TIMEOUT", 10)) * time.Second,
			WSPongTimeout:  time.Duration(getEnvInt("SIGNAL_WS_PONG_TIMEOUT", 60)) * time.Second,
			WSPingInterval: time.Duration(getEnvInt("SIGNAL_WS_PING_INTERVAL", 54)) * time.Second,
		},
		Redis: RedisConfig{
			Enabled:       getEnvBool("REDIS_ENABLED", false),
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "huddle:ws:"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Signaling.InviteSweepInterval <= 0 || c.Signaling.HeartbeatPruneInterval <= 0 {
		return errors.New("sweep intervals must be positive")
	}
	if c.Signaling.HeartbeatMaxAge <= 0 || c.Signaling.PresenceMaxAge <= 0 {
		return errors.New("max ages must be positive")
	}
	if c.Signaling.MaxIDLength <= 0 {
		return errors.New("max id length must be positive")
	}
	if c.Transport.WSPingInterval >= c.Transport.WSPongTimeout {
		return fmt.Errorf("ws ping interval %s must be shorter than pong timeout %s",
			c.Transport.WSPingInterval, c.Transport.WSPongTimeout)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
