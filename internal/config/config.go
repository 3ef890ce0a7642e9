// Package config loads the server configuration from defaults, an optional
// YAML file, a .env file and RENDEZVOUS_* environment variables, in that
// order of precedence (later wins). Command line flags are applied on top
// by cmd/server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "RENDEZVOUS_"

var (
	ErrFileNotFound = errors.New("configuration file not found")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
)

type Config struct {
	Addr            string          `yaml:"addr"`
	Profile         string          `yaml:"profile"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Log             LogConfig       `yaml:"log"`
	WebSocket       WebSocketConfig `yaml:"websocket"`
	Room            RoomConfig      `yaml:"room"`
	Auth            AuthConfig      `yaml:"auth"`
	Metrics         MetricsConfig   `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	WriteWait       time.Duration `yaml:"write_wait"`
	PongWait        time.Duration `yaml:"pong_wait"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type RoomConfig struct {
	ExcludeSender bool `yaml:"exclude_sender"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

type MetricsConfig struct {
	// Interval between metric snapshots in the log. Zero disables them.
	Interval time.Duration `yaml:"interval"`
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		Profile:         "event",
		ShutdownTimeout: 5 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			MaxMessageSize:  64 << 10,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
		},
		Metrics: MetricsConfig{
			Interval: time.Minute,
		},
	}
}

// Load builds the configuration. An empty path skips the YAML file; a
// missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w in %s: %v", ErrInvalidYAML, path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	int64Val := func(key string, dst *int64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &c.Addr)
	str("PROFILE", &c.Profile)
	duration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	integer("WS_READ_BUFFER_SIZE", &c.WebSocket.ReadBufferSize)
	integer("WS_WRITE_BUFFER_SIZE", &c.WebSocket.WriteBufferSize)
	int64Val("WS_MAX_MESSAGE_SIZE", &c.WebSocket.MaxMessageSize)
	duration("WS_WRITE_WAIT", &c.WebSocket.WriteWait)
	duration("WS_PONG_WAIT", &c.WebSocket.PongWait)
	duration("WS_IDLE_TIMEOUT", &c.WebSocket.IdleTimeout)
	if v, ok := lookup(EnvPrefix + "WS_ALLOWED_ORIGINS"); ok {
		c.WebSocket.AllowedOrigins = splitList(v)
	}
	boolean("ROOM_EXCLUDE_SENDER", &c.Room.ExcludeSender)
	str("AUTH_JWT_SECRET", &c.Auth.JWTSecret)
	str("AUTH_JWT_ISSUER", &c.Auth.JWTIssuer)
	duration("METRICS_INTERVAL", &c.Metrics.Interval)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	switch c.Profile {
	case "event", "direct":
	default:
		errs = append(errs, fmt.Errorf("unknown profile %q", c.Profile))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.WebSocket.ReadBufferSize < 0 || c.WebSocket.WriteBufferSize < 0 {
		errs = append(errs, errors.New("websocket buffer sizes must not be negative"))
	}
	if c.WebSocket.MaxMessageSize < 0 {
		errs = append(errs, errors.New("websocket.max_message_size must not be negative"))
	}
	if c.WebSocket.WriteWait <= 0 || c.WebSocket.PongWait <= 0 {
		errs = append(errs, errors.New("websocket write_wait and pong_wait must be positive"))
	}
	if c.WebSocket.IdleTimeout < 0 {
		errs = append(errs, errors.New("websocket.idle_timeout must not be negative"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if c.Metrics.Interval < 0 {
		errs = append(errs, errors.New("metrics.interval must not be negative"))
	}
	return errors.Join(errs...)
}
