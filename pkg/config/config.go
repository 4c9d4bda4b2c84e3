package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type GatewayConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Listen     string `yaml:"listen"`
	Upstream   string `yaml:"upstream"`
	AdminToken string `yaml:"admin_token"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	OpTimeoutMs int    `yaml:"op_timeout_ms"`
}

type RateLimitConfig struct {
	Requests    int      `yaml:"requests"`
	WindowS     int      `yaml:"window_s"`
	Backend     string   `yaml:"backend"`
	SQLitePath  string   `yaml:"sqlite_path"`
	ExemptPaths []string `yaml:"exempt_paths"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			Listen:   ":8080",
			Upstream: "http://localhost:9000",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			OpTimeoutMs: 500,
		},
		RateLimit: RateLimitConfig{
			Requests:    100,
			WindowS:     60,
			Backend:     "redis",
			SQLitePath:  "admission.db",
			ExemptPaths: []string{"/health", "/docs", "/openapi.json"},
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load reads config from file with env var overrides
func Load(path string) (*GatewayConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if listen := os.Getenv("ADMISSION_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if upstream := os.Getenv("ADMISSION_UPSTREAM"); upstream != "" {
		cfg.Server.Upstream = upstream
	}
	if token := os.Getenv("ADMISSION_ADMIN_TOKEN"); token != "" {
		cfg.Server.AdminToken = token
	}
	if addr := os.Getenv("ADMISSION_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("ADMISSION_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if requests := os.Getenv("ADMISSION_RATE_LIMIT_REQUESTS"); requests != "" {
		n, err := strconv.Atoi(requests)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMISSION_RATE_LIMIT_REQUESTS: %w", err)
		}
		cfg.RateLimit.Requests = n
	}
	if window := os.Getenv("ADMISSION_RATE_LIMIT_WINDOW_S"); window != "" {
		n, err := strconv.Atoi(window)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMISSION_RATE_LIMIT_WINDOW_S: %w", err)
		}
		cfg.RateLimit.WindowS = n
	}
	if level := os.Getenv("ADMISSION_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}

func (c *GatewayConfig) Validate() error {
	if c.Server.Listen == "" {
		return ErrMissingListen
	}
	if c.Server.Upstream == "" {
		return ErrMissingUpstream
	}
	if u, err := url.Parse(c.Server.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
		return &Error{fmt.Sprintf("invalid upstream URL %q", c.Server.Upstream)}
	}
	if c.RateLimit.Requests <= 0 {
		return ErrInvalidRequests
	}
	if c.RateLimit.WindowS <= 0 {
		return ErrInvalidWindow
	}
	switch c.RateLimit.Backend {
	case "redis", "sqlite", "memory":
	default:
		return &Error{fmt.Sprintf("unknown rate limit backend %q", c.RateLimit.Backend)}
	}
	if c.Redis.OpTimeoutMs <= 0 {
		c.Redis.OpTimeoutMs = 500
	}
	return nil
}

var (
	ErrMissingListen   = &Error{"listen address is required"}
	ErrMissingUpstream = &Error{"upstream URL is required"}
	ErrInvalidRequests = &Error{"rate limit requests must be > 0"}
	ErrInvalidWindow   = &Error{"rate limit window must be > 0"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
