// Package config loads server and client settings from TOML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"sync-rpc/protocol"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Client   ClientConfig   `toml:"client"`
	Registry RegistryConfig `toml:"registry"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Listen         string        `toml:"listen"`
	Advertise      string        `toml:"advertise"` // defaults to the listener address
	MaxBodySize    uint64        `toml:"max_body_size"`
	ReadTimeout    time.Duration `toml:"read_timeout"`
	WriteTimeout   time.Duration `toml:"write_timeout"`
	HandlerTimeout time.Duration `toml:"handler_timeout"`
	RateLimit      float64       `toml:"rate_limit"` // calls per second, 0 = unlimited
	RateBurst      int           `toml:"rate_burst"`
}

type ClientConfig struct {
	Address     string        `toml:"address"`
	Balancer    string        `toml:"balancer"`
	MaxBodySize uint64        `toml:"max_body_size"`
	DialTimeout time.Duration `toml:"dial_timeout"`
	CallTimeout time.Duration `toml:"call_timeout"`
}

type RegistryConfig struct {
	// Endpoints of the etcd cluster. Empty disables discovery.
	Endpoints   []string      `toml:"endpoints"`
	TTL         int64         `toml:"ttl"` // lease seconds
	DialTimeout time.Duration `toml:"dial_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:      "127.0.0.1:7000",
			MaxBodySize: protocol.DefaultMaxBodySize,
			ReadTimeout: 5 * time.Minute,
			RateBurst:   1,
		},
		Client: ClientConfig{
			Address:     "127.0.0.1:7000",
			Balancer:    "RoundRobin",
			MaxBodySize: protocol.DefaultMaxBodySize,
			DialTimeout: 5 * time.Second,
			CallTimeout: 10 * time.Second,
		},
		Registry: RegistryConfig{
			TTL:         10,
			DialTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds a Config from defaults, then the TOML file at path if path
// is non-empty, then the SYNCRPC_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse config %s: unknown keys %v", path, undecoded)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYNCRPC_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("SYNCRPC_ADVERTISE"); v != "" {
		c.Server.Advertise = v
	}
	if v := os.Getenv("SYNCRPC_SERVER_ADDR"); v != "" {
		c.Client.Address = v
	}
	if v := os.Getenv("SYNCRPC_ETCD_ENDPOINTS"); v != "" {
		c.Registry.Endpoints = splitList(v)
	}
	if v := os.Getenv("SYNCRPC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	durations := map[string]time.Duration{
		"server.read_timeout":    c.Server.ReadTimeout,
		"server.write_timeout":   c.Server.WriteTimeout,
		"server.handler_timeout": c.Server.HandlerTimeout,
		"client.dial_timeout":    c.Client.DialTimeout,
		"client.call_timeout":    c.Client.CallTimeout,
		"registry.dial_timeout":  c.Registry.DialTimeout,
	}
	for key, d := range durations {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s: negative duration %v", key, d))
		}
	}
	if c.Server.MaxBodySize == 0 {
		errs = append(errs, errors.New("server.max_body_size: must be positive"))
	}
	if c.Client.MaxBodySize == 0 {
		errs = append(errs, errors.New("client.max_body_size: must be positive"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit: negative rate %v", c.Server.RateLimit))
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("server.rate_burst: %d, need at least 1", c.Server.RateBurst))
	}
	if len(c.Registry.Endpoints) > 0 && c.Registry.TTL < 1 {
		errs = append(errs, fmt.Errorf("registry.ttl: %d, need at least 1", c.Registry.TTL))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
