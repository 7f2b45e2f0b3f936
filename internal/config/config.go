// Package config loads server configuration from an optional YAML file plus
// environment overrides, generalizing the teacher's ad hoc getenvInt/
// getDurEnv helpers (cmd/server/main.go, internal/router/router.go) into one
// struct mirroring spec §6's enumerated server options. YAML decoding uses
// gopkg.in/yaml.v3, the config format real repos in the retrieved pack
// standardize on (slicingmelon-gobypass403/go.mod).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Listener struct {
	Address   string `yaml:"address"`
	Port      int    `yaml:"port"`
	ReuseAddr bool   `yaml:"reuse_addr"`
	TLS       *TLSConfig `yaml:"tls,omitempty"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Config mirrors spec §6's external interface: worker count, per-worker
// ready budget, listeners, timeouts and body limits are all things an
// operator configures rather than things the scheduler decides for itself.
type Config struct {
	Workers     int        `yaml:"workers"`
	ReadyBudget int        `yaml:"ready_budget"`
	Listeners   []Listener `yaml:"listeners"`

	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	HeaderTimeout time.Duration `yaml:"header_timeout"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	MaxConnections int          `yaml:"max_connections"`

	StaticRoot  string `yaml:"static_root"`
	CacheMode   string `yaml:"cache_mode"` // "none", "memory", "sendfile", "sendfile-fresh", "compress"

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// MaskSIGPIPE ignores SIGPIPE at process start (spec §6). internal/netio
	// writes via raw unix.Write/unix.Sendfile rather than Go's net package,
	// which installs its own SIGPIPE handling; without this, a write to a
	// peer that already closed its read side raises SIGPIPE and kills the
	// process instead of surfacing as an EPIPE error on that one connection.
	MaskSIGPIPE bool `yaml:"mask_sigpipe"`
}

func Default() Config {
	return Config{
		Workers:        0, // 0 = runtime.NumCPU, resolved by caller
		ReadyBudget:    64,
		Listeners:      []Listener{{Address: "0.0.0.0", Port: 8080, ReuseAddr: true}},
		IdleTimeout:    60 * time.Second,
		HeaderTimeout:  10 * time.Second,
		MaxBodyBytes:   10 << 20,
		MaxConnections: 0,
		CacheMode:      "memory",
		LogLevel:       "info",
		LogFormat:      "json",
		MaskSIGPIPE:    true,
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment overrides, matching the teacher's env-wins-last convention.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := getenvInt("COHOSRV_WORKERS", -1); v >= 0 {
		cfg.Workers = v
	}
	if v := getenvInt("COHOSRV_READY_BUDGET", -1); v >= 0 {
		cfg.ReadyBudget = v
	}
	if v := getenvDuration("COHOSRV_IDLE_TIMEOUT"); v > 0 {
		cfg.IdleTimeout = v
	}
	if v := getenvDuration("COHOSRV_HEADER_TIMEOUT"); v > 0 {
		cfg.HeaderTimeout = v
	}
	if v := getenvInt64("COHOSRV_MAX_BODY_BYTES", -1); v >= 0 {
		cfg.MaxBodyBytes = v
	}
	if v := getenvInt("COHOSRV_MAX_CONNECTIONS", -1); v >= 0 {
		cfg.MaxConnections = v
	}
	if v := os.Getenv("COHOSRV_STATIC_ROOT"); v != "" {
		cfg.StaticRoot = v
	}
	if v := os.Getenv("COHOSRV_CACHE_MODE"); v != "" {
		cfg.CacheMode = v
	}
	if v := os.Getenv("COHOSRV_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COHOSRV_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("COHOSRV_MASK_SIGPIPE"); v != "" {
		cfg.MaskSIGPIPE = v != "0" && v != "false"
	}
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 0
}
