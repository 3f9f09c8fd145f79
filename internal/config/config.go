package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name written by init.
const DefaultFile = "sheetrelay.yaml"

// Config represents the top-level sheetrelay configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Proxy     ProxyConfig     `yaml:"proxy" toml:"proxy"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Audit     AuditConfig     `yaml:"audit" toml:"audit"`
	Git       GitConfig       `yaml:"git" toml:"git"`
}

// ServerConfig controls the handler HTTP server.
type ServerConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
	Path   string `yaml:"path" toml:"path"`
}

// AuthConfig holds the shared secret.
type AuthConfig struct {
	Token string `yaml:"token,omitempty" toml:"token,omitempty"`
}

// RateLimitConfig controls the per-minute request budget.
type RateLimitConfig struct {
	Limit         int    `yaml:"limit" toml:"limit"`
	WindowSeconds int    `yaml:"window_seconds" toml:"window_seconds"`
	Backend       string `yaml:"backend" toml:"backend"` // memory | sqlite
	Path          string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// Window returns the counter expiry.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// StoreConfig selects the workbook backend.
type StoreConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // csv | sqlite | postgres
	Dir     string `yaml:"dir,omitempty" toml:"dir,omitempty"`
	DSN     string `yaml:"dsn,omitempty" toml:"dsn,omitempty"`
}

// ProxyConfig controls the browser-facing proxy.
type ProxyConfig struct {
	Listen           string   `yaml:"listen" toml:"listen"`
	Path             string   `yaml:"path" toml:"path"`
	UpstreamURL      string   `yaml:"upstream_url,omitempty" toml:"upstream_url,omitempty"`
	AllowedOrigins   []string `yaml:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`
	TimeoutSeconds   int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	MaxResponseBytes int64    `yaml:"max_response_bytes,omitempty" toml:"max_response_bytes,omitempty"` // 0 = proxy default
}

// Timeout returns the upstream call timeout.
func (p ProxyConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// LogConfig controls structured logging.
type LogConfig struct {
	Verbose bool `yaml:"verbose" toml:"verbose"`
	JSON    bool `yaml:"json" toml:"json"`
}

// AuditConfig controls the per-request audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// GitConfig controls snapshot commits.
type GitConfig struct {
	AuthorName  string `yaml:"author_name" toml:"author_name"`
	AuthorEmail string `yaml:"author_email" toml:"author_email"`
}

// Store backends.
const (
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Default returns a Config with sensible defaults for a new data directory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: "127.0.0.1:8081",
			Path:   "/exec",
		},
		RateLimit: RateLimitConfig{
			Limit:         30,
			WindowSeconds: 60,
			Backend:       BackendMemory,
			Path:          "ratelimit.db",
		},
		Store: StoreConfig{
			Backend: BackendCSV,
			Dir:     "sheets",
		},
		Proxy: ProxyConfig{
			Listen:         "127.0.0.1:8080",
			Path:           "/api/sheets",
			TimeoutSeconds: 30,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "logs/audit.csv",
		},
		Git: GitConfig{
			AuthorName:  "sheetrelay",
			AuthorEmail: "sheetrelay@localhost",
		},
	}
}

// Load reads a YAML or TOML file, chosen by extension, over Default().
// Relative paths in the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	cfg.ResolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Save writes a Config as YAML or TOML, chosen by extension.
func Save(path string, cfg *Config) error {
	var data []byte
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		data = out
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		data = buf.Bytes()
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ResolvePaths makes relative file paths absolute under base.
func (c *Config) ResolvePaths(base string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	resolve(&c.Store.Dir)
	resolve(&c.Audit.Path)
	resolve(&c.RateLimit.Path)
	if c.Store.Backend == BackendSQLite {
		resolve(&c.Store.DSN)
	}
}

// Environment variables read by ApplyEnv.
const (
	EnvAuthToken   = "AUTH_TOKEN"
	EnvUpstreamURL = "GOOGLE_SHEET_URL"
	EnvListen      = "SHEETRELAY_LISTEN"
	EnvProxyListen = "SHEETRELAY_PROXY_LISTEN"
	EnvDataDir     = "SHEETRELAY_DATA_DIR"
	EnvStoreDSN    = "SHEETRELAY_STORE_DSN"
	EnvRateLimit   = "SHEETRELAY_RATE_LIMIT"
)

// ApplyEnv overlays non-empty environment values. A nil getenv means os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(EnvAuthToken, &c.Auth.Token)
	set(EnvUpstreamURL, &c.Proxy.UpstreamURL)
	set(EnvListen, &c.Server.Listen)
	set(EnvProxyListen, &c.Proxy.Listen)
	set(EnvDataDir, &c.Store.Dir)
	set(EnvStoreDSN, &c.Store.DSN)

	if v := strings.TrimSpace(getenv(EnvRateLimit)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRateLimit, v, err)
		}
		c.RateLimit.Limit = n
	}
	return nil
}

// Role names a process that needs a particular subset of settings.
type Role string

const (
	RoleHandler Role = "handler"
	RoleProxy   Role = "proxy"
)

// MissingError lists required settings that are unset.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing configuration: " + strings.Join(e.Keys, ", ")
}

// Validate checks the settings a role needs. Missing values are reported
// together as a *MissingError; invalid values as plain errors.
func (c *Config) Validate(role Role) error {
	var missing []string
	var errs []error

	switch role {
	case RoleHandler:
		if c.Auth.Token == "" {
			missing = append(missing, "auth.token ("+EnvAuthToken+")")
		}
		switch c.Store.Backend {
		case BackendCSV:
			if c.Store.Dir == "" {
				missing = append(missing, "store.dir")
			}
		case BackendSQLite, BackendPostgres:
			if c.Store.DSN == "" {
				missing = append(missing, "store.dsn")
			}
		default:
			errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
		}
		switch c.RateLimit.Backend {
		case BackendMemory:
		case BackendSQLite:
			if c.RateLimit.Path == "" {
				missing = append(missing, "rate_limit.path")
			}
		default:
			errs = append(errs, fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend))
		}
		if c.RateLimit.Limit <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.limit must be positive, got %d", c.RateLimit.Limit))
		}
		if c.RateLimit.WindowSeconds <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.window_seconds must be positive, got %d", c.RateLimit.WindowSeconds))
		}
	case RoleProxy:
		if c.Proxy.UpstreamURL == "" {
			missing = append(missing, "proxy.upstream_url ("+EnvUpstreamURL+")")
		}
		if c.Auth.Token == "" {
			missing = append(missing, "auth.token ("+EnvAuthToken+")")
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	if len(missing) > 0 {
		errs = append([]error{&MissingError{Keys: missing}}, errs...)
	}
	return errors.Join(errs...)
}
