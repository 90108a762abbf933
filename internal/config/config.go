// Package config handles reading and writing .cashctl/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for .cashctl/config.yaml.
type Config struct {
	Version int           `yaml:"version"`
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Access  AccessConfig  `yaml:"access"`
	Lists   ListsConfig   `yaml:"lists"`
}

// APIConfig describes the backend the client talks to.
type APIConfig struct {
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"gt=0"`
}

// SessionConfig controls where the session database lives.
type SessionConfig struct {
	DBFile string `yaml:"db_file" validate:"required"` // relative to the config dir
}

// AccessConfig controls the role gate in front of the admin views.
type AccessConfig struct {
	TrustLocalRoleClaim bool `yaml:"trust_local_role_claim"`
	TrustWindowSec      int  `yaml:"trust_window_sec" validate:"gte=0"`
	ConfirmTimeoutMs    int  `yaml:"confirm_timeout_ms" validate:"gt=0"`
}

// ListsConfig holds defaults shared by every list view.
type ListsConfig struct {
	PageSize             int  `yaml:"page_size" validate:"gte=1,lte=100"`
	RefetchAfterMutation bool `yaml:"refetch_after_mutation"`
	PollIntervalSec      int  `yaml:"poll_interval_sec" validate:"gte=0"`
	FailureThreshold     int  `yaml:"failure_threshold" validate:"gte=1"`
}

const (
	configFile = "config.yaml"

	// DefaultBaseURL is the local development backend.
	DefaultBaseURL = "http://localhost:5000/api"
)

// Environment variables consulted by Load.
const (
	EnvHome      = "CASHCTL_HOME"
	EnvAPIURL    = "CASHCTL_API_URL"
	EnvTimeout   = "CASHCTL_TIMEOUT"
	EnvTrustRole = "CASHCTL_TRUST_LOCAL_ROLE"
)

var validate = validator.New()

// Dir returns the configuration directory: $CASHCTL_HOME if set,
// otherwise ~/.cashctl.
func Dir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvHome)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".cashctl"), nil
}

// ReadConfig reads config.yaml from the given config directory.
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// WriteConfig writes cfg to config.yaml in the given config directory.
// Creates the directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dir, configFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Load reads the config from dir, falling back to defaults when the file
// does not exist, then applies environment overrides and validates.
func Load(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var invalid []string

	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		c.API.BaseURL = v
	}

	if v := strings.TrimSpace(os.Getenv(EnvTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, EnvTimeout)
		} else {
			c.API.TimeoutMs = int(d / time.Millisecond)
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvTrustRole)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			invalid = append(invalid, EnvTrustRole)
		} else {
			c.Access.TrustLocalRoleClaim = b
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Validate checks field constraints declared in the struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutMs) * time.Millisecond
}

// TrustWindow returns how long a cached role claim is trusted.
func (c *Config) TrustWindow() time.Duration {
	return time.Duration(c.Access.TrustWindowSec) * time.Second
}

// ConfirmTimeout bounds the background role confirmation call.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Access.ConfirmTimeoutMs) * time.Millisecond
}

// PollInterval returns the list polling interval; zero disables polling.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Lists.PollIntervalSec) * time.Second
}

// SessionPath resolves the session database path against dir.
func (c *Config) SessionPath(dir string) string {
	if filepath.IsAbs(c.Session.DBFile) {
		return c.Session.DBFile
	}
	return filepath.Join(dir, c.Session.DBFile)
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			TimeoutMs: 15000,
		},
		Session: SessionConfig{
			DBFile: "session.db",
		},
		Access: AccessConfig{
			TrustLocalRoleClaim: false,
			TrustWindowSec:      300,
			ConfirmTimeoutMs:    5000,
		},
		Lists: ListsConfig{
			PageSize:             10,
			RefetchAfterMutation: false,
			PollIntervalSec:      0,
			FailureThreshold:     3,
		},
	}
}
