// Package config loads and watches the server configuration file.
package config

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/sposlearning/sposwiki/internal/docstore/surreal"
)

// FileName is the configuration file created under the data directory.
const FileName = "config.yaml"

// Config is the whole server configuration. Loaded from
// dataDir/config.yaml, created with defaults if missing.
type Config struct {
	// Store selects the document backend: "memory" or "surreal".
	Store string `yaml:"store"`

	// Surreal configures the hosted backend. Ignored for "memory".
	Surreal surreal.Config `yaml:"surreal"`

	Auth AuthConfig `yaml:"auth"`

	// Upload configures the media host. Empty endpoint disables
	// files-type pages.
	Upload UploadConfig `yaml:"upload"`

	// Notify configures Web Push. Empty keys disable notifications.
	Notify NotifyConfig `yaml:"notify"`

	// GeoDBPath points at a MaxMind MMDB file. Empty disables country
	// resolution for feedback.
	GeoDBPath string `yaml:"geo_db_path"`

	// MirrorDir is where the git change log lives. Empty disables it.
	MirrorDir string `yaml:"mirror_dir"`

	RateLimits RateLimits `yaml:"rate_limits"`

	// LogLevel is debug, info, warn or error. Applied live on config
	// file changes.
	LogLevel string `yaml:"log_level"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens. Auto-generated on
	// first load.
	JWTSecret string `yaml:"jwt_secret"`

	// AdminCredentialHash is the bcrypt hash checked before destructive
	// operations. Empty disables reauthentication.
	AdminCredentialHash string `yaml:"admin_credential_hash"`
}

// UploadConfig holds the media host settings.
type UploadConfig struct {
	Endpoint string `yaml:"endpoint"`
	Preset   string `yaml:"preset"`
}

// NotifyConfig holds the Web Push VAPID pair and subject.
type NotifyConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subject         string `yaml:"subject"`
}

// RateLimits defines per-client request budgets (requests per minute,
// 0 means unlimited).
type RateLimits struct {
	FeedbackPerMin int `yaml:"feedback_per_min"`
	WritePerMin    int `yaml:"write_per_min"`
	ReadPerMin     int `yaml:"read_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.FeedbackPerMin < 0 {
		return errors.New("feedback_per_min must be non-negative")
	}
	if r.WritePerMin < 0 {
		return errors.New("write_per_min must be non-negative")
	}
	if r.ReadPerMin < 0 {
		return errors.New("read_per_min must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default request budgets.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		FeedbackPerMin: 5,
		WritePerMin:    60,
		ReadPerMin:     6000,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store {
	case "memory":
	case "surreal":
		if c.Surreal.URL == "" {
			return errors.New("surreal.url is required for the surreal store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return c.RateLimits.Validate()
}

// Level converts the configured log level to a slog level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaults() Config {
	return Config{
		Store:      "memory",
		RateLimits: DefaultRateLimits(),
		LogLevel:   "info",
	}
}

// Load reads dataDir/config.yaml, creating it with defaults on first
// run. A missing JWT secret is generated and written back.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, FileName)
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	if err == nil {
		if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, uerr)
		}
	}

	modified := false
	if cfg.Auth.JWTSecret == "" {
		secret := make([]byte, 32)
		if _, rerr := rand.Read(secret); rerr != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", rerr)
		}
		cfg.Auth.JWTSecret = base64.StdEncoding.EncodeToString(secret)
		modified = true
	}
	if modified || os.IsNotExist(err) {
		if serr := cfg.Save(dataDir); serr != nil {
			return nil, serr
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save writes the configuration to dataDir/config.yaml.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}

// Watch reloads the config file on modification and hands each valid
// result to apply. Unparseable edits are logged and skipped; the
// previous configuration stays active.
func Watch(ctx context.Context, dataDir string, apply func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Join(dataDir, FileName)); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Chmod) {
					continue
				}
				cfg, err := Load(dataDir)
				if err != nil {
					slog.WarnContext(ctx, "Ignoring invalid config change", "err", err)
					continue
				}
				slog.InfoContext(ctx, "Configuration reloaded")
				apply(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching config file", "err", err)
			}
		}
	}()
	return nil
}
