// Package internal provides the main application initialization and runtime
// logic.
package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Store   StoreConfig       `yaml:"store"`
	Cache   CacheConfig       `yaml:"cache"`
	Scorer  ScorerConfig      `yaml:"scorer"`
	Scanner ScannerConfig     `yaml:"scanner"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Scorer.Validate(); err != nil {
		return err
	}
	if err := c.Scanner.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig holds the path to the note database.
type StoreConfig struct {
	// Path is the SQLite database file holding note records.
	Path string `yaml:"path"`
	// Watch enables the file watcher that clears the result cache when the
	// host application writes the database out-of-band.
	Watch bool `yaml:"watch"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CacheConfig bounds the search result cache.
type CacheConfig struct {
	MaxEntries           int `yaml:"max_entries"`
	TTLSeconds           int `yaml:"ttl_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// TTL returns the entry time-to-live as a duration.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SweepInterval returns the advisory sweep period; zero disables sweeping.
func (c *CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxEntries, validation.Required, validation.Min(1)),
		validation.Field(&c.TTLSeconds, validation.Required, validation.Min(1)),
		validation.Field(&c.SweepIntervalSeconds, validation.Min(0)),
	)
}

// ScorerConfig holds relevance scoring options.
type ScorerConfig struct {
	TitleWeight   float64 `yaml:"title_weight"`
	FuzzyMatch    bool    `yaml:"fuzzy_match"`
	CaseSensitive bool    `yaml:"case_sensitive"`
	WholeWords    bool    `yaml:"whole_words"`
	SnippetWindow int     `yaml:"snippet_window"`
	MaxSnippets   int     `yaml:"max_snippets"`
}

// Validate validates the scorer configuration.
func (c *ScorerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TitleWeight, validation.Min(0.0)),
		validation.Field(&c.SnippetWindow, validation.Min(0)),
		validation.Field(&c.MaxSnippets, validation.Min(0)),
	)
}

// ScannerConfig holds corpus scanning options.
type ScannerConfig struct {
	BatchSize         int     `yaml:"batch_size"`
	MinScoreThreshold float64 `yaml:"min_score_threshold"`
}

// Validate validates the scanner configuration.
func (c *ScannerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MinScoreThreshold, validation.Min(0.0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path:  "./bragi.db",
			Watch: true,
		},
		Cache: CacheConfig{
			MaxEntries:           256,
			TTLSeconds:           300,
			SweepIntervalSeconds: 60,
		},
		Scorer: ScorerConfig{
			TitleWeight:   3.0,
			SnippetWindow: 150,
			MaxSnippets:   3,
		},
		Scanner: ScannerConfig{
			BatchSize: 200,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
