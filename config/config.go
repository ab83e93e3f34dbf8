// Package config defines the client configuration: backend settings,
// the provider list, and orchestrator bounds, loaded from YAML with
// environment expansion.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/registry"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// DefaultModel is the model used when the settings leave it empty.
const DefaultModel = "openai/gpt-3.5-turbo"

// Settings holds the backend credential and the user-facing defaults.
// Theme is opaque display state; it is persisted but never interpreted
// here.
type Settings struct {
	APIKey       string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	DefaultModel string `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	Theme        string `json:"theme,omitempty" yaml:"theme,omitempty"`
}

// Provider is one configured tool provider.
type Provider struct {
	ID   string                 `json:"id" yaml:"id" validate:"required"`
	Spec registry.TransportSpec `json:"spec" yaml:"spec"`
}

// Backend configures the completion endpoint.
type Backend struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	Referer string `json:"referer,omitempty" yaml:"referer,omitempty"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Orchestrator configures turn bounds.
type Orchestrator struct {
	SystemPrompt     string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	MaxRounds        int    `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty" validate:"gte=0"`
	RoundTimeoutSecs int    `json:"round_timeout_secs,omitempty" yaml:"round_timeout_secs,omitempty" validate:"gte=0"`
}

// RoundTimeout returns the per-round deadline; zero means none.
func (c *Orchestrator) RoundTimeout() time.Duration {
	return time.Duration(c.RoundTimeoutSecs) * time.Second
}

// Config is the root configuration document.
type Config struct {
	Settings     Settings     `json:"settings" yaml:"settings"`
	Backend      Backend      `json:"backend" yaml:"backend"`
	Orchestrator Orchestrator `json:"orchestrator" yaml:"orchestrator"`
	Providers    []*Provider  `json:"providers,omitempty" yaml:"providers,omitempty" validate:"dive"`
}

var validate = validator.New()

// Load reads the configuration from file, expanding ${ENV} references,
// and validates it. An empty file name yields defaults.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		cfg.applyDefaults()
		return cfg, nil
	}

	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, errors.WithMessagef(err, "failed to load config: %s", file)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Settings.DefaultModel == "" {
		c.Settings.DefaultModel = DefaultModel
	}
}

// Validate checks the document, including every provider's transport
// spec.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	for _, p := range c.Providers {
		if err := p.Spec.Validate(); err != nil {
			return errors.WithMessagef(err, "provider %s", p.ID)
		}
	}
	return nil
}
