// Package config loads the service configuration from a YAML file. CLI flags
// cover the operational knobs; the file carries the signing topology (CA
// providers, HSM providers, TSA endpoint) which is too structured for flags.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CAProvider configures one custom certificate authority entry registered at
// startup in addition to the built-ins.
type CAProvider struct {
	Code         string `yaml:"code"`
	Name         string `yaml:"name"`
	EndpointURL  string `yaml:"endpoint_url"`
	Algorithm    string `yaml:"algorithm"`
	KeySize      int    `yaml:"key_size"`
	ValidityDays int    `yaml:"validity_days"`
	SupportsHSM  bool   `yaml:"supports_hsm"`
	Description  string `yaml:"description"`
}

// HSMProvider configures one HSM backend.
type HSMProvider struct {
	ID string `yaml:"id"`
	// Type is one of "mock", "local-key" or "aws-kms".
	Type string `yaml:"type"`
	// KeyFile is the PEM private key path for local-key providers.
	KeyFile string `yaml:"key_file"`
	// KMSKeyID is the key id or ARN for aws-kms providers.
	KMSKeyID string `yaml:"kms_key_id"`
}

// HSM configures the HSM gateway.
type HSM struct {
	Enabled         bool          `yaml:"enabled"`
	DefaultProvider string        `yaml:"default_provider"`
	Providers       []HSMProvider `yaml:"providers"`
}

// TSA configures the timestamp authority client. An empty URL selects the
// deterministic mock client.
type TSA struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Signing configures the local signing path.
type Signing struct {
	// KeyFile is the PEM private key used for local signatures. When empty
	// and AllowMock is true, deterministic mock signatures are produced.
	KeyFile   string `yaml:"key_file"`
	AllowMock bool   `yaml:"allow_mock"`
}

// Storage selects the persistence backend.
type Storage struct {
	// Driver is "memory" or "postgres".
	Driver      string `yaml:"driver"`
	ConnString  string `yaml:"conn_string"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// Config is the root service configuration.
type Config struct {
	DefaultCA   string       `yaml:"default_ca"`
	CAProviders []CAProvider `yaml:"ca_providers"`
	HSM         HSM          `yaml:"hsm"`
	TSA         TSA          `yaml:"tsa"`
	Signing     Signing      `yaml:"signing"`
	Storage     Storage      `yaml:"storage"`
}

// Load reads and validates a YAML config file. A missing path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Signing: Signing{AllowMock: true},
		Storage: Storage{Driver: "memory"},
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config format: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "", "memory":
	case "postgres":
		if c.Storage.ConnString == "" {
			return fmt.Errorf("storage: conn_string is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}

	for _, p := range c.HSM.Providers {
		switch p.Type {
		case "mock":
		case "local-key":
			if p.KeyFile == "" {
				return fmt.Errorf("hsm provider %q: key_file is required for local-key", p.ID)
			}
		case "aws-kms":
			if p.KMSKeyID == "" {
				return fmt.Errorf("hsm provider %q: kms_key_id is required for aws-kms", p.ID)
			}
		default:
			return fmt.Errorf("hsm provider %q: unknown type %q", p.ID, p.Type)
		}
	}

	if c.HSM.Enabled && len(c.HSM.Providers) == 0 {
		return fmt.Errorf("hsm: enabled but no providers configured")
	}

	return nil
}
