package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full venuegrid configuration.
type Config struct {
	Listen    string         `yaml:"listen"`
	DBPath    string         `yaml:"db_path"`
	AuthToken string         `yaml:"auth_token"` // bearer token for the trigger endpoint
	Provider  ProviderConfig `yaml:"provider"`
	Defaults  GridDefaults   `yaml:"defaults"`
}

// ProviderConfig configures the place-search provider. The API key may also
// come from VENUEGRID_API_KEY, which takes precedence over the file.
type ProviderConfig struct {
	Name     string   `yaml:"name"`
	APIKey   string   `yaml:"api_key"`
	BaseURL  string   `yaml:"base_url"` // override for tests/proxies
	Keywords []string `yaml:"keywords"`
	MaxPages int      `yaml:"max_pages"`
}

// GridDefaults are the step/radius used when a trigger omits them.
type GridDefaults struct {
	StepKm   float64 `yaml:"step_km"`
	RadiusKm float64 `yaml:"radius_km"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "venuegrid.db",
		Provider: ProviderConfig{
			Name:     "places",
			Keywords: []string{"restaurant", "bar", "cafe"},
			MaxPages: 3,
		},
		Defaults: GridDefaults{
			StepKm:   10,
			RadiusKm: 12,
		},
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if key := os.Getenv("VENUEGRID_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if len(c.Provider.Keywords) == 0 {
		return fmt.Errorf("provider.keywords must not be empty")
	}
	if c.Defaults.StepKm <= 0 || c.Defaults.RadiusKm <= 0 {
		return fmt.Errorf("defaults.step_km and defaults.radius_km must be positive")
	}
	if c.Defaults.StepKm > c.Defaults.RadiusKm {
		return fmt.Errorf("defaults.step_km must not exceed defaults.radius_km (tiles must overlap)")
	}
	return nil
}
