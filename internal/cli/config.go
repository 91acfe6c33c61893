package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultURL = "http://localhost:8090"

// Config is the reportctl configuration file.
type Config struct {
	CurrentProfile string              `yaml:"current_profile"`
	Profiles       map[string]*Profile `yaml:"profiles"`
	path           string
}

// Profile points reportctl at one report service. Token takes precedence
// over User when both are set.
type Profile struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token,omitempty"`
	User  string `yaml:"user,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		CurrentProfile: "default",
		Profiles:       make(map[string]*Profile),
	}
}

// DefaultConfigPath is ~/.reportctl/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".reportctl", "config.yaml"), nil
}

// LoadConfig reads cfgFile, or the default path when empty. A missing file
// yields the default configuration.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		var err error
		if cfgFile, err = DefaultConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	cfg.path = cfgFile

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cfgFile, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	return cfg, nil
}

func (c *Config) Save() error {
	if c.path == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			return err
		}
		c.path = path
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// SetProfile stores p under name and makes it current.
func (c *Config) SetProfile(name string, p *Profile) error {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
	c.Profiles[name] = p
	c.CurrentProfile = name
	return c.Save()
}

// GetProfile returns the named profile, or the current one when name is
// empty. An unknown name falls back to the local defaults.
func (c *Config) GetProfile(name string) *Profile {
	if name == "" {
		name = c.CurrentProfile
	}
	if p, ok := c.Profiles[name]; ok {
		out := *p
		if out.URL == "" {
			out.URL = defaultURL
		}
		return &out
	}
	return &Profile{URL: defaultURL}
}
