// Package config parses the YAML configuration of the protocol checks.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dennisinteractive/godog-protocol/internal/protocol"
	"github.com/dennisinteractive/godog-protocol/internal/session"
)

// Config holds the settings shared by the godog steps and the CLI.
type Config struct {
	BaseURL      string            `yaml:"base_url"`
	Hosts        []string          `yaml:"hosts"`
	Headers      map[string]string `yaml:"headers"`
	Driver       string            `yaml:"driver"`
	ScriptPolicy string            `yaml:"script_policy"`
	Timeout      time.Duration     `yaml:"timeout"`
	QuietPeriod  time.Duration     `yaml:"quiet_period"`
	InsecureTLS  bool              `yaml:"insecure_tls"`
	Concurrency  int               `yaml:"concurrency"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Driver == "" {
		c.Driver = session.DriverHTTP
	}
	if c.ScriptPolicy == "" {
		c.ScriptPolicy = protocol.SkipUnreachable.String()
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.QuietPeriod == 0 {
		c.QuietPeriod = 500 * time.Millisecond
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.Driver {
	case session.DriverHTTP, session.DriverChrome:
	default:
		return fmt.Errorf("driver: unknown driver %q", c.Driver)
	}
	if _, err := ParseScriptPolicy(c.ScriptPolicy); err != nil {
		return fmt.Errorf("script_policy: %w", err)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout: must not be negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency: must not be negative")
	}
	for i, h := range c.Hosts {
		if h == "" {
			return fmt.Errorf("hosts[%d]: empty host", i)
		}
	}
	return nil
}

// ParseScriptPolicy maps "skip" or "fail" to a protocol.ScriptPolicy.
func ParseScriptPolicy(s string) (protocol.ScriptPolicy, error) {
	switch s {
	case "", "skip":
		return protocol.SkipUnreachable, nil
	case "fail":
		return protocol.FailUnreachable, nil
	}
	return protocol.SkipUnreachable, fmt.Errorf("unknown policy %q", s)
}

// CheckerOptions converts the configuration into protocol options.
func (c *Config) CheckerOptions() []protocol.Option {
	policy, _ := ParseScriptPolicy(c.ScriptPolicy)
	opts := []protocol.Option{
		protocol.WithHosts(c.Hosts...),
		protocol.WithHeaders(c.Headers),
		protocol.WithScriptPolicy(policy),
	}
	if c.BaseURL != "" {
		opts = append(opts, protocol.WithBaseURL(c.BaseURL))
	}
	return opts
}

// SessionOptions converts the configuration into session driver options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Driver:      c.Driver,
		Timeout:     c.Timeout,
		Quiet:       c.QuietPeriod,
		InsecureTLS: c.InsecureTLS,
	}
}
