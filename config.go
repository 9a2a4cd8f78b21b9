package itla

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaud = 115200
	DefaultTick = 100 * time.Millisecond

	ReadTimeoutMin = 10 * time.Millisecond
	ReadTimeoutMax = 5 * time.Second
)

// Config is the file-level configuration of a link and its host program.
type Config struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	Backend     string        `yaml:"backend"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	QueueSize   int           `yaml:"queue_size"`
	Tick        time.Duration `yaml:"tick"` // how often the host drains events
	MetricsAddr string        `yaml:"metrics_addr"`
	LogLevel    string        `yaml:"log_level"`
}

// DefaultConfig returns a Config with every default applied. Port is empty.
func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

// LoadConfig reads a YAML config file, applies defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.Backend == "" {
		c.Backend = BackendAuto
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Tick == 0 {
		c.Tick = DefaultTick
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks value ranges. It does not require Port, which callers may
// supply later.
func (c *Config) Validate() error {
	if c.Baud <= 0 {
		return errors.New("baud must be positive")
	}
	switch c.Backend {
	case BackendAuto, BackendTermios, BackendPortable:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.ReadTimeout < ReadTimeoutMin || c.ReadTimeout > ReadTimeoutMax {
		return fmt.Errorf("read_timeout %s out of range [%s, %s]", c.ReadTimeout, ReadTimeoutMin, ReadTimeoutMax)
	}
	if c.QueueSize < 0 {
		return errors.New("queue_size must be positive")
	}
	if c.Tick < 0 {
		return errors.New("tick must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Options returns the Link options described by c.
func (c *Config) Options() ([]Option, error) {
	open, err := OpenerFor(c.Backend)
	if err != nil {
		return nil, err
	}
	return []Option{
		WithOpener(open),
		WithReadTimeout(c.ReadTimeout),
		WithQueueSize(c.QueueSize),
	}, nil
}
