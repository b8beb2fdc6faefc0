// Package config loads the YAML configuration of the eventlink command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/panyam/eventlink"
)

const maxLog2Slots = 16

// Config describes one channel, its dispatcher and the load driven through it.
type Config struct {
	Name            string        `yaml:"name"`
	Log2Slots       int           `yaml:"log2_slots"`
	MaxListeners    int           `yaml:"max_listeners"`
	Workers         int           `yaml:"workers"`
	CopyArguments   bool          `yaml:"copy_arguments"`
	NotifyListeners bool          `yaml:"notify_listeners"`
	Listeners       int           `yaml:"listeners"`
	Producers       int           `yaml:"producers"`
	EventsPerProd   int           `yaml:"events_per_producer"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	LogLevel        string        `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Name:            "events",
		Log2Slots:       8,
		MaxListeners:    10,
		Workers:         4,
		NotifyListeners: true,
		Listeners:       2,
		Producers:       2,
		EventsPerProd:   1000,
		PollInterval:    time.Millisecond,
		LogLevel:        "info",
	}
}

// Load reads and validates the file at path. An empty path yields Default.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse overlays data on Default and validates the result. Unknown keys are
// rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs error
	if c.Name == "" {
		errs = multierr.Append(errs, errors.New("name must not be empty"))
	}
	if c.Log2Slots < 1 || c.Log2Slots > maxLog2Slots {
		errs = multierr.Append(errs, fmt.Errorf("log2_slots must be in [1, %d], got %d", maxLog2Slots, c.Log2Slots))
	}
	if c.MaxListeners < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_listeners must not be negative, got %d", c.MaxListeners))
	}
	if c.Workers < 1 {
		errs = multierr.Append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Listeners < 0 || c.Listeners > c.MaxListeners {
		errs = multierr.Append(errs, fmt.Errorf("listeners must be in [0, max_listeners=%d], got %d", c.MaxListeners, c.Listeners))
	}
	if c.Producers < 1 {
		errs = multierr.Append(errs, fmt.Errorf("producers must be at least 1, got %d", c.Producers))
	}
	if c.EventsPerProd < 0 {
		errs = multierr.Append(errs, fmt.Errorf("events_per_producer must not be negative, got %d", c.EventsPerProd))
	}
	if c.PollInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log_level: %w", err))
	}
	if errs != nil {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Capabilities is the dispatcher configuration: answerless consumption plus
// listener notification when requested.
func (c Config) Capabilities() eventlink.Capabilities {
	return eventlink.Capabilities{
		CopyArguments:     c.CopyArguments,
		NotifyListeners:   c.NotifyListeners,
		ConsumeAnswerless: true,
	}
}

// Level is the parsed log level, info when it does not parse.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
