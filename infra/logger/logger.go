// Package logger provides the zerolog implementation of core/logger.Logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/rbtsched/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Config selects the output of the process loggers.
type Config struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level"`
	// Format is json or console. Empty follows APP_ENV: console when dev.
	Format string `json:"format"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
		if strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
			c.Format = "console"
		}
	}
}

// Validate checks the level and format names.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("unknown level %q", c.Level)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("unknown format %q", c.Format)
	}
	return nil
}

var defaults = Config{}

// Configure sets the config used by New. It is meant to be called once at
// start-up before loggers are created.
func Configure(c Config) {
	c.SetDefaults()
	defaults = c
}

// New returns a Logger for the given component writing to stdout.
func New(component string) Logger {
	c := defaults
	c.SetDefaults()
	return NewZerologLogger(component, c, os.Stdout)
}

// NewWriter is New with an explicit destination.
func NewWriter(component string, c Config, w io.Writer) Logger {
	c.SetDefaults()
	return NewZerologLogger(component, c, w)
}
