package config

import (
	"fmt"
	"os"
	"strings"

	"quill/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	if err := c.normalizeChecking(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("QUILL_STATE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateDir = value
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.BindHost = strings.TrimSpace(c.Server.BindHost)
	if c.Server.BindHost == "" {
		c.Server.BindHost = defaultBindHost
	}
}

func (c *Config) normalizeChecking() error {
	if strings.TrimSpace(c.Checking.Language) == "" {
		c.Checking.Language = language.Fallback
	}
	tag, err := language.Normalize(c.Checking.Language)
	if err != nil {
		return fmt.Errorf("checking.language: %w", err)
	}
	c.Checking.Language = tag

	if strings.TrimSpace(c.Checking.MotherTongue) != "" {
		mother, err := language.Normalize(c.Checking.MotherTongue)
		if err != nil {
			return fmt.Errorf("checking.mother_tongue: %w", err)
		}
		c.Checking.MotherTongue = mother
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "":
		c.Logging.Level = defaultLogLevel
	case "warning":
		c.Logging.Level = "warn"
	}
}
