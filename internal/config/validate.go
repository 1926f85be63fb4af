package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. It reports the first
// problem found.
func (c *Config) Validate() error {
	if err := c.validateZip(); err != nil {
		return err
	}
	if err := c.validateCrawl(); err != nil {
		return err
	}
	if _, err := c.Behavior(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateZip() error {
	if _, err := c.Strategy(); err != nil {
		return err
	}
	if c.Zip.Width < 0 {
		return errors.New("zip.width must be zero or positive")
	}
	if c.Zip.Workers < 0 {
		return errors.New("zip.workers must be zero or positive")
	}
	if c.Zip.SmallFileThreshold < -1 {
		return errors.New("zip.small_file_threshold must be -1 or more")
	}
	if c.Zip.SpoolThreshold < 0 {
		return errors.New("zip.spool_threshold must be positive")
	}
	if _, err := c.ZipOptions(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCrawl() error {
	if c.Crawl.MaxSymlinkDepth < 0 {
		return errors.New("crawl.max_symlink_depth must be zero or positive")
	}
	if _, err := c.Ignores(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
