package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeZip()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.Output.DestinationBehavior = lowerOr(c.Output.DestinationBehavior, defaultDestinationBehavior)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeZip() {
	c.Zip.Parallelism = lowerOr(c.Zip.Parallelism, defaultParallelism)
	c.Zip.Compression = lowerOr(c.Zip.Compression, defaultCompression)
	// mtime may be an RFC 3339 time, which is case sensitive
	c.Zip.Mtime = strings.TrimSpace(c.Zip.Mtime)
	if c.Zip.Mtime == "" {
		c.Zip.Mtime = defaultMtime
	}
	if c.Zip.SpoolThreshold == 0 {
		c.Zip.SpoolThreshold = defaultSpoolThreshold
	}
	kept := c.Crawl.Ignores[:0]
	for _, pattern := range c.Crawl.Ignores {
		if strings.TrimSpace(pattern) != "" {
			kept = append(kept, pattern)
		}
	}
	c.Crawl.Ignores = kept
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Zip.TempDir, err = expandPath(strings.TrimSpace(c.Zip.TempDir)); err != nil {
		return fmt.Errorf("zip.temp_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = lowerOr(c.Logging.Format, defaultLogFormat)
	c.Logging.Level = lowerOr(c.Logging.Level, defaultLogLevel)
}

func lowerOr(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}
