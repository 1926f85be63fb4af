package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/dendrascience/parzip/crawl"
	"github.com/dendrascience/parzip/destination"
	"github.com/dendrascience/parzip/zipspec"
)

//go:embed sample_config.toml
var sampleConfig string

// Zip controls how archives are planned and written.
type Zip struct {
	Parallelism        string `toml:"parallelism"`
	Width              int    `toml:"width"`
	Workers            int    `toml:"workers"`
	Compression        string `toml:"compression"`
	Level              int    `toml:"level"`
	Mtime              string `toml:"mtime"`
	SmallFileThreshold int64  `toml:"small_file_threshold"`
	SpoolThreshold     int64  `toml:"spool_threshold"`
	TempDir            string `toml:"temp_dir"`
	NormalizeNames     bool   `toml:"normalize_names"`
	DirectoryEntries   bool   `toml:"directory_entries"`
}

// Crawl controls directory traversal.
type Crawl struct {
	Ignores         []string `toml:"ignores"`
	MaxSymlinkDepth int      `toml:"max_symlink_depth"`
}

// Output controls how the destination file is opened.
type Output struct {
	DestinationBehavior string `toml:"destination_behavior"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for parzip.
type Config struct {
	Zip     Zip     `toml:"zip"`
	Crawl   Crawl   `toml:"crawl"`
	Output  Output  `toml:"output"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/parzip/config.toml")
}

// SampleConfig returns a commented TOML file holding the defaults.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. It returns the
// config, the path it resolved to, and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config %s: %w", expanded, err)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config %s is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("parzip.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Strategy converts the [zip] section into a zipspec.Strategy.
func (c *Config) Strategy() (zipspec.Strategy, error) {
	p, err := zipspec.ParseParallelism(c.Zip.Parallelism)
	if err != nil {
		return zipspec.Strategy{}, fmt.Errorf("zip.parallelism: %w", err)
	}
	return zipspec.Strategy{Parallelism: p, Width: c.Zip.Width}, nil
}

// ZipOptions converts the [zip] section into zipspec.Options. Prefixes are
// per invocation and left empty.
func (c *Config) ZipOptions() (zipspec.Options, error) {
	level := ""
	if c.Zip.Level != zipspec.DefaultLevel {
		level = strconv.Itoa(c.Zip.Level)
	}
	comp, err := zipspec.ParseCompression(c.Zip.Compression, level)
	if err != nil {
		return zipspec.Options{}, fmt.Errorf("zip.compression: %w", err)
	}
	mtime, err := zipspec.ParseMtime(c.Zip.Mtime)
	if err != nil {
		return zipspec.Options{}, fmt.Errorf("zip.mtime: %w", err)
	}
	return zipspec.Options{
		Compression:        comp,
		Mtime:              mtime,
		SmallFileThreshold: c.Zip.SmallFileThreshold,
		NormalizeNames:     c.Zip.NormalizeNames,
		DirectoryEntries:   c.Zip.DirectoryEntries,
	}, nil
}

// Behavior converts [output] destination_behavior.
func (c *Config) Behavior() (destination.Behavior, error) {
	b, err := destination.ParseBehavior(c.Output.DestinationBehavior)
	if err != nil {
		return 0, fmt.Errorf("output.destination_behavior: %w", err)
	}
	return b, nil
}

// Ignores compiles [crawl] ignores.
func (c *Config) Ignores() (*crawl.Ignores, error) {
	ig, err := crawl.NewIgnores(c.Crawl.Ignores...)
	if err != nil {
		return nil, fmt.Errorf("crawl.ignores: %w", err)
	}
	return ig, nil
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}
