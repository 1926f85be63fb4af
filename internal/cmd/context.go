package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dendrascience/parzip/internal/config"
	"github.com/dendrascience/parzip/internal/logging"
)

const skipConfigLoad = "skipConfigLoad"

type commandContext struct {
	configFlag string
	logLevel   string
	logFormat  string

	config     *config.Config
	configPath string
	logger     *slog.Logger
	runID      string
}

// setup loads configuration, applies the persistent logging flags and
// builds the run logger on the command's stderr.
func (c *commandContext) setup(cmd *cobra.Command) error {
	if shouldSkipConfig(cmd) {
		c.logger = logging.NewNop()
		return nil
	}
	cfg, path, exists, err := config.Load(strings.TrimSpace(c.configFlag))
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(c.logLevel))
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = strings.ToLower(strings.TrimSpace(c.logFormat))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	c.logger, c.runID = logging.WithRunID(logger)
	c.config = cfg
	c.configPath = path
	c.logger.Debug("configuration loaded",
		"command", cmd.CommandPath(),
		"config", path,
		"config_exists", exists,
	)
	return nil
}

func (c *commandContext) component(name string) *slog.Logger {
	return logging.NewComponentLogger(c.logger, name)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations[skipConfigLoad] == "true" {
			return true
		}
	}
	return false
}
