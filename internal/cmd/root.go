package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dendrascience/parzip/version"
)

const (
	groupArchive   = "archive"
	groupUtilities = "utilities"
)

// NewRootCmd creates and returns the root cobra command for the parzip CLI.
// It sets up all subcommands, command groups, and the persistent flags.
func NewRootCmd() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:   "parzip",
		Short: "parzip - build ZIP archives from directory trees in parallel",
		Long: `parzip turns one or more directory trees into a ZIP archive.

Files are crawled into a deterministic list, planned into chunks, and the
chunks are compressed concurrently before being stitched together, in order,
behind a single central directory. The output is readable by any standard
ZIP tool.

Use subcommands to perform different operations:
  - crawl: list the files a set of directories would contribute
  - zip: write an archive from a saved crawl
  - crawl-zip: crawl and write in one step
  - merge: combine existing archives under optional prefixes
  - validate, list, count: inspect archives and trees`,
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.configFlag, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "", "Log format (console, json)")

	rootCmd.AddGroup(&cobra.Group{
		ID:    groupArchive,
		Title: "Archive Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	for _, c := range []*cobra.Command{
		NewCrawlCmd(ctx),
		NewZipCmd(ctx),
		NewCrawlZipCmd(ctx),
		NewMergeCmd(ctx),
	} {
		c.GroupID = groupArchive
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		NewValidateCmd(ctx),
		NewListCmd(ctx),
		NewCountCmd(ctx),
		NewSeedCmd(),
		NewConfigCmd(ctx),
	} {
		c.GroupID = groupUtilities
		rootCmd.AddCommand(c)
	}

	return rootCmd
}
