package cmd

import (
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl subcommand, which prints the crawl of its
// arguments as JSON for a later zip.
func NewCrawlCmd(ctx *commandContext) *cobra.Command {
	var flags crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl PATH...",
		Short: "List the files a set of directories would contribute",
		Long: `Crawl one or more directories and print the regular files found as JSON.

Symlinks are followed, each file is reported once, and entries are sorted
by their path relative to the root they were found under. The output can be
fed to the zip command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crawler, err := flags.crawler(cmd, ctx, args)
			if err != nil {
				return err
			}
			res, err := crawler.Crawl(cmd.Context())
			if err != nil {
				return err
			}
			ctx.logger.Debug("crawl finished", "roots", len(args), "entries", res.Len())
			return res.WriteJSON(cmd.OutOrStdout())
		},
	}

	flags.register(cmd)
	return cmd
}
