package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewCountCmd creates and returns the count subcommand.
// It reports how many files, and how many bytes, a crawl would archive.
func NewCountCmd(ctx *commandContext) *cobra.Command {
	var flags crawlFlags

	cmd := &cobra.Command{
		Use:   "count PATH...",
		Short: "Count the files a crawl would archive",
		Long: `Count the regular files found by crawling each PATH, the way crawl-zip
would, and their total size. Useful for getting quick statistics about
directory contents before writing an archive.`,
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
			var total uint64
			for _, e := range res.Entries {
				info, err := os.Stat(e.ResolvedPath)
				if err != nil {
					return fmt.Errorf("stat %s: %w", e.UnresolvedPath, err)
				}
				total += uint64(info.Size())
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total files: %s\n", humanize.Comma(int64(res.Len())))
			fmt.Fprintf(out, "Total size: %s\n", humanize.IBytes(total))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
