package cmd

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/dendrascience/parzip/util"
)

// NewValidateCmd creates and returns the validate subcommand.
// It checks archive structure and CRCs, and optionally contents.
func NewValidateCmd(ctx *commandContext) *cobra.Command {
	var (
		against []string
		prefix  string
		crawlF  crawlFlags
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "validate ARCHIVE...",
		Short: "Validate archives for corruption and consistency",
		Long: `Validate archives for corruption and consistency issues.

Every entry is decompressed and its CRC checked; names must be unique and
well formed, and the central directory must agree with its end record.
With --against, the files of each archive are also compared, by SHA-256,
with a crawl of the given directories.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var want map[string]string
			if len(against) > 0 {
				crawler, err := crawlF.crawler(cmd, ctx, against)
				if err != nil {
					return err
				}
				res, err := crawler.Crawl(cmd.Context())
				if err != nil {
					return err
				}
				want = make(map[string]string, res.Len())
				for _, e := range res.Entries {
					want[path.Join(prefix, e.UnresolvedPath)] = e.ResolvedPath
				}
			}

			out := cmd.OutOrStdout()
			var rows [][]string
			total := 0
			for _, archive := range args {
				report, err := util.VerifyArchive(archive)
				if err != nil {
					return err
				}
				problems := report.Problems
				if want != nil {
					diff, err := util.CompareTree(cmd.Context(), archive, want)
					if err != nil {
						return err
					}
					problems = append(problems, diff...)
				}
				for _, p := range problems {
					rows = append(rows, []string{archive, p.Entry, p.Err.Error()})
				}
				total += len(problems)
				if verbose {
					fmt.Fprintf(out, "%s: %d entries (%d files, %d dirs), %d problems\n",
						archive, report.Entries, report.Files, report.Dirs, len(problems))
				}
				ctx.logger.Debug("archive validated", "path", archive, "entries", report.Entries, "problems", len(problems))
			}

			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable([]string{"Archive", "Entry", "Problem"}, rows, nil))
			}
			fmt.Fprintf(out, "\nValidation complete:\n")
			fmt.Fprintf(out, "  Archives checked: %d\n", len(args))
			fmt.Fprintf(out, "  Total problems: %d\n", total)
			if total > 0 {
				return fmt.Errorf("validation found %d problems", total)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&against, "against", nil, "Directory whose files the archive must hold (repeatable)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Prefix the archive adds to names from --against")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print a line per archive")
	crawlF.register(cmd)
	return cmd
}
