package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dendrascience/parzip/crawl"
	"github.com/dendrascience/parzip/merge"
)

// NewZipCmd creates the zip subcommand, which writes an archive from a
// crawl produced by the crawl command.
func NewZipCmd(ctx *commandContext) *cobra.Command {
	var (
		flags zipFlags
		input string
	)

	cmd := &cobra.Command{
		Use:   "zip -o OUTPUT",
		Short: "Write an archive from a saved crawl",
		Long: `Read crawl JSON from standard input, or from --input, and write the
listed files to OUTPUT.

--merge appends the entries of existing archives after the crawled ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.settings(cmd, ctx.config)
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open crawl input: %w", err)
				}
				defer f.Close()
				r = f
			}
			res, err := crawl.ReadJSON(r)
			if err != nil {
				return err
			}
			_, err = writeArchive(cmd.Context(), ctx, s, res)
			return err
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVarP(&input, "input", "i", "", "Crawl JSON file to read instead of standard input")
	return cmd
}

// NewCrawlZipCmd creates the crawl-zip subcommand, a crawl and a zip in one
// process.
func NewCrawlZipCmd(ctx *commandContext) *cobra.Command {
	var (
		flags  zipFlags
		crawlF crawlFlags
	)

	cmd := &cobra.Command{
		Use:   "crawl-zip PATH... -o OUTPUT",
		Short: "Crawl directories and write them to an archive",
		Long: `Crawl one or more directories and write every file found to OUTPUT.

Entry names are relative to the root each file was found under. When
OUTPUT lies inside a crawled directory it is left out of the archive.
--merge appends the entries of existing archives after the crawled ones.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.settings(cmd, ctx.config)
			if err != nil {
				return err
			}
			crawler, err := crawlF.crawler(cmd, ctx, args)
			if err != nil {
				return err
			}
			res, err := crawler.Crawl(cmd.Context())
			if err != nil {
				return err
			}
			for _, root := range args {
				if pathsOverlap(root, s.Output) {
					var dropped int
					res, dropped = excludeOutput(res, s.Output)
					ctx.logger.Warn("output is inside a crawled directory",
						"root", root,
						"output", s.Output,
						"excluded", dropped,
					)
					break
				}
			}
			_, err = writeArchive(cmd.Context(), ctx, s, res)
			return err
		},
	}

	flags.register(cmd, true)
	crawlF.register(cmd)
	return cmd
}

// NewMergeCmd creates the merge subcommand, which combines existing
// archives without recompressing them.
func NewMergeCmd(ctx *commandContext) *cobra.Command {
	var flags zipFlags

	cmd := &cobra.Command{
		Use:   "merge -o OUTPUT [+PREFIX/] ARCHIVE...",
		Short: "Combine existing archives under optional prefixes",
		Long: `Copy the entries of each ARCHIVE into OUTPUT without recompressing them.

An argument of the form +PREFIX/ places the archives after it under PREFIX,
with a directory entry for each component of the prefix; +/ returns to the
top level. Merging two files to the same name is an error.`,
		Example: `  parzip merge -o all.zip base.zip +vendor/lib/ lib1.zip lib2.zip`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.settings(cmd, ctx.config)
			if err != nil {
				return err
			}
			m, err := merge.ParseArgs(args)
			if err != nil {
				return err
			}
			s.Merge = &m
			_, err = writeArchive(cmd.Context(), ctx, s, crawl.Result{})
			return err
		},
	}

	flags.register(cmd, false)
	return cmd
}
