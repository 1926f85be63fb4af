package cmd

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dendrascience/parzip/util"
)

// NewListCmd creates the list subcommand, which prints an archive's central
// directory as a table.
func NewListCmd(ctx *commandContext) *cobra.Command {
	var (
		noColor  bool
		contains []string
	)

	cmd := &cobra.Command{
		Use:   "list ARCHIVE",
		Short: "List the entries of an archive",
		Long: `List every central directory entry of ARCHIVE in archive order.

On a terminal, entries are colored by their top-level directory. With
--contains, the command fails unless every named entry is present.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := util.ListEntries(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := !noColor && shouldColorize(out)

			rows := make([][]string, 0, len(entries))
			var size, compressed uint64
			for _, e := range entries {
				name := e.Name
				if colorize {
					name = colorName(name)
				}
				rows = append(rows, []string{
					name,
					e.Method,
					humanize.IBytes(e.UncompressedSize),
					humanize.IBytes(e.CompressedSize),
					e.Modified.UTC().Format("2006-01-02 15:04:05"),
					e.Mode.String(),
				})
				size += e.UncompressedSize
				compressed += e.CompressedSize
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Method", "Size", "Compressed", "Modified", "Mode"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintf(out, "%d entries, %s uncompressed, %s compressed\n",
				len(entries), humanize.IBytes(size), humanize.IBytes(compressed))
			ctx.logger.Debug("listed archive", "path", args[0], "entries", len(entries))

			var missing []string
			for _, name := range contains {
				ok, err := util.CheckEntry(args[0], name)
				if err != nil {
					return err
				}
				if !ok {
					missing = append(missing, name)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("%s: %w: %s", args[0], util.ErrEntryMissing, strings.Join(missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Never color the output")
	cmd.Flags().StringArrayVar(&contains, "contains", nil, "Entry name that must be present (repeatable)")
	return cmd
}

// colorName colors name by its top-level directory, so entries of one
// directory share a color across runs.
func colorName(name string) string {
	top, _, _ := strings.Cut(name, "/")
	i, err := util.Bucket(top, len(palette))
	if err != nil {
		return name
	}
	return palette[i].Sprint(name)
}
