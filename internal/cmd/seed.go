package cmd

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewSeedCmd creates and returns the seed subcommand.
// It generates a tree of test files to archive.
func NewSeedCmd() *cobra.Command {
	var (
		outputPath string
		fileCount  int
		seed       uint64
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a tree of test files",
		Long: `Generate a large number of test files for exercising parzip.

Creates files in a YYYY/MM/DD/HH/mm/SS directory structure. Files are
distributed across the hierarchy with most files at the deepest level (SS).
Most files hold a single UUID line, small enough to be stored; about one in
ten repeats UUIDs to a few hundred KiB so that it is deflated. The same
--seed always produces the same tree.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				seed = rand.Uint64()
			}
			g := newSeedGenerator(outputPath, seed)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "Generating %d test files in %s (seed %d)\n", fileCount, outputPath, seed)
			}
			if err := g.run(fileCount, func(n int) {
				if verbose && n%1000 == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Created %d/%d files...\n", n, fileCount)
				}
			}); err != nil {
				return err
			}
			if verbose {
				g.report(cmd)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Path to output directory (required)")
	cmd.Flags().IntVarP(&fileCount, "count", "c", 10000, "Number of files to generate")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed; random when unset")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	cmd.MarkFlagRequired("output")

	return cmd
}

const (
	seedPoolSize   = 50
	seedDirLimit   = 1000
	seedLargeEvery = 10
)

type seedGenerator struct {
	root          string
	rng           *rand.Rand
	pool          []string
	dirFileCounts map[string]int
}

func newSeedGenerator(root string, seed uint64) *seedGenerator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	g := &seedGenerator{
		root:          root,
		rng:           rand.New(src),
		pool:          make([]string, seedPoolSize),
		dirFileCounts: make(map[string]int),
	}
	for i := range g.pool {
		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			// ChaCha8 reads never fail
			panic(err)
		}
		g.pool[i] = id.String()
	}
	return g
}

func (g *seedGenerator) run(fileCount int, progress func(int)) error {
	if err := os.MkdirAll(g.root, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	created := 0
	for created < fileCount {
		fileTime := baseTime.AddDate(0, 0, g.rng.IntN(365)).
			Add(time.Duration(g.rng.IntN(24)) * time.Hour).
			Add(time.Duration(g.rng.IntN(60)) * time.Minute).
			Add(time.Duration(g.rng.IntN(60)) * time.Second)

		dirPath := filepath.Join(g.root, g.dirFor(fileTime))
		if g.dirFileCounts[dirPath] >= seedDirLimit {
			continue
		}
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dirPath, err)
		}

		ext := ".json"
		if g.rng.IntN(2) == 1 {
			ext = ".txt"
		}
		filePath := filepath.Join(dirPath, fmt.Sprintf("%08x%s", g.rng.Uint32(), ext))
		if _, err := os.Stat(filePath); err == nil {
			continue
		}

		if err := os.WriteFile(filePath, []byte(g.content()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", filePath, err)
		}
		if err := os.Chtimes(filePath, fileTime, fileTime); err != nil {
			return fmt.Errorf("set times on %s: %w", filePath, err)
		}

		g.dirFileCounts[dirPath]++
		created++
		progress(created)
	}
	return nil
}

// dirFor picks how deep in the date hierarchy a file lands; most files go
// to the deepest level.
func (g *seedGenerator) dirFor(t time.Time) string {
	parts := []string{
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
		fmt.Sprintf("%02d", t.Hour()),
		fmt.Sprintf("%02d", t.Minute()),
		fmt.Sprintf("%02d", t.Second()),
	}
	depth := 6
	switch r := g.rng.IntN(100); {
	case r < 5: // 5% at year level
		depth = 1
	case r < 10: // 5% at month level
		depth = 2
	case r < 15: // 5% at day level
		depth = 3
	case r < 25: // 10% at hour level
		depth = 4
	case r < 40: // 15% at minute level
		depth = 5
	}
	return filepath.Join(parts[:depth]...)
}

func (g *seedGenerator) content() string {
	line := g.pool[g.rng.IntN(len(g.pool))] + "\n"
	if g.rng.IntN(seedLargeEvery) != 0 {
		return line
	}
	// 37 bytes a line, up to about 300 KiB
	return strings.Repeat(line, 1+g.rng.IntN(8192))
}

func (g *seedGenerator) report(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	created := 0
	maxFiles := 0
	minFiles := seedDirLimit
	for _, count := range g.dirFileCounts {
		created += count
		maxFiles = max(maxFiles, count)
		minFiles = min(minFiles, count)
	}
	fmt.Fprintf(out, "Successfully created %d files\n", created)
	fmt.Fprintf(out, "Files distributed across %d directories\n", len(g.dirFileCounts))
	fmt.Fprintf(out, "Directory file counts: min=%d, max=%d\n", minFiles, maxFiles)
}
