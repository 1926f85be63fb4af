package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dendrascience/parzip/crawl"
	"github.com/dendrascience/parzip/destination"
	"github.com/dendrascience/parzip/internal/config"
	"github.com/dendrascience/parzip/merge"
	"github.com/dendrascience/parzip/zipspec"
	"github.com/dendrascience/parzip/zipwriter"
)

// zipFlags are shared by every command that writes an archive. Each one
// overrides the matching config value only when given.
type zipFlags struct {
	output             string
	behavior           string
	parallelism        string
	width              int
	workers            int
	compression        string
	level              int
	mtime              string
	smallFileThreshold int64
	spoolThreshold     int64
	tempDir            string
	silentPrefix       string
	ownPrefix          string
	normalizeNames     bool
	directoryEntries   bool
	merge              []string
}

// zipSettings is everything a write needs, resolved from config and flags.
type zipSettings struct {
	Output   string
	Behavior destination.Behavior
	Strategy zipspec.Strategy
	Options  zipspec.Options
	Writer   zipwriter.Options
	Merge    *merge.Merge
}

func (f *zipFlags) register(cmd *cobra.Command, withMerge bool) {
	flags := cmd.Flags()
	flags.StringVarP(&f.output, "output", "o", "", "Path of the archive to write (required); an empty OUTPUT.lock file is left beside it")
	flags.StringVarP(&f.behavior, "destination-behavior", "d", "", "How to treat an existing output: "+behaviorList())
	flags.StringVar(&f.parallelism, "parallelism", "", "Execution strategy (sequential, parallel-merge)")
	flags.IntVar(&f.width, "width", 0, "Number of chunks for parallel-merge; 0 means one per CPU")
	flags.IntVar(&f.workers, "workers", 0, "Concurrent compression workers; 0 means one per CPU")
	flags.StringVar(&f.compression, "compression", "", "Compression method (store, deflate)")
	flags.IntVar(&f.level, "level", zipspec.DefaultLevel, "Deflate level 0-9, -1 for the default")
	flags.StringVar(&f.mtime, "mtime", "", "Entry times: reproducible, current, preserve or an RFC 3339 time")
	flags.Int64Var(&f.smallFileThreshold, "small-file-threshold", zipspec.DefaultSmallFileThreshold, "Store files of at most this many bytes; -1 disables")
	flags.Int64Var(&f.spoolThreshold, "spool-threshold", zipwriter.DefaultSpoolThreshold, "Bytes of a chunk held in memory before spilling to disk")
	flags.StringVar(&f.tempDir, "temp-dir", "", "Directory for spilled chunks")
	flags.StringVar(&f.silentPrefix, "silent-prefix", "", "Prefix prepended to every entry name without directory entries")
	flags.StringVar(&f.ownPrefix, "own-prefix", "", "Prefix prepended to every entry name with its own directory entries")
	flags.BoolVar(&f.normalizeNames, "normalize-names", false, "Convert entry names to Unicode NFC")
	flags.BoolVar(&f.directoryEntries, "directory-entries", false, "Emit an entry for every directory holding files")
	if withMerge {
		flags.StringArrayVar(&f.merge, "merge", nil, "Archive to merge after the written entries; \"+prefix/\" starts a prefix group (repeatable)")
	}
	cmd.MarkFlagRequired("output")
}

func behaviorList() string {
	var names []string
	for _, b := range destination.Behaviors() {
		names = append(names, b.String())
	}
	return strings.Join(names, ", ")
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// settings layers the flags given on cmd over base.
func (f *zipFlags) settings(cmd *cobra.Command, base *config.Config) (zipSettings, error) {
	cfg := *base
	flags := cmd.Flags()
	if flags.Changed("parallelism") {
		cfg.Zip.Parallelism = lower(f.parallelism)
	}
	if flags.Changed("width") {
		cfg.Zip.Width = f.width
	}
	if flags.Changed("workers") {
		cfg.Zip.Workers = f.workers
	}
	if flags.Changed("compression") {
		cfg.Zip.Compression = lower(f.compression)
		// a configured level belongs to the configured method
		cfg.Zip.Level = zipspec.DefaultLevel
	}
	if flags.Changed("level") {
		cfg.Zip.Level = f.level
	}
	if flags.Changed("mtime") {
		cfg.Zip.Mtime = strings.TrimSpace(f.mtime)
	}
	if flags.Changed("small-file-threshold") {
		cfg.Zip.SmallFileThreshold = f.smallFileThreshold
	}
	if flags.Changed("spool-threshold") {
		cfg.Zip.SpoolThreshold = f.spoolThreshold
	}
	if flags.Changed("temp-dir") {
		dir, err := config.ExpandPath(strings.TrimSpace(f.tempDir))
		if err != nil {
			return zipSettings{}, fmt.Errorf("--temp-dir: %w", err)
		}
		cfg.Zip.TempDir = dir
	}
	if flags.Changed("normalize-names") {
		cfg.Zip.NormalizeNames = f.normalizeNames
	}
	if flags.Changed("directory-entries") {
		cfg.Zip.DirectoryEntries = f.directoryEntries
	}
	if flags.Changed("destination-behavior") {
		cfg.Output.DestinationBehavior = lower(f.behavior)
	}
	if err := cfg.Validate(); err != nil {
		return zipSettings{}, err
	}

	var s zipSettings
	var err error
	if s.Output, err = filepath.Abs(f.output); err != nil {
		return zipSettings{}, fmt.Errorf("resolve output path: %w", err)
	}
	if s.Strategy, err = cfg.Strategy(); err != nil {
		return zipSettings{}, err
	}
	if s.Options, err = cfg.ZipOptions(); err != nil {
		return zipSettings{}, err
	}
	if s.Behavior, err = cfg.Behavior(); err != nil {
		return zipSettings{}, err
	}
	s.Options.Modifications = zipspec.Modifications{
		SilentPrefix: f.silentPrefix,
		OwnPrefix:    f.ownPrefix,
	}
	s.Writer = zipwriter.Options{
		Workers:        cfg.Zip.Workers,
		SpoolThreshold: cfg.Zip.SpoolThreshold,
		TempDir:        cfg.Zip.TempDir,
	}
	if len(f.merge) > 0 {
		m, err := merge.ParseArgs(f.merge)
		if err != nil {
			return zipSettings{}, err
		}
		s.Merge = &m
	}
	return s, nil
}

// crawlFlags configure a crawl on top of the [crawl] config section.
type crawlFlags struct {
	ignores         []string
	maxSymlinkDepth int
}

func (f *crawlFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVar(&f.ignores, "ignore", nil, "Regular expression of relative paths to skip (repeatable)")
	flags.IntVar(&f.maxSymlinkDepth, "max-symlink-depth", crawl.DefaultMaxSymlinkDepth, "Symlinks followed when resolving one path")
}

func (f *crawlFlags) crawler(cmd *cobra.Command, c *commandContext, roots []string) (*crawl.Crawler, error) {
	cfg := *c.config
	cfg.Crawl.Ignores = append(append([]string(nil), cfg.Crawl.Ignores...), f.ignores...)
	if cmd.Flags().Changed("max-symlink-depth") {
		cfg.Crawl.MaxSymlinkDepth = f.maxSymlinkDepth
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ignores, err := cfg.Ignores()
	if err != nil {
		return nil, err
	}
	return &crawl.Crawler{
		Roots:           roots,
		Ignores:         ignores,
		MaxSymlinkDepth: cfg.Crawl.MaxSymlinkDepth,
		Logger:          c.component("crawl"),
	}, nil
}
