package config

const (
	defaultParallelism         = "parallel-merge"
	defaultCompression         = "deflate"
	defaultLevel               = -1
	defaultMtime               = "reproducible"
	defaultSmallFileThreshold  = 1000
	defaultSpoolThreshold      = 8 << 20
	defaultMaxSymlinkDepth     = 40
	defaultDestinationBehavior = "always-truncate"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Zip: Zip{
			Parallelism:        defaultParallelism,
			Compression:        defaultCompression,
			Level:              defaultLevel,
			Mtime:              defaultMtime,
			SmallFileThreshold: defaultSmallFileThreshold,
			SpoolThreshold:     defaultSpoolThreshold,
		},
		Crawl: Crawl{
			MaxSymlinkDepth: defaultMaxSymlinkDepth,
		},
		Output: Output{
			DestinationBehavior: defaultDestinationBehavior,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
