// Package config loads, normalizes, and validates parzip configuration data.
//
// Settings come from a TOML file (an explicit --config path, then
// ~/.config/parzip/config.toml, then ./parzip.toml) layered over Default().
// Enumerated values are lower-cased and checked against the parsers in
// zipspec and destination, so a Config that passes Validate converts to
// writer options without further errors. Command-line flags are applied on top
// by the cmd package.
package config
