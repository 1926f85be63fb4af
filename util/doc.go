// Package util provides archive inspection helpers shared by the parzip
// commands.
//
// It covers the checks that run after an archive is written, not the writing
// itself:
//
// Hashing:
//   - SHA-256 content hashes for files and readers, returned as lowercase hex
//   - Concurrent hashing of a set of files, bounded to runtime.NumCPU()
//   - Stable bucketing of names (used to color listings per top-level
//     directory)
//
// Archives:
//   - Entry counting and lookup by name
//   - Listing every central directory record with its metadata
//   - Structural verification: the central directory is parsed independently
//     and compared with archive/zip, names are checked, and every entry is
//     decompressed so CRC-32 mismatches surface
//   - Comparison of archive contents against the files a crawl found
package util
