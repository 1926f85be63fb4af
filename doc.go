// Command parzip builds ZIP archives from directory trees.
//
// A run crawls its input directories into a sorted file list, plans the
// list into chunks, compresses the chunks concurrently and writes them, in
// order, behind one central directory. Existing archives can be appended to
// or merged in without recompression.
//
// The binary supports multiple subcommands:
//   - crawl: print the files a set of directories would contribute
//   - zip: write an archive from a saved crawl
//   - crawl-zip: crawl and write in one step
//   - merge: combine existing archives under optional prefixes
//   - validate, list, count: inspect archives and trees
//   - seed: generate test trees
//   - config: create or print configuration
package main
