// Package cmd provides the command-line interface implementation for parzip.
//
// It uses the Cobra library for command structure; main hands the root
// command to Fang for styling and signal-aware execution.
//
// Commands fall into two groups:
//   - archive operations: crawl, zip, crawl-zip, merge
//   - utilities: validate, list, count, seed, config
//
// Each command is built by its own constructor returning a *cobra.Command.
// The root command loads configuration and builds the run logger once, in
// PersistentPreRunE, and shares them through a commandContext.
package cmd
