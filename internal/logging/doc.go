// Package logging builds the slog loggers used by the parzip commands.
//
// Two formats are supported: "console", a compact text format for
// terminals, and "json" for machine consumption. Every command run is tagged
// with a run_id so concurrent invocations can be told apart in shared logs.
// Library packages accept a *slog.Logger and fall back to NewNop.
package logging
