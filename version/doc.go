// Package version reports build metadata for the parzip binary.
//
// Values come from -ldflags when set:
//
//	-ldflags "-X github.com/dendrascience/parzip/version.Version=v1.2.0 -X github.com/dendrascience/parzip/version.Commit=abc1234 -X github.com/dendrascience/parzip/version.Date=2026-01-01T00:00:00Z"
//
// and otherwise from the module and VCS stamps in debug.ReadBuildInfo.
package version
