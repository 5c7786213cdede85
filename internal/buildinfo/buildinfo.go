// Package buildinfo exposes version identifiers stamped into lookout
// binaries at link time.
package buildinfo

// Version is set at link-time with -ldflags.
var Version = "v0.3.1"

// Commit is set at link-time with -ldflags.
// Default is "unknown" so tests and "go run ." still work.
var Commit = "unknown"
