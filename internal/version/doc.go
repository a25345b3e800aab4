// Package version exposes build metadata for the spring binaries.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags and default to sensible values for local builds.
// Helper functions Short and Full render the version string for the
// spring-daemon and spring-override CLIs and for logs.
package version
