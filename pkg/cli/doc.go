// Package cli provides common utilities for the giztalk command-line
// tools.
//
// This package includes:
//   - Configuration management (server contexts, kubectl-style)
//   - Output formatting (YAML, JSON, raw)
//   - Request file loading (YAML/JSON)
//   - Terminal rendering for the device simulator
//
// Configuration is stored in ~/.giztalk/, supporting multiple contexts
// so one CLI can talk to several giztalk servers.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig()
//
//	ctx, err := cfg.GetCurrentContext()
//
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
