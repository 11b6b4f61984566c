// Package cmd implements the command-line interface for the viewmesh
// distributed dependency-tracking engine. It provides a hierarchical
// command structure for running a node and administering the key-value
// store and lock manager that back it.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for the backing key-value store (get, set, delete, etc.)
//   - lock: Commands for distributed lock administration (acquire, release)
//   - serve: Commands for starting and configuring a viewmesh node
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See viewmesh -help for a list of all commands.
package cmd
