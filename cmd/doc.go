// Package cmd implements the command-line interface of dHA. It provides a
// hierarchical command structure for running the server and administrating
// it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the dHA server
//   - replicas: Commands for the active replica set (list, status, activate, deactivate, resolve)
//   - sql: Commands for executing statements through a cluster (exec, query)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dha -help for a list of all commands.
package cmd
