// Package common provides core data structures and utilities shared across
// the dHA server and its clients. It defines the admin protocol, the
// configuration structures and the logger setup.
//
// The package focuses on:
//   - Message protocol definition for the admin and statement api
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat's logger package
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication, with a flexible
//     structure that adapts to the different operation types. Includes factory
//     methods for creating the request and response messages.
//
//   - MessageType: Enumeration of all supported operations, split into membership
//     operations (list, activate, deactivate, resolve, status) and statement
//     operations (exec, query).
//
//   - ServerConfig: Configuration of a server, the served cluster and its replicas.
//     ToClusterConfig and ToSQLConfigs convert it into the lib/cluster and lib/replica
//     configuration.
//
//   - ClientConfig: Configuration for client components, controlling endpoints,
//     timeouts, and retry behavior.
//
//   - InitLoggers: installs the custom logger factory and sets the level of every
//     package logger.
package common
