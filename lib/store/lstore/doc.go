// Package lstore implements a local, in-memory key-value store based on the
// store.IStore interface. Data is stored entirely in memory and is not persisted
// between process restarts.
//
// Key Features:
//   - Pure in-memory storage without persistence
//   - Thread-safe operations for concurrent access (xsync.MapOf)
//   - Ordered prefix scans
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Scan sorts a point-in-time copy of the
//	matching keys, concurrent writes may or may not be visible in the result.
//
// Usage Example:
//
//	s := lstore.NewLocalStore()
//	_ = s.Set("cluster/active", []byte("a\nb"))
//	entries, _ := s.Scan("cluster/")
package lstore
