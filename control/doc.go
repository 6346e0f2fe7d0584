// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for the frame server.
//
// Provides concurrent-safe state handling primitives including:
//   - Named counters with lock-free increments
//   - Probe registration and state export
//   - A bounded LRU table of per-peer outcomes
package control
