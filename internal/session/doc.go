// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection session state and the connection registry.
// Each Session maps to exactly one accepted connection and lives from accept
// until the response is flushed or the connection fails.
//
// Chunk accumulation runs on the poll goroutine only. Status and response are
// shared with worker goroutines and are guarded accordingly.

package session
