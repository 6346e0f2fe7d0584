// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-frame: the worker pool that runs request
// processing off the poll goroutine, and the ready queue through which
// workers hand finished sessions back to it.
package concurrency
