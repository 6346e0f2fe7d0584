// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw non-blocking TCP sockets for the reactor: the listening socket, accept4
// and single-shot read/write calls on connection descriptors. Descriptors
// rather than net.Conn are used so the poll goroutine can register them with
// the reactor directly.

package transport
