// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness multiplexer driven by the server's
// poll goroutine. Linux uses level-triggered epoll with an eventfd so worker
// goroutines can interrupt a blocked wait.
package reactor
