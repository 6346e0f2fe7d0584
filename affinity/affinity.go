// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags.

package affinity

import "runtime"

// SetAffinity pins the current OS thread to a given logical CPU on supported platforms.
// The caller must hold the thread via runtime.LockOSThread for the pin to be meaningful.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// PinGoroutine locks the calling goroutine to its OS thread and pins that thread
// to cpuID. The lock is held for the rest of the goroutine's life so the pinned
// thread is discarded when the goroutine exits instead of returning to the
// scheduler with a narrowed CPU mask.
func PinGoroutine(cpuID int) error {
	runtime.LockOSThread()
	return SetAffinity(cpuID)
}
