// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and the processing contract.

package api

import (
	"context"
	"fmt"
)

// Processor is the opaque unit of work applied to one assembled request.
// It runs on a worker goroutine, never on the poll goroutine, and may block.
type Processor func(ctx context.Context, request []byte) ([]byte, error)

// CountingProcessor answers with a confirmation embedding the request size.
func CountingProcessor(_ context.Context, request []byte) ([]byte, error) {
	return []byte(fmt.Sprintf("SUCCESS! PROCESSED %d BYTES!", len(request))), nil
}
