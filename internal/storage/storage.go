package storage

import (
	"context"

	"github.com/IshaanNene/keibastalk/internal/types"
)

// Sink is the interface for normalized table outputs.
type Sink interface {
	// Write replaces the stored copy of the table with t.
	Write(ctx context.Context, t *types.Table) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the sink identifier.
	Name() string
}
