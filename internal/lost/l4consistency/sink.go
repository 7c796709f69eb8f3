package l4consistency

import (
	"context"

	"github.com/banshee-data/lostnav/internal/lost"
)

// Sink receives every computable result. Publish must not modify r; the
// same value is handed to all sinks and kept as the last-known result.
type Sink interface {
	Publish(ctx context.Context, r *lost.Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r *lost.Result) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, r *lost.Result) error { return f(ctx, r) }
