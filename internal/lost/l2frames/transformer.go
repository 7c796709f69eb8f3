package l2frames

import (
	"context"
	"time"

	"github.com/banshee-data/lostnav/internal/lost"
)

// DefaultWaitTimeout bounds how long a lookup waits for a transform to be
// published.
const DefaultWaitTimeout = 5 * time.Second

// Lookup resolves transforms between named frames with a bounded wait.
type Lookup interface {
	WaitForTransform(ctx context.Context, target, source lost.FrameID, at time.Time, timeout time.Duration) (lost.Transform, error)
}

// TransformerConfig controls how point sets are moved between frames.
type TransformerConfig struct {
	// WaitTimeout bounds the wait for a transform. Zero means
	// DefaultWaitTimeout; negative disables waiting.
	WaitTimeout time.Duration

	// UseLatest looks transforms up at the newest buffered time instead of
	// the point set's stamp.
	UseLatest bool
}

// Transformer moves point sets into another frame. It borrows a transform
// for one call and keeps nothing between calls.
type Transformer struct {
	lookup    Lookup
	timeout   time.Duration
	useLatest bool
}

// NewTransformer creates a Transformer backed by lookup.
func NewTransformer(lookup Lookup, cfg TransformerConfig) *Transformer {
	timeout := cfg.WaitTimeout
	switch {
	case timeout == 0:
		timeout = DefaultWaitTimeout
	case timeout < 0:
		timeout = 0
	}
	return &Transformer{lookup: lookup, timeout: timeout, useLatest: cfg.UseLatest}
}

// TransformPointSet returns in expressed in target. The output keeps the
// input stamp. A point set already in target is copied unchanged.
func (t *Transformer) TransformPointSet(ctx context.Context, in lost.PointSet, target lost.FrameID) (lost.PointSet, error) {
	if in.Frame.Equal(target) {
		out := in.Clone()
		out.Frame = target
		return out, nil
	}

	at := in.Stamp
	if t.useLatest {
		at = time.Time{}
	}
	tr, err := t.lookup.WaitForTransform(ctx, target, in.Frame, at, t.timeout)
	if err != nil {
		if ctx.Err() == nil {
			opsf("lookup %s <- %s failed: %v", target, in.Frame, err)
		}
		return lost.PointSet{}, err
	}

	out := tr.ApplyAll(in)
	out.Frame = target
	out.Stamp = in.Stamp
	return out, nil
}
