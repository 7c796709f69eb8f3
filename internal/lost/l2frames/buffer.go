package l2frames

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/lostnav/internal/lost"
	"github.com/banshee-data/lostnav/internal/timeutil"
)

// DefaultCacheTime is how much transform history each edge keeps.
const DefaultCacheTime = 10 * time.Second

// maxChainDepth bounds tree walks so a parent cycle cannot loop forever.
const maxChainDepth = 64

// ExtrapolationError reports a lookup time outside the samples buffered for
// one edge of the transform chain.
type ExtrapolationError struct {
	Child     lost.FrameID
	Requested time.Time
	Oldest    time.Time
	Newest    time.Time
}

func (e *ExtrapolationError) Error() string {
	dir := "future"
	if e.Past() {
		dir = "past"
	}
	return fmt.Sprintf("%v: lookup of %s at %s is in the %s of buffered [%s, %s]",
		lost.ErrTransformExtrapolation, e.Child,
		e.Requested.Format(time.RFC3339Nano), dir,
		e.Oldest.Format(time.RFC3339Nano), e.Newest.Format(time.RFC3339Nano))
}

// Unwrap lets errors.Is match lost.ErrTransformExtrapolation.
func (e *ExtrapolationError) Unwrap() error { return lost.ErrTransformExtrapolation }

// Past reports whether the request is older than every buffered sample.
// Waiting cannot resolve such a lookup.
func (e *ExtrapolationError) Past() bool { return e.Requested.Before(e.Oldest) }

type edge struct {
	parent  lost.FrameID
	static  bool
	samples []lost.Transform // ascending by Stamp
}

// EdgeInfo describes one buffered parent->child edge.
type EdgeInfo struct {
	Parent  lost.FrameID `json:"parent"`
	Child   lost.FrameID `json:"child"`
	Static  bool         `json:"static"`
	Samples int          `json:"samples"`
	Oldest  time.Time    `json:"oldest"`
	Newest  time.Time    `json:"newest"`
}

// Buffer is a tree of frames joined by timestamped transforms. Each child
// frame has one parent. It is safe for concurrent use: one feed goroutine
// writes while the estimator reads.
type Buffer struct {
	mu        sync.RWMutex
	clock     timeutil.Clock
	cacheTime time.Duration
	edges     map[lost.FrameID]*edge
	notify    chan struct{}
}

// NewBuffer creates an empty buffer keeping cacheTime of history per edge.
// A nil clock uses the real clock.
func NewBuffer(cacheTime time.Duration, clock timeutil.Clock) *Buffer {
	if cacheTime <= 0 {
		cacheTime = DefaultCacheTime
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Buffer{
		clock:     clock,
		cacheTime: cacheTime,
		edges:     make(map[lost.FrameID]*edge),
		notify:    make(chan struct{}),
	}
}

// Set inserts a transform sample. Non-static samples older than the cache
// window behind the newest sample are discarded.
func (b *Buffer) Set(t lost.Transform) error {
	t.Parent = t.Parent.Normalize()
	t.Child = t.Child.Normalize()
	if t.Parent == "" || t.Child == "" {
		return fmt.Errorf("%w: transform with empty frame id (%q <- %q)", lost.ErrInvalidInput, t.Parent, t.Child)
	}
	if t.Parent == t.Child {
		return fmt.Errorf("%w: transform from %s to itself", lost.ErrInvalidInput, t.Child)
	}
	if !t.Static && t.Stamp.IsZero() {
		return fmt.Errorf("%w: dynamic transform %s <- %s without stamp", lost.ErrInvalidInput, t.Parent, t.Child)
	}

	b.mu.Lock()
	e, ok := b.edges[t.Child]
	if !ok || e.parent != t.Parent || e.static != t.Static {
		if ok && e.parent != t.Parent {
			diagf("frame %s re-parented from %s to %s", t.Child, e.parent, t.Parent)
		}
		e = &edge{parent: t.Parent, static: t.Static}
		b.edges[t.Child] = e
	}
	if e.static {
		e.samples = []lost.Transform{t}
	} else {
		e.insert(t, b.cacheTime)
	}
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
	return nil
}

func (e *edge) insert(t lost.Transform, cacheTime time.Duration) {
	i := sort.Search(len(e.samples), func(i int) bool { return !e.samples[i].Stamp.Before(t.Stamp) })
	switch {
	case i < len(e.samples) && e.samples[i].Stamp.Equal(t.Stamp):
		e.samples[i] = t
	case i == len(e.samples):
		e.samples = append(e.samples, t)
	default:
		e.samples = append(e.samples, lost.Transform{})
		copy(e.samples[i+1:], e.samples[i:])
		e.samples[i] = t
	}
	cutoff := e.samples[len(e.samples)-1].Stamp.Add(-cacheTime)
	drop := 0
	for drop < len(e.samples)-1 && e.samples[drop].Stamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		e.samples = append(e.samples[:0], e.samples[drop:]...)
	}
}

// sampleAt returns the edge transform at time at. A zero at selects the
// newest sample.
func (e *edge) sampleAt(child lost.FrameID, at time.Time) (lost.Transform, error) {
	if len(e.samples) == 0 {
		return lost.Transform{}, fmt.Errorf("%w: no samples for %s", lost.ErrTransformUnavailable, child)
	}
	if e.static || at.IsZero() {
		return e.samples[len(e.samples)-1], nil
	}
	oldest, newest := e.samples[0], e.samples[len(e.samples)-1]
	if at.Before(oldest.Stamp) || at.After(newest.Stamp) {
		return lost.Transform{}, &ExtrapolationError{Child: child, Requested: at, Oldest: oldest.Stamp, Newest: newest.Stamp}
	}
	i := sort.Search(len(e.samples), func(i int) bool { return !e.samples[i].Stamp.Before(at) })
	if e.samples[i].Stamp.Equal(at) {
		return e.samples[i], nil
	}
	a, c := e.samples[i-1], e.samples[i]
	frac := float64(at.Sub(a.Stamp)) / float64(c.Stamp.Sub(a.Stamp))
	out := lost.Interpolate(a, c, frac)
	out.Stamp = at
	return out, nil
}

// chain returns the frames from f up to the root, f first.
func (b *Buffer) chain(f lost.FrameID) []lost.FrameID {
	out := []lost.FrameID{f}
	for len(out) < maxChainDepth {
		e, ok := b.edges[f]
		if !ok {
			break
		}
		f = e.parent
		out = append(out, f)
	}
	return out
}

// toAncestor composes the transform mapping from into ancestor.
func (b *Buffer) toAncestor(from, ancestor lost.FrameID, at time.Time) (lost.Transform, error) {
	acc := lost.Identity(from)
	for f := from; f != ancestor; {
		e := b.edges[f]
		s, err := e.sampleAt(f, at)
		if err != nil {
			return lost.Transform{}, err
		}
		acc = s.Compose(acc)
		f = e.parent
	}
	return acc, nil
}

// Lookup returns the transform mapping points in source into target at
// time at, without waiting. A zero at uses the newest sample of every edge.
func (b *Buffer) Lookup(target, source lost.FrameID, at time.Time) (lost.Transform, error) {
	target, source = target.Normalize(), source.Normalize()
	if target == source {
		out := lost.Identity(target)
		out.Stamp = at
		return out, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	srcChain := b.chain(source)
	depth := make(map[lost.FrameID]bool, len(srcChain))
	for _, f := range srcChain {
		depth[f] = true
	}
	common := lost.FrameID("")
	for _, f := range b.chain(target) {
		if depth[f] {
			common = f
			break
		}
	}
	if common == "" {
		return lost.Transform{}, fmt.Errorf("%w: %s and %s are not connected", lost.ErrTransformUnavailable, target, source)
	}

	commonFromSource, err := b.toAncestor(source, common, at)
	if err != nil {
		return lost.Transform{}, err
	}
	commonFromTarget, err := b.toAncestor(target, common, at)
	if err != nil {
		return lost.Transform{}, err
	}
	out := commonFromTarget.Inverse().Compose(commonFromSource)
	out.Parent, out.Child = target, source
	if !at.IsZero() {
		out.Stamp = at
	}
	return out, nil
}

// changed returns a channel closed by the next Set.
func (b *Buffer) changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.notify
}

// WaitForTransform retries Lookup each time the buffer changes until it
// succeeds, ctx ends, or timeout elapses. On timeout the last extrapolation
// error is returned as is; any other failure becomes
// lost.ErrTransformUnavailable. A lookup older than every buffered sample
// fails immediately since no later sample can satisfy it.
func (b *Buffer) WaitForTransform(ctx context.Context, target, source lost.FrameID, at time.Time, timeout time.Duration) (lost.Transform, error) {
	var timer timeutil.Timer
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer = b.clock.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C()
	}

	start := b.clock.Now()
	for {
		changed := b.changed()
		t, err := b.Lookup(target, source, at)
		if err == nil {
			if waited := b.clock.Since(start); waited > 0 {
				tracef("transform %s <- %s available after %v", target, source, waited)
			}
			return t, nil
		}

		var extrap *ExtrapolationError
		if errors.As(err, &extrap) && extrap.Past() {
			return lost.Transform{}, err
		}
		if timeoutC == nil {
			return lost.Transform{}, err
		}

		select {
		case <-ctx.Done():
			return lost.Transform{}, ctx.Err()
		case <-timeoutC:
			if errors.As(err, &extrap) {
				return lost.Transform{}, err
			}
			if errors.Is(err, lost.ErrTransformUnavailable) {
				return lost.Transform{}, fmt.Errorf("waited %v: %w", timeout, err)
			}
			return lost.Transform{}, fmt.Errorf("%w: waited %v: %v", lost.ErrTransformUnavailable, timeout, err)
		case <-changed:
		}
	}
}

// Edges lists the buffered edges, sorted by child frame.
func (b *Buffer) Edges() []EdgeInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]EdgeInfo, 0, len(b.edges))
	for child, e := range b.edges {
		info := EdgeInfo{Parent: e.parent, Child: child, Static: e.static, Samples: len(e.samples)}
		if n := len(e.samples); n > 0 {
			info.Oldest = e.samples[0].Stamp
			info.Newest = e.samples[n-1].Stamp
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Child < out[j].Child })
	return out
}
