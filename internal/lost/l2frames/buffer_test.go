package l2frames

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lostnav/internal/lost"
	"github.com/banshee-data/lostnav/internal/timeutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func planar(parent, child lost.FrameID, stamp time.Time, x, y, yaw float64) lost.Transform {
	tr := lost.NewPlanarTransform(parent, child, x, y, yaw)
	tr.Stamp = stamp
	return tr
}

func staticTF(parent, child lost.FrameID, x, y, yaw float64) lost.Transform {
	tr := lost.NewPlanarTransform(parent, child, x, y, yaw)
	tr.Static = true
	return tr
}

// robotTree builds map -> odom -> base_link -> laser.
func robotTree(t *testing.T, b *Buffer) {
	t.Helper()
	require.NoError(t, b.Set(planar("map", "odom", t0, 1, 0, 0)))
	require.NoError(t, b.Set(planar("odom", "base_link", t0, 2, 0, math.Pi/2)))
	require.NoError(t, b.Set(staticTF("base_link", "laser", 0.5, 0, 0)))
}

func waitForTimers(t *testing.T, c *timeutil.MockClock, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.PendingTimers() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d armed timers", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBuffer_LookupChain(t *testing.T) {
	b := NewBuffer(0, nil)
	robotTree(t, b)

	tr, err := b.Lookup("map", "laser", t0)
	require.NoError(t, err)
	assert.Equal(t, lost.FrameID("map"), tr.Parent)
	assert.Equal(t, lost.FrameID("laser"), tr.Child)

	// laser origin sits 0.5m ahead of base_link, which faces +Y at (3, 0).
	p := tr.Apply(lost.Point{})
	assert.InDelta(t, 3.0, p.X, 1e-9)
	assert.InDelta(t, 0.5, p.Y, 1e-9)
	assert.InDelta(t, math.Pi/2, tr.Yaw(), 1e-9)
}

func TestBuffer_LookupThroughCommonAncestor(t *testing.T) {
	b := NewBuffer(0, nil)
	robotTree(t, b)
	require.NoError(t, b.Set(planar("odom", "dock", t0, -1, 0, 0)))

	tr, err := b.Lookup("dock", "base_link", t0)
	require.NoError(t, err)
	p := tr.Apply(lost.Point{})
	assert.InDelta(t, 3.0, p.X, 1e-9)
	assert.InDelta(t, 0.0, p.Y, 1e-9)

	back, err := b.Lookup("base_link", "dock", t0)
	require.NoError(t, err)
	q := back.Apply(p)
	assert.InDelta(t, 0.0, q.X, 1e-9)
	assert.InDelta(t, 0.0, q.Y, 1e-9)
}

func TestBuffer_SameFrameIsIdentity(t *testing.T) {
	b := NewBuffer(0, nil)
	tr, err := b.Lookup("/map", "map", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, lost.Point{X: 1, Y: 2}, tr.Apply(lost.Point{X: 1, Y: 2}))
}

func TestBuffer_Disconnected(t *testing.T) {
	b := NewBuffer(0, nil)
	robotTree(t, b)
	_, err := b.Lookup("map", "camera", t0)
	assert.ErrorIs(t, err, lost.ErrTransformUnavailable)
}

func TestBuffer_Interpolates(t *testing.T) {
	b := NewBuffer(0, nil)
	require.NoError(t, b.Set(planar("map", "base_link", t0, 0, 0, 0)))
	require.NoError(t, b.Set(planar("map", "base_link", t0.Add(time.Second), 2, 0, math.Pi/2)))

	tr, err := b.Lookup("map", "base_link", t0.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tr.Translation.X, 1e-9)
	assert.InDelta(t, math.Pi/4, tr.Yaw(), 1e-9)
	assert.Equal(t, t0.Add(500*time.Millisecond), tr.Stamp)
}

func TestBuffer_LatestUsesNewestSample(t *testing.T) {
	b := NewBuffer(0, nil)
	require.NoError(t, b.Set(planar("map", "base_link", t0, 0, 0, 0)))
	require.NoError(t, b.Set(planar("map", "base_link", t0.Add(time.Second), 5, 0, 0)))

	tr, err := b.Lookup("map", "base_link", time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, tr.Translation.X, 1e-9)
}

func TestBuffer_Extrapolation(t *testing.T) {
	b := NewBuffer(0, nil)
	require.NoError(t, b.Set(planar("map", "base_link", t0, 0, 0, 0)))
	require.NoError(t, b.Set(planar("map", "base_link", t0.Add(time.Second), 1, 0, 0)))

	_, err := b.Lookup("map", "base_link", t0.Add(2*time.Second))
	require.ErrorIs(t, err, lost.ErrTransformExtrapolation)
	var extrap *ExtrapolationError
	require.True(t, errors.As(err, &extrap))
	assert.False(t, extrap.Past())

	_, err = b.Lookup("map", "base_link", t0.Add(-time.Second))
	require.True(t, errors.As(err, &extrap))
	assert.True(t, extrap.Past())
	assert.Contains(t, err.Error(), "past")
}

func TestBuffer_PrunesOutsideCacheWindow(t *testing.T) {
	b := NewBuffer(2*time.Second, nil)
	for i := 0; i < 6; i++ {
		require.NoError(t, b.Set(planar("map", "base_link", t0.Add(time.Duration(i)*time.Second), float64(i), 0, 0)))
	}
	edges := b.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, 3, edges[0].Samples)
	assert.Equal(t, t0.Add(3*time.Second), edges[0].Oldest)
	assert.Equal(t, t0.Add(5*time.Second), edges[0].Newest)
}

func TestBuffer_OutOfOrderInsert(t *testing.T) {
	b := NewBuffer(0, nil)
	require.NoError(t, b.Set(planar("map", "base_link", t0.Add(2*time.Second), 2, 0, 0)))
	require.NoError(t, b.Set(planar("map", "base_link", t0, 0, 0, 0)))
	require.NoError(t, b.Set(planar("map", "base_link", t0.Add(time.Second), 1, 0, 0)))

	tr, err := b.Lookup("map", "base_link", t0.Add(time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tr.Translation.X, 1e-9)
}

func TestBuffer_SetRejectsBadTransforms(t *testing.T) {
	b := NewBuffer(0, nil)
	assert.ErrorIs(t, b.Set(planar("map", "map", t0, 0, 0, 0)), lost.ErrInvalidInput)
	assert.ErrorIs(t, b.Set(planar("", "base_link", t0, 0, 0, 0)), lost.ErrInvalidInput)
	assert.ErrorIs(t, b.Set(planar("map", "base_link", time.Time{}, 0, 0, 0)), lost.ErrInvalidInput)
	assert.NoError(t, b.Set(staticTF("base_link", "laser", 0, 0, 0)))
}

func TestBuffer_StaticValidAtAnyTime(t *testing.T) {
	b := NewBuffer(0, nil)
	require.NoError(t, b.Set(staticTF("base_link", "laser", 0.3, 0, 0)))
	tr, err := b.Lookup("base_link", "laser", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, tr.Translation.X, 1e-9)
}

func TestWaitForTransform_PublishedDuringWait(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	b := NewBuffer(0, clock)

	type result struct {
		tr  lost.Transform
		err error
	}
	done := make(chan result, 1)
	go func() {
		tr, err := b.WaitForTransform(context.Background(), "map", "base_link", time.Time{}, 5*time.Second)
		done <- result{tr, err}
	}()

	waitForTimers(t, clock, 1)
	require.NoError(t, b.Set(planar("map", "base_link", t0, 4, 0, 0)))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.InDelta(t, 4.0, r.tr.Translation.X, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForTransform did not return after publish")
	}
}

func TestWaitForTransform_Timeout(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	b := NewBuffer(0, clock)

	done := make(chan error, 1)
	go func() {
		_, err := b.WaitForTransform(context.Background(), "map", "base_link", time.Time{}, 5*time.Second)
		done <- err
	}()

	waitForTimers(t, clock, 1)
	clock.Advance(5 * time.Second)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, lost.ErrTransformUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForTransform did not time out")
	}
	assert.Equal(t, 0, clock.PendingTimers(), "timer released after timeout")
}

func TestWaitForTransform_FutureExtrapolationAfterTimeout(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	b := NewBuffer(0, clock)
	require.NoError(t, b.Set(planar("map", "base_link", t0, 0, 0, 0)))

	done := make(chan error, 1)
	go func() {
		_, err := b.WaitForTransform(context.Background(), "map", "base_link", t0.Add(time.Second), time.Second)
		done <- err
	}()

	waitForTimers(t, clock, 1)
	clock.Advance(time.Second)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, lost.ErrTransformExtrapolation)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForTransform did not time out")
	}
}

func TestWaitForTransform_PastExtrapolationFailsFast(t *testing.T) {
	b := NewBuffer(0, nil)
	require.NoError(t, b.Set(planar("map", "base_link", t0, 0, 0, 0)))

	_, err := b.WaitForTransform(context.Background(), "map", "base_link", t0.Add(-time.Second), time.Hour)
	assert.ErrorIs(t, err, lost.ErrTransformExtrapolation)
}

func TestWaitForTransform_ContextCancelled(t *testing.T) {
	b := NewBuffer(0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.WaitForTransform(ctx, "map", "base_link", time.Time{}, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForTransform_NoTimeoutIsSingleLookup(t *testing.T) {
	b := NewBuffer(0, nil)
	_, err := b.WaitForTransform(context.Background(), "map", "base_link", time.Time{}, 0)
	assert.ErrorIs(t, err, lost.ErrTransformUnavailable)
}
