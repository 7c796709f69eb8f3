package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lostnav/internal/config"
	"github.com/banshee-data/lostnav/internal/db"
	"github.com/banshee-data/lostnav/internal/lost"
	"github.com/banshee-data/lostnav/internal/lost/l2frames"
	"github.com/banshee-data/lostnav/internal/lost/l4consistency"
	"github.com/banshee-data/lostnav/internal/testutil"
	"github.com/banshee-data/lostnav/internal/timeutil"
)

func TestRecordingEstimator(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "lostnav.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	results, err := store.StartRun(ctx, "test", nil)
	require.NoError(t, err)

	buffer := l2frames.NewBuffer(time.Second, timeutil.RealClock{})
	agg := l4consistency.NewAggregator(l2frames.NewTransformer(buffer, l2frames.TransformerConfig{}), l4consistency.Config{})
	est := &recordingEstimator{Estimator: agg, store: results}

	require.NoError(t, est.UpdateMap(testutil.Grid(t, 1, "#.", "..")))

	bad := testutil.Grid(t, 1, "..")
	bad.Data = bad.Data[:1]
	err = est.UpdateMap(bad)
	require.ErrorIs(t, err, lost.ErrCorruptGrid)

	var accepted, rejected int
	require.NoError(t, store.QueryRow(`SELECT COUNT(*) FROM map_updates WHERE accepted = 1`).Scan(&accepted))
	require.NoError(t, store.QueryRow(`SELECT COUNT(*) FROM map_updates WHERE accepted = 0`).Scan(&rejected))
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)

	halted, _ := agg.Halted()
	assert.True(t, halted)
}

func TestRun_StartsAndStops(t *testing.T) {
	dir := t.TempDir()
	restore := func(p *string, v string) {
		old := *p
		*p = v
		t.Cleanup(func() { *p = old })
	}
	restore(dbFile, filepath.Join(dir, "lostnav.db"))
	restore(listen, "127.0.0.1:0")
	restore(udpAddress, "127.0.0.1:0")
	restore(grpcListen, "127.0.0.1:0")
	restore(mapFile, "")
	restore(pcapFile, "")
	restore(serialPort, "")

	cfg := config.EmptyLostConfig()
	cfg.StaticTransforms = []config.StaticTransform{{Parent: "base_link", Child: "laser", X: 0.1}}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.NoError(t, run(ctx, cfg))
}
