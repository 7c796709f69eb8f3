package feed

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lostnav/internal/lost"
	"github.com/banshee-data/lostnav/internal/lost/l3grid"
)

func TestDecode_Scan(t *testing.T) {
	m, err := Decode([]byte(`{"type":"scan","msg":{
		"header":{"stamp":{"secs":1700000000,"nsecs":500000000},"frame_id":"/laser"},
		"angle_min":-1.5,"angle_max":1.5,"angle_increment":1.5,
		"range_min":0.1,"range_max":30,
		"ranges":[1.0,null,2.5]}}`))
	require.NoError(t, err)
	require.Equal(t, KindScan, m.Kind)
	require.NotNil(t, m.Scan)

	s := m.Scan
	assert.Equal(t, lost.FrameID("laser"), s.Frame)
	assert.Equal(t, time.Unix(1700000000, 500000000).UTC(), s.Stamp)
	assert.Equal(t, -1.5, s.AngleMin)
	require.Len(t, s.Ranges, 3)
	assert.Equal(t, 1.0, s.Ranges[0])
	assert.True(t, math.IsNaN(s.Ranges[1]))
	assert.Equal(t, 2.5, s.Ranges[2])
}

func TestDecode_Map(t *testing.T) {
	m, err := Decode([]byte(`{"type":"map","msg":{
		"header":{"stamp":{"secs":0,"nsecs":0},"frame_id":"map"},
		"info":{"map_load_time":{"secs":12,"nsecs":0},"resolution":0.05,"width":2,"height":2,
			"origin":{"position":{"x":-1,"y":-2,"z":0},"orientation":{"x":0,"y":0,"z":0,"w":1}}},
		"data":[0,100,-1,0]}}`))
	require.NoError(t, err)
	g := m.Map
	require.NotNil(t, g)
	require.NoError(t, g.Validate())
	assert.Equal(t, lost.LayoutTopFirst, g.Info.Layout)
	assert.Equal(t, lost.Point{X: -1, Y: -2}, g.Info.Origin)
	assert.Equal(t, time.Unix(12, 0).UTC(), g.Stamp)
	v, ok := g.At(1, 1)
	require.True(t, ok)
	assert.Equal(t, lost.CellOccupied, v)
	v, _ = g.At(0, 0)
	assert.Equal(t, lost.CellUnknown, v)
}

func navGrid(t *testing.T, idx int) []byte {
	t.Helper()
	data := make([]int, 100)
	data[idx] = 100
	body, err := json.Marshal(data)
	require.NoError(t, err)
	return []byte(`{"type":"map","msg":{
		"header":{"stamp":{"secs":1,"nsecs":0},"frame_id":"map"},
		"info":{"resolution":1.0,"width":10,"height":10,
			"origin":{"position":{"x":0,"y":0,"z":0},"orientation":{"x":0,"y":0,"z":0,"w":1}}},
		"data":` + string(body) + `}}`)
}

func TestDecode_MapRowsCountedFromTop(t *testing.T) {
	// (5.5, 2.5) is column 5, grid row 2, stored row 10-1-2 = 7.
	p := lost.Point{X: 5.5, Y: 2.5}
	m, err := Decode(navGrid(t, 75))
	require.NoError(t, err)
	state, cell, ok := l3grid.Lookup(m.Map, p, lost.CellOccupied)
	require.True(t, ok)
	assert.Equal(t, 75, cell.Index)
	assert.Equal(t, lost.StateOccupied, state)

	// The origin row is the last one in data.
	m, err = Decode(navGrid(t, 90))
	require.NoError(t, err)
	state, _, _ = l3grid.Lookup(m.Map, lost.Point{X: 0.5, Y: 0.5}, lost.CellOccupied)
	assert.Equal(t, lost.StateOccupied, state)
}

func TestCodec_OriginFirstMapLayout(t *testing.T) {
	c := Codec{MapLayout: lost.LayoutOriginFirst}
	m, err := c.Decode(navGrid(t, 25))
	require.NoError(t, err)
	assert.Equal(t, lost.LayoutOriginFirst, m.Map.Info.Layout)
	state, cell, ok := l3grid.Lookup(m.Map, lost.Point{X: 5.5, Y: 2.5}, lost.CellOccupied)
	require.True(t, ok)
	assert.Equal(t, 25, cell.Index)
	assert.Equal(t, lost.StateOccupied, state)
}

func TestDecode_TransformsAndPose(t *testing.T) {
	m, err := Decode([]byte(`{"type":"tf_static","msg":{"transforms":[
		{"header":{"stamp":{"secs":5,"nsecs":0},"frame_id":"base_link"},"child_frame_id":"laser",
		 "transform":{"translation":{"x":0.2,"y":0,"z":0.1},"rotation":{"x":0,"y":0,"z":0.7071067811865476,"w":0.7071067811865476}}}]}}`))
	require.NoError(t, err)
	require.Len(t, m.Transforms, 1)
	tr := m.Transforms[0]
	assert.True(t, tr.Static)
	assert.Equal(t, lost.FrameBaseLink, tr.Parent)
	assert.Equal(t, lost.FrameID("laser"), tr.Child)
	assert.InDelta(t, math.Pi/2, tr.Yaw(), 1e-9)
	assert.InDelta(t, 0.2, tr.Translation.X, 1e-12)

	m, err = Decode([]byte(`{"type":"tf","msg":{"transforms":[]}}`))
	require.NoError(t, err)
	assert.Empty(t, m.Transforms)

	m, err = Decode([]byte(`{"type":"pose","msg":{"header":{"stamp":{"secs":1,"nsecs":0},"frame_id":"map"},
		"pose":{"pose":{"position":{"x":3,"y":4,"z":0},"orientation":{"x":0,"y":0,"z":1,"w":0}},"covariance":[0.25]}}}`))
	require.NoError(t, err)
	require.NotNil(t, m.Pose)
	assert.Equal(t, lost.Point{X: 3, Y: 4}, m.Pose.Position)
	assert.InDelta(t, math.Pi, math.Abs(m.Pose.Yaw), 1e-9)
	assert.Equal(t, 0.25, m.Pose.Covariance[0])
}

func TestDecode_Errors(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":     `scan 1 2 3`,
		"unknown type": `{"type":"odom","msg":{}}`,
		"no body":      `{"type":"scan"}`,
		"bad body":     `{"type":"scan","msg":{"ranges":"far"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestEncode_ScanRoundTrip(t *testing.T) {
	in := &lost.ScanSample{
		Frame:          "laser",
		Stamp:          time.Date(2026, 3, 1, 12, 0, 0, 250, time.UTC),
		AngleMin:       -0.5,
		AngleMax:       0.5,
		AngleIncrement: 0.5,
		RangeMax:       10,
		Ranges:         []float64{1, math.Inf(1), 3},
	}
	data, err := Encode(Message{Kind: KindScan, Scan: in})
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	want := *in
	want.Ranges = []float64{1, math.NaN(), 3}
	if diff := cmp.Diff(&want, out.Scan, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("scan mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_OriginFirstMapReordered(t *testing.T) {
	g := lost.NewOccupancyGrid(lost.GridInfo{Frame: lost.FrameMap, Width: 2, Height: 3, Resolution: 1, Layout: lost.LayoutOriginFirst}, lost.CellFree)
	g.Set(1, 0, lost.CellOccupied)
	g.Set(0, 2, lost.CellUnknown)

	data, err := Encode(Message{Kind: KindMap, Map: g})
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, lost.LayoutTopFirst, out.Map.Info.Layout)
	for row := 0; row < 3; row++ {
		for col := 0; col < 2; col++ {
			want, _ := g.At(col, row)
			got, ok := out.Map.At(col, row)
			require.True(t, ok)
			assert.Equal(t, want, got, "cell (%d,%d)", col, row)
		}
	}
	assert.Equal(t, []int8{-1, 0, 0, 0, 0, 100}, out.Map.Data)
}

func TestEncode_Errors(t *testing.T) {
	for _, m := range []Message{
		{Kind: KindMap},
		{Kind: KindScan},
		{Kind: KindPose},
		{Kind: "odom"},
	} {
		_, err := Encode(m)
		assert.Error(t, err, "%+v", m)
	}
}

func TestStamp(t *testing.T) {
	assert.True(t, Stamp{}.Time().IsZero())
	assert.Equal(t, Stamp{}, StampFrom(time.Time{}))
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	assert.Equal(t, ts, StampFrom(ts).Time())
}
