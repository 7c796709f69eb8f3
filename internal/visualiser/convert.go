package visualiser

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/lostnav/internal/lost"
)

// ResultToStruct converts r into the message sent to viewers. An undefined
// lost rate is encoded as null.
func ResultToStruct(r *lost.Result) (*structpb.Struct, error) {
	if r == nil {
		return nil, fmt.Errorf("nil result")
	}
	points := make([]interface{}, 0, len(r.Points.Points))
	for _, p := range r.Points.Points {
		points = append(points, []interface{}{p.X, p.Y})
	}
	var rate interface{}
	if !math.IsNaN(r.LostRate) && !math.IsInf(r.LostRate, 0) {
		rate = r.LostRate
	}
	return structpb.NewStruct(map[string]interface{}{
		"id":            r.ID,
		"scan_stamp":    formatStamp(r.ScanStamp),
		"computed_at":   formatStamp(r.ComputedAt),
		"map_stamp":     formatStamp(r.MapStamp),
		"occupied_hits": r.OccupiedHits,
		"total":         r.Total,
		"out_of_bounds": r.OutOfBounds,
		"lost_rate":     rate,
		"frame":         r.Points.Frame.String(),
		"points":        points,
	})
}

// ResultFromStruct is the inverse of ResultToStruct, used by clients.
func ResultFromStruct(s *structpb.Struct) (*lost.Result, error) {
	if s == nil {
		return nil, fmt.Errorf("nil message")
	}
	f := s.GetFields()
	r := &lost.Result{
		ID:           f["id"].GetStringValue(),
		OccupiedHits: int(f["occupied_hits"].GetNumberValue()),
		Total:        int(f["total"].GetNumberValue()),
		OutOfBounds:  int(f["out_of_bounds"].GetNumberValue()),
		LostRate:     math.NaN(),
	}
	if v, ok := f["lost_rate"].GetKind().(*structpb.Value_NumberValue); ok {
		r.LostRate = v.NumberValue
	}
	var err error
	if r.ScanStamp, err = parseStamp(f["scan_stamp"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("scan_stamp: %w", err)
	}
	if r.ComputedAt, err = parseStamp(f["computed_at"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("computed_at: %w", err)
	}
	if r.MapStamp, err = parseStamp(f["map_stamp"].GetStringValue()); err != nil {
		return nil, fmt.Errorf("map_stamp: %w", err)
	}
	r.Points.Frame = lost.FrameID(f["frame"].GetStringValue())
	r.Points.Stamp = r.ScanStamp
	for i, v := range f["points"].GetListValue().GetValues() {
		xy := v.GetListValue().GetValues()
		if len(xy) != 2 {
			return nil, fmt.Errorf("point %d: expected [x, y], got %d values", i, len(xy))
		}
		r.Points.Points = append(r.Points.Points, lost.Point{
			X: xy[0].GetNumberValue(),
			Y: xy[1].GetNumberValue(),
		})
	}
	return r, nil
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
