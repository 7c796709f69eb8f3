package lost

import (
	"encoding/json"
	"math"
	"time"
)

// Result is the outcome of one consistency cycle. It is produced fresh per
// scan and never modified afterwards.
//
// LostRate is the percentage of indexed points that do NOT land on an
// occupied cell: (Total-OccupiedHits)/Total*100. A low value means the scan
// agrees with the map. It is NaN when Total is zero.
type Result struct {
	ID           string    `json:"id"`
	ScanStamp    time.Time `json:"scan_stamp"`
	ComputedAt   time.Time `json:"computed_at"`
	MapStamp     time.Time `json:"map_stamp"`
	OccupiedHits int       `json:"occupied_hits"`
	Total        int       `json:"total"`
	OutOfBounds  int       `json:"out_of_bounds"`
	LostRate     float64   `json:"-"`
	Points       PointSet  `json:"points"`
}

// LostRateFor applies the lost-rate formula. ok is false when total is zero.
func LostRateFor(hits, total int) (rate float64, ok bool) {
	if total <= 0 {
		return math.NaN(), false
	}
	return float64(total-hits) / float64(total) * 100, true
}

// Computable reports whether the result carries a defined lost rate.
func (r *Result) Computable() bool {
	return r != nil && r.Total > 0 && !math.IsNaN(r.LostRate)
}

// MarshalJSON encodes LostRate as null when it is undefined.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	var rate *float64
	if !math.IsNaN(r.LostRate) && !math.IsInf(r.LostRate, 0) {
		v := r.LostRate
		rate = &v
	}
	return json.Marshal(struct {
		plain
		LostRate *float64 `json:"lost_rate"`
	}{plain(r), rate})
}
