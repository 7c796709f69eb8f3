package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lostnav/internal/lost"
)

// Run is one process lifetime of the estimator.
type Run struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	Version    string    `json:"version"`
	ConfigJSON string    `json:"config_json"`
}

// ResultRow is a stored result without its point set.
type ResultRow struct {
	ResultID     string    `json:"result_id"`
	RunID        string    `json:"run_id"`
	ScanStamp    time.Time `json:"scan_stamp"`
	ComputedAt   time.Time `json:"computed_at"`
	MapStamp     time.Time `json:"map_stamp"`
	OccupiedHits int       `json:"occupied_hits"`
	Total        int       `json:"total"`
	OutOfBounds  int       `json:"out_of_bounds"`
	// LostRate is nil for a result without a defined rate.
	LostRate   *float64 `json:"lost_rate"`
	PointCount int      `json:"point_count"`
}

// RunSummary aggregates the results of one run.
type RunSummary struct {
	RunID        string  `json:"run_id"`
	Results      int     `json:"results"`
	MeanLostRate float64 `json:"mean_lost_rate"`
	MaxLostRate  float64 `json:"max_lost_rate"`
}

// ResultStore records results and map updates for one run. It implements
// the aggregator's Sink.
type ResultStore struct {
	db    *DB
	runID string
}

// StartRun records a new run and returns a store bound to it. cfg is stored
// as JSON for later inspection.
func (db *DB) StartRun(ctx context.Context, version string, cfg interface{}) (*ResultStore, error) {
	cfgJSON := []byte("{}")
	if cfg != nil {
		var err error
		if cfgJSON, err = json.Marshal(cfg); err != nil {
			return nil, fmt.Errorf("marshal run config: %w", err)
		}
	}

	run := Run{RunID: uuid.NewString(), StartedAt: time.Now().UTC(), Version: version, ConfigJSON: string(cfgJSON)}
	err := retryOnBusy(func() error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO runs (run_id, started_at, version, config_json) VALUES (?, ?, ?, ?)`,
			run.RunID, run.StartedAt, run.Version, run.ConfigJSON)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	opsf("started run %s", run.RunID)
	return &ResultStore{db: db, runID: run.RunID}, nil
}

// RunID returns the run the store writes to.
func (s *ResultStore) RunID() string { return s.runID }

// Publish inserts r. A result without a defined rate is stored with a NULL
// lost_rate.
func (s *ResultStore) Publish(ctx context.Context, r *lost.Result) error {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	var rate sql.NullFloat64
	if !math.IsNaN(r.LostRate) && !math.IsInf(r.LostRate, 0) {
		rate = sql.NullFloat64{Float64: r.LostRate, Valid: true}
	}
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO results (
				result_id, run_id, scan_stamp, computed_at, map_stamp,
				occupied_hits, total, out_of_bounds, lost_rate, point_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, s.runID, r.ScanStamp.UTC(), r.ComputedAt.UTC(), nullTime(r.MapStamp),
			r.OccupiedHits, r.Total, r.OutOfBounds, rate, r.Points.Len(),
		)
		return err
	})
}

// RecordMapUpdate notes a map that was offered to the estimator. reason is
// the rejection error for a map that was not accepted.
func (s *ResultStore) RecordMapUpdate(ctx context.Context, g *lost.OccupancyGrid, reason error) error {
	if g == nil {
		return fmt.Errorf("nil map")
	}
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	occupied := 0
	if len(g.Data) > 0 {
		occupied = g.CountOccupied(lost.CellOccupied)
	}
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO map_updates (
				run_id, received_at, map_stamp, frame_id, width, height,
				resolution, origin_x, origin_y, occupied, accepted, reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.runID, time.Now().UTC(), nullTime(g.Stamp), string(g.Info.Frame), g.Info.Width, g.Info.Height,
			finiteOrZero(g.Info.Resolution), finiteOrZero(g.Info.Origin.X), finiteOrZero(g.Info.Origin.Y),
			occupied, reason == nil, msg,
		)
		return err
	})
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// RecentResults returns up to limit results, newest first. An empty runID
// spans every run.
func (db *DB) RecentResults(ctx context.Context, runID string, limit int) ([]ResultRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT result_id, COALESCE(run_id, ''), scan_stamp, computed_at, map_stamp,
		       occupied_hits, total, out_of_bounds, lost_rate, point_count
		FROM results
		WHERE ? = '' OR run_id = ?
		ORDER BY computed_at DESC
		LIMIT ?`, runID, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var (
			r        ResultRow
			mapStamp sql.NullTime
			rate     sql.NullFloat64
		)
		if err := rows.Scan(&r.ResultID, &r.RunID, &r.ScanStamp, &r.ComputedAt, &mapStamp,
			&r.OccupiedHits, &r.Total, &r.OutOfBounds, &rate, &r.PointCount); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		if mapStamp.Valid {
			r.MapStamp = mapStamp.Time
		}
		if rate.Valid {
			v := rate.Float64
			r.LostRate = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary aggregates the rated results of runID.
func (db *DB) Summary(ctx context.Context, runID string) (RunSummary, error) {
	sum := RunSummary{RunID: runID}
	var mean, maxRate sql.NullFloat64
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(lost_rate), AVG(lost_rate), MAX(lost_rate)
		FROM results WHERE run_id = ?`, runID).Scan(&sum.Results, &mean, &maxRate)
	if err != nil {
		return sum, fmt.Errorf("summarise run %s: %w", runID, err)
	}
	sum.MeanLostRate = mean.Float64
	sum.MaxLostRate = maxRate.Float64
	return sum, nil
}

// Runs lists recorded runs, newest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id, started_at, version, config_json FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Version, &r.ConfigJSON); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
