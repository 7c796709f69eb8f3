package monitor

import (
	"context"
	"net/http"
	"strconv"

	"github.com/banshee-data/lostnav/internal/db"
)

// RunStore is the stored run history. *db.DB implements it.
type RunStore interface {
	Runs(ctx context.Context) ([]db.Run, error)
	RecentResults(ctx context.Context, runID string, limit int) ([]db.ResultRow, error)
	Summary(ctx context.Context, runID string) (db.RunSummary, error)
}

// RunInfo is a stored run with the summary of its results.
type RunInfo struct {
	db.Run
	Summary db.RunSummary `json:"summary"`
}

// handleRuns lists stored runs, newest first, with their summaries.
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := ws.runs.Runs(r.Context())
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]RunInfo, 0, len(runs))
	for _, run := range runs {
		sum, err := ws.runs.Summary(r.Context(), run.RunID)
		if err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, RunInfo{Run: run, Summary: sum})
	}
	ws.writeJSON(w, http.StatusOK, out)
}

// handleRunResults returns the newest stored results of one run. The id
// "current" names the run of this process. Query params:
//   - limit (optional; default 100)
func (ws *WebServer) handleRunResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "current" {
		id = ws.currentRun
	}
	if id == "" {
		ws.writeJSONError(w, http.StatusNotFound, "no current run")
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	sum, err := ws.runs.Summary(r.Context(), id)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := ws.runs.RecentResults(r.Context(), id, limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []db.ResultRow{}
	}
	ws.writeJSON(w, http.StatusOK, struct {
		Summary db.RunSummary  `json:"summary"`
		Results []db.ResultRow `json:"results"`
	}{sum, rows})
}
