// Package monitor serves the HTTP status, charts, plots and Prometheus
// metrics of a running estimator.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lostnav/internal/feed"
	"github.com/banshee-data/lostnav/internal/lost"
	"github.com/banshee-data/lostnav/internal/lost/l2frames"
	"github.com/banshee-data/lostnav/internal/lost/l4consistency"
	"github.com/banshee-data/lostnav/internal/version"
	"github.com/banshee-data/lostnav/internal/visualiser"
)

// StatusSource is the estimator view the web server reads from.
type StatusSource interface {
	Status() l4consistency.Status
	Map() *lost.OccupancyGrid
}

// WebServer handles the HTTP interface for monitoring the estimator.
type WebServer struct {
	address           string
	server            *http.Server
	estimator         StatusSource
	history           *History
	nodeStats         func() feed.NodeStats
	streamStats       func() visualiser.PublisherStats
	transforms        func() []l2frames.EdgeInfo
	runs              RunStore
	currentRun        string
	occupiedThreshold int8
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address           string
	Estimator         StatusSource
	History           *History
	NodeStats         func() feed.NodeStats
	StreamStats       func() visualiser.PublisherStats
	// Transforms lists the buffered transform edges for /api/status.
	Transforms func() []l2frames.EdgeInfo
	// Runs serves /api/runs when set. CurrentRun is the run this process
	// records into.
	Runs              RunStore
	CurrentRun        string
	OccupiedThreshold int8
	// AdminRoutes attach extra pages under /debug/.
	AdminRoutes []func(*http.ServeMux)
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:           config.Address,
		estimator:         config.Estimator,
		history:           config.History,
		nodeStats:         config.NodeStats,
		streamStats:       config.StreamStats,
		transforms:        config.Transforms,
		runs:              config.Runs,
		currentRun:        config.CurrentRun,
		occupiedThreshold: config.OccupiedThreshold,
	}
	if ws.history == nil {
		ws.history = NewHistory(0)
	}
	if ws.occupiedThreshold <= 0 {
		ws.occupiedThreshold = lost.CellOccupied
	}

	mux := ws.setupRoutes()
	for _, attach := range config.AdminRoutes {
		attach(mux)
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the root handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.address, err)
	}
	errCh := make(chan error, 1)
	go func() {
		opsf("HTTP server listening on %s", lis.Addr())
		if err := ws.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		opsf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			opsf("HTTP server force close error: %v", err)
		}
	}
	opsf("HTTP server stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/history", ws.handleHistory)
	mux.HandleFunc("/api/points", ws.handlePoints)
	mux.HandleFunc("/charts/lostrate", ws.handleLostRateChart)
	mux.HandleFunc("/charts/points", ws.handlePointsChart)
	mux.HandleFunc("/plots/latest.png", ws.handlePlot)
	mux.HandleFunc("/metrics", ws.handleMetrics)
	if ws.runs != nil {
		mux.HandleFunc("GET /api/runs", ws.handleRuns)
		mux.HandleFunc("GET /api/runs/{id}/results", ws.handleRunResults)
	}
	mux.HandleFunc("/{$}", ws.handleIndex)
	return mux
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		diagf("JSON encoding error: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	ws.writeJSON(w, status, map[string]string{"error": msg})
}

func (ws *WebServer) scene(maxCells int) Scene {
	return buildScene(ws.estimator.Map(), ws.history.Latest(), ws.occupiedThreshold, maxCells)
}

func (ws *WebServer) snapshot() Snapshot {
	s := Snapshot{
		Status:  ws.estimator.Status(),
		History: ws.history.Summary(),
	}
	if ws.nodeStats != nil {
		n := ws.nodeStats()
		s.Node = &n
	}
	if ws.streamStats != nil {
		v := ws.streamStats()
		s.Stream = &v
	}
	return s
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := ws.estimator.Status()
	status := http.StatusOK
	state := "ok"
	if st.Halted {
		status, state = http.StatusServiceUnavailable, "halted"
	}
	ws.writeJSON(w, status, map[string]string{"status": state, "version": version.Version})
}

// handleStatus reports the estimator snapshots, counters and history summary.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s := ws.snapshot()
	var edges []l2frames.EdgeInfo
	if ws.transforms != nil {
		edges = ws.transforms()
	}
	ws.writeJSON(w, http.StatusOK, struct {
		Version    string                     `json:"version"`
		Estimator  l4consistency.Status       `json:"estimator"`
		History    HistorySummary             `json:"history"`
		Feed       *feed.NodeStats            `json:"feed,omitempty"`
		Visualiser *visualiser.PublisherStats `json:"visualiser,omitempty"`
		Transforms []l2frames.EdgeInfo        `json:"transforms,omitempty"`
	}{version.Version, s.Status, s.History, s.Node, s.Stream, edges})
}

// handleHistory returns the last N history entries (limit, default 100).
func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	entries := ws.history.Entries()
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	ws.writeJSON(w, http.StatusOK, entries)
}

// handlePoints returns the occupied cells and the last scan split into hits
// and misses.
func (ws *WebServer) handlePoints(w http.ResponseWriter, r *http.Request) {
	sc := ws.scene(maxCellsParam(r, 20000))
	if sc.Map == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no map loaded")
		return
	}
	ws.writeJSON(w, http.StatusOK, sc)
}

// handlePlot renders the scene as a PNG. Query params:
//   - size (optional; default 800) image side in points
func (ws *WebServer) handlePlot(w http.ResponseWriter, r *http.Request) {
	sc := ws.scene(maxCellsParam(r, 20000))
	if sc.Map == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no map loaded")
		return
	}
	size := 800
	if s := r.URL.Query().Get("size"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 100 && v <= 4000 {
			size = v
		}
	}
	var buf bytes.Buffer
	if err := PlotScene(&buf, sc, vg.Length(size)); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := WriteMetrics(&buf, ws.snapshot()); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode metrics: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", string(MetricsFormat))
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexHTML, version.Version)
}

const indexHTML = `<!doctype html>
<html><head><title>lostnav</title></head>
<body>
<h1>lostnav %s</h1>
<ul>
<li><a href="/api/status">status</a></li>
<li><a href="/api/history">history</a></li>
<li><a href="/api/points">points</a></li>
<li><a href="/charts/lostrate">lost rate chart</a></li>
<li><a href="/charts/points">scan vs map chart</a></li>
<li><a href="/plots/latest.png">scan vs map plot</a></li>
<li><a href="/api/runs">stored runs</a></li>
<li><a href="/metrics">metrics</a></li>
<li><a href="/debug/">debug</a></li>
</ul>
</body></html>
`
