package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lostnav/internal/lost"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleLostRateChart renders the lost-rate history as a line chart.
func (ws *WebServer) handleLostRateChart(w http.ResponseWriter, r *http.Request) {
	entries := ws.history.Entries()
	if len(entries) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no results yet")
		return
	}

	labels := make([]string, 0, len(entries))
	rates := make([]opts.LineData, 0, len(entries))
	for _, e := range entries {
		labels = append(labels, e.ScanStamp.Format("15:04:05.000"))
		rates = append(rates, opts.LineData{Value: e.LostRate})
	}
	sum := ws.history.Summary()

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lost rate", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Lost rate",
			Subtitle: fmt.Sprintf("n=%d mean=%.1f%% sd=%.1f min=%.1f%% max=%.1f%%", sum.Count, sum.Mean, sum.StdDev, sum.Min, sum.Max),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "%"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(labels).AddSeries("lost rate", rates)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePointsChart renders the occupied map cells and the last scan as a
// scatter chart. Query params:
//   - max_cells (optional; default 8000) to reduce payload size
func (ws *WebServer) handlePointsChart(w http.ResponseWriter, r *http.Request) {
	sc := ws.scene(maxCellsParam(r, 8000))
	if sc.Map == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no map loaded")
		return
	}
	minX, maxX, minY, maxY := sc.bounds()

	subtitle := fmt.Sprintf("cells=%d stride=%d", len(sc.Occupied), sc.Stride)
	if res := sc.Result; res != nil {
		subtitle += fmt.Sprintf(" scan=%s hits=%d/%d lost=%.1f%%",
			res.ScanStamp.Format(time.RFC3339), res.OccupiedHits, res.Total, res.LostRate)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan vs map", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Scan vs map", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX, Max: maxX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY, Max: maxY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("occupied", scatterData(sc.Occupied), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("hits", scatterData(sc.Hits), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	scatter.AddSeries("misses", scatterData(sc.Misses), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func scatterData(pts []lost.Point) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(pts))
	for _, p := range pts {
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
	}
	return data
}

func maxCellsParam(r *http.Request, def int) int {
	if mp := r.URL.Query().Get("max_cells"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v >= 100 && v <= 200000 {
			return v
		}
	}
	return def
}
