package monitor

import (
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/banshee-data/lostnav/internal/feed"
	"github.com/banshee-data/lostnav/internal/lost/l4consistency"
	"github.com/banshee-data/lostnav/internal/visualiser"
)

const metricPrefix = "lostnav_"

// Snapshot gathers everything exported on /metrics.
type Snapshot struct {
	Status  l4consistency.Status
	History HistorySummary
	Node    *feed.NodeStats
	Stream  *visualiser.PublisherStats
}

type familySet map[string]*dto.MetricFamily

func (fs familySet) add(name, help string, typ dto.MetricType, value float64, labels ...string) {
	mf, ok := fs[name]
	if !ok {
		mf = &dto.MetricFamily{
			Name: proto.String(metricPrefix + name),
			Help: proto.String(help),
			Type: typ.Enum(),
		}
		fs[name] = mf
	}
	m := &dto.Metric{}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	switch typ {
	case dto.MetricType_COUNTER:
		m.Counter = &dto.Counter{Value: proto.Float64(value)}
	default:
		m.Gauge = &dto.Gauge{Value: proto.Float64(value)}
	}
	mf.Metric = append(mf.Metric, m)
}

func (fs familySet) counter(name, help string, v uint64, labels ...string) {
	fs.add(name, help, dto.MetricType_COUNTER, float64(v), labels...)
}

func (fs familySet) gauge(name, help string, v float64, labels ...string) {
	fs.add(name, help, dto.MetricType_GAUGE, v, labels...)
}

// MetricFamilies converts s into Prometheus metric families sorted by name.
func MetricFamilies(s Snapshot) []*dto.MetricFamily {
	fs := familySet{}
	st := s.Status.Stats

	fs.counter("scans_total", "Scans handed to the estimator.", st.Scans)
	fs.counter("results_total", "Results produced.", st.Results)
	for _, sk := range []struct {
		reason string
		n      uint64
	}{
		{"not_ready", st.NotReady},
		{"invalid_input", st.InvalidInput},
		{"transform_unavailable", st.TransformUnavailable},
		{"extrapolation", st.Extrapolation},
		{"not_computable", st.NotComputable},
		{"frame_mismatch", st.FrameMismatch},
		{"halted", st.Halted},
		{"cancelled", st.Cancelled},
	} {
		fs.counter("skipped_scans_total", "Scans that produced no result, by reason.", sk.n, "reason", sk.reason)
	}
	fs.counter("map_updates_total", "Valid maps accepted.", st.MapUpdates)
	fs.counter("corrupt_maps_total", "Maps rejected as corrupt.", st.CorruptMaps)
	fs.counter("pose_updates_total", "Pose estimates received.", st.PoseUpdates)
	fs.counter("sink_errors_total", "Result sink failures.", st.SinkErrors)

	halted := 0.0
	if s.Status.Halted {
		halted = 1
	}
	fs.gauge("halted", "1 while processing is halted by a corrupt map.", halted)
	if m := s.Status.Map; m != nil {
		fs.gauge("map_cells", "Cells in the current map.", float64(m.Cells()))
		fs.gauge("map_resolution_meters", "Resolution of the current map.", m.Resolution)
	}
	if r := s.Status.Last; r.Computable() {
		fs.gauge("lost_rate_percent", "Lost rate of the last result.", r.LostRate)
		fs.gauge("occupied_hits", "Occupied hits of the last result.", float64(r.OccupiedHits))
		fs.gauge("indexed_points", "Indexed points of the last result.", float64(r.Total))
	}
	if s.History.Count > 0 {
		fs.gauge("lost_rate_window_mean", "Mean lost rate over the history window.", s.History.Mean)
		fs.gauge("lost_rate_window_stddev", "Standard deviation of the lost rate over the history window.", s.History.StdDev)
		fs.gauge("lost_rate_window_count", "Results in the history window.", float64(s.History.Count))
	}

	if n := s.Node; n != nil {
		for _, m := range []struct {
			kind string
			v    uint64
		}{
			{"map", n.Maps}, {"scan", n.Scans}, {"tf", n.Transforms}, {"pose", n.Poses},
		} {
			fs.counter("feed_messages_total", "Feed messages dispatched, by kind.", m.v, "kind", m.kind)
		}
		fs.counter("feed_decode_errors_total", "Feed payloads that failed to decode.", n.DecodeErrors)
		fs.counter("feed_rejected_total", "Feed messages rejected by the estimator.", n.Rejected)
		fs.counter("feed_dropped_scans_total", "Scans dropped from a full scan queue before processing.", n.DroppedScans)
		fs.counter("feed_halted_scans_total", "Scans refused while the estimator was halted.", n.HaltedScans)
	}
	if v := s.Stream; v != nil {
		fs.gauge("visualiser_clients", "Connected visualiser clients.", float64(v.Clients))
		fs.counter("visualiser_published_total", "Results queued for visualiser clients.", v.Published)
		fs.counter("visualiser_dropped_total", "Results dropped for slow visualiser clients.", v.Dropped)
	}

	names := make([]string, 0, len(fs))
	for name := range fs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		out = append(out, fs[name])
	}
	return out
}

// MetricsFormat is the exposition format written by WriteMetrics.
var MetricsFormat = expfmt.NewFormat(expfmt.TypeTextPlain)

// WriteMetrics encodes s in the Prometheus text format.
func WriteMetrics(w io.Writer, s Snapshot) error {
	enc := expfmt.NewEncoder(w, MetricsFormat)
	for _, mf := range MetricFamilies(s) {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
