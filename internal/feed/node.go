package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/lostnav/internal/lost"
)

// PayloadHandler consumes raw feed payloads. Transports hand every datagram
// or line to one.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, payload []byte) error
}

// TransformSink stores transforms. *l2frames.Buffer implements it.
type TransformSink interface {
	Set(t lost.Transform) error
}

// Estimator is the part of the aggregator the node drives.
// *l4consistency.Aggregator implements it.
type Estimator interface {
	UpdateMap(g *lost.OccupancyGrid) error
	UpdatePose(p *lost.PoseEstimate)
	HandleScan(ctx context.Context, scan *lost.ScanSample) (*lost.Result, error)
}

// DefaultScanQueue is the number of scans a Node holds while the estimator
// is busy.
const DefaultScanQueue = 10

// NodeStats counts messages seen by a Node.
type NodeStats struct {
	Maps         uint64 `json:"maps"`
	Scans        uint64 `json:"scans"`
	Transforms   uint64 `json:"transforms"`
	Poses        uint64 `json:"poses"`
	DecodeErrors uint64 `json:"decode_errors"`
	Rejected     uint64 `json:"rejected"`
	DroppedScans uint64 `json:"dropped_scans"`
	Computed     uint64 `json:"computed"`
	Skipped      uint64 `json:"skipped"`
	HaltedScans  uint64 `json:"halted_scans"`
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithScanQueue sets how many scans wait while the estimator is busy.
// Values below one are ignored.
func WithScanQueue(size int) NodeOption {
	return func(n *Node) {
		if size > 0 {
			n.queueSize = size
		}
	}
}

// WithBlockingQueue makes Dispatch wait for room in a full scan queue
// instead of discarding the oldest queued scan. Replays use it so that
// every recorded scan is computed.
func WithBlockingQueue() NodeOption {
	return func(n *Node) { n.block = true }
}

// WithMapLayout sets the row order of map data in decoded payloads.
func WithMapLayout(l lost.Layout) NodeOption {
	return func(n *Node) { n.codec.MapLayout = l }
}

// Node routes feed messages. Transforms, maps and poses are applied as they
// arrive, so a scan waiting for its transform never blocks the transform
// that would satisfy it. Scans are queued in arrival order and computed one
// at a time by Run. When the queue is full the oldest waiting scan is
// dropped, unless the node was built WithBlockingQueue.
type Node struct {
	tf    TransformSink
	est   Estimator
	codec Codec

	queueSize int
	block     bool
	enqueueMu sync.Mutex
	pending   chan *lost.ScanSample

	maps, scans, transforms, poses atomic.Uint64
	decodeErrs, rejected, dropped  atomic.Uint64
	computed, skipped, halted      atomic.Uint64
}

// NewNode returns a node feeding tf and est.
func NewNode(tf TransformSink, est Estimator, opts ...NodeOption) *Node {
	n := &Node{
		tf:        tf,
		est:       est,
		codec:     DefaultCodec,
		queueSize: DefaultScanQueue,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.pending = make(chan *lost.ScanSample, n.queueSize)
	return n
}

// HandlePayload decodes and dispatches one payload.
func (n *Node) HandlePayload(ctx context.Context, payload []byte) error {
	m, err := n.codec.Decode(payload)
	if err != nil {
		n.decodeErrs.Add(1)
		return err
	}
	return n.Dispatch(ctx, m)
}

// Dispatch applies m. Map rejections and invalid transforms are returned
// after being counted; they never stop the node.
func (n *Node) Dispatch(ctx context.Context, m Message) error {
	switch m.Kind {
	case KindMap:
		n.maps.Add(1)
		if err := n.est.UpdateMap(m.Map); err != nil {
			n.rejected.Add(1)
			return err
		}
	case KindTF, KindTFStatic:
		var errs []error
		for _, t := range m.Transforms {
			n.transforms.Add(1)
			if err := n.tf.Set(t); err != nil {
				n.rejected.Add(1)
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	case KindPose:
		n.poses.Add(1)
		n.est.UpdatePose(m.Pose)
	case KindScan:
		n.scans.Add(1)
		return n.enqueue(ctx, m.Scan)
	default:
		return fmt.Errorf("feed: cannot dispatch %q", m.Kind)
	}
	return nil
}

func (n *Node) enqueue(ctx context.Context, s *lost.ScanSample) error {
	if n.block {
		select {
		case n.pending <- s:
			return nil
		case <-ctx.Done():
			n.dropped.Add(1)
			return fmt.Errorf("feed: scan %s not queued: %w", s.Stamp, ctx.Err())
		}
	}

	n.enqueueMu.Lock()
	defer n.enqueueMu.Unlock()
	for {
		select {
		case n.pending <- s:
			return nil
		default:
		}
		select {
		case old := <-n.pending:
			n.dropped.Add(1)
			diagf("scan queue full (%d), dropped scan %s", n.queueSize, old.Stamp)
		default:
		}
	}
}

// Run computes queued scans in arrival order until ctx is cancelled.
// Skipped cycles and cycles refused while the estimator is halted are
// counted; neither stops the node, since the next valid map resumes it.
func (n *Node) Run(ctx context.Context) error {
	opsf("node running")
	for {
		select {
		case <-ctx.Done():
			opsf("node stopping: %v", ctx.Err())
			return ctx.Err()
		case s := <-n.pending:
			n.compute(ctx, s)
		}
	}
}

func (n *Node) compute(ctx context.Context, s *lost.ScanSample) {
	_, err := n.est.HandleScan(ctx, s)
	switch {
	case err == nil:
		n.computed.Add(1)
	case lost.IsSkippable(err):
		n.skipped.Add(1)
		tracef("scan %s skipped: %v", s.Stamp, err)
	case errors.Is(err, lost.ErrHalted), errors.Is(err, lost.ErrCorruptGrid):
		n.halted.Add(1)
		diagf("scan %s refused: %v", s.Stamp, err)
	default:
		n.skipped.Add(1)
		if ctx.Err() == nil {
			opsf("scan %s failed: %v", s.Stamp, err)
		}
	}
}

// Stats returns the message counters.
func (n *Node) Stats() NodeStats {
	return NodeStats{
		Maps:         n.maps.Load(),
		Scans:        n.scans.Load(),
		Transforms:   n.transforms.Load(),
		Poses:        n.poses.Load(),
		DecodeErrors: n.decodeErrs.Load(),
		Rejected:     n.rejected.Load(),
		DroppedScans: n.dropped.Load(),
		Computed:     n.computed.Load(),
		Skipped:      n.skipped.Load(),
		HaltedScans:  n.halted.Load(),
	}
}
