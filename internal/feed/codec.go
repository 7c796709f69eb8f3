package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/lostnav/internal/lost"
)

// Kind names the topic a message belongs to.
type Kind string

const (
	KindMap      Kind = "map"
	KindScan     Kind = "scan"
	KindTF       Kind = "tf"
	KindTFStatic Kind = "tf_static"
	KindPose     Kind = "pose"
)

// ErrDecode reports a payload that is not a valid feed message.
var ErrDecode = errors.New("feed: undecodable message")

// Envelope is the frame every feed message travels in.
type Envelope struct {
	Type Kind            `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// Message is a decoded feed message. Exactly one payload field is set,
// according to Kind.
type Message struct {
	Kind       Kind
	Map        *lost.OccupancyGrid
	Scan       *lost.ScanSample
	Transforms []lost.Transform
	Pose       *lost.PoseEstimate
}

// DefaultMapLayout is the row order of map data on the feed: the first row
// of data is the one furthest from the origin, as a map image is drawn.
const DefaultMapLayout = lost.LayoutTopFirst

// Codec converts between payloads and messages.
type Codec struct {
	// MapLayout is the row order of map data on the wire.
	MapLayout lost.Layout
}

// DefaultCodec reads and writes maps in DefaultMapLayout.
var DefaultCodec = Codec{MapLayout: DefaultMapLayout}

// Decode parses one envelope with DefaultCodec.
func Decode(data []byte) (Message, error) { return DefaultCodec.Decode(data) }

// Encode wraps m with DefaultCodec.
func Encode(m Message) ([]byte, error) { return DefaultCodec.Encode(m) }

// Decode parses one envelope.
func (c Codec) Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(env.Msg) == 0 {
		return Message{}, fmt.Errorf("%w: %q message has no body", ErrDecode, env.Type)
	}

	m := Message{Kind: env.Type}
	var err error
	switch env.Type {
	case KindMap:
		var w OccupancyGrid
		if err = json.Unmarshal(env.Msg, &w); err == nil {
			m.Map = w.ToGrid(c.MapLayout)
		}
	case KindScan:
		var w LaserScan
		if err = json.Unmarshal(env.Msg, &w); err == nil {
			m.Scan = w.ToScan()
		}
	case KindTF, KindTFStatic:
		var w TFMessage
		if err = json.Unmarshal(env.Msg, &w); err == nil {
			m.Transforms = w.ToTransforms(env.Type == KindTFStatic)
		}
	case KindPose:
		var w PoseWithCovarianceStamped
		if err = json.Unmarshal(env.Msg, &w); err == nil {
			m.Pose = w.ToPose()
		}
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrDecode, env.Type)
	}
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s body: %v", ErrDecode, env.Type, err)
	}
	return m, nil
}

// Encode wraps the wire form of m in an envelope.
func (c Codec) Encode(m Message) ([]byte, error) {
	var body interface{}
	switch m.Kind {
	case KindMap:
		if m.Map == nil {
			return nil, fmt.Errorf("feed: map message without grid")
		}
		body = OccupancyGridFrom(m.Map, c.MapLayout)
	case KindScan:
		if m.Scan == nil {
			return nil, fmt.Errorf("feed: scan message without scan")
		}
		body = LaserScanFrom(m.Scan)
	case KindTF, KindTFStatic:
		body = TFMessageFrom(m.Transforms...)
	case KindPose:
		if m.Pose == nil {
			return nil, fmt.Errorf("feed: pose message without pose")
		}
		body = PoseFrom(m.Pose)
	default:
		return nil, fmt.Errorf("feed: unknown message type %q", m.Kind)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: m.Kind, Msg: raw})
}
