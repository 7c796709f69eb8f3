package visualiser

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/lostnav/internal/lost"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lostnav.Visualiser"

// ResultStreamer is the server side of the visualiser service.
type ResultStreamer interface {
	StreamResults(*emptypb.Empty, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResultStreamer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamResults",
			Handler:       streamResultsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "lostnav/visualiser.proto",
}

func streamResultsHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(ResultStreamer).StreamResults(req, stream)
}

// RegisterService registers the visualiser service with s.
func RegisterService(s grpc.ServiceRegistrar, srv ResultStreamer) {
	s.RegisterService(&serviceDesc, srv)
}

var _ ResultStreamer = (*Server)(nil)

// Server implements the visualiser service on top of a Publisher.
type Server struct {
	publisher *Publisher
}

// NewServer creates a new gRPC server.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

// StreamResults sends every published result until the client goes away.
func (s *Server) StreamResults(_ *emptypb.Empty, stream grpc.ServerStream) error {
	client := s.publisher.addClient()
	if client == nil {
		return status.Errorf(codes.ResourceExhausted, "client limit %d reached", s.publisher.config.MaxClients)
	}
	defer s.publisher.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-client.doneCh:
			return status.Error(codes.Unavailable, "publisher stopped")
		case <-s.publisher.stopCh:
			return status.Error(codes.Unavailable, "publisher stopped")
		case msg := <-client.resultCh:
			if err := stream.SendMsg(msg); err != nil {
				diagf("send to %s: %v", client.id, err)
				return err
			}
		}
	}
}

// ResultStream is the client side of StreamResults.
type ResultStream struct {
	stream grpc.ClientStream
}

// StreamResults opens a result stream on cc.
func StreamResults(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (*ResultStream, error) {
	stream, err := cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/StreamResults", opts...)
	if err != nil {
		return nil, err
	}
	// io.EOF means the server already finished; Recv reports its status.
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &ResultStream{stream: stream}, nil
}

// Recv blocks for the next result.
func (rs *ResultStream) Recv() (*lost.Result, error) {
	msg := new(structpb.Struct)
	if err := rs.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return ResultFromStruct(msg)
}
