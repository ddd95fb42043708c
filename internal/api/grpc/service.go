package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully-qualified method names of practice.v1.PronunciationService.
const (
	ServiceName        = "practice.v1.PronunciationService"
	ScoreFullMethod    = "/" + ServiceName + "/Score"
	PracticeFullMethod = "/" + ServiceName + "/Practice"
)

// PronunciationServiceServer is the server API for practice.v1.PronunciationService.
// Messages travel as google.protobuf.Struct; see messages.go for their shape.
type PronunciationServiceServer interface {
	Score(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Practice(grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]) error
}

// RegisterPronunciationServiceServer registers srv on s.
func RegisterPronunciationServiceServer(s grpc.ServiceRegistrar, srv PronunciationServiceServer) {
	s.RegisterService(&PronunciationService_ServiceDesc, srv)
}

func _PronunciationService_Score_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PronunciationServiceServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ScoreFullMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PronunciationServiceServer).Score(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _PronunciationService_Practice_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(PronunciationServiceServer).Practice(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// PronunciationService_ServiceDesc is the grpc.ServiceDesc for practice.v1.PronunciationService.
var PronunciationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PronunciationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Score",
			Handler:    _PronunciationService_Score_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Practice",
			Handler:       _PronunciationService_Practice_Handler,
			ClientStreams: true,
		},
	},
	Metadata: "practice/v1/practice.proto",
}

// Client calls practice.v1.PronunciationService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Score scores spoken against reference on the server.
func (c *Client) Score(ctx context.Context, req ScoreRequest, opts ...grpc.CallOption) (ScoreResponse, error) {
	in, err := toStruct(req)
	if err != nil {
		return ScoreResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ScoreFullMethod, in, out, opts...); err != nil {
		return ScoreResponse{}, err
	}
	var resp ScoreResponse
	err = fromStruct(out, &resp)
	return resp, err
}

// Practice opens a practice stream. The first message must carry the header.
func (c *Client) Practice(ctx context.Context, opts ...grpc.CallOption) (*PracticeStream, error) {
	stream, err := c.cc.NewStream(ctx, &PronunciationService_ServiceDesc.Streams[0], PracticeFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &PracticeStream{
		stream: &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream},
	}, nil
}

// PracticeStream is the client side of one practice attempt.
type PracticeStream struct {
	stream grpc.ClientStreamingClient[structpb.Struct, structpb.Struct]
}

// Send sends one practice message.
func (p *PracticeStream) Send(msg PracticeMessage) error {
	s, err := toStruct(msg)
	if err != nil {
		return err
	}
	return p.stream.Send(s)
}

// CloseAndRecv ends the attempt and waits for its outcome.
func (p *PracticeStream) CloseAndRecv() (PracticeOutcome, error) {
	out, err := p.stream.CloseAndRecv()
	if err != nil {
		return PracticeOutcome{}, err
	}
	var outcome PracticeOutcome
	err = fromStruct(out, &outcome)
	return outcome, err
}
