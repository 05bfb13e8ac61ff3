// Package grpcconn carries room service calls over a unary gRPC method and
// pushed events over a server stream. Messages are google.protobuf.Struct
// values so no generated code is required.
package grpcconn

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/transport"
)

const (
	serviceName  = "roomlink.v1.RoomService"
	callMethod   = "/" + serviceName + "/Call"
	eventsMethod = "/" + serviceName + "/Events"
)

// RoomServiceServer is the server API of the room service.
type RoomServiceServer interface {
	Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Events(req *structpb.Struct, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RoomServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "roomlink/v1/room_service.proto",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomServiceServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoomServiceServer).Call(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RoomServiceServer).Events(in, stream)
}

// Register registers a room service backed by h on s.
//
// Precondition: h and logger must be non-nil.
func Register(s *grpc.Server, h transport.Handler, logger *zap.Logger) {
	s.RegisterService(&serviceDesc, &server{h: h, logger: logger})
}

type server struct {
	h      transport.Handler
	logger *zap.Logger
}

func (s *server) Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	method := fields["method"].GetStringValue()
	if method == "" {
		return nil, status.Error(codes.InvalidArgument, "method is required")
	}
	callID := int64(fields["callId"].GetNumberValue())

	var args json.RawMessage
	if a := fields["args"].GetStructValue(); a != nil {
		raw, err := protojson.Marshal(a)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "encoding args: %v", err)
		}
		args = raw
	}

	env := s.h.Handle(ctx, method, args).Envelope(callID)
	out, err := structpb.NewStruct(map[string]any{
		"callId":     float64(env.CallID),
		"returnCode": float64(env.ReturnCode),
		"message":    env.Message,
		"payload":    env.Payload,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding reply: %v", err)
	}
	return out, nil
}

// Events streams every event published on the requested channel. The first
// message is an acknowledgement sent once the subscription is live.
func (s *server) Events(req *structpb.Struct, stream grpc.ServerStream) error {
	channel := req.GetFields()["channel"].GetStringValue()
	if channel == "" {
		return status.Error(codes.InvalidArgument, "channel is required")
	}
	ctx := stream.Context()

	pending := make(chan events.Envelope, 64)
	unsub := s.h.Subscribe(channel, func(env events.Envelope) {
		select {
		case pending <- env:
		case <-ctx.Done():
		}
	})
	defer unsub()

	ack, _ := structpb.NewStruct(map[string]any{"subscribed": channel})
	if err := stream.SendMsg(ack); err != nil {
		return err
	}

	for {
		select {
		case env := <-pending:
			msg, err := envelopeStruct(env)
			if err != nil {
				s.logger.Error("grpcconn: encoding event", zap.String("channel", channel), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func envelopeStruct(env events.Envelope) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"returnCode": float64(env.ReturnCode),
		"message":    env.Message,
		"eventType":  float64(env.EventType),
		"eventData":  env.EventData,
	})
	if err != nil {
		return nil, fmt.Errorf("building event struct: %w", err)
	}
	return msg, nil
}
