// Package grpcfeed serves and consumes the order change feed over a gRPC server stream.
//
// Messages are google.protobuf.Struct values, so no generated code is needed:
// the first message is {"type":"connected"}, then one {"type":"order_change","event":{...}}
// per change, where event has the JSON shape of models.OrderEvent.
package grpcfeed

import (
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/eduardojeem/repairboard/internal/feed"
)

const (
	serviceName = "repairboard.feed.v1.OrderFeed"
	watchMethod = "/" + serviceName + "/Watch"
)

// WatchServer is the service implementation type.
type WatchServer interface {
	Watch(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes the OrderFeed service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WatchServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Watch",
		Handler:       watchHandler,
		ServerStreams: true,
	}},
	Metadata: "repairboard/feed/v1/feed.proto",
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WatchServer).Watch(in, stream)
}

// Server streams every event published on Broker to each watcher.
type Server struct {
	Broker *feed.Broker
	Logger *slog.Logger
}

// Register adds the service to gs.
func Register(gs *grpc.Server, s *Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Watch sends the connected message, then events until the client leaves or the listener ends.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	if s.Broker == nil {
		return status.Error(codes.Internal, "broker not set")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := s.Broker.Listen()
	defer l.Close()

	if err := stream.SendMsg(connectedToProto()); err != nil {
		return err
	}
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case ev, ok := <-l.C():
			if !ok {
				err := l.Err()
				switch {
				case errors.Is(err, feed.ErrSlowSubscriber):
					return status.Error(codes.ResourceExhausted, err.Error())
				case err != nil:
					return status.Error(codes.Unavailable, err.Error())
				}
				return nil
			}
			msg, err := eventToProto(ev)
			if err != nil {
				logger.Error("encode order event failed", "order", ev.Order.ID, "err", err)
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}
