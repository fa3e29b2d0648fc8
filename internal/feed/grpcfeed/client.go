package grpcfeed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/eduardojeem/repairboard/internal/feed"
)

// Client is a feed.Feed backed by a remote OrderFeed service.
type Client struct {
	// Addr is the gRPC server address (e.g. "localhost:4781").
	Addr string
	// DialOptions are used when connecting (e.g. TLS, interceptors).
	DialOptions []grpc.DialOption
}

var _ feed.Feed = (*Client)(nil)

// Subscribe dials Addr, opens Watch and returns once the server has sent the connected message.
// Each subscription owns its connection.
func (c *Client) Subscribe(ctx context.Context, h feed.Handler) (feed.Subscription, error) {
	opts := c.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(c.Addr, opts...)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(ctx)
	fail := func(err error) (feed.Subscription, error) {
		cancel()
		_ = conn.Close()
		return nil, err
	}

	stream, err := conn.NewStream(sctx, &ServiceDesc.Streams[0], watchMethod)
	if err != nil {
		return fail(err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return fail(err)
	}
	if err := stream.CloseSend(); err != nil {
		return fail(err)
	}
	first := new(structpb.Struct)
	if err := stream.RecvMsg(first); err != nil {
		return fail(fmt.Errorf("open change stream: %w", err))
	}
	if t := messageType(first); t != msgConnected {
		return fail(fmt.Errorf("open change stream: unexpected first message %q", t))
	}

	s := feed.NewStream(cancel)
	go func() {
		defer func() {
			cancel()
			_ = conn.Close()
		}()
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				if errors.Is(err, io.EOF) {
					err = feed.ErrClosed
				}
				s.Finish(err)
				return
			}
			if messageType(msg) != msgOrderChange {
				continue
			}
			ev, err := protoToEvent(msg)
			if err != nil {
				s.Finish(err)
				return
			}
			if s.Stopped() {
				continue
			}
			h(ev)
		}
	}()
	return s, nil
}
