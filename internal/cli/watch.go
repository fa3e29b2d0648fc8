package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/feed"
	"github.com/eduardojeem/repairboard/internal/feed/grpcfeed"
	"github.com/eduardojeem/repairboard/internal/notify"
	"github.com/eduardojeem/repairboard/internal/realtime"
)

func newWatchCmd() *cobra.Command {
	var (
		grpcAddr string
		useGRPC  bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a notification for every order change",
		Long: "Subscribe to the server's change feed and print one line per insert, update or delete.\n" +
			"The feed is the SSE /stream endpoint, or the gRPC feed with --grpc. Dropped feeds are\n" +
			"resubscribed with the backoff from feed.backoff in config.yaml. Stop with Ctrl+C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := sessionFrom(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var f feed.Feed
			source := "sse"
			if grpcAddr == "" {
				grpcAddr = rt.cfg.Client.GRPCAddr
			}
			if useGRPC || cmd.Flags().Changed("grpc-addr") {
				if grpcAddr == "" {
					return fmt.Errorf("--grpc needs --grpc-addr or client.grpc_addr in config.yaml")
				}
				f = &grpcfeed.Client{Addr: grpcAddr}
				source = "grpc " + grpcAddr
			} else {
				f = feed.SSE(rt.client())
			}

			n := realtime.New(f, notify.Metered(notify.Multi(notify.NewConsole(cmd.OutOrStdout()), notify.Logger(rt.log))))
			n.Backoff = rt.cfg.Backoff()
			n.Logger = rt.log
			rt.log.Info("watching order changes", "source", source)
			return n.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&useGRPC, "grpc", false, "Use the gRPC change feed instead of SSE")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC feed address (default: client.grpc_addr in config.yaml)")
	return cmd
}
