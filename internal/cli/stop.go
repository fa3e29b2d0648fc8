package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/daemon"
)

func newStopCmd() *cobra.Command {
	timeout := daemon.StopTimeout
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the repairboard server running for this home",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			stopped, err := daemon.Stop(ctx, sessionFrom(cmd).home)
			if err != nil {
				return err
			}
			msg := "repairboard stopped"
			if !stopped {
				msg = "repairboard is not running"
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", timeout, "Kill the server if it has not exited after this long")
	return cmd
}
