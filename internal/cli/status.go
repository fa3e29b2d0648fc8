package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/daemon"
	"github.com/eduardojeem/repairboard/pkg/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a server runs for this home, and its board totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			st, err := daemon.Status(cmd.Context(), sessionFrom(cmd).home)
			if err != nil {
				return err
			}
			if !st.Running {
				_, _ = fmt.Fprintln(out, "repairboard not running")
				return nil
			}
			_, _ = fmt.Fprintf(out, "repairboard running (pid %d)\n  http  %s\n", st.PID, st.Addr)
			if st.GRPCAddr != "" {
				_, _ = fmt.Fprintf(out, "  grpc  %s\n", st.GRPCAddr)
			}
			rt := sessionFrom(cmd)
			c := rt.client()
			if rt.flags.url == "" && st.Addr != "unknown" {
				c = client.New("http://"+st.Addr, c.APIKey)
			}
			b, err := c.Board(cmd.Context(), client.BoardQuery{})
			if err != nil {
				rt.log.Warn("board totals unavailable", "err", err)
				return nil
			}
			_, _ = fmt.Fprintf(out, "%d orders, %d overdue, %d urgent\n", b.Totals.Count, b.Totals.OverdueCount, b.Totals.UrgentCount)
			return nil
		},
	}
}
