package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/dragdrop"
	"github.com/eduardojeem/repairboard/internal/notify"
	"github.com/eduardojeem/repairboard/internal/orderlist"
	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

func newMoveCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "move <order-id> <column>",
		Short: "Move an order to another board column",
		Long: "Move an order the way a card is dropped on the board: the server confirms the\n" +
			"column's stage, then the order list is reloaded. Dropping on the current column does nothing.\n" +
			"Columns: pending, in_progress, waiting_parts, on_hold, completed, cancelled.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := stage.ParseColumn(args[1])
			if err != nil {
				return err
			}
			rt := sessionFrom(cmd)
			ctx := cmd.Context()
			c := rt.client()

			list := orderlist.New(c, orderlist.WithLogger(rt.log))
			if _, err := list.Refresh(ctx); err != nil {
				return fmt.Errorf("load orders: %w", err)
			}
			reloaded := make(chan []models.RepairOrder, 1)
			list.OnRefresh(func(orders []models.RepairOrder) {
				select {
				case reloaded <- orders:
				default:
				}
			})
			sink := notify.Metered(notify.Multi(notify.NewConsole(cmd.ErrOrStderr()), notify.Logger(rt.log)))
			ctrl := dragdrop.New(c, list, sink, dragdrop.WithLogger(rt.log), dragdrop.WithTimeout(timeout))
			defer func() {
				ctrl.Close()
				ctrl.Wait()
			}()

			res, err := ctrl.Move(ctx, args[0], col)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch res.Outcome {
			case dragdrop.OutcomeNoop:
				_, _ = fmt.Fprintf(out, "%s is already in %s\n", res.OrderID, stage.Title(res.To))
			default:
				_, _ = fmt.Fprintf(out, "%s: %s -> %s (stage %s)\n", res.OrderID, stage.Title(res.From), stage.Title(res.To), res.Stage)
				select {
				case orders := <-reloaded:
					_, _ = fmt.Fprintf(out, "%s now holds %d orders (reloaded %s)\n",
						stage.Title(res.To), countIn(orders, res.To), list.LastRefreshed().Format(time.TimeOnly))
				default:
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", dragdrop.DefaultTimeout, "Give up on the stage change after this long")
	return cmd
}

func countIn(orders []models.RepairOrder, col models.Column) int {
	n := 0
	for _, o := range orders {
		if c, err := stage.ToColumn(o.Stage); err == nil && c == col {
			n++
		}
	}
	return n
}
