package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/prefs"
	"github.com/eduardojeem/repairboard/internal/stage"
)

func newColumnsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Collapse and expand board columns",
	}
	cmd.AddCommand(newColumnsListCmd())
	cmd.AddCommand(newColumnsSetCmd("collapse", "Collapse a column", true))
	cmd.AddCommand(newColumnsSetCmd("expand", "Expand a column", false))
	cmd.AddCommand(newColumnsToggleCmd())
	return cmd
}

func newColumnsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List columns and whether they are collapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			set := sessionFrom(cmd).collapseStore().Load(cmd.Context())
			for _, c := range stage.Columns() {
				state := "expanded"
				if set.Has(c) {
					state = "collapsed"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-14s %s\n", c, stage.Title(c), state)
			}
			return nil
		},
	}
}

func newColumnsSetCmd(use, short string, collapsed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <column>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := stage.ParseColumn(args[0])
			if err != nil {
				return err
			}
			set, err := sessionFrom(cmd).collapseStore().Set(cmd.Context(), col, collapsed)
			if err != nil {
				return err
			}
			printCollapsed(cmd, set)
			return nil
		},
	}
}

func newColumnsToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <column>",
		Short: "Collapse an expanded column or expand a collapsed one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := stage.ParseColumn(args[0])
			if err != nil {
				return err
			}
			set, err := sessionFrom(cmd).collapseStore().Toggle(cmd.Context(), col)
			if err != nil {
				return err
			}
			printCollapsed(cmd, set)
			return nil
		},
	}
}

func printCollapsed(cmd *cobra.Command, set prefs.ColumnSet) {
	if len(set) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No collapsed columns")
		return
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Collapsed:")
	for _, c := range set.Sorted() {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), " %s", c)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
}
