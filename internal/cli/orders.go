package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

func newOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "List and edit repair orders",
	}
	cmd.AddCommand(newOrdersListCmd())
	cmd.AddCommand(newOrdersAddCmd())
	cmd.AddCommand(newOrdersRmCmd())
	cmd.AddCommand(newOrdersSetCmd())
	return cmd
}

func newOrdersListCmd() *cobra.Command {
	var (
		stageName string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders (oldest first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st models.Stage
			if stageName != "" {
				var err error
				if st, err = stage.ParseStage(stageName); err != nil {
					return err
				}
			}
			orders, err := sessionFrom(cmd).client().ListOrders(cmd.Context(), st, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSTAGE\tCOLUMN\tCUSTOMER\tDEVICE\tURGENCY\tTECHNICIAN")
			for _, o := range orders {
				col, _ := stage.ToColumn(o.Stage)
				tech := "-"
				if o.Technician != nil {
					tech = o.Technician.Name
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", o.ID, o.Stage, stage.Title(col), o.CustomerName, deviceLabel(o), o.Urgency, tech)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&stageName, "stage", "", "Only orders in this stage")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum orders to list (default 1000)")
	return cmd
}

func deviceLabel(o models.RepairOrder) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{o.DeviceBrand, o.DeviceModel} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 && o.DeviceType != "" {
		parts = append(parts, o.DeviceType)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// orderFlags are shared by add and set.
type orderFlags struct {
	customer, deviceType, brand, model, issue string
	urgency, complexity                       int
	value                                     float64
	techID, techName                          string
	promised                                  string
}

func (f *orderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.customer, "customer", "", "Customer name")
	cmd.Flags().StringVar(&f.deviceType, "device", "", "Device type (phone, laptop, ...)")
	cmd.Flags().StringVar(&f.brand, "brand", "", "Device brand")
	cmd.Flags().StringVar(&f.model, "model", "", "Device model")
	cmd.Flags().StringVar(&f.issue, "issue", "", "Reported issue")
	cmd.Flags().IntVar(&f.urgency, "urgency", 0, "Urgency 1..5")
	cmd.Flags().IntVar(&f.complexity, "complexity", 0, "Technical complexity 1..5")
	cmd.Flags().Float64Var(&f.value, "value", 0, "Historical customer value")
	cmd.Flags().StringVar(&f.techID, "technician", "", "Technician id")
	cmd.Flags().StringVar(&f.techName, "technician-name", "", "Technician display name")
	cmd.Flags().StringVar(&f.promised, "promised", "", "Promised date (RFC3339 or YYYY-MM-DD)")
}

func parsePromised(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("--promised: %q is not RFC3339 or YYYY-MM-DD", s)
}

func newOrdersAddCmd() *cobra.Command {
	var (
		f         orderFlags
		id        string
		stageName string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := models.NewOrder{
				ID:                  id,
				CustomerName:        f.customer,
				DeviceType:          f.deviceType,
				DeviceBrand:         f.brand,
				DeviceModel:         f.model,
				Issue:               f.issue,
				Urgency:             f.urgency,
				TechnicalComplexity: f.complexity,
				HistoricalValue:     f.value,
			}
			if stageName != "" {
				st, err := stage.ParseStage(stageName)
				if err != nil {
					return err
				}
				in.Stage = st
			}
			if f.techID != "" {
				in.Technician = &models.Technician{ID: f.techID, Name: f.techName}
			}
			p, err := parsePromised(f.promised)
			if err != nil {
				return err
			}
			in.PromisedAt = p
			o, err := sessionFrom(cmd).client().CreateOrder(cmd.Context(), in)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created order %s (%s)\n", o.ID, o.Stage)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&id, "id", "", "Order id (default: generated)")
	cmd.Flags().StringVar(&stageName, "stage", "", "Initial stage (default: received)")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func newOrdersRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sessionFrom(cmd).client().DeleteOrder(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted order %s\n", args[0])
			return nil
		},
	}
}

func newOrdersSetCmd() *cobra.Command {
	var (
		f            orderFlags
		unassign     bool
		clearPromise bool
	)
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Update order fields (only the flags given are changed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch models.OrderPatch
			changed := cmd.Flags().Changed
			if changed("customer") {
				patch.CustomerName = &f.customer
			}
			if changed("device") {
				patch.DeviceType = &f.deviceType
			}
			if changed("brand") {
				patch.DeviceBrand = &f.brand
			}
			if changed("model") {
				patch.DeviceModel = &f.model
			}
			if changed("issue") {
				patch.Issue = &f.issue
			}
			if changed("urgency") {
				patch.Urgency = &f.urgency
			}
			if changed("complexity") {
				patch.TechnicalComplexity = &f.complexity
			}
			if changed("value") {
				patch.HistoricalValue = &f.value
			}
			if changed("technician") {
				patch.Technician = &models.Technician{ID: f.techID, Name: f.techName}
			}
			if unassign {
				patch.Technician = &models.Technician{}
			}
			if changed("promised") {
				p, err := parsePromised(f.promised)
				if err != nil {
					return err
				}
				patch.PromisedAt = p
			}
			if clearPromise {
				patch.PromisedAt = &time.Time{}
			}
			o, err := sessionFrom(cmd).client().UpdateOrder(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated order %s\n", o.ID)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&unassign, "unassign", false, "Remove the technician")
	cmd.Flags().BoolVar(&clearPromise, "clear-promised", false, "Remove the promised date")
	return cmd
}
