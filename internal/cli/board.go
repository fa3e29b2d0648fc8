package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/board"
	"github.com/eduardojeem/repairboard/internal/prefs"
	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/client"
	"github.com/eduardojeem/repairboard/pkg/models"
)

type boardFlags struct {
	q          client.BoardQuery
	from, to   string
	server     bool
	expandAll  bool
	showScores bool
}

func (f *boardFlags) query() (client.BoardQuery, error) {
	q := f.q
	var err error
	if q.From, err = parseDay("--from", f.from); err != nil {
		return q, err
	}
	if q.To, err = parseDay("--to", f.to); err != nil {
		return q, err
	}
	return q, nil
}

func (f *boardFlags) filters() (board.Filters, error) {
	q, err := f.query()
	if err != nil {
		return board.Filters{}, err
	}
	flt := board.Filters{
		SearchTerm:      strings.TrimSpace(q.Search),
		MinUrgency:      q.MinUrgency,
		MaxUrgency:      q.MaxUrgency,
		TechnicianID:    q.TechnicianID,
		DeviceType:      q.DeviceType,
		ShowOverdueOnly: q.OverdueOnly,
		ShowUrgentOnly:  q.UrgentOnly,
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		flt.DateRange = &board.DateRange{From: q.From, To: q.To}
	}
	return flt, flt.Validate()
}

func parseDay(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: %q is not RFC3339 or YYYY-MM-DD", flag, s)
}

func newBoardCmd() *cobra.Command {
	var f boardFlags
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the Kanban board",
		Long: "Show orders grouped by column with per-column metrics.\n" +
			"The board is derived locally from the order list using config.yaml scoring;\n" +
			"--server asks the server to derive it instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := sessionFrom(cmd)
			ctx := cmd.Context()
			c := rt.client()

			var view models.Board
			if f.server {
				q, err := f.query()
				if err != nil {
					return err
				}
				b, err := c.Board(ctx, q)
				if err != nil {
					return err
				}
				view = *b
			} else {
				flt, err := f.filters()
				if err != nil {
					return err
				}
				orders, err := c.FetchOrders(ctx)
				if err != nil {
					return err
				}
				opts := board.Options{Now: time.Now(), Definitions: rt.cfg.Definitions()}
				if f.q.Ranked {
					scorer, err := rt.cfg.Scorer()
					if err != nil {
						return err
					}
					opts.Scoring = &scorer
				}
				b, err := board.Derive(orders, flt, opts)
				if err != nil {
					return err
				}
				view = b.Model()
			}

			collapsed := prefs.NewColumnSet()
			if !f.expandAll {
				collapsed = rt.collapseStore().Load(ctx)
			}
			renderBoard(cmd.OutOrStdout(), view, collapsed, f.showScores)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.q.Search, "search", "q", "", "Search customer, device and issue")
	cmd.Flags().IntVar(&f.q.MinUrgency, "min-urgency", 0, "Minimum urgency (0 = no bound)")
	cmd.Flags().IntVar(&f.q.MaxUrgency, "max-urgency", 0, "Maximum urgency (0 = no bound)")
	cmd.Flags().StringVar(&f.q.TechnicianID, "technician", "", "Only orders assigned to this technician id")
	cmd.Flags().StringVar(&f.q.DeviceType, "device", "", "Only this device type")
	cmd.Flags().BoolVar(&f.q.OverdueOnly, "overdue", false, "Only overdue orders")
	cmd.Flags().BoolVar(&f.q.UrgentOnly, "urgent", false, "Only urgent orders")
	cmd.Flags().StringVar(&f.from, "from", "", "Created on or after (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Created before (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.q.Ranked, "ranked", false, "Sort each column by priority score")
	cmd.Flags().BoolVar(&f.server, "server", false, "Let the server derive the board")
	cmd.Flags().BoolVar(&f.expandAll, "expand-all", false, "Ignore collapsed columns")
	cmd.Flags().BoolVar(&f.showScores, "scores", false, "Show priority scores (with --ranked)")
	return cmd
}

var columnColors = map[string]*color.Color{
	"blue":    color.New(color.FgBlue, color.Bold),
	"yellow":  color.New(color.FgYellow, color.Bold),
	"magenta": color.New(color.FgMagenta, color.Bold),
	"cyan":    color.New(color.FgCyan, color.Bold),
	"green":   color.New(color.FgGreen, color.Bold),
	"red":     color.New(color.FgRed, color.Bold),
}

var levelColors = map[string]*color.Color{
	"critical": color.New(color.FgRed, color.Bold),
	"high":     color.New(color.FgRed),
	"medium":   color.New(color.FgYellow),
	"low":      color.New(color.FgWhite),
}

func renderBoard(w io.Writer, b models.Board, collapsed prefs.ColumnSet, scores bool) {
	for _, col := range b.Columns {
		header := fmt.Sprintf("%s (%d)", col.Title, col.Metrics.Count)
		if info, err := stage.Column(col.Key); err == nil {
			if c, ok := columnColors[info.Color]; ok {
				header = c.Sprint(header)
			}
		}
		if collapsed.Has(col.Key) {
			_, _ = fmt.Fprintf(w, "▸ %s\n", header)
			continue
		}
		m := col.Metrics
		_, _ = fmt.Fprintf(w, "▾ %s  overdue %d · urgent %d · avg urgency %.1f · value %.2f · avg wait %.1fd\n",
			header, m.OverdueCount, m.UrgentCount, m.AverageUrgency, m.TotalValue, m.AverageWaitDays)
		for _, o := range col.Orders {
			line := fmt.Sprintf("    %-10s u%d  %-20s %s", o.ID, o.Urgency, o.CustomerName, deviceLabel(o))
			if o.Issue != "" {
				line += " · " + o.Issue
			}
			if stage.IsAlias(o.Stage) {
				if info, err := stage.Stage(o.Stage); err == nil {
					line += " (" + info.Label + ")"
				}
			}
			if lvl, ok := b.Levels[o.ID]; ok {
				tag := "[" + lvl + "]"
				if c, ok := levelColors[lvl]; ok {
					tag = c.Sprint(tag)
				}
				line += " " + tag
			}
			if s, ok := b.Scores[o.ID]; ok && scores {
				line += fmt.Sprintf(" %.1f", s)
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}
	t := b.Totals
	_, _ = fmt.Fprintf(w, "Total %d · overdue %d · urgent %d · value %.2f\n", t.Count, t.OverdueCount, t.UrgentCount, t.TotalValue)
}
