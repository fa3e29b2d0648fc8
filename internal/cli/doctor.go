package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/store"
	"github.com/eduardojeem/repairboard/internal/store/postgres"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify config, store and server reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := sessionFrom(cmd)
			var problems []string

			// Config already loaded and validated in the root pre-run.
			opts := store.OpenOptions{Driver: rt.cfg.Database.Driver, Home: rt.home, DSN: rt.cfg.Database.DSN}
			var (
				st  store.Store
				err error
			)
			if opts.Driver == "postgres" {
				st, err = postgres.OpenWithOptions(opts)
			} else {
				opts.DSN = ""
				st, err = store.OpenWithOptions(opts)
			}
			if err != nil {
				problems = append(problems, fmt.Sprintf("store (%s): %v", opts.Driver, err))
			} else {
				_ = st.Close()
			}

			c := rt.client()
			if ok, err := c.Health(cmd.Context()); err != nil || !ok {
				problems = append(problems, fmt.Sprintf("server %s not reachable: %v", c.BaseURL, err))
			}

			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	return cmd
}
