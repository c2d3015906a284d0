package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/park285/liarslock/internal/sweeper"
)

type SweepOptions struct {
	*RootOptions
	Loop bool
}

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Forfeit matches whose phase deadline passed",
		Long: `Forfeit every overdue match once, or keep sweeping with --loop.

Useful when serve runs with --no-sweeper on several replicas and a single
process owns the sweep.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOf(cmd)
			b, err := openBackends(ctx, opts.Config)
			if err != nil {
				return err
			}
			defer b.Close()

			sw := sweeper.New(b.engine,
				sweeper.WithInterval(opts.Config.SweepInterval),
				sweeper.WithBatch(opts.Config.SweepBatch),
			)
			if opts.Loop {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				if err := sw.Start(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				return sw.Stop()
			}

			st, err := sw.SweepOnce(ctx)
			if err != nil {
				return err
			}
			return emit(cmd, opts.Format, st,
				fmt.Sprintf("checked=%d forfeited=%d failed=%d", st.Checked, st.Forfeited, st.Failed))
		},
	}
	cmd.Flags().BoolVar(&opts.Loop, "loop", false, "keep sweeping every SWEEP_INTERVAL until interrupted")
	return cmd
}
