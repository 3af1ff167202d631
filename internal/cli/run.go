package cli

import (
	"context"
	"os"
	"os/signal"

	"spindle/app"
	"spindle/internal/buildinfo"
	"spindle/internal/config"
	"spindle/internal/log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type runOptions struct {
	configPath string
	ticks      uint64
	hz         int
}

func (o *runOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML configuration file (default: built-in empty workload)")
	fs.Uint64Var(&o.ticks, "ticks", 0, "Stop after N timer ticks (overrides sim.ticks, 0 = run until interrupted)")
	fs.IntVar(&o.hz, "hz", 0, "Timer rate against wall time (overrides sim.hz, 0 = as fast as possible)")
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the simulated machine and run the configured workload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if opts.configPath != "" {
				var err error
				if cfg, err = config.Load(opts.configPath); err != nil {
					return err
				}
			}

			fs := cmd.Flags()
			if fs.Changed("ticks") {
				cfg.Sim.Ticks = opts.ticks
			}
			if fs.Changed("hz") {
				cfg.Sim.Hz = opts.hz
			}
			if !fs.Changed("log-level") && !flagDebug && !fs.Changed("log-format") {
				logger = log.New(log.ParseLevel(cfg.Log.Level), cfg.Log.Format, os.Stderr)
				log.L = logger
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger.Debug("booting", "build", buildinfo.Get().Short(),
				"processes", len(cfg.Sim.Processes), "events", len(cfg.Sim.Events))
			sys, err := app.New(cfg, logger)
			if err != nil {
				return errors.Wrap(err, "boot")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			runErr := sys.Run(ctx)
			sys.Summary(cmd.OutOrStdout())
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil
		},
	}

	opts.addFlags(cmd.Flags())
	return cmd
}
