package cli

import (
	"os"

	"spindle/internal/log"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger hclog.Logger
)

// NewRootCmd creates the root cobra command for the spindle CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "spindle",
		Short: "Spindle: preemptive scheduler and signal delivery simulator",
		Long: `Spindle boots a simulated single-processor machine, runs a scripted
workload through the kernel scheduler and reports how threads were scheduled.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = log.New(log.ParseLevel(flagLogLevel), flagLogFormat, os.Stderr)
			log.L = logger
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newVersionCmd(),
	)

	return root
}
