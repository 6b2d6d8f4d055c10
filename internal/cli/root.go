// Package cli implements the busctl command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bjaus/bus"
	"github.com/bjaus/bus/internal/config"
	"github.com/bjaus/bus/internal/orders"
	"github.com/bjaus/bus/internal/telemetry"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	configPath string

	cfg      *config.Config
	logger   zerolog.Logger
	shutdown telemetry.Shutdown
}

// NewRootCommand creates the root command for the CLI.
func NewRootCommand() *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "busctl",
		Short: "busctl - drive the order bus from the command line",
		Long: `busctl wires the order domain onto an in-process message bus.

Configuration is read from busctl.yaml, a .env file and BUSCTL_ environment
variables, for example BUSCTL_LOGGING_LEVEL=debug.

Examples:
  busctl describe
  busctl replay events.jsonl --stock apple=10 --stock pear=3
  cat events.jsonl | busctl replay --skip-unknown`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "",
		"Path to config file (default: ./busctl.yaml if present)")

	rootCmd.AddCommand(newReplayCommand(a))
	rootCmd.AddCommand(newDescribeCommand(a))

	return rootCmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Logging.Logger(cmd.ErrOrStderr())

	shutdown, err := telemetry.Setup(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(context.WithoutCancel(ctx))
}

// wire builds the order service and the mediator it is registered on.
func (a *app) wire(stock map[string]int) (*orders.Service, *bus.Mediator, error) {
	svc := orders.NewService(orders.NewStore(), orders.NewInventory(stock), orders.WithLogger(a.logger))

	reg := bus.NewRegistry(bus.WithRegistryLogger(a.logger))
	if err := orders.Register(reg, svc); err != nil {
		return nil, nil, err
	}

	m := bus.New(reg,
		bus.WithLogger(a.logger),
		bus.WithBroadcastConcurrency(a.cfg.Bus.BroadcastConcurrency),
	)
	svc.Use(m)
	return svc, m, nil
}
