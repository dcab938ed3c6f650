// Package cmd contains CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/periscope/cli/internal/config"
	"github.com/instantcocoa/periscope/cli/internal/output"
	"github.com/instantcocoa/periscope/services/observe"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=v1.2.3".
var Version = "dev"

// connector opens a client for the server at addr.
type connector func(addr string) (observe.API, io.Closer, error)

func dialGRPC(addr string) (observe.API, io.Closer, error) {
	c, err := observe.Dial(addr)
	if err != nil {
		return nil, nil, err
	}
	return c, c, nil
}

// app is the state shared by every command of one invocation.
type app struct {
	cfg     *config.Config
	out     *output.Writer
	connect connector
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd(dialGRPC).Execute()
}

func newRootCmd(connect connector) *cobra.Command {
	a := &app{connect: connect}
	var (
		addr    string
		format  string
		timeout time.Duration
		verbose bool
	)

	root := &cobra.Command{
		Use:   "periscope",
		Short: "Periscope CLI - explore logs, traces, metrics and service topology",
		Long: `Periscope answers operator questions over stored telemetry.

Examples:
  # Errors from the checkout service in the last 15 minutes
  periscope logs --service checkout --severity error --since 15m

  # Slowest client spans
  periscope traces --kind client --sort-by duration_ns --sort-order desc

  # Every span of one trace
  periscope trace 4bf92f3577b34da6a3ce929d0e0e4736

  # Service dependency graph for the last hour
  periscope map --since 1h
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = config.DefaultConfig()
			flags := cmd.Flags()
			if flags.Changed("addr") {
				a.cfg.Addr = addr
			}
			if flags.Changed("output") {
				a.cfg.Format = format
			}
			if flags.Changed("timeout") {
				a.cfg.Timeout = timeout
			}
			if flags.Changed("verbose") {
				a.cfg.Verbose = verbose
			}
			if a.cfg.Timeout <= 0 {
				return fmt.Errorf("--timeout must be positive")
			}

			f, err := output.ParseFormat(a.cfg.Format)
			if err != nil {
				return err
			}
			a.out = output.NewWriter(f, cmd.OutOrStdout())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&addr, "addr", "", "Periscope gRPC address (default $PERISCOPE_ADDR or localhost:9000)")
	pf.StringVarP(&format, "output", "o", "", "Output format (table, json, yaml)")
	pf.DurationVar(&timeout, "timeout", 0, "Request timeout (default 30s)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	root.AddCommand(
		newLogsCmd(a),
		newTracesCmd(a),
		newTraceCmd(a),
		newServicesCmd(a),
		newMetricsCmd(a),
		newMapCmd(a),
		newHealthCmd(a),
		newVersionCmd(),
	)
	return root
}

// call connects to the server and runs fn within the request timeout.
func (a *app) call(cmd *cobra.Command, fn func(ctx context.Context, api observe.API) error) error {
	api, closer, err := a.connect(a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err = fn(ctx, api)
	if a.cfg.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s in %s\n", a.cfg.Addr, cmd.Name(), time.Since(start).Round(time.Millisecond))
	}
	if err != nil {
		return describe(a.cfg.Addr, err)
	}
	return nil
}

// describe prefixes err with what the user can do about it.
func describe(addr string, err error) error {
	switch observe.KindOf(err) {
	case observe.KindInvalidInput:
		return fmt.Errorf("invalid request: %w", err)
	case observe.KindUnavailable:
		return fmt.Errorf("periscope at %s is unavailable: %w", addr, err)
	case observe.KindCancelled:
		return fmt.Errorf("request cancelled: %w", err)
	default:
		return err
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server and its storage answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, api observe.API) error {
				if err := api.Ping(ctx); err != nil {
					return err
				}
				a.out.Successf("periscope at %s is serving", a.cfg.Addr)
				return nil
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("periscope version %s\n", Version)
		},
	}
}
