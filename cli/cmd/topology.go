package cmd

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/periscope/cli/internal/output"
	"github.com/instantcocoa/periscope/services/observe"
)

func newServicesCmd(a *app) *cobra.Command {
	var window windowFlags

	cmd := &cobra.Command{
		Use:   "services",
		Short: "Summarize request volume and health per service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := window.timeRange()
			if err != nil {
				return err
			}

			return a.call(cmd, func(ctx context.Context, api observe.API) error {
				services, err := api.ListServices(ctx, observe.ServicesQuery{TimeRange: tr})
				if err != nil {
					return err
				}
				if a.out.Structured() {
					return a.out.Print(services)
				}

				table := output.Table{Headers: []string{"NAME", "REQUESTS", "AVG LATENCY", "ERROR RATE"}}
				for _, s := range services {
					table.Append(
						s.Name,
						strconv.FormatInt(s.RequestCount, 10),
						output.FormatMillis(s.AvgLatencyMillis),
						output.Percent(s.ErrorRate),
					)
				}
				return a.out.Print(table)
			})
		},
	}

	window.register(cmd, "all time")
	return cmd
}

func newMetricsCmd(a *app) *cobra.Command {
	var (
		q      observe.MetricQuery
		window windowFlags
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Query pre-aggregated metric buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := window.timeRange()
			if err != nil {
				return err
			}
			q.TimeRange = tr

			return a.call(cmd, func(ctx context.Context, api observe.API) error {
				points, err := api.QueryMetrics(ctx, q)
				if err != nil {
					return err
				}
				if a.out.Structured() {
					return a.out.Print(points)
				}

				table := output.Table{Headers: []string{"BUCKET", "SERVICE", "METRIC", "AVG", "MIN", "MAX", "COUNT", "UNIT"}}
				for _, p := range points {
					table.Append(
						output.Timestamp(p.Bucket),
						p.ServiceName,
						p.MetricName,
						formatFloat(p.Avg),
						formatFloat(p.Min),
						formatFloat(p.Max),
						strconv.FormatInt(p.Count, 10),
						dash(p.Unit),
					)
				}
				return a.out.Print(table)
			})
		},
	}

	cmd.Flags().StringVar(&q.Service, "service", "", "Filter by service name")
	cmd.Flags().StringVar(&q.MetricName, "metric", "", "Filter by metric name")
	window.register(cmd, "60m")
	return cmd
}

func newMapCmd(a *app) *cobra.Command {
	var window windowFlags

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Show the service dependency graph",
		Long: `Show which services call which, with call counts, average latency
and error rates. Services with telemetry in the window but no edges are
listed as isolated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := window.timeRange()
			if err != nil {
				return err
			}

			return a.call(cmd, func(ctx context.Context, api observe.API) error {
				graph, err := api.GetServiceMap(ctx, observe.ServiceMapQuery{TimeRange: tr})
				if err != nil {
					return err
				}
				if a.out.Structured() {
					return a.out.Print(graph)
				}

				table := output.Table{Headers: []string{"SOURCE", "TARGET", "CALLS", "AVG LATENCY", "ERROR RATE"}}
				for _, e := range graph.Edges {
					table.Append(
						e.Source,
						e.Target,
						strconv.FormatInt(e.CallCount, 10),
						output.FormatMillis(e.AvgLatencyMillis),
						output.Percent(e.ErrorRate),
					)
				}
				if err := a.out.Print(table); err != nil {
					return err
				}
				if len(graph.IsolatedServices) > 0 {
					a.out.Infof("\nisolated: %s", strings.Join(graph.IsolatedServices, ", "))
				}
				return nil
			})
		},
	}

	window.register(cmd, "10m")
	return cmd
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
