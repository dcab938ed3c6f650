package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/periscope/cli/internal/output"
	"github.com/instantcocoa/periscope/services/observe"
)

func newTracesCmd(a *app) *cobra.Command {
	var (
		q      observe.SpanQuery
		window windowFlags
		page   pageFlags
	)

	cmd := &cobra.Command{
		Use:   "traces",
		Short: "List spans",
		Long: `List spans matching the given filters, newest first.

--status accepts a span status (Ok, Error, Unset) or an HTTP status code
such as 404.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := window.timeRange()
			if err != nil {
				return err
			}
			q.TimeRange = tr
			q.Page = page.request()

			return a.call(cmd, func(ctx context.Context, api observe.API) error {
				res, err := api.ListSpans(ctx, q)
				if err != nil {
					return err
				}
				if a.out.Structured() {
					return a.out.Print(res)
				}

				table := output.Table{Headers: []string{"TIME", "TRACE ID", "SERVICE", "NAME", "KIND", "DURATION", "STATUS"}}
				for _, s := range res.Records {
					table.Append(
						output.Timestamp(s.StartTime),
						s.TraceID,
						s.ServiceName,
						output.Truncate(s.Name, 60),
						s.Kind.String(),
						output.Millis(s.Duration),
						s.Status.String(),
					)
				}
				if err := a.out.Print(table); err != nil {
					return err
				}
				a.printPageFooter(res.Pagination, res.Facets, page.facets)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&q.Service, "service", "", "Filter by service name")
	f.StringVar(&q.Kind, "kind", "", "Filter by span kind (Server, Client, Internal, Producer, Consumer)")
	f.StringVar(&q.Name, "name", "", "Filter by span name")
	f.StringVar(&q.StatusCode, "status", "", "Filter by span status or HTTP status code")
	f.StringVar(&q.TraceID, "trace-id", "", "Filter by trace ID")
	f.StringVar(&q.Search, "search", "", "Case-insensitive text search over names and attributes")
	window.register(cmd, "all time")
	page.register(cmd)
	return cmd
}

func newTraceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <trace-id>",
		Short: "Show every span of one trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, api observe.API) error {
				tr, err := api.GetTrace(ctx, observe.TraceQuery{TraceID: args[0]})
				if err != nil {
					return err
				}
				if a.out.Structured() {
					return a.out.Print(tr)
				}

				a.out.Infof("Trace:    %s", tr.TraceID)
				a.out.Infof("Root:     %s %s", dash(tr.RootService), dash(tr.RootOperation))
				a.out.Infof("Started:  %s", output.Timestamp(tr.StartTime))
				a.out.Infof("Duration: %s", output.Millis(tr.Duration))
				a.out.Infof("Spans:    %d\n", len(tr.Spans))

				table := output.Table{Headers: []string{"SPAN", "SERVICE", "KIND", "OFFSET", "DURATION", "STATUS"}}
				depths := spanDepths(tr.Spans)
				for _, s := range tr.Spans {
					table.Append(
						strings.Repeat("  ", depths[s.SpanID])+s.Name,
						s.ServiceName,
						s.Kind.String(),
						"+"+output.Millis(s.StartTime.Sub(tr.StartTime)),
						output.Millis(s.Duration),
						s.Status.String(),
					)
				}
				return a.out.Print(table)
			})
		},
	}
}

// spanDepths returns each span's distance from its trace root. Spans whose
// parent is missing from the trace sit at depth 0.
func spanDepths(spans []observe.Span) map[string]int {
	parent := make(map[string]string, len(spans))
	for _, s := range spans {
		parent[s.SpanID] = s.ParentSpanID
	}

	depths := make(map[string]int, len(spans))
	for _, s := range spans {
		depth := 0
		seen := map[string]bool{s.SpanID: true}
		for id := parent[s.SpanID]; id != ""; id = parent[id] {
			if _, ok := parent[id]; !ok || seen[id] {
				break
			}
			seen[id] = true
			depth++
		}
		depths[s.SpanID] = depth
	}
	return depths
}
