package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/periscope/cli/internal/output"
	"github.com/instantcocoa/periscope/services/observe"
)

func newLogsCmd(a *app) *cobra.Command {
	var (
		q      observe.LogQuery
		window windowFlags
		page   pageFlags
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List log records",
		Long: `List log records matching the given filters, newest first.

Severity accepts DEBUG, INFO, WARN or ERROR. --min-severity includes the
given level and everything above it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := window.timeRange()
			if err != nil {
				return err
			}
			q.TimeRange = tr
			q.Page = page.request()

			return a.call(cmd, func(ctx context.Context, api observe.API) error {
				res, err := api.ListLogs(ctx, q)
				if err != nil {
					return err
				}
				if a.out.Structured() {
					return a.out.Print(res)
				}

				table := output.Table{Headers: []string{"TIME", "SEVERITY", "SERVICE", "TRACE ID", "BODY"}}
				for _, r := range res.Records {
					table.Append(
						output.Timestamp(r.Timestamp),
						r.Severity.String(),
						r.ServiceName,
						dash(r.TraceID),
						output.Truncate(r.Body, 100),
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
	f.StringVar(&q.Severity, "severity", "", "Filter by exact severity")
	f.StringVar(&q.MinSeverity, "min-severity", "", "Filter by minimum severity")
	f.StringVar(&q.TraceID, "trace-id", "", "Filter by trace ID")
	f.StringVar(&q.Search, "search", "", "Case-insensitive text search over body and attributes")
	window.register(cmd, "all time")
	page.register(cmd)
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
