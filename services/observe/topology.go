package observe

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/instantcocoa/periscope/pkg/query"
)

// Assemble builds the dependency graph. Every known service that is not an
// edge endpoint is isolated; services that are neither are left out.
func Assemble(edges Edges, known []string) TopologyGraph {
	connected := make(map[string]bool, 2*len(edges))
	for key := range edges {
		connected[key.Source] = true
		connected[key.Target] = true
	}

	isolated := make([]string, 0, len(known))
	seen := make(map[string]bool, len(known))
	for _, name := range known {
		if name == "" || connected[name] || seen[name] {
			continue
		}
		seen[name] = true
		isolated = append(isolated, name)
	}
	sort.Strings(isolated)

	return TopologyGraph{
		Edges:            edges.Sorted(),
		IsolatedServices: isolated,
	}
}

// GetServiceMap derives the service dependency graph over the window,
// defaulting to the last DefaultServiceMapWindow.
func (s *Service) GetServiceMap(ctx context.Context, q ServiceMapQuery) (graph *TopologyGraph, err error) {
	ctx, op := s.begin(ctx, "GetServiceMap",
		attribute.String("topology.strategy", string(s.resolver.Strategy())),
	)
	defer func() { op.end(ctx, err) }()

	window, err := q.TimeRange.Window(s.now(), DefaultServiceMapWindow)
	if err != nil {
		return nil, err
	}

	var (
		observations []Observation
		known        []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		observations, err = s.resolver.Resolve(gctx, window)
		return err
	})
	g.Go(func() error {
		var err error
		known, err = s.knownServices(gctx, window)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	edges := Aggregate(observations)
	result := Assemble(edges, known)

	s.logger.DebugContext(ctx, "service map derived",
		"strategy", s.resolver.Strategy(),
		"observations", len(observations),
		"edges", len(result.Edges),
		"isolated", len(result.IsolatedServices),
	)
	return &result, nil
}

// knownServices returns the distinct service names seen in spans, logs or
// metrics within the window.
func (s *Service) knownServices(ctx context.Context, window query.Window) ([]string, error) {
	schemas := []*query.Schema{SpanSchema, LogSchema, MetricSchema}
	found := make([][]query.Row, len(schemas))

	g, gctx := errgroup.WithContext(ctx)
	for i, schema := range schemas {
		g.Go(func() error {
			rows, err := s.backend.Execute(gctx, query.Query{
				Schema:   schema,
				Columns:  []string{colServiceName},
				Where:    window.Expr(schema.TimeColumn),
				Distinct: true,
			})
			if err != nil {
				return fmt.Errorf("failed to list services in %s: %w", schema.Table, err)
			}
			found[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, rows := range found {
		for _, row := range rows {
			name := row.String(colServiceName)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
