package observe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/instantcocoa/periscope/pkg/query"
	"github.com/instantcocoa/periscope/pkg/storage"
)

// Strategy selects how the target of an outbound call is resolved.
type Strategy string

const (
	// StrategyDirect pairs each client span with the child span it caused.
	StrategyDirect Strategy = "direct"
	// StrategyAttribute maps the address a client span called to a service
	// through configured substring rules.
	StrategyAttribute Strategy = "attribute"
)

// ParseStrategy parses a strategy name. Empty selects StrategyDirect.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyDirect:
		return StrategyDirect, nil
	case StrategyAttribute:
		return StrategyAttribute, nil
	default:
		return "", invalidf("unknown topology strategy %q", s)
	}
}

// DefaultAddressAttributes are the span attributes searched, in order, for
// the address a client span called.
var DefaultAddressAttributes = []string{"http.url", "url.full", "server.address", "net.peer.name"}

// AddressMapping maps every address containing Match to Service.
type AddressMapping struct {
	Match   string `yaml:"match" json:"match"`
	Service string `yaml:"service" json:"service"`
}

// TopologyConfig configures edge inference.
type TopologyConfig struct {
	Strategy Strategy
	// Attributes overrides DefaultAddressAttributes for StrategyAttribute.
	Attributes []string
	// Mappings are tried in order; the first match wins.
	Mappings []AddressMapping
}

type addressMapFile struct {
	Attributes []string         `yaml:"attributes"`
	Mappings   []AddressMapping `yaml:"mappings"`
}

// LoadAddressMappings reads an address map file:
//
//	attributes: [http.url, server.address]
//	mappings:
//	  - match: payments.internal
//	    service: payments
func LoadAddressMappings(path string) ([]string, []AddressMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read address map: %w", err)
	}
	var f addressMapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse address map %s: %w", path, err)
	}
	for i, m := range f.Mappings {
		if m.Match == "" || m.Service == "" {
			return nil, nil, fmt.Errorf("address map %s: mapping %d needs both match and service", path, i)
		}
	}
	return f.Attributes, f.Mappings, nil
}

// Observation is one inferred call from Source to Target.
type Observation struct {
	Source  string
	Target  string
	Latency time.Duration
	IsError bool
}

// Resolver derives call observations for a time window. One resolver
// applies exactly one strategy.
type Resolver interface {
	Resolve(ctx context.Context, window query.Window) ([]Observation, error)
	Strategy() Strategy
}

var (
	_ Resolver = (*DirectCorrelation)(nil)
	_ Resolver = (*AttributeHeuristic)(nil)
)

// NewResolver builds the resolver cfg selects.
func NewResolver(engine storage.Engine, cfg TopologyConfig) (Resolver, error) {
	strategy, err := ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, err
	}
	switch strategy {
	case StrategyAttribute:
		return NewAttributeHeuristic(engine, cfg.Attributes, cfg.Mappings)
	default:
		return NewDirectCorrelation(engine), nil
	}
}

// callerColumns are read from every client span.
var callerColumns = []string{colTraceID, colSpanID, colServiceName, colDuration, colStatusCode, colSpanAttributes}

func clientSpans(window query.Window) query.Expr {
	return query.And(
		query.Eq(query.Col(colSpanKind), query.String(SpanKindClient.String())),
		window.Expr(colTimestamp),
	)
}

func observationFrom(row query.Row, target string) Observation {
	return Observation{
		Source:  row.String(colServiceName),
		Target:  target,
		Latency: time.Duration(row.Int64(colDuration)),
		IsError: deriveStatus(row.String(colStatusCode), row.Map(colSpanAttributes)) == SpanStatusError,
	}
}

// DirectCorrelation pairs each client span with a span in the same trace
// whose parent is that client span. When a caller has several children the
// earliest one in another service is the callee. Callers without such a
// child in the window are dropped.
type DirectCorrelation struct {
	engine storage.Engine
}

// NewDirectCorrelation creates a span correlation resolver.
func NewDirectCorrelation(engine storage.Engine) *DirectCorrelation {
	return &DirectCorrelation{engine: engine}
}

// Strategy returns StrategyDirect.
func (d *DirectCorrelation) Strategy() Strategy { return StrategyDirect }

type spanRef struct {
	traceID string
	spanID  string
}

type callee struct {
	service string
	start   time.Time
}

// Resolve implements Resolver.
func (d *DirectCorrelation) Resolve(ctx context.Context, window query.Window) ([]Observation, error) {
	var callers, children []query.Row

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		callers, err = d.engine.Execute(gctx, query.Query{
			Schema:  SpanSchema,
			Columns: callerColumns,
			Where:   clientSpans(window),
		})
		if err != nil {
			return fmt.Errorf("failed to load client spans: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		children, err = d.engine.Execute(gctx, query.Query{
			Schema:  SpanSchema,
			Columns: []string{colTraceID, colParentSpanID, colServiceName, colTimestamp},
			Where: query.And(
				query.Ne(query.Col(colParentSpanID), query.String("")),
				window.Expr(colTimestamp),
			),
		})
		if err != nil {
			return fmt.Errorf("failed to load child spans: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	callees := make(map[spanRef][]callee, len(children))
	for _, row := range children {
		ref := spanRef{traceID: row.String(colTraceID), spanID: row.String(colParentSpanID)}
		callees[ref] = append(callees[ref], callee{service: row.String(colServiceName), start: row.Time(colTimestamp)})
	}

	observations := make([]Observation, 0, len(callers))
	for _, row := range callers {
		source := row.String(colServiceName)
		target, ok := earliestCallee(callees[spanRef{traceID: row.String(colTraceID), spanID: row.String(colSpanID)}], source)
		if !ok {
			continue
		}
		obs := observationFrom(row, target)
		if obs.Source == "" || obs.Target == "" {
			continue
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

// earliestCallee returns the service of the earliest child outside the
// caller's own service.
func earliestCallee(children []callee, caller string) (string, bool) {
	var best *callee
	for i := range children {
		c := &children[i]
		if c.service == "" || c.service == caller {
			continue
		}
		if best == nil || c.start.Before(best.start) {
			best = c
		}
	}
	if best == nil {
		return "", false
	}
	return best.service, true
}

// AttributeHeuristic maps the address recorded on each client span to a
// service name. Spans whose address matches no mapping are dropped, as are
// calls a service makes to itself.
type AttributeHeuristic struct {
	engine     storage.Engine
	attributes []string
	mappings   []AddressMapping
}

// NewAttributeHeuristic creates an address mapping resolver. Empty
// attributes selects DefaultAddressAttributes.
func NewAttributeHeuristic(engine storage.Engine, attributes []string, mappings []AddressMapping) (*AttributeHeuristic, error) {
	if len(mappings) == 0 {
		return nil, invalidf("attribute strategy needs at least one address mapping")
	}
	for i, m := range mappings {
		if m.Match == "" || m.Service == "" {
			return nil, invalidf("address mapping %d needs both match and service", i)
		}
	}
	if len(attributes) == 0 {
		attributes = DefaultAddressAttributes
	}
	return &AttributeHeuristic{
		engine:     engine,
		attributes: append([]string(nil), attributes...),
		mappings:   append([]AddressMapping(nil), mappings...),
	}, nil
}

// Strategy returns StrategyAttribute.
func (a *AttributeHeuristic) Strategy() Strategy { return StrategyAttribute }

// Resolve implements Resolver.
func (a *AttributeHeuristic) Resolve(ctx context.Context, window query.Window) ([]Observation, error) {
	rows, err := a.engine.Execute(ctx, query.Query{
		Schema:  SpanSchema,
		Columns: callerColumns,
		Where:   clientSpans(window),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load client spans: %w", err)
	}

	observations := make([]Observation, 0, len(rows))
	for _, row := range rows {
		target, ok := a.target(row.Map(colSpanAttributes))
		if !ok {
			continue
		}
		obs := observationFrom(row, target)
		if obs.Source == "" || obs.Source == obs.Target {
			continue
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

// target returns the service of the first address attribute present on the
// span, using the first mapping that matches it.
func (a *AttributeHeuristic) target(attrs map[string]string) (string, bool) {
	for _, key := range a.attributes {
		address, ok := attrs[key]
		if !ok || address == "" {
			continue
		}
		for _, m := range a.mappings {
			if strings.Contains(address, m.Match) {
				return m.Service, true
			}
		}
		return "", false
	}
	return "", false
}
