package observe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/instantcocoa/periscope/pkg/storage"
)

const instrumentationName = "github.com/instantcocoa/periscope/services/observe"

// DefaultQueryTimeout bounds every storage call of one request.
const DefaultQueryTimeout = 15 * time.Second

// Config configures the service.
type Config struct {
	// Topology selects how service edges are inferred.
	Topology TopologyConfig
	// QueryTimeout bounds the storage work of one request.
	QueryTimeout time.Duration
	// Registerer receives the service's Prometheus collectors. Nil skips
	// registration.
	Registerer prometheus.Registerer
	// Now is the clock used for relative time ranges.
	Now func() time.Time
}

// Service answers record listings and topology questions. It holds no
// mutable state between requests.
type Service struct {
	backend      storage.Backend
	resolver     Resolver
	logs         *Pager[LogRecord]
	spans        *Pager[Span]
	queryTimeout time.Duration
	now          func() time.Time
	metrics      *serviceMetrics
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewService creates a service over backend.
func NewService(backend storage.Backend, cfg Config, logger *slog.Logger) (*Service, error) {
	resolver, err := NewResolver(backend, cfg.Topology)
	if err != nil {
		return nil, fmt.Errorf("failed to create topology resolver: %w", err)
	}

	metrics, err := newServiceMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		backend:      backend,
		resolver:     resolver,
		logs:         NewPager(backend, LogSchema, logFromRow),
		spans:        NewPager(backend, SpanSchema, spanFromRow),
		queryTimeout: timeout,
		now:          now,
		metrics:      metrics,
		logger:       logger.With("component", "observe"),
		tracer:       otel.Tracer(instrumentationName),
	}, nil
}

// Strategy returns the configured topology strategy.
func (s *Service) Strategy() Strategy {
	return s.resolver.Strategy()
}

// Ping checks that the backend answers.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.backend.Ping(ctx)
}

// operation is the per-request bookkeeping shared by every entry point: a
// tracing span, a deadline for storage work, and an outcome metric.
type operation struct {
	s      *Service
	name   string
	span   trace.Span
	start  time.Time
	cancel context.CancelFunc
}

func (s *Service) begin(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *operation) {
	ctx, span := s.tracer.Start(ctx, "observe."+name, trace.WithAttributes(attrs...))
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	return ctx, &operation{s: s, name: name, span: span, start: time.Now(), cancel: cancel}
}

func (op *operation) end(ctx context.Context, err error) {
	defer op.span.End()
	defer op.cancel()

	kind := "ok"
	if err != nil {
		k := KindOf(err)
		kind = k.String()
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, kind)

		attrs := []any{"operation", op.name, "kind", kind, "error", err}
		switch k {
		case KindInvalidInput, KindCancelled:
			op.s.logger.DebugContext(ctx, "request rejected", attrs...)
		default:
			op.s.logger.ErrorContext(ctx, "request failed", attrs...)
		}
	}
	op.s.metrics.observe(op.name, kind, time.Since(op.start))
}
