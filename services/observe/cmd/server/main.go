package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/instantcocoa/periscope/pkg/cache"
	"github.com/instantcocoa/periscope/pkg/config"
	"github.com/instantcocoa/periscope/pkg/grpcutil"
	"github.com/instantcocoa/periscope/pkg/httputil"
	"github.com/instantcocoa/periscope/pkg/storage"
	"github.com/instantcocoa/periscope/pkg/telemetry"
	"github.com/instantcocoa/periscope/services/observe"
)

const serviceName = "periscope"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:     serviceName,
		ServiceVersion:  cfg.Version,
		Environment:     cfg.Environment,
		OTLPEndpoint:    cfg.OTLPEndpoint,
		TracingEnabled:  cfg.TracingEnabled,
		TracingSampling: cfg.TracingSampling,
		MetricsEnabled:  cfg.OTLPMetricsEnabled,
		LogLevel:        cfg.LogLevel,
		LogFormat:       cfg.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
		}
	}()

	logger := tp.Logger()

	topology, err := topologyConfig(cfg)
	if err != nil {
		return err
	}

	backend, err := observe.OpenBackend(ctx, observe.BackendConfig{
		Kind:     string(cfg.StorageBackend),
		Postgres: cfg.DatabaseConfig(),
		ClickHouse: storage.ClickHouseConfig{
			URL:      cfg.ClickHouseURL,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
			Timeout:  cfg.ClickHouseTimeout,
		},
		Migrate: cfg.DBMigrate,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	var (
		registerer prometheus.Registerer
		gatherer   prometheus.Gatherer
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registerer, gatherer = reg, reg
	}

	svc, err := observe.NewService(backend, observe.Config{
		Topology:     topology,
		QueryTimeout: cfg.QueryTimeout,
		Registerer:   registerer,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	var api observe.API = svc
	var store cache.Store
	if cfg.CacheEnabled || cfg.RateLimit > 0 {
		store, err = openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	if cfg.CacheEnabled {
		api = observe.NewCachedAPI(api, store, cfg.CacheTTL, logger)
	}

	serverCfg := grpcutil.DefaultServerConfig(cfg.GRPCPort, serviceName)
	serverCfg.Registerer = registerer
	grpcServer := grpcutil.NewServer(serverCfg, logger)
	observe.NewHandler(api, logger).Register(grpcServer)

	router := newRouter(cfg, api, store, registerer, gatherer, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.InfoContext(ctx, "starting periscope",
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"storage", cfg.StorageBackend,
		"topology", svc.Strategy(),
		"env", cfg.Environment,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcServer.Run(gctx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func topologyConfig(cfg *config.Base) (observe.TopologyConfig, error) {
	strategy, err := observe.ParseStrategy(cfg.TopologyStrategy)
	if err != nil {
		return observe.TopologyConfig{}, err
	}
	tc := observe.TopologyConfig{Strategy: strategy}
	if cfg.AddressMapFile != "" {
		attrs, mappings, err := observe.LoadAddressMappings(cfg.AddressMapFile)
		if err != nil {
			return observe.TopologyConfig{}, err
		}
		tc.Attributes = attrs
		tc.Mappings = mappings
	}
	return tc, nil
}

func openStore(ctx context.Context, cfg *config.Base, logger *slog.Logger) (cache.Store, error) {
	if !cfg.UseRedis() {
		logger.InfoContext(ctx, "using in-memory cache store")
		return cache.NewMemoryStore(), nil
	}
	store, err := cache.Connect(ctx, cfg.RedisConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return store, nil
}

func newRouter(
	cfg *config.Base,
	api observe.API,
	store cache.Store,
	registerer prometheus.Registerer,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *gin.Engine {
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		httputil.RequestID(),
		httputil.Logger(logger.With("component", "http")),
		httputil.Recovery(logger),
		httputil.CORS(httputil.CORSConfig{AllowedOrigins: cfg.CORSOrigins}),
	)
	if registerer != nil {
		r.Use(httputil.NewMetrics(registerer).Middleware())
	}
	if cfg.RateLimit > 0 {
		limiter := cache.NewRateLimiter(store, "ratelimit", cfg.RateLimit, time.Minute)
		r.Use(httputil.RateLimit(limiter, logger))
	}

	observe.NewHTTPHandler(api).Routes(r, gatherer)
	return r
}
