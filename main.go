// shopstate/main.go

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/norun9/shopstate/identity"
	"github.com/norun9/shopstate/kvstore"
	"github.com/norun9/shopstate/services"
	"github.com/norun9/shopstate/storefront"
)

const (
	serviceName    = "shopstate"
	serviceVersion = "v1.0.0"
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Level = logrus.DebugLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func main() {
	ctx := context.Background()
	cfg := loadConfig()
	log.SetLevel(cfg.LogLevel)

	// prices are JSON numbers on the wire
	decimal.MarshalJSONWithoutQuotes = true

	// ----------------------------------------------------------------
	// 1) OpenTelemetry TracerProvider / MeterProvider
	if cfg.OTelEnabled {
		tp, err := initTracerProvider(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to initialize tracer provider: %v", err)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("error shutting down tracer provider")
			}
		}()

		mp, err := initMeterProvider(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to initialize meter provider: %v", err)
		}
		defer func() {
			if err := mp.Shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("error shutting down meter provider")
			}
		}()
		log.Info("OpenTelemetry providers initialized")
	} else {
		log.Info("OpenTelemetry disabled")
	}
	// ----------------------------------------------------------------

	// ----------------------------------------------------------------
	// 2) IKVStore (REDIS_ADDR selects the Redis backend)
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize store: %v", err)
	}
	defer closeStore()
	// ----------------------------------------------------------------

	// ----------------------------------------------------------------
	// 3) gRPC health server
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.HealthPort))
	if err != nil {
		log.Fatalf("failed to listen on :%s: %v", cfg.HealthPort, err)
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthpb.RegisterHealthServer(grpcServer, services.NewHealthCheckService(store, log))
	reflection.Register(grpcServer)
	go func() {
		log.Infof("health server listening on :%s", cfg.HealthPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("health server stopped")
		}
	}()
	// ----------------------------------------------------------------

	// ----------------------------------------------------------------
	// 4) HTTP API
	registry := storefront.NewRegistry(store, identity.IdentityContext{}, log).
		WithLimits(cfg.MaxSessions, cfg.SessionIdle)
	api := services.NewStorefrontServer(registry, log)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("received shutdown signal, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
		grpcServer.GracefulStop()
	}()

	log.Infof("storefront API listening on :%s", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("failed to serve http: %v", err)
	}
	log.Info("shut down")
	// ----------------------------------------------------------------
}

func newStore(ctx context.Context, cfg config) (kvstore.IKVStore, func(), error) {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, using LocalKVStore")
		local := kvstore.NewLocalKVStore(log)
		return local, func() {}, local.Initialize(ctx)
	}

	log.Infof("using RedisKVStore with address %s", cfg.RedisAddr)
	redisStore := kvstore.NewRedisKVStore(cfg.RedisAddr, log)
	if err := redisStore.Initialize(ctx); err != nil {
		_ = redisStore.Close()
		return nil, nil, err
	}
	return redisStore, func() {
		if err := redisStore.Close(); err != nil {
			log.WithError(err).Warn("error closing redis client")
		}
	}, nil
}

func newResource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// initTracerProvider sets up the global TracerProvider. OTEL_TRACES_EXPORTER=stdout
// prints spans instead of shipping them to the collector at OTEL_EXPORTER_OTLP_ENDPOINT.
func initTracerProvider(ctx context.Context, cfg config) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.TraceExporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := newResource(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)
	otel.SetTracerProvider(tp)

	// W3C Trace Context first, B3 for callers that still send it
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader)),
	))
	return tp, nil
}

// initMeterProvider pushes the service counters to the collector every 10 seconds.
func initMeterProvider(ctx context.Context, cfg config) (*sdkmetric.MeterProvider, error) {
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := newResource(ctx)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}
