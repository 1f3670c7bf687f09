package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Telemetry owns the zap access logger, the tracer provider and the metrics endpoint.
type Telemetry struct {
	Logger *zap.Logger

	addr     string
	registry *prometheus.Registry
	tp       *trace.TracerProvider

	runMutex sync.Mutex
	server   *http.Server
}

func New(addr string) (*Telemetry, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(metricCollectors()...)
	registry.MustRegister(collectors.NewGoCollector())

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	return &Telemetry{
		Logger:   logger,
		addr:     addr,
		registry: registry,
		tp:       tp,
	}, nil
}

func (t *Telemetry) Start(ctx context.Context) error {
	t.runMutex.Lock()
	defer t.runMutex.Unlock()
	if t.server != nil || t.addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	server := t.server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("context", "observability").WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

func (t *Telemetry) Stop(ctx context.Context) error {
	t.runMutex.Lock()
	server := t.server
	t.server = nil
	t.runMutex.Unlock()

	var stopErr error
	if server != nil {
		stopErr = errors.Join(stopErr, server.Shutdown(ctx))
	}
	stopErr = errors.Join(stopErr, t.tp.Shutdown(ctx))
	_ = t.Logger.Sync()
	return stopErr
}
