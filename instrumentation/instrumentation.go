package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty
	DefaultServiceName = "oauth-login"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	scopePrefix = "github.com/giantswarm/oauth-login/"
)

// Config holds instrumentation configuration.
//
// The zero value is usable: it yields a disabled instrumentation with the
// default service name, where every tracer and meter is a no-op.
type Config struct {
	// ServiceName is the name of the service (default: "oauth-login")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled controls whether spans are recorded by an SDK tracer provider.
	// When false, no-op providers are used.
	Enabled bool

	// LogClientIPs controls whether client IP addresses are attached to spans.
	// Client IPs may count as personal data, so operators can switch this off.
	LogClientIPs bool

	// Resource allows custom resource attributes
	// If nil, default resource is created with service name and version
	Resource *resource.Resource

	// SpanProcessors are registered on the SDK tracer provider when Enabled.
	// Without processors spans are sampled but not exported.
	SpanProcessors []sdktrace.SpanProcessor
}

// Instrumentation provides OpenTelemetry instrumentation components.
//
// One instance is created per process and handed to every component that
// records telemetry (flow controller, reconciler, stores, provider adapters,
// auditor, HTTP handler). Each component asks for its own scope through
// Tracer and Meter. All methods are safe for concurrent use.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	// registered during New() only
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance.
//
// When config.Enabled is false, no-op tracer and meter providers are used
// and recording costs next to nothing. When it is true, spans go through an
// SDK tracer provider built with the configured resource and span
// processors; Shutdown must then be called to flush them. Metrics always use
// a no-op meter provider here, so a host that wants metrics exported reads
// them through MeterProvider after installing its own SDK.
//
// The returned error is non-nil only when the default resource cannot be
// built or the metric instruments cannot be created.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	var res *resource.Resource
	var err error
	if config.Resource != nil {
		res = config.Resource
	} else {
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:        config,
		resource:      res,
		meterProvider: noop.NewMeterProvider(),
	}

	if config.Enabled {
		opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
		for _, sp := range config.SpanProcessors {
			opts = append(opts, sdktrace.WithSpanProcessor(sp))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		inst.tracerProvider = tp
		inst.shutdownFuncs = append(inst.shutdownFuncs, tp.Shutdown)
	} else {
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// Shutdown flushes and stops the tracer provider.
//
// It should be called once the process stops serving requests, with a
// context that bounds how long pending spans may take to export. Only the
// first call does any work; later calls return nil. When several shutdown
// steps fail, the first error is returned and the remaining steps still run.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope.
//
// Scopes are the layer names "http", "flow", "reconcile", "storage",
// "provider" and "security". The meter name is the module path followed by
// the scope, e.g. "github.com/giantswarm/oauth-login/storage".
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope.
//
// Scopes and naming follow Meter. Components keep the returned tracer and
// open one span per operation.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metrics holder for recording metric values.
// It is never nil for an instance returned by New.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider returns the underlying tracer provider, an SDK provider
// when enabled and a no-op one otherwise.
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider.
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// Resource returns the resource describing this service. It carries the
// service name and version unless Config.Resource replaced it.
func (i *Instrumentation) Resource() *resource.Resource {
	return i.resource
}

// ShouldLogClientIPs returns whether client IP addresses should be attached
// to spans. Client addresses can be personal data, so HTTP handlers check
// this before calling AddSecurityAttributes.
func (i *Instrumentation) ShouldLogClientIPs() bool {
	return i.config.LogClientIPs
}

// SizeCallback reports the current number of entries in a store.
// It is called from the metrics collection goroutine and must not block.
type SizeCallback func() int64

// RegisterSessionSizeCallback reports the number of live session entries
// through the storage.session.entries gauge.
//
// Memory-backed stores call this from SetInstrumentation:
//
//	func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
//		s.instrumentation = inst
//		if err := inst.RegisterSessionSizeCallback(func() int64 {
//			return s.sessionEntries.Load()
//		}); err != nil {
//			s.logger.Warn("Failed to register session size callback", "error", err)
//		}
//	}
//
// A nil callback registers nothing. Stores backed by a shared server such as
// Valkey do not register one, since counting keys there is not cheap.
func (i *Instrumentation) RegisterSessionSizeCallback(entries SizeCallback) error {
	if entries == nil {
		return nil
	}
	_, err := i.Meter("storage").RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(i.metrics.StorageSessionEntries, entries())
			return nil
		},
		i.metrics.StorageSessionEntries,
	)
	return err
}
