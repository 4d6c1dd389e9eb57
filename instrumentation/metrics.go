package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments of the login core
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Authorization flow
	FlowStarted   metric.Int64Counter
	FlowCompleted metric.Int64Counter

	// Reconciliation
	ReconcileDecisions metric.Int64Counter

	// Security
	StateMismatchDetected    metric.Int64Counter
	ConnectSessionViolations metric.Int64Counter

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageSessionEntries    metric.Int64ObservableGauge

	// Provider
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram
	ProviderAPIErrors     metric.Int64Counter

	// Audit
	AuditEventsTotal metric.Int64Counter

	// Encryption
	EncryptionOperationsTotal metric.Int64Counter
	EncryptionDuration        metric.Float64Histogram
}

type counterSpec struct {
	target *metric.Int64Counter
	meter  metric.Meter
	name   string
	desc   string
	unit   string
}

type histogramSpec struct {
	target *metric.Float64Histogram
	meter  metric.Meter
	name   string
	desc   string
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	flowMeter := inst.Meter("flow")
	reconcileMeter := inst.Meter("reconcile")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")
	providerMeter := inst.Meter("provider")

	counters := []counterSpec{
		{&m.HTTPRequestsTotal, httpMeter, "login.http.requests.total", "Total number of HTTP requests", "{request}"},
		{&m.FlowStarted, flowMeter, "login.flow.started", "Number of authorization flows started", "{flow}"},
		{&m.FlowCompleted, flowMeter, "login.flow.completed", "Number of authorization flows that reached a terminal phase", "{flow}"},
		{&m.ReconcileDecisions, reconcileMeter, "login.reconcile.decisions", "Number of reconciliation decisions by kind and reason", "{decision}"},
		{&m.StateMismatchDetected, securityMeter, "login.state.mismatch_detected", "Number of callbacks with a missing, replayed or mismatched state", "{attempt}"},
		{&m.ConnectSessionViolations, securityMeter, "login.connect_session.violations", "Number of connect sessions rejected for hijack or timeout", "{violation}"},
		{&m.StorageOperationTotal, storageMeter, "storage.operation.total", "Total number of storage operations", "{operation}"},
		{&m.ProviderAPICallsTotal, providerMeter, "provider.api.calls.total", "Total number of provider API calls", "{call}"},
		{&m.ProviderAPIErrors, providerMeter, "provider.api.errors.total", "Total number of provider API errors", "{error}"},
		{&m.AuditEventsTotal, securityMeter, "login.audit.events.total", "Total number of audit events", "{event}"},
		{&m.EncryptionOperationsTotal, securityMeter, "login.encryption.operations.total", "Total number of encryption/decryption operations", "{operation}"},
	}
	for _, c := range counters {
		counter, err := c.meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.target = counter
	}

	histograms := []histogramSpec{
		{&m.HTTPRequestDuration, httpMeter, "login.http.request.duration", "HTTP request duration in milliseconds"},
		{&m.StorageOperationDuration, storageMeter, "storage.operation.duration", "Storage operation duration in milliseconds"},
		{&m.ProviderAPIDuration, providerMeter, "provider.api.duration", "Provider API call duration in milliseconds"},
		{&m.EncryptionDuration, securityMeter, "login.encryption.duration", "Encryption/decryption operation duration in milliseconds"},
	}
	for _, h := range histograms {
		hist, err := h.meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
		*h.target = hist
	}

	var err error
	m.StorageSessionEntries, err = storageMeter.Int64ObservableGauge(
		"storage.session.entries",
		metric.WithDescription("Number of live session entries"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.session.entries gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordFlowStarted records a redirect issued to a provider
func (m *Metrics) RecordFlowStarted(ctx context.Context, provider string, pkce bool) {
	m.FlowStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("pkce", pkce),
	))
}

// RecordFlowCompleted records the terminal phase a callback reached
func (m *Metrics) RecordFlowCompleted(ctx context.Context, provider, phase string, success bool) {
	m.FlowCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("phase", phase),
		attribute.Bool("success", success),
	))
}

// RecordReconcileDecision records a reconciliation outcome
func (m *Metrics) RecordReconcileDecision(ctx context.Context, provider, kind, reason string) {
	m.ReconcileDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
}

// RecordStateMismatch records a rejected callback state
func (m *Metrics) RecordStateMismatch(ctx context.Context, provider string) {
	m.StateMismatchDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordConnectSessionViolation records a hijacked or expired connect session
func (m *Metrics) RecordConnectSessionViolation(ctx context.Context, reason string) {
	m.ConnectSessionViolations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordProviderAPICall records a provider API call
func (m *Metrics) RecordProviderAPICall(ctx context.Context, provider, operation string, statusCode int, durationMs float64, err error) {
	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.Int("status", statusCode),
	))
	m.ProviderAPIDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))

	if err != nil {
		errorType := "unknown"
		if statusCode >= 400 && statusCode < 500 {
			errorType = "client_error"
		} else if statusCode >= 500 {
			errorType = "server_error"
		}

		m.ProviderAPIErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("operation", operation),
			attribute.String("error_type", errorType),
		))
	}
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordEncryptionOperation records an encryption/decryption operation
func (m *Metrics) RecordEncryptionOperation(ctx context.Context, operation string, durationMs float64) {
	m.EncryptionOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
	m.EncryptionDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
