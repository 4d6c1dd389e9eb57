package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
//
// Never set state values, authorization codes, access tokens or client
// secrets as attribute values. Traces outlive requests and are readable by a
// wider audience than the service itself.
const (
	// Flow attributes
	AttrProvider      = "login.provider"
	AttrPhase         = "login.flow.phase"
	AttrPKCE          = "login.flow.pkce"
	AttrScope         = "login.scope"
	AttrConnectAction = "login.connect_action"
	AttrStatePresent  = "login.state.present"

	// Reconciliation attributes
	AttrDecision  = "login.reconcile.decision"
	AttrReason    = "login.reconcile.reason"
	AttrAccountID = "login.account_id"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Provider attributes
	AttrProviderName      = "provider.name"
	AttrProviderOperation = "provider.operation"
	AttrProviderStatus    = "provider.status"

	// Security attributes
	AttrClientIP       = "security.client_ip"
	AttrAuditEventType = "security.audit.event_type"

	// HTTP attributes
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds authorization flow attributes to a span (nil-safe)
func AddFlowAttributes(span trace.Span, provider, phase string, pkce bool) {
	SetSpanAttributes(span,
		attribute.String(AttrProvider, provider),
		attribute.String(AttrPhase, phase),
		attribute.Bool(AttrPKCE, pkce),
	)
}

// AddDecisionAttributes adds reconciliation outcome attributes (nil-safe).
// Empty values are omitted.
func AddDecisionAttributes(span trace.Span, kind, reason, accountID string) {
	SetSpanAttributes(span, attribute.String(AttrDecision, kind))
	if reason != "" {
		SetSpanAttributes(span, attribute.String(AttrReason, reason))
	}
	if accountID != "" {
		SetSpanAttributes(span, attribute.String(AttrAccountID, accountID))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddProviderAttributes adds provider attributes to a span (nil-safe)
func AddProviderAttributes(span trace.Span, providerName, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrProviderName, providerName),
		attribute.String(AttrProviderOperation, operation),
	)
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes adds the client IP to a span (nil-safe). Check
// Instrumentation.ShouldLogClientIPs before calling.
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
