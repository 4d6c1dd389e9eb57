// Package instrumentation provides OpenTelemetry metrics and tracing for the
// login core.
//
// Disabled instrumentation uses no-op providers. Enabled instrumentation
// records spans through an SDK tracer provider; pass SpanProcessors to export
// them. Metrics are recorded against the no-op meter provider until a
// metrics SDK is wired in by the host.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "oauth-login",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// # Metrics
//
//   - login.http.requests.total{method, endpoint, status}
//   - login.http.request.duration{endpoint}
//   - login.flow.started{provider, pkce}
//   - login.flow.completed{provider, phase, success}
//   - login.reconcile.decisions{provider, kind, reason}
//   - login.state.mismatch_detected{provider}
//   - login.connect_session.violations{reason}
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.session.entries
//   - provider.api.calls.total{provider, operation, status}
//   - provider.api.duration{provider, operation}
//   - provider.api.errors.total{provider, operation, error_type}
//   - login.audit.events.total{event_type}
//   - login.encryption.operations.total{operation}
//   - login.encryption.duration{operation}
//
// # Traces
//
// Spans are opened around HTTP endpoints ("http.callback", "http.register",
// "http.account"), flow steps ("flow.begin", "flow.complete"), provider
// calls ("provider.token_exchange", "provider.resource_owner"),
// reconciliation ("reconcile.precheck", "reconcile.identity") and storage
// operations ("storage.<operation>"). State values,
// codes and tokens are never attached as attributes.
package instrumentation
