package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-login/instrumentation"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger          *slog.Logger
	enabled         bool
	instrumentation *instrumentation.Instrumentation
	now             func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// SetInstrumentation makes every logged event increment the audit counter.
func (a *Auditor) SetInstrumentation(inst *instrumentation.Instrumentation) {
	a.instrumentation = inst
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	Provider  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with the user id hashed.
func (a *Auditor) LogEvent(ctx context.Context, event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.now()

	a.logger.InfoContext(ctx, "security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"provider", event.Provider,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if a.instrumentation != nil {
		a.instrumentation.Metrics().RecordAuditEvent(ctx, event.Type)
	}
}

// LogFlowStarted logs a redirect to a provider
func (a *Auditor) LogFlowStarted(ctx context.Context, provider, ipAddress string, pkce bool) {
	a.LogEvent(ctx, Event{
		Type:      EventAuthorizationFlowStarted,
		Provider:  provider,
		IPAddress: ipAddress,
		Details:   map[string]any{"pkce": pkce},
	})
}

// LogLoginSucceeded logs a successful sign-in through a provider
func (a *Auditor) LogLoginSucceeded(ctx context.Context, accountID, provider, ipAddress string) {
	a.LogEvent(ctx, Event{
		Type:      EventLoginSucceeded,
		UserID:    accountID,
		Provider:  provider,
		IPAddress: ipAddress,
	})
}

// LogLoginDenied logs a rejected reconciliation with its reason code
func (a *Auditor) LogLoginDenied(ctx context.Context, accountID, provider, ipAddress, reason string) {
	a.LogEvent(ctx, Event{
		Type:      EventLoginDenied,
		UserID:    accountID,
		Provider:  provider,
		IPAddress: ipAddress,
		Details:   map[string]any{"reason": reason},
	})
}

// LogLinkageChanged logs account_connected or account_disconnected
func (a *Auditor) LogLinkageChanged(ctx context.Context, eventType, accountID, provider, ipAddress string) {
	a.LogEvent(ctx, Event{
		Type:      eventType,
		UserID:    accountID,
		Provider:  provider,
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
