// Package flow drives the OAuth2 authorization-code flow against one
// provider adapter: Begin stores a single-use state and returns the
// redirect, Complete validates the callback, exchanges the code and fetches
// the canonical identity.
package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/instrumentation"
	"github.com/giantswarm/oauth-login/internal/util"
	"github.com/giantswarm/oauth-login/providers"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/session"
)

// DefaultStateTTL is how long a user may stay at the provider.
const DefaultStateTTL = 10 * time.Minute

// Phase is a step of the authorization-code flow.
type Phase string

// Flow phases
const (
	PhaseStart            Phase = "start"
	PhaseRedirected       Phase = "redirected"
	PhaseCallbackReceived Phase = "callback_received"
	PhaseTokenExchanged   Phase = "token_exchanged"
	PhaseIdentityFetched  Phase = "identity_fetched"
	PhaseFailed           Phase = "failed"
)

// Resolver looks up adapters by provider name.
type Resolver interface {
	Resolve(name string) (providers.Adapter, bool)
}

// Config configures a Controller.
type Config struct {
	// Providers resolves provider names (required)
	Providers Resolver

	// Sessions stores the authorization state (required)
	Sessions *session.Store

	// StateTTL bounds the time between Begin and Complete (default: 10m)
	StateTTL time.Duration

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger

	// Now is the clock (default: time.Now)
	Now func() time.Time
}

// Controller runs authorization-code flows. It keeps no per-flow state of
// its own; everything lives in the session store.
type Controller struct {
	providers Resolver
	sessions  *session.Store
	stateTTL  time.Duration
	auditor   *security.Auditor
	inst      *instrumentation.Instrumentation
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Providers == nil {
		return nil, fmt.Errorf("provider resolver is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	c := &Controller{
		providers: cfg.Providers,
		sessions:  cfg.Sessions,
		stateTTL:  cfg.StateTTL,
		auditor:   cfg.Auditor,
		inst:      cfg.Instrumentation,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if c.stateTTL <= 0 {
		c.stateTTL = DefaultStateTTL
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.inst != nil {
		c.tracer = c.inst.Tracer("flow")
	}
	return c, nil
}

// BeginRequest starts a flow.
type BeginRequest struct {
	SessionID string
	Provider  string
	ReturnURL string
	Scope     string
	Action    login.ConnectAction
	ClientIP  string
}

// RedirectInstruction tells the caller where to send the browser.
type RedirectInstruction struct {
	URL      string
	Provider string
}

// Begin resolves the provider, stores a fresh AuthorizationState in the
// session and returns the authorization URL. The state is persisted before
// the redirect is returned.
func (c *Controller) Begin(ctx context.Context, req BeginRequest) (*RedirectInstruction, error) {
	ctx, span := c.startSpan(ctx, "flow.begin")
	defer span.End()

	adapter, ok := c.providers.Resolve(req.Provider)
	if !ok {
		err := login.UnknownProvider(req.Provider)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	authReq := providers.BuildAuthorizationRequest(adapter)
	now := c.now()
	state := &session.AuthorizationState{
		State:         authReq.State,
		PKCEVerifier:  authReq.PKCEVerifier,
		Provider:      adapter.Name(),
		ReturnURL:     req.ReturnURL,
		Scope:         req.Scope,
		ConnectAction: req.Action,
		CreatedAt:     now,
		ExpiresAt:     now.Add(c.stateTTL),
	}
	if err := c.sessions.SaveAuthorizationState(ctx, req.SessionID, state); err != nil {
		instrumentation.RecordError(span, err)
		return nil, login.NewError(login.ReasonServerError, "Could not start the sign-in", http.StatusInternalServerError, err)
	}

	pkce := authReq.PKCEVerifier != ""
	instrumentation.AddFlowAttributes(span, adapter.Name(), string(PhaseRedirected), pkce)
	instrumentation.SetSpanSuccess(span)
	if c.inst != nil {
		c.inst.Metrics().RecordFlowStarted(ctx, adapter.Name(), pkce)
	}
	c.auditor.LogFlowStarted(ctx, adapter.Name(), req.ClientIP, pkce)
	c.logger.DebugContext(ctx, "Redirecting to authorization provider",
		"provider", adapter.Name(),
		"state_prefix", util.SafeTruncate(authReq.State, 8),
		"pkce", pkce)

	return &RedirectInstruction{URL: authReq.URL, Provider: adapter.Name()}, nil
}

// CallbackRequest carries the provider's redirect back to us.
type CallbackRequest struct {
	SessionID string
	Code      string
	State     string

	// ProviderError is the error parameter of the callback, e.g. access_denied
	ProviderError string

	ClientIP string
}

// Result is the outcome of Complete. On failure Phase is PhaseFailed and
// State is set when the stored state could be validated.
type Result struct {
	Phase    Phase
	State    *session.AuthorizationState
	Adapter  providers.Adapter
	Token    *oauth2.Token
	Identity *providers.Identity
}

// Complete takes the stored state from the session, compares it with the
// callback state in constant time, exchanges the code and fetches the
// identity. The stored state is removed whatever the outcome, so a replayed
// callback fails with a state mismatch.
func (c *Controller) Complete(ctx context.Context, req CallbackRequest) (*Result, error) {
	ctx, span := c.startSpan(ctx, "flow.complete")
	defer span.End()

	res := &Result{Phase: PhaseCallbackReceived}

	stored, err := c.sessions.TakeAuthorizationState(ctx, req.SessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		c.logger.WarnContext(ctx, "Failed to read authorization state", "error", err)
	}
	if err := c.checkState(stored, req.State); err != nil {
		provider := ""
		if stored != nil {
			provider = stored.Provider
		}
		c.auditor.LogEvent(ctx, security.Event{
			Type:      security.EventProviderStateMismatch,
			Provider:  provider,
			IPAddress: req.ClientIP,
			Details:   map[string]any{"reason": err.Error()},
		})
		if c.inst != nil {
			c.inst.Metrics().RecordStateMismatch(ctx, provider)
		}
		return c.fail(ctx, span, res, provider, login.StateMismatch(err))
	}
	res.State = stored

	adapter, ok := c.providers.Resolve(stored.Provider)
	if !ok {
		return c.fail(ctx, span, res, stored.Provider, login.UnknownProvider(stored.Provider))
	}
	res.Adapter = adapter
	instrumentation.AddFlowAttributes(span, adapter.Name(), string(res.Phase), stored.PKCEVerifier != "")

	if req.ProviderError != "" || req.Code == "" {
		cause := fmt.Errorf("callback without authorization code")
		if req.ProviderError != "" {
			cause = fmt.Errorf("provider returned error %q", req.ProviderError)
		}
		c.auditExchangeFailed(ctx, adapter.Name(), req.ClientIP, cause)
		return c.fail(ctx, span, res, adapter.Name(), login.ProviderFailure("authorization", 0, cause))
	}

	token, err := adapter.ExchangeCode(ctx, req.Code, stored.PKCEVerifier)
	if err != nil {
		c.auditExchangeFailed(ctx, adapter.Name(), req.ClientIP, err)
		return c.fail(ctx, span, res, adapter.Name(), asLoginError(err, "token exchange"))
	}
	res.Phase = PhaseTokenExchanged
	res.Token = token

	identity, err := adapter.FetchIdentity(ctx, token)
	if err == nil && (identity == nil || identity.ProviderUserID == "") {
		err = login.IdentityDataFailure("provider returned an identity without id")
	}
	if err != nil {
		lerr := asLoginError(err, "resource owner request")
		eventType := security.EventProviderCodeExchangeFailed
		if errors.Is(lerr, login.ErrIdentityData) {
			eventType = security.EventIdentityDataInvalid
		}
		c.auditor.LogEvent(ctx, security.Event{
			Type:      eventType,
			Provider:  adapter.Name(),
			IPAddress: req.ClientIP,
			Details:   map[string]any{"error": err.Error()},
		})
		res.Token = nil
		return c.fail(ctx, span, res, adapter.Name(), lerr)
	}
	res.Phase = PhaseIdentityFetched
	res.Identity = identity

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrPhase, string(res.Phase)))
	instrumentation.SetSpanSuccess(span)
	if c.inst != nil {
		c.inst.Metrics().RecordFlowCompleted(ctx, adapter.Name(), string(res.Phase), true)
	}
	c.logger.DebugContext(ctx, "Received identity from authorization provider",
		"provider", adapter.Name(),
		"provider_user_id_prefix", util.SafeTruncate(identity.ProviderUserID, 8))
	return res, nil
}

// checkState validates the stored state against the callback value.
// The returned error is for logs only; users never learn which check failed.
func (c *Controller) checkState(stored *session.AuthorizationState, callbackState string) error {
	switch {
	case stored == nil:
		return fmt.Errorf("no authorization state in session")
	case callbackState == "" || stored.State == "":
		return fmt.Errorf("blank state")
	case subtle.ConstantTimeCompare([]byte(stored.State), []byte(callbackState)) != 1:
		return fmt.Errorf("state does not match")
	case stored.IsExpired(c.now()):
		return fmt.Errorf("authorization state expired")
	}
	return nil
}

func (c *Controller) fail(ctx context.Context, span trace.Span, res *Result, provider string, err *login.Error) (*Result, error) {
	failedAt := res.Phase
	res.Phase = PhaseFailed
	instrumentation.RecordError(span, err)
	if c.inst != nil {
		c.inst.Metrics().RecordFlowCompleted(ctx, provider, string(failedAt), false)
	}
	c.logger.WarnContext(ctx, "Authorization flow failed",
		"provider", provider,
		"phase", string(failedAt),
		"reason", string(err.Reason),
		"error", err.Err)
	return res, err
}

func (c *Controller) auditExchangeFailed(ctx context.Context, provider, ip string, err error) {
	c.auditor.LogEvent(ctx, security.Event{
		Type:      security.EventProviderCodeExchangeFailed,
		Provider:  provider,
		IPAddress: ip,
		Details:   map[string]any{"error": err.Error()},
	})
}

func (c *Controller) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return c.tracer.Start(ctx, name)
}

// asLoginError keeps *login.Error values and wraps anything else as a
// provider failure.
func asLoginError(err error, operation string) *login.Error {
	var lerr *login.Error
	if errors.As(err, &lerr) {
		return lerr
	}
	return login.ProviderFailure(operation, 0, err)
}
