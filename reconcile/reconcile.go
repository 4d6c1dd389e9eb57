package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/instrumentation"
	"github.com/giantswarm/oauth-login/providers"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/session"
	"github.com/giantswarm/oauth-login/storage"
)

// Kind is the decision taken for a provider request.
type Kind string

// Decision kinds
const (
	// KindProceed lets the caller redirect to the provider
	KindProceed         Kind = "proceed"
	KindDisconnect      Kind = "disconnect"
	KindBeginConnect    Kind = "begin_connect"
	KindConnectExisting Kind = "connect_existing"
	KindLogin           Kind = "login"
	KindRegister        Kind = "register"
	KindReject          Kind = "reject"
)

// Decision is the outcome of PreCheck or Reconcile.
type Decision struct {
	Kind     Kind
	Provider string

	// Account is the signed-in, connected or disconnected account
	Account *storage.Account

	// Registration is set for KindRegister
	Registration *Registration

	// Err is set for KindReject
	Err *login.Error

	// RegistrationAvailable tells the UI it may offer registration after a
	// no_such_account rejection
	RegistrationAvailable bool
}

// Reason returns the rejection reason, or "" for other kinds
func (d *Decision) Reason() login.Reason {
	if d.Err == nil {
		return ""
	}
	return d.Err.Reason
}

// Registration is the normalized identity proposed for a new account.
type Registration struct {
	Provider       string
	ProviderLabel  string
	ProviderUserID string
	ProviderEmail  string
	Username       string
	Email          string
	DisplayName    string
}

// Linkage returns the linkage the new account gets
func (r *Registration) Linkage() storage.Linkage {
	return storage.Linkage{
		ProviderName:   r.Provider,
		ProviderUserID: r.ProviderUserID,
		ProviderEmail:  r.ProviderEmail,
	}
}

// Resolver looks up adapters by provider name.
type Resolver interface {
	Resolve(name string) (providers.Adapter, bool)
}

// Config configures a Reconciler.
type Config struct {
	Providers Resolver
	Accounts  storage.AccountStore
	Sessions  *session.Store

	// AllowRegistration is the site-level switch for new accounts
	AllowRegistration bool

	// SyncProviderEmail updates the account email to the provider email on
	// every login that is not a connect
	SyncProviderEmail bool

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Now             func() time.Time
}

// Reconciler maps provider identities onto local accounts.
type Reconciler struct {
	providers         Resolver
	accounts          storage.AccountStore
	sessions          *session.Store
	allowRegistration bool
	syncProviderEmail bool
	auditor           *security.Auditor
	inst              *instrumentation.Instrumentation
	tracer            trace.Tracer
	logger            *slog.Logger
	now               func() time.Time
}

// New creates a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Providers == nil {
		return nil, fmt.Errorf("provider resolver is required")
	}
	if cfg.Accounts == nil {
		return nil, fmt.Errorf("account store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	r := &Reconciler{
		providers:         cfg.Providers,
		accounts:          cfg.Accounts,
		sessions:          cfg.Sessions,
		allowRegistration: cfg.AllowRegistration,
		syncProviderEmail: cfg.SyncProviderEmail,
		auditor:           cfg.Auditor,
		inst:              cfg.Instrumentation,
		logger:            cfg.Logger,
		now:               cfg.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.inst != nil {
		r.tracer = r.inst.Tracer("reconcile")
	}
	return r, nil
}

// Request is a provider request of one browser session.
type Request struct {
	SessionID string
	Provider  string
	Action    login.ConnectAction

	// Caller is the signed-in account, nil for anonymous requests
	Caller *storage.Account

	ClientIP string
}

// PreCheck runs before any provider interaction. It handles disconnect and
// connect intents and rejects hijacked or expired connect sessions. A
// KindProceed or KindBeginConnect decision means the caller redirects to
// the provider.
func (r *Reconciler) PreCheck(ctx context.Context, req Request) (d *Decision, err error) {
	ctx, span := r.startSpan(ctx, "reconcile.precheck")
	defer span.End()
	defer func() { r.record(ctx, span, req, d, err) }()

	adapter, ok := r.providers.Resolve(req.Provider)
	if !ok {
		return reject(req.Provider, login.UnknownProvider(req.Provider)), nil
	}

	switch req.Action {
	case login.ActionDisconnect:
		if req.Caller == nil || req.Caller.Linkage.ProviderName != adapter.Name() {
			return reject(adapter.Name(), login.Rejected(login.ReasonInvalidRequest,
				"The signed-in user is not connected with this authorization provider")), nil
		}
		if err := r.accounts.SetLinkage(ctx, req.Caller.ID, storage.Linkage{}); err != nil {
			return nil, fmt.Errorf("failed to clear linkage: %w", err)
		}
		// a pending connect must not turn the next login into a connect
		r.forgetConnectSession(ctx, req.SessionID)
		acc := req.Caller.Clone()
		acc.Linkage = storage.Linkage{}
		r.auditor.LogLinkageChanged(ctx, security.EventAccountDisconnected, acc.ID, adapter.Name(), req.ClientIP)
		r.logger.InfoContext(ctx, "Disconnected account from provider", "account_id", acc.ID, "provider", adapter.Name())
		return &Decision{Kind: KindDisconnect, Provider: adapter.Name(), Account: acc}, nil

	case login.ActionConnect:
		if req.Caller == nil {
			return reject(adapter.Name(), login.Rejected(login.ReasonInvalidRequest,
				"Sign in before connecting an authorization provider")), nil
		}
		cs := &session.ConnectSession{
			ProviderName: adapter.Name(),
			TargetUserID: req.Caller.ID,
			CreatedAt:    r.now(),
		}
		if err := r.sessions.SaveConnectSession(ctx, req.SessionID, cs); err != nil {
			return nil, err
		}
		r.auditor.LogEvent(ctx, security.Event{
			Type:      security.EventConnectSessionStarted,
			UserID:    req.Caller.ID,
			Provider:  adapter.Name(),
			IPAddress: req.ClientIP,
		})
		return &Decision{Kind: KindBeginConnect, Provider: adapter.Name(), Account: req.Caller.Clone()}, nil
	}

	if _, lerr, err := r.CheckConnectSession(ctx, req); err != nil {
		return nil, err
	} else if lerr != nil {
		return reject(adapter.Name(), lerr), nil
	}
	return &Decision{Kind: KindProceed, Provider: adapter.Name()}, nil
}

// CheckConnectSession returns the current connect session when it belongs
// to the caller and has not timed out. A connect session of another user
// or an expired one is deleted and reported as a rejection.
func (r *Reconciler) CheckConnectSession(ctx context.Context, req Request) (*session.ConnectSession, *login.Error, error) {
	cs, err := r.sessions.ConnectSession(ctx, req.SessionID)
	if err != nil || cs == nil {
		return nil, nil, err
	}

	callerID := ""
	if req.Caller != nil {
		callerID = req.Caller.ID
	}

	var (
		lerr      *login.Error
		eventType string
		violation string
	)
	switch {
	case !cs.BelongsTo(callerID):
		lerr, eventType, violation = login.SecurityViolation(), security.EventConnectSessionHijackDetected, "hijack"
	case cs.IsExpired(r.now()):
		lerr, eventType, violation = login.Timeout(r.label(cs.ProviderName)), security.EventConnectSessionExpired, "timeout"
	default:
		return cs, nil, nil
	}

	r.forgetConnectSession(ctx, req.SessionID)
	r.auditor.LogEvent(ctx, security.Event{
		Type:      eventType,
		UserID:    cs.TargetUserID,
		Provider:  cs.ProviderName,
		IPAddress: req.ClientIP,
	})
	if r.inst != nil {
		r.inst.Metrics().RecordConnectSessionViolation(ctx, violation)
	}
	return nil, lerr, nil
}

// Reconcile decides what a completed provider exchange means for the local
// accounts and applies linkage and activity updates. Storage failures are
// returned as errors; every other outcome is a Decision.
func (r *Reconciler) Reconcile(ctx context.Context, req Request, identity *providers.Identity) (d *Decision, err error) {
	ctx, span := r.startSpan(ctx, "reconcile.identity")
	defer span.End()
	defer func() { r.record(ctx, span, req, d, err) }()

	id := Normalize(identity)
	if id == nil || id.ProviderUserID == "" {
		return reject(req.Provider, login.IdentityDataFailure("identity without provider user id")), nil
	}
	if id.ProviderName == "" {
		id.ProviderName = req.Provider
	}
	req.Provider = id.ProviderName

	adapter, ok := r.providers.Resolve(id.ProviderName)
	if !ok {
		return reject(id.ProviderName, login.UnknownProvider(id.ProviderName)), nil
	}

	cs, lerr, err := r.CheckConnectSession(ctx, req)
	if err != nil {
		return nil, err
	}
	if lerr != nil {
		return reject(id.ProviderName, lerr), nil
	}
	if cs != nil && cs.ProviderName == id.ProviderName {
		return r.connectExisting(ctx, req, cs, id)
	}

	acc, err := r.findAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		return r.login(ctx, req, acc, id, adapter)
	}

	return r.register(ctx, req, id, adapter)
}

// findAccount looks up by provider identity, then by email.
func (r *Reconciler) findAccount(ctx context.Context, id *providers.Identity) (*storage.Account, error) {
	acc, err := r.accounts.FindByProviderIdentity(ctx, id.ProviderName, id.ProviderUserID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, storage.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to look up provider identity: %w", err)
	}
	if id.Email == "" {
		return nil, nil
	}
	acc, err = r.accounts.FindByEmail(ctx, id.Email)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	return acc, nil
}

func (r *Reconciler) connectExisting(ctx context.Context, req Request, cs *session.ConnectSession, id *providers.Identity) (*Decision, error) {
	forget := func() { r.forgetConnectSession(ctx, req.SessionID) }

	target, err := r.accounts.Find(ctx, cs.TargetUserID)
	if errors.Is(err, storage.ErrAccountNotFound) {
		forget()
		return reject(id.ProviderName, login.Rejected(login.ReasonNoSuchAccount,
			"The account to connect no longer exists")), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connect target: %w", err)
	}

	owner, err := r.accounts.FindByProviderIdentity(ctx, id.ProviderName, id.ProviderUserID)
	if err != nil && !errors.Is(err, storage.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to look up provider identity: %w", err)
	}
	if owner != nil && owner.ID != target.ID {
		forget()
		return reject(id.ProviderName, login.AccountLinkConflict()), nil
	}

	if !target.HasBeenActive() && !target.Linkage.IsLinked() {
		forget()
		return reject(id.ProviderName, login.UnvettedAccount()), nil
	}

	linkage := linkageOf(id)
	if err := r.accounts.SetLinkage(ctx, target.ID, linkage); err != nil {
		if errors.Is(err, storage.ErrIdentityAlreadyLinked) {
			forget()
			return reject(id.ProviderName, login.AccountLinkConflict()), nil
		}
		return nil, fmt.Errorf("failed to set linkage: %w", err)
	}
	forget()

	target.Linkage = linkage
	r.auditor.LogLinkageChanged(ctx, security.EventAccountConnected, target.ID, id.ProviderName, req.ClientIP)
	r.logger.InfoContext(ctx, "Connected account with provider", "account_id", target.ID, "provider", id.ProviderName)
	return &Decision{Kind: KindConnectExisting, Provider: id.ProviderName, Account: target}, nil
}

func (r *Reconciler) login(ctx context.Context, req Request, acc *storage.Account, id *providers.Identity, adapter providers.Adapter) (*Decision, error) {
	switch {
	case !acc.EmailVerified:
		return reject(id.ProviderName, login.Rejected(login.ReasonAccountNotVerified,
			"This account has not been verified. Please check your email for a verification message")), nil
	case !acc.Approved:
		return reject(id.ProviderName, login.Rejected(login.ReasonAccountNotApproved,
			"This account has not been approved. Please wait for an administrator to approve it")), nil
	case !acc.Linkage.IsLinked() && acc.HasBeenActive():
		// an existing password user must connect explicitly
		return reject(id.ProviderName, login.AccountAlreadyExists(adapter.Label())), nil
	case acc.Linkage.IsLinked() && !acc.Linkage.Matches(id.ProviderName, id.ProviderUserID):
		return reject(id.ProviderName, login.AccountAlreadyExists(adapter.Label())), nil
	}

	// linkage before activity: an active unlinked account fails the guard above
	now := r.now()
	linkage := linkageOf(id)
	if err := r.accounts.SetLinkage(ctx, acc.ID, linkage); err != nil {
		if errors.Is(err, storage.ErrIdentityAlreadyLinked) {
			return reject(id.ProviderName, login.AccountAlreadyExists(adapter.Label())), nil
		}
		return nil, fmt.Errorf("failed to set linkage: %w", err)
	}
	if err := r.accounts.SetLastActive(ctx, acc.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	acc.LastActive = now
	acc.Linkage = linkage

	if r.syncProviderEmail && id.Email != "" && acc.Email != id.Email {
		if err := r.accounts.SetEmail(ctx, acc.ID, id.Email); err != nil {
			r.logger.WarnContext(ctx, "Failed to synchronize email", "account_id", acc.ID, "error", err)
		} else {
			acc.Email = id.Email
			r.logger.InfoContext(ctx, "Updated account email from provider", "account_id", acc.ID)
		}
	}

	r.auditor.LogLoginSucceeded(ctx, acc.ID, id.ProviderName, req.ClientIP)
	return &Decision{Kind: KindLogin, Provider: id.ProviderName, Account: acc}, nil
}

func (r *Reconciler) register(ctx context.Context, req Request, id *providers.Identity, adapter providers.Adapter) (*Decision, error) {
	if id.Username != "" {
		_, err := r.accounts.FindByUsername(ctx, id.Username)
		if err == nil {
			return reject(id.ProviderName, login.AccountAlreadyExists(adapter.Label())), nil
		}
		if !errors.Is(err, storage.ErrAccountNotFound) {
			return nil, fmt.Errorf("failed to look up username: %w", err)
		}
	}

	complete := id.Email != "" && id.Username != ""
	available := r.allowRegistration && adapter.SupportsRegistration() && complete

	if req.Action != login.ActionRegister {
		d := reject(id.ProviderName, login.NewError(login.ReasonNoSuchAccount,
			"Currently, no user account is related to the user data received from the authorization provider",
			http.StatusForbidden, nil))
		d.RegistrationAvailable = available
		return d, nil
	}

	switch {
	case !r.allowRegistration:
		return reject(id.ProviderName, login.Rejected(login.ReasonRegistrationDisabled,
			"Requesting a new user account is currently not allowed")), nil
	case !adapter.SupportsRegistration():
		return reject(id.ProviderName, login.Rejected(login.ReasonRegistrationNotSupported,
			fmt.Sprintf("It is not possible to request a user account with %s", adapter.Label()))), nil
	case !complete:
		return reject(id.ProviderName, login.NewError(login.ReasonIncompleteIdentity,
			fmt.Sprintf("Invalid user data received from %s. Email or username missing", adapter.Label()),
			http.StatusBadGateway, nil)), nil
	}

	r.auditor.LogEvent(ctx, security.Event{
		Type:      security.EventRegistrationProposed,
		Provider:  id.ProviderName,
		IPAddress: req.ClientIP,
	})
	return &Decision{
		Kind:     KindRegister,
		Provider: id.ProviderName,
		Registration: &Registration{
			Provider:       id.ProviderName,
			ProviderLabel:  adapter.Label(),
			ProviderUserID: id.ProviderUserID,
			ProviderEmail:  id.Email,
			Username:       id.Username,
			Email:          id.Email,
			DisplayName:    id.DisplayName,
		},
	}, nil
}

// forgetConnectSession deletes the connect session of sessionID. A failure
// is logged and audited; the session still expires on its own.
func (r *Reconciler) forgetConnectSession(ctx context.Context, sessionID string) {
	err := r.sessions.ForgetConnectSession(ctx, sessionID)
	if err == nil {
		return
	}
	r.logger.WarnContext(ctx, "Failed to delete connect session", "error", err)
	r.auditor.LogEvent(ctx, security.Event{
		Type:    security.EventConnectSessionForgetFailed,
		Details: map[string]any{"error": err.Error()},
	})
}

func (r *Reconciler) label(provider string) string {
	if adapter, ok := r.providers.Resolve(provider); ok {
		return adapter.Label()
	}
	return provider
}

func (r *Reconciler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if r.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return r.tracer.Start(ctx, name)
}

// record writes metrics, span attributes and the denial audit event.
func (r *Reconciler) record(ctx context.Context, span trace.Span, req Request, d *Decision, err error) {
	if err != nil {
		instrumentation.RecordError(span, err)
		r.logger.ErrorContext(ctx, "Reconciliation failed", "provider", req.Provider, "error", err)
		return
	}
	if d == nil {
		return
	}

	accountID := ""
	if d.Account != nil {
		accountID = d.Account.ID
	}
	instrumentation.AddDecisionAttributes(span, string(d.Kind), string(d.Reason()), accountID)
	instrumentation.SetSpanSuccess(span)
	if r.inst != nil {
		r.inst.Metrics().RecordReconcileDecision(ctx, d.Provider, string(d.Kind), string(d.Reason()))
	}

	if d.Kind == KindReject {
		callerID := ""
		if req.Caller != nil {
			callerID = req.Caller.ID
		}
		r.auditor.LogLoginDenied(ctx, callerID, d.Provider, req.ClientIP, string(d.Reason()))
		r.logger.InfoContext(ctx, "Provider request rejected",
			"provider", d.Provider,
			"reason", string(d.Reason()),
			"detail", d.Err.Err)
	}
}

func reject(provider string, err *login.Error) *Decision {
	return &Decision{Kind: KindReject, Provider: provider, Err: err}
}

func linkageOf(id *providers.Identity) storage.Linkage {
	return storage.Linkage{
		ProviderName:   id.ProviderName,
		ProviderUserID: id.ProviderUserID,
		ProviderEmail:  id.Email,
	}
}
