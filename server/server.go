package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/flow"
	"github.com/giantswarm/oauth-login/instrumentation"
	"github.com/giantswarm/oauth-login/internal/util"
	"github.com/giantswarm/oauth-login/reconcile"
	"github.com/giantswarm/oauth-login/registry"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/session"
	"github.com/giantswarm/oauth-login/storage"
)

// Dependencies are the collaborators of a Server.
type Dependencies struct {
	Providers *registry.Registry
	Accounts  storage.AccountStore
	Sessions  storage.SessionStore

	// Registrar receives confirmed registrations. Required when
	// Config.AllowRegistration is set.
	Registrar Registrar

	// AccountSession defaults to a StoreAccountSession on Sessions
	AccountSession AccountSession

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
}

// Server implements provider login, connect and registration on top of the
// flow controller and the reconciler.
type Server struct {
	providers      *registry.Registry
	sessions       *session.Store
	accountSession AccountSession
	registrar      Registrar
	flow           *flow.Controller
	reconciler     *reconcile.Reconciler

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config

	now func() time.Time
}

// New creates a login server
func New(deps Dependencies, config *Config, logger *slog.Logger) (*Server, error) {
	if deps.Providers == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if deps.Accounts == nil {
		return nil, fmt.Errorf("account store is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config, logger)
	if err := config.validate(logger); err != nil {
		return nil, err
	}
	if config.AllowRegistration && deps.Registrar == nil {
		return nil, fmt.Errorf("registrar is required when registration is allowed")
	}

	accountSession := deps.AccountSession
	if accountSession == nil {
		accountSession = NewStoreAccountSession(deps.Sessions, deps.Accounts, config.SessionTTL)
	}

	sessions := session.New(deps.Sessions)
	controller, err := flow.New(flow.Config{
		Providers:       deps.Providers,
		Sessions:        sessions,
		StateTTL:        config.StateTTL,
		Auditor:         deps.Auditor,
		Instrumentation: deps.Instrumentation,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	reconciler, err := reconcile.New(reconcile.Config{
		Providers:         deps.Providers,
		Accounts:          deps.Accounts,
		Sessions:          sessions,
		AllowRegistration: config.AllowRegistration,
		SyncProviderEmail: config.SyncProviderEmail,
		Auditor:           deps.Auditor,
		Instrumentation:   deps.Instrumentation,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		providers:       deps.Providers,
		sessions:        sessions,
		accountSession:  accountSession,
		registrar:       deps.Registrar,
		flow:            controller,
		reconciler:      reconciler,
		Auditor:         deps.Auditor,
		Instrumentation: deps.Instrumentation,
		Logger:          logger,
		Config:          config,
		now:             time.Now,
	}, nil
}

// StartRequest starts a provider request.
type StartRequest struct {
	SessionID string
	Provider  string
	Action    login.ConnectAction
	ReturnURL string
	Scope     string
	ClientIP  string
}

// Start runs the pre-checks for a provider request. The outcome redirects
// to the provider, or back to the return URL after a disconnect.
func (s *Server) Start(ctx context.Context, req StartRequest) *Outcome {
	returnURL := s.returnURL(req.ReturnURL)

	caller, err := s.accountSession.CurrentAccount(ctx, req.SessionID)
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to load signed-in account", "error", err)
		return outcomeFromError(err, returnURL)
	}

	d, err := s.reconciler.PreCheck(ctx, reconcile.Request{
		SessionID: req.SessionID,
		Provider:  req.Provider,
		Action:    req.Action,
		Caller:    caller,
		ClientIP:  req.ClientIP,
	})
	if err != nil {
		return outcomeFromError(err, returnURL)
	}

	switch d.Kind {
	case reconcile.KindReject:
		return outcomeFromDecision(d, returnURL)
	case reconcile.KindDisconnect:
		return redirectOutcome(returnURL, d.Kind, d.Account)
	}

	redirect, err := s.flow.Begin(ctx, flow.BeginRequest{
		SessionID: req.SessionID,
		Provider:  d.Provider,
		ReturnURL: returnURL,
		Scope:     req.Scope,
		Action:    req.Action,
		ClientIP:  req.ClientIP,
	})
	if err != nil {
		return outcomeFromError(err, returnURL)
	}
	return redirectOutcome(redirect.URL, d.Kind, nil)
}

// FinishRequest carries the provider callback.
type FinishRequest struct {
	SessionID     string
	Code          string
	State         string
	ProviderError string
	ClientIP      string
}

// Finish completes the provider callback and applies the decision. After a
// login the outcome carries a fresh session id the caller must switch to.
func (s *Server) Finish(ctx context.Context, req FinishRequest) *Outcome {
	res, err := s.flow.Complete(ctx, flow.CallbackRequest{
		SessionID:     req.SessionID,
		Code:          req.Code,
		State:         req.State,
		ProviderError: req.ProviderError,
		ClientIP:      req.ClientIP,
	})
	returnURL := s.Config.DefaultReturnURL
	if res != nil && res.State != nil {
		returnURL = s.returnURL(res.State.ReturnURL)
	}
	if err != nil {
		return outcomeFromError(err, returnURL)
	}

	caller, err := s.accountSession.CurrentAccount(ctx, req.SessionID)
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to load signed-in account", "error", err)
		return outcomeFromError(err, returnURL)
	}

	d, err := s.reconciler.Reconcile(ctx, reconcile.Request{
		SessionID: req.SessionID,
		Provider:  res.State.Provider,
		Action:    res.State.ConnectAction,
		Caller:    caller,
		ClientIP:  req.ClientIP,
	}, res.Identity)
	if err != nil {
		return outcomeFromError(err, returnURL)
	}

	switch d.Kind {
	case reconcile.KindLogin:
		return s.signIn(ctx, req.SessionID, d, returnURL)
	case reconcile.KindConnectExisting:
		return redirectOutcome(returnURL, d.Kind, d.Account)
	case reconcile.KindRegister:
		return s.proposeRegistration(ctx, req.SessionID, d.Registration, res.Token, returnURL)
	default:
		return outcomeFromDecision(d, returnURL)
	}
}

// signIn binds the account to a new session id so a session id known before
// the login is useless afterwards.
func (s *Server) signIn(ctx context.Context, oldSessionID string, d *reconcile.Decision, returnURL string) *Outcome {
	sid := newSessionID()
	if err := s.accountSession.SignIn(ctx, sid, d.Account); err != nil {
		s.Logger.ErrorContext(ctx, "Failed to sign in", "account_id", d.Account.ID, "error", err)
		return outcomeFromError(err, returnURL)
	}
	if err := s.accountSession.SignOut(ctx, oldSessionID); err != nil {
		s.Logger.WarnContext(ctx, "Failed to clear previous session", "error", err)
	}

	s.Logger.InfoContext(ctx, "Signed in through provider",
		"account_id", d.Account.ID,
		"provider", d.Provider,
		"session_prefix", util.SafeTruncate(sid, 8))
	o := redirectOutcome(returnURL, d.Kind, d.Account)
	o.SessionID = sid
	return o
}

func (s *Server) proposeRegistration(ctx context.Context, sessionID string, r *reconcile.Registration, token *oauth2.Token, returnURL string) *Outcome {
	opaque, err := deriveOpaqueToken(token)
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to derive registration token", "error", err)
		return outcomeFromError(err, returnURL)
	}

	pending := &session.PendingRegistration{
		Provider:       r.Provider,
		ProviderUserID: r.ProviderUserID,
		ProviderEmail:  r.ProviderEmail,
		Username:       r.Username,
		Email:          r.Email,
		DisplayName:    r.DisplayName,
		Token:          opaque,
		Confirmation:   oauth2.GenerateVerifier(),
		ReturnURL:      returnURL,
		CreatedAt:      s.now(),
	}
	if err := s.sessions.SavePendingRegistration(ctx, sessionID, pending, s.Config.RegistrationTTL); err != nil {
		s.Logger.ErrorContext(ctx, "Failed to store pending registration", "error", err)
		return outcomeFromError(err, returnURL)
	}

	return &Outcome{
		Kind:        OutcomeRegister,
		Status:      http.StatusOK,
		RedirectURL: s.Config.RegistrationURL,
		Decision:    reconcile.KindRegister,
		Registration: &RegistrationProposal{
			Provider:      r.Provider,
			ProviderLabel: r.ProviderLabel,
			Username:      r.Username,
			Email:         r.Email,
			DisplayName:   r.DisplayName,
			Confirmation:  pending.Confirmation,
		},
	}
}

// ConfirmRequest is the human-confirmed registration form.
type ConfirmRequest struct {
	SessionID    string
	Confirmation string
	Comments     string
	ClientIP     string
}

// ConfirmRegistration hands the pending registration of the session to the
// Registrar. The pending registration is consumed whatever the result.
func (s *Server) ConfirmRegistration(ctx context.Context, req ConfirmRequest) *Outcome {
	returnURL := s.Config.DefaultReturnURL
	if !s.Config.AllowRegistration || s.registrar == nil {
		return outcomeFromError(login.Rejected(login.ReasonRegistrationDisabled,
			"Requesting a new user account is currently not allowed"), returnURL)
	}

	pending, err := s.sessions.TakePendingRegistration(ctx, req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return outcomeFromError(login.NewError(login.ReasonInvalidRequest,
			"No registration is pending or it has expired", http.StatusBadRequest, err), returnURL)
	}
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to read pending registration", "error", err)
		return outcomeFromError(err, returnURL)
	}
	returnURL = s.returnURL(pending.ReturnURL)

	if req.Confirmation == "" || subtle.ConstantTimeCompare([]byte(req.Confirmation), []byte(pending.Confirmation)) != 1 {
		s.Auditor.LogEvent(ctx, security.Event{
			Type:      security.EventRegistrationTokenMismatch,
			Provider:  pending.Provider,
			IPAddress: req.ClientIP,
		})
		return outcomeFromError(login.NewError(login.ReasonInvalidRequest,
			"The registration request could not be verified", http.StatusBadRequest, nil), returnURL)
	}

	label := pending.Provider
	if adapter, ok := s.providers.Resolve(pending.Provider); ok {
		label = adapter.Label()
	}

	acc, err := s.registrar.RequestRegistration(ctx, RegistrationRequest{
		Username:            pending.Username,
		Email:               pending.Email,
		DisplayName:         pending.DisplayName,
		OpaquePasswordToken: pending.Token,
		Comments:            req.Comments,
		Linkage:             pending.Linkage(),
	})
	switch {
	case errors.Is(err, storage.ErrAccountExists):
		return outcomeFromError(login.AccountAlreadyExists(label), returnURL)
	case errors.Is(err, storage.ErrIdentityAlreadyLinked):
		return outcomeFromError(login.AccountLinkConflict(), returnURL)
	case err != nil:
		s.Logger.ErrorContext(ctx, "Registration failed", "provider", pending.Provider, "error", err)
		return outcomeFromError(err, returnURL)
	}

	s.Auditor.LogEvent(ctx, security.Event{
		Type:      security.EventRegistrationRequested,
		UserID:    acc.ID,
		Provider:  pending.Provider,
		IPAddress: req.ClientIP,
	})
	return redirectOutcome(returnURL, reconcile.KindRegister, acc)
}

// ListProviders returns the configured providers sorted by label. With
// registrationOnly only providers that can register new accounts are listed,
// and none when registration is disabled.
func (s *Server) ListProviders(registrationOnly bool) []registry.Entry {
	if registrationOnly && !s.Config.AllowRegistration {
		return []registry.Entry{}
	}
	return s.providers.ListAvailable(registrationOnly)
}

// CurrentAccount returns the signed-in account of the session, if any
func (s *Server) CurrentAccount(ctx context.Context, sessionID string) (*storage.Account, error) {
	return s.accountSession.CurrentAccount(ctx, sessionID)
}

// AccountSummary describes the signed-in user of a session.
type AccountSummary struct {
	SignedIn bool   `json:"signed_in"`
	Username string `json:"username,omitempty"`
	RealName string `json:"real_name,omitempty"`

	// Connected holds the labels of the providers the account is linked to
	Connected []string `json:"connected,omitempty"`
}

// Account summarizes the signed-in account of the session. Anonymous
// sessions get a summary with SignedIn false.
func (s *Server) Account(ctx context.Context, sessionID string) (*AccountSummary, error) {
	acc, err := s.CurrentAccount(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return &AccountSummary{}, nil
	}
	return &AccountSummary{
		SignedIn:  true,
		Username:  acc.Username,
		RealName:  acc.RealName,
		Connected: s.providers.LabelsForAccounts([]*storage.Account{acc}, false),
	}, nil
}

// newSessionID returns a random session id with 256 bits of entropy
func newSessionID() string {
	return oauth2.GenerateVerifier()
}
