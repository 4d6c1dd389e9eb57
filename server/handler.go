package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/instrumentation"
	"github.com/giantswarm/oauth-login/internal/util"
	"github.com/giantswarm/oauth-login/security"
)

// Request parameters
const (
	ParamProvider      = "provider_name"
	ParamConnectAction = "connect_action"
	ParamReturnURL     = "url"
	ParamScope         = "scope"
	ParamCode          = "code"
	ParamState         = "state"
	ParamError         = "error"
	ParamConfirmation  = "confirmation"
	ParamComments      = "comments"
	ParamRegistration  = "registration"
)

const (
	maxFormBytes       = 64 << 10
	maxCommentsLength  = 1000
	endpointLogin      = "login"
	endpointCallback   = "callback"
	endpointRegister   = "register"
	endpointProviders  = "providers"
	endpointAccount    = "account"
	sessionPrefixChars = 8
)

// Handler is a thin HTTP adapter for the login Server.
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandler creates a new HTTP handler
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{server: server, logger: logger}
	if server.Instrumentation != nil {
		h.tracer = server.Instrumentation.Tracer("http")
	}
	return h
}

// RegisterRoutes registers the login routes on mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /login", h.ServeLogin)
	mux.HandleFunc("GET /callback", h.ServeCallback)
	mux.HandleFunc("POST /register", h.ServeRegister)
	mux.HandleFunc("GET /providers", h.ServeProviders)
	mux.HandleFunc("GET /account", h.ServeAccount)
}

// Routes returns the login routes wrapped in the request id and security
// header middlewares
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return security.RequestIDMiddleware(security.SecurityHeadersMiddleware(h.server.Config.BaseURL, mux))
}

// ServeLogin starts a provider request. A request that carries the
// provider's callback parameters is finished instead, so the login route
// can be configured as redirect URL.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has(ParamCode) || q.Has(ParamState) || q.Has(ParamError) {
		h.ServeCallback(w, r)
		return
	}

	startTime := time.Now()
	ctx, span := h.startSpan(r, "http.login")
	defer span.End()

	action, err := login.ParseConnectAction(q.Get(ParamConnectAction))
	if err != nil {
		h.writeOutcome(ctx, w, r, endpointLogin, startTime, outcomeFromError(
			login.NewError(login.ReasonInvalidRequest, "Unknown connect action", http.StatusBadRequest, err),
			h.server.returnURL(q.Get(ParamReturnURL))))
		return
	}

	provider := q.Get(ParamProvider)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrProvider, provider),
		attribute.String(instrumentation.AttrConnectAction, action.String()),
	)

	outcome := h.server.Start(ctx, StartRequest{
		SessionID: h.sessionID(w, r),
		Provider:  provider,
		Action:    action,
		ReturnURL: q.Get(ParamReturnURL),
		Scope:     q.Get(ParamScope),
		ClientIP:  h.clientIP(r),
	})
	h.finishSpan(span, outcome)
	h.writeOutcome(ctx, w, r, endpointLogin, startTime, outcome)
}

// ServeCallback finishes a provider request
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "http.callback")
	defer span.End()

	q := r.URL.Query()
	if errParam := q.Get(ParamError); errParam != "" {
		h.logger.WarnContext(ctx, "Provider returned error",
			"error", errParam,
			"description", q.Get("error_description"))
	}

	outcome := h.server.Finish(ctx, FinishRequest{
		SessionID:     h.sessionID(w, r),
		Code:          q.Get(ParamCode),
		State:         q.Get(ParamState),
		ProviderError: q.Get(ParamError),
		ClientIP:      h.clientIP(r),
	})
	h.finishSpan(span, outcome)
	h.writeOutcome(ctx, w, r, endpointCallback, startTime, outcome)
}

// ServeRegister confirms the pending registration of the session
func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "http.register")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.writeOutcome(ctx, w, r, endpointRegister, startTime, outcomeFromError(
			login.NewError(login.ReasonInvalidRequest, "Invalid registration form", http.StatusBadRequest, err),
			h.server.Config.DefaultReturnURL))
		return
	}

	outcome := h.server.ConfirmRegistration(ctx, ConfirmRequest{
		SessionID:    h.sessionID(w, r),
		Confirmation: r.PostForm.Get(ParamConfirmation),
		Comments:     util.TruncateRunes(r.PostForm.Get(ParamComments), maxCommentsLength),
		ClientIP:     h.clientIP(r),
	})
	h.finishSpan(span, outcome)
	h.writeOutcome(ctx, w, r, endpointRegister, startTime, outcome)
}

// ServeProviders lists the configured providers as JSON
func (h *Handler) ServeProviders(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	registrationOnly := r.URL.Query().Get(ParamRegistration) == "1"

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"providers": h.server.ListProviders(registrationOnly),
	})
	h.recordHTTPMetrics(r.Context(), endpointProviders, r.Method, http.StatusOK, startTime)
}

// ServeAccount reports the signed-in account of the browser session and the
// providers it is connected with
func (h *Handler) ServeAccount(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "http.account")
	defer span.End()

	var sid string
	if c, err := r.Cookie(h.server.Config.SessionCookieName); err == nil {
		sid = c.Value
	}

	summary, err := h.server.Account(ctx, sid)
	status := http.StatusOK
	var body any = summary
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load signed-in account",
			"request_id", security.GetRequestID(ctx),
			"error", err)
		instrumentation.RecordError(span, err)
		status = http.StatusInternalServerError
		body = outcomeFromError(err, "")
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
	h.recordHTTPMetrics(ctx, endpointAccount, r.Method, status, startTime)
}

// sessionID returns the browser session id, issuing a new cookie when the
// request has none
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(h.server.Config.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	sid := newSessionID()
	h.setSessionCookie(w, sid)
	return sid
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.server.Config.SessionCookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(h.server.Config.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.server.Config.secureCookies(),
		// Lax keeps the cookie on the top-level redirect back from the provider
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// writeOutcome answers with a redirect or JSON depending on the outcome and
// the configured pages
func (h *Handler) writeOutcome(ctx context.Context, w http.ResponseWriter, r *http.Request, endpoint string, startTime time.Time, o *Outcome) {
	if !o.OK() {
		h.logger.InfoContext(ctx, "Request rejected",
			"endpoint", endpoint,
			"reason", o.Reason,
			"request_id", security.GetRequestID(ctx))
	}
	if o.SessionID != "" {
		h.setSessionCookie(w, o.SessionID)
		h.logger.DebugContext(ctx, "Rotated session after login",
			"session_prefix", util.SafeTruncate(o.SessionID, sessionPrefixChars))
	}

	switch {
	case o.Kind == OutcomeRedirect:
		h.redirect(w, r, endpoint, startTime, o.RedirectURL)
	case o.Kind == OutcomeRegister && o.RedirectURL != "":
		h.redirect(w, r, endpoint, startTime, o.RedirectURL)
	case o.Kind == OutcomeRejected && h.server.Config.ErrorURL != "":
		h.redirect(w, r, endpoint, startTime, h.errorPage(o))
	default:
		status := o.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(o)
		h.recordHTTPMetrics(ctx, endpoint, r.Method, status, startTime)
	}
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, endpoint string, startTime time.Time, target string) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
	h.recordHTTPMetrics(r.Context(), endpoint, r.Method, http.StatusFound, startTime)
}

// errorPage builds the ErrorURL redirect for a rejection
func (h *Handler) errorPage(o *Outcome) string {
	u, err := url.Parse(h.server.Config.ErrorURL)
	if err != nil {
		return h.server.Config.DefaultReturnURL
	}
	q := u.Query()
	q.Set("reason", string(o.Reason))
	q.Set("message", o.Message)
	if o.RedirectURL != "" {
		q.Set(ParamReturnURL, o.RedirectURL)
	}
	if o.RegistrationAvailable {
		q.Set(ParamRegistration, "1")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return r.Context(), trace.SpanFromContext(context.Background())
	}
	ctx, span := h.tracer.Start(r.Context(), name)
	if h.server.Instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, h.clientIP(r))
	}
	return ctx, span
}

func (h *Handler) finishSpan(span trace.Span, o *Outcome) {
	if o.OK() {
		instrumentation.SetSpanSuccess(span)
		return
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrReason, string(o.Reason)))
	instrumentation.SetSpanError(span, string(o.Reason))
}

// recordHTTPMetrics records HTTP request metrics
func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	instrumentation.AddHTTPAttributes(trace.SpanFromContext(ctx), method, endpoint, status)
	if h.server.Instrumentation == nil {
		return
	}
	duration := float64(time.Since(startTime).Microseconds()) / 1000
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, duration)
}
