package server

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/internal/testutil"
	"github.com/giantswarm/oauth-login/providers"
	"github.com/giantswarm/oauth-login/providers/mock"
	"github.com/giantswarm/oauth-login/reconcile"
	"github.com/giantswarm/oauth-login/registry"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/storage"
	"github.com/giantswarm/oauth-login/storage/memory"
)

type testEnv struct {
	server   *Server
	store    *memory.Store
	provider *mock.MockProvider
}

func newTestEnv(t *testing.T, cfg *Config, accounts ...*storage.Account) *testEnv {
	t.Helper()
	store := memory.NewWithInterval(time.Hour)
	t.Cleanup(store.Stop)
	for _, acc := range accounts {
		store.AddAccount(acc)
	}

	provider := mock.NewMockProvider("Github", &providers.Identity{
		ProviderName:   "Github",
		ProviderUserID: "42",
		Username:       "octocat",
		DisplayName:    "The Octocat",
		Email:          "octo@example.com",
	})
	provider.ProviderLabel = "GitHub"
	reg := registry.New(nil)
	reg.RegisterAdapter(provider)

	if cfg == nil {
		cfg = &Config{}
	}
	srv, err := New(Dependencies{
		Providers: reg,
		Accounts:  store,
		Sessions:  store,
		Registrar: NewStoreRegistrar(store, nil),
		Auditor:   security.NewAuditor(nil, true),
	}, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{server: srv, store: store, provider: provider}
}

// roundTrip runs Start and Finish for one browser session
func (e *testEnv) roundTrip(t *testing.T, sid string, action login.ConnectAction) *Outcome {
	t.Helper()
	ctx := context.Background()
	start := e.server.Start(ctx, StartRequest{SessionID: sid, Provider: "Github", Action: action, ReturnURL: "/tree/demo"})
	if start.Kind != OutcomeRedirect {
		t.Fatalf("Start() = %+v", start)
	}
	u, err := url.Parse(start.RedirectURL)
	if err != nil {
		t.Fatalf("bad redirect: %v", err)
	}
	return e.server.Finish(ctx, FinishRequest{SessionID: sid, Code: "c1", State: u.Query().Get("state")})
}

func TestNew_Validation(t *testing.T) {
	store := memory.New()
	defer store.Stop()
	reg := registry.New(nil)

	tests := []struct {
		name string
		deps Dependencies
		cfg  *Config
	}{
		{name: "no providers", deps: Dependencies{Accounts: store, Sessions: store}},
		{name: "no accounts", deps: Dependencies{Providers: reg, Sessions: store}},
		{name: "no sessions", deps: Dependencies{Providers: reg, Accounts: store}},
		{name: "registration without registrar", deps: Dependencies{Providers: reg, Accounts: store, Sessions: store}, cfg: &Config{AllowRegistration: true}},
		{name: "remote default return url", deps: Dependencies{Providers: reg, Accounts: store, Sessions: store}, cfg: &Config{DefaultReturnURL: "https://evil.example.com/"}},
		{name: "plain http base url", deps: Dependencies{Providers: reg, Accounts: store, Sessions: store}, cfg: &Config{BaseURL: "http://login.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps, tt.cfg, nil); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestServer_LoginRotatesSession(t *testing.T) {
	env := newTestEnv(t, nil, testutil.NewLinkedAccount("u1", "octo", "octo@example.com", "Github", "42"))

	o := env.roundTrip(t, "sid-1", login.ActionNone)
	if o.Kind != OutcomeRedirect || o.Decision != reconcile.KindLogin {
		t.Fatalf("Finish() = %+v", o)
	}
	if o.RedirectURL != "/tree/demo" {
		t.Errorf("RedirectURL = %q", o.RedirectURL)
	}
	if o.SessionID == "" || o.SessionID == "sid-1" {
		t.Fatalf("session not rotated: %q", o.SessionID)
	}

	ctx := context.Background()
	acc, err := env.server.CurrentAccount(ctx, o.SessionID)
	if err != nil || acc == nil || acc.ID != "u1" {
		t.Errorf("CurrentAccount(new) = %v, %v", acc, err)
	}
	if acc, _ := env.server.CurrentAccount(ctx, "sid-1"); acc != nil {
		t.Error("old session is signed in")
	}
}

func TestServer_UnknownAccountOffersRegistration(t *testing.T) {
	env := newTestEnv(t, &Config{AllowRegistration: true})

	o := env.roundTrip(t, "sid", login.ActionNone)
	if o.Kind != OutcomeRejected || o.Reason != login.ReasonNoSuchAccount {
		t.Fatalf("Finish() = %+v", o)
	}
	if !o.RegistrationAvailable {
		t.Error("registration not offered")
	}
	if o.RedirectURL != "/tree/demo" {
		t.Errorf("RedirectURL = %q", o.RedirectURL)
	}
}

func TestServer_RegistrationRoundTrip(t *testing.T) {
	env := newTestEnv(t, &Config{AllowRegistration: true, RegistrationURL: "/register-with-provider"})
	ctx := context.Background()

	o := env.roundTrip(t, "sid", login.ActionRegister)
	if o.Kind != OutcomeRegister || o.Registration == nil {
		t.Fatalf("Finish() = %+v", o)
	}
	p := o.Registration
	if p.Username != "octocat" || p.Email != "octo@example.com" || p.ProviderLabel != "GitHub" || p.Confirmation == "" {
		t.Errorf("proposal = %+v", p)
	}
	if o.RedirectURL != "/register-with-provider" {
		t.Errorf("RedirectURL = %q", o.RedirectURL)
	}

	pending, err := env.server.sessions.PendingRegistration(ctx, "sid")
	if err != nil {
		t.Fatalf("pending registration not stored: %v", err)
	}
	if pending.Token == "" || pending.Token == "mock-access-token-c1" {
		t.Errorf("opaque token = %q", pending.Token)
	}

	done := env.server.ConfirmRegistration(ctx, ConfirmRequest{SessionID: "sid", Confirmation: p.Confirmation, Comments: "Family member"})
	if done.Kind != OutcomeRedirect || done.Account == nil {
		t.Fatalf("ConfirmRegistration() = %+v", done)
	}
	if done.RedirectURL != "/tree/demo" {
		t.Errorf("RedirectURL = %q", done.RedirectURL)
	}

	acc, err := env.store.FindByProviderIdentity(ctx, "Github", "42")
	if err != nil {
		t.Fatalf("registered account not linked: %v", err)
	}
	if acc.EmailVerified || acc.Approved {
		t.Error("self-registered account is verified or approved")
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(pending.Token)) != nil {
		t.Error("password hash does not match the opaque token")
	}
	if comments, err := env.store.RegistrationComments(ctx, acc.ID); err != nil || comments != "Family member" {
		t.Errorf("RegistrationComments() = %q, %v", comments, err)
	}

	again := env.server.ConfirmRegistration(ctx, ConfirmRequest{SessionID: "sid", Confirmation: p.Confirmation})
	if again.Reason != login.ReasonInvalidRequest {
		t.Errorf("second confirmation = %+v, want invalid_request", again)
	}
}

func TestServer_ConfirmRegistrationRejects(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *Config
		confirm    func(valid string) string
		existing   *storage.Account
		wantReason login.Reason
	}{
		{
			name:       "wrong confirmation",
			cfg:        &Config{AllowRegistration: true},
			confirm:    func(v string) string { return v + "x" },
			wantReason: login.ReasonInvalidRequest,
		},
		{
			name:       "empty confirmation",
			cfg:        &Config{AllowRegistration: true},
			confirm:    func(string) string { return "" },
			wantReason: login.ReasonInvalidRequest,
		},
		{
			name:    "email registered meanwhile",
			cfg:     &Config{AllowRegistration: true},
			confirm: func(v string) string { return v },
			existing: func() *storage.Account {
				acc := testutil.NewAccount("u9", "someone", "octo@example.com")
				return acc
			}(),
			wantReason: login.ReasonAccountAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.cfg)
			ctx := context.Background()
			o := env.roundTrip(t, "sid", login.ActionRegister)
			if o.Kind != OutcomeRegister {
				t.Fatalf("Finish() = %+v", o)
			}
			if tt.existing != nil {
				env.store.AddAccount(tt.existing)
			}

			done := env.server.ConfirmRegistration(ctx, ConfirmRequest{SessionID: "sid", Confirmation: tt.confirm(o.Registration.Confirmation)})
			if done.Kind != OutcomeRejected || done.Reason != tt.wantReason {
				t.Fatalf("ConfirmRegistration() = %+v, want %s", done, tt.wantReason)
			}
			if _, err := env.store.FindByProviderIdentity(ctx, "Github", "42"); !errors.Is(err, storage.ErrAccountNotFound) {
				t.Error("account created despite rejection")
			}
		})
	}
}

func TestServer_ConfirmRegistrationDisabled(t *testing.T) {
	env := newTestEnv(t, nil)

	o := env.server.ConfirmRegistration(context.Background(), ConfirmRequest{SessionID: "sid", Confirmation: "x"})
	if o.Reason != login.ReasonRegistrationDisabled {
		t.Errorf("ConfirmRegistration() = %+v", o)
	}
}

func TestServer_ConnectAndDisconnect(t *testing.T) {
	env := newTestEnv(t, nil, testutil.NewAccount("u1", "alice", "alice@example.com"))
	ctx := context.Background()

	store := NewStoreAccountSession(env.store, env.store, time.Hour)
	if err := store.SignIn(ctx, "sid", &storage.Account{ID: "u1"}); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	o := env.roundTrip(t, "sid", login.ActionConnect)
	if o.Decision != reconcile.KindConnectExisting {
		t.Fatalf("connect = %+v", o)
	}
	acc, _ := env.store.Find(ctx, "u1")
	if !acc.Linkage.Matches("Github", "42") {
		t.Fatalf("linkage = %+v", acc.Linkage)
	}

	d := env.server.Start(ctx, StartRequest{SessionID: "sid", Provider: "Github", Action: login.ActionDisconnect, ReturnURL: "/account"})
	if d.Decision != reconcile.KindDisconnect || d.RedirectURL != "/account" {
		t.Fatalf("disconnect = %+v", d)
	}
	acc, _ = env.store.Find(ctx, "u1")
	if acc.Linkage.IsLinked() {
		t.Error("linkage not cleared")
	}
	if env.provider.GetCallCount("ExchangeCode") != 1 {
		t.Error("disconnect contacted the provider")
	}
}

func TestServer_StartRejections(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		req        StartRequest
		wantReason login.Reason
		wantReturn string
	}{
		{name: "unknown provider", req: StartRequest{Provider: "Myspace", ReturnURL: "/x"}, wantReason: login.ReasonUnknownProvider, wantReturn: "/x"},
		{name: "connect signed out", req: StartRequest{Provider: "Github", Action: login.ActionConnect, ReturnURL: "https://evil.example.com"}, wantReason: login.ReasonInvalidRequest, wantReturn: "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.SessionID = "sid"
			o := env.server.Start(context.Background(), tt.req)
			if o.Kind != OutcomeRejected || o.Reason != tt.wantReason {
				t.Fatalf("Start() = %+v", o)
			}
			if o.RedirectURL != tt.wantReturn {
				t.Errorf("RedirectURL = %q, want %q", o.RedirectURL, tt.wantReturn)
			}
		})
	}
}

func TestServer_ListProviders(t *testing.T) {
	tests := []struct {
		name             string
		allow            bool
		registrationOnly bool
		want             int
	}{
		{name: "all", want: 1},
		{name: "registration disabled", registrationOnly: true, want: 0},
		{name: "registration enabled", allow: true, registrationOnly: true, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &Config{AllowRegistration: tt.allow})
			if got := env.server.ListProviders(tt.registrationOnly); len(got) != tt.want {
				t.Errorf("ListProviders() = %v, want %d entries", got, tt.want)
			}
		})
	}
}
