package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/internal/testutil"
	"github.com/giantswarm/oauth-login/providers"
	"github.com/giantswarm/oauth-login/providers/mock"
	"github.com/giantswarm/oauth-login/registry"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/session"
	"github.com/giantswarm/oauth-login/storage"
	"github.com/giantswarm/oauth-login/storage/memory"
	storagemock "github.com/giantswarm/oauth-login/storage/mock"
)

const sid = "browser-session"

type testEnv struct {
	reconciler *Reconciler
	accounts   *storagemock.MockAccountStore
	sessions   *session.Store
	clock      *testutil.MockTime
	github     *mock.MockProvider
	spotify    *mock.MockProvider
}

func newTestEnv(t *testing.T, allowRegistration bool, accounts ...*storage.Account) *testEnv {
	t.Helper()
	clock := testutil.NewMockTime(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	backend := memory.NewWithInterval(time.Hour)
	backend.SetClock(clock.Now)
	t.Cleanup(backend.Stop)

	store := storagemock.NewMockAccountStore(accounts...)
	t.Cleanup(store.Stop)

	gh := mock.NewMockProvider("Github", nil)
	gh.ProviderLabel = "GitHub"
	sp := mock.NewMockProvider("Spotify", nil)
	sp.Registration = false

	reg := registry.New(nil)
	reg.RegisterAdapter(gh)
	reg.RegisterAdapter(sp)

	sessions := session.New(backend)
	r, err := New(Config{
		Providers:         reg,
		Accounts:          store,
		Sessions:          sessions,
		AllowRegistration: allowRegistration,
		Auditor:           security.NewAuditor(nil, true),
		Now:               clock.Now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{reconciler: r, accounts: store, sessions: sessions, clock: clock, github: gh, spotify: sp}
}

func (e *testEnv) account(t *testing.T, id string) *storage.Account {
	t.Helper()
	acc, err := e.accounts.Store.Find(context.Background(), id)
	if err != nil {
		t.Fatalf("Find(%s) error = %v", id, err)
	}
	return acc
}

func (e *testEnv) startConnect(t *testing.T, caller *storage.Account, provider string) {
	t.Helper()
	d, err := e.reconciler.PreCheck(context.Background(), Request{SessionID: sid, Provider: provider, Action: login.ActionConnect, Caller: caller})
	if err != nil || d.Kind != KindBeginConnect {
		t.Fatalf("PreCheck(connect) = %+v, %v", d, err)
	}
}

func ghIdentity(id, username, email string) *providers.Identity {
	return &providers.Identity{ProviderName: "Github", ProviderUserID: id, Username: username, Email: email}
}

func wantReject(t *testing.T, d *Decision, err error, reason login.Reason) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error = %v", err)
	}
	if d.Kind != KindReject || d.Reason() != reason {
		t.Fatalf("decision = %s/%s, want reject/%s", d.Kind, d.Reason(), reason)
	}
}

func TestNew_Validation(t *testing.T) {
	sessions := session.New(memory.New())
	accounts := storagemock.NewMockAccountStore()
	defer accounts.Stop()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no providers", cfg: Config{Accounts: accounts, Sessions: sessions}},
		{name: "no accounts", cfg: Config{Providers: registry.New(nil), Sessions: sessions}},
		{name: "no sessions", cfg: Config{Providers: registry.New(nil), Accounts: accounts}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestReconcile_Login(t *testing.T) {
	tests := []struct {
		name       string
		account    *storage.Account
		identity   *providers.Identity
		wantKind   Kind
		wantReason login.Reason
	}{
		{
			name:     "linked account",
			account:  testutil.NewLinkedAccount("u1", "octo", "octo@example.com", "Github", "42"),
			identity: ghIdentity("42", "octocat", "other@example.com"),
			wantKind: KindLogin,
		},
		{
			name: "first login links by email",
			account: func() *storage.Account {
				acc := testutil.NewAccount("u1", "octo", "octo@example.com")
				acc.LastActive = time.Time{}
				return acc
			}(),
			identity: ghIdentity("42", "octocat", "octo@example.com"),
			wantKind: KindLogin,
		},
		{
			name:       "active unlinked account",
			account:    testutil.NewAccount("u1", "octo", "octo@example.com"),
			identity:   ghIdentity("42", "octocat", "octo@example.com"),
			wantKind:   KindReject,
			wantReason: login.ReasonAccountAlreadyExists,
		},
		{
			name:       "linked to other provider user",
			account:    testutil.NewLinkedAccount("u1", "octo", "octo@example.com", "Github", "7"),
			identity:   ghIdentity("42", "octocat", "octo@example.com"),
			wantKind:   KindReject,
			wantReason: login.ReasonAccountAlreadyExists,
		},
		{
			name: "not verified",
			account: func() *storage.Account {
				acc := testutil.NewLinkedAccount("u1", "octo", "octo@example.com", "Github", "42")
				acc.EmailVerified = false
				return acc
			}(),
			identity:   ghIdentity("42", "octocat", "octo@example.com"),
			wantKind:   KindReject,
			wantReason: login.ReasonAccountNotVerified,
		},
		{
			name: "not approved",
			account: func() *storage.Account {
				acc := testutil.NewLinkedAccount("u1", "octo", "octo@example.com", "Github", "42")
				acc.Approved = false
				return acc
			}(),
			identity:   ghIdentity("42", "octocat", "octo@example.com"),
			wantKind:   KindReject,
			wantReason: login.ReasonAccountNotApproved,
		},
		{
			name: "verified before approved",
			account: func() *storage.Account {
				acc := testutil.NewLinkedAccount("u1", "octo", "octo@example.com", "Github", "42")
				acc.Approved = false
				acc.EmailVerified = false
				return acc
			}(),
			identity:   ghIdentity("42", "octocat", "octo@example.com"),
			wantKind:   KindReject,
			wantReason: login.ReasonAccountNotVerified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true, tt.account)
			before := env.account(t, "u1")

			d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: "Github"}, tt.identity)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if d.Kind != tt.wantKind || d.Reason() != tt.wantReason {
				t.Fatalf("decision = %s/%s, want %s/%s", d.Kind, d.Reason(), tt.wantKind, tt.wantReason)
			}

			after := env.account(t, "u1")
			if tt.wantKind != KindLogin {
				if after.Linkage != before.Linkage || !after.LastActive.Equal(before.LastActive) {
					t.Error("rejected login modified the account")
				}
				return
			}
			if !after.Linkage.Matches("Github", tt.identity.ProviderUserID) {
				t.Errorf("Linkage = %+v", after.Linkage)
			}
			if after.Linkage.ProviderEmail != tt.identity.Email {
				t.Errorf("ProviderEmail = %q", after.Linkage.ProviderEmail)
			}
			if !after.LastActive.Equal(env.clock.Now()) {
				t.Errorf("LastActive = %v", after.LastActive)
			}
			if after.Email != before.Email {
				t.Error("email changed without sync enabled")
			}
		})
	}
}

func TestReconcile_SyncProviderEmail(t *testing.T) {
	env := newTestEnv(t, true, testutil.NewLinkedAccount("u1", "octo", "old@example.com", "Github", "42"))
	env.reconciler.syncProviderEmail = true

	d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid}, ghIdentity("42", "octocat", "new@example.com"))
	if err != nil || d.Kind != KindLogin {
		t.Fatalf("Reconcile() = %+v, %v", d, err)
	}
	if got := env.account(t, "u1").Email; got != "new@example.com" {
		t.Errorf("Email = %q, want provider email", got)
	}
	if d.Account.Email != "new@example.com" {
		t.Errorf("decision account email = %q", d.Account.Email)
	}
}

func TestReconcile_Register(t *testing.T) {
	tests := []struct {
		name          string
		allow         bool
		provider      string
		action        login.ConnectAction
		identity      *providers.Identity
		existing      *storage.Account
		wantKind      Kind
		wantReason    login.Reason
		wantAvailable bool
	}{
		{
			name:     "register intent",
			allow:    true,
			action:   login.ActionRegister,
			identity: ghIdentity("42", "octocat", "octo@example.com"),
			wantKind: KindRegister,
		},
		{
			name:          "no intent offers registration",
			allow:         true,
			identity:      ghIdentity("42", "octocat", "octo@example.com"),
			wantKind:      KindReject,
			wantReason:    login.ReasonNoSuchAccount,
			wantAvailable: true,
		},
		{
			name:       "no intent without email",
			allow:      true,
			identity:   ghIdentity("42", "octocat", ""),
			wantKind:   KindReject,
			wantReason: login.ReasonNoSuchAccount,
		},
		{
			name:       "registration disabled",
			action:     login.ActionRegister,
			identity:   ghIdentity("42", "octocat", "octo@example.com"),
			wantKind:   KindReject,
			wantReason: login.ReasonRegistrationDisabled,
		},
		{
			name:       "provider without registration",
			allow:      true,
			provider:   "Spotify",
			action:     login.ActionRegister,
			identity:   &providers.Identity{ProviderName: "Spotify", ProviderUserID: "s1", Username: "spot", Email: "spot@example.com"},
			wantKind:   KindReject,
			wantReason: login.ReasonRegistrationNotSupported,
		},
		{
			name:       "missing email",
			allow:      true,
			action:     login.ActionRegister,
			identity:   ghIdentity("42", "octocat", ""),
			wantKind:   KindReject,
			wantReason: login.ReasonIncompleteIdentity,
		},
		{
			name:       "missing username",
			allow:      true,
			action:     login.ActionRegister,
			identity:   ghIdentity("42", "", "octo@example.com"),
			wantKind:   KindReject,
			wantReason: login.ReasonIncompleteIdentity,
		},
		{
			name:       "username taken",
			allow:      true,
			action:     login.ActionRegister,
			identity:   ghIdentity("42", "OctoCat", "octo@example.com"),
			existing:   testutil.NewAccount("u9", "octocat", "someone@example.com"),
			wantKind:   KindReject,
			wantReason: login.ReasonAccountAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seed []*storage.Account
			if tt.existing != nil {
				seed = append(seed, tt.existing)
			}
			env := newTestEnv(t, tt.allow, seed...)
			provider := tt.provider
			if provider == "" {
				provider = "Github"
			}

			d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: provider, Action: tt.action}, tt.identity)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if d.Kind != tt.wantKind || d.Reason() != tt.wantReason {
				t.Fatalf("decision = %s/%s, want %s/%s", d.Kind, d.Reason(), tt.wantKind, tt.wantReason)
			}
			if d.RegistrationAvailable != tt.wantAvailable {
				t.Errorf("RegistrationAvailable = %v", d.RegistrationAvailable)
			}
			if d.Kind == KindRegister {
				r := d.Registration
				if r.Email == "" || r.Username == "" {
					t.Fatal("registration proposed with incomplete identity")
				}
				if r.ProviderLabel != "GitHub" || !r.Linkage().Matches("Github", "42") {
					t.Errorf("Registration = %+v", r)
				}
			}
			if env.accounts.GetCallCount("CreateAccount") != 0 {
				t.Error("reconciler created an account")
			}
		})
	}
}

func TestReconcile_NormalizesIdentity(t *testing.T) {
	env := newTestEnv(t, true)
	long := strings.Repeat("é", 100)

	d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Action: login.ActionRegister}, &providers.Identity{
		ProviderName:   "Github",
		ProviderUserID: " " + long + " ",
		Username:       long,
		DisplayName:    long,
		Email:          long + "@example.com",
	})
	if err != nil || d.Kind != KindRegister {
		t.Fatalf("Reconcile() = %+v, %v", d, err)
	}
	r := d.Registration
	if n := len([]rune(r.Username)); n != login.MaxUsernameLength {
		t.Errorf("username length = %d", n)
	}
	for name, v := range map[string]string{"display name": r.DisplayName, "email": r.Email, "provider user id": r.ProviderUserID} {
		if n := len([]rune(v)); n != login.MaxFieldLength {
			t.Errorf("%s length = %d", name, n)
		}
	}
	if strings.HasPrefix(r.ProviderUserID, " ") {
		t.Error("provider user id not trimmed")
	}
}

func TestReconcile_ConnectExisting(t *testing.T) {
	caller := testutil.NewAccount("u1", "alice", "alice@example.com")
	env := newTestEnv(t, false, caller)
	env.startConnect(t, caller, "Github")

	env.clock.Advance(299 * time.Second)
	d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: "Github", Caller: caller}, ghIdentity("42", "gh-alice", "alice@users.example.com"))
	if err != nil || d.Kind != KindConnectExisting {
		t.Fatalf("Reconcile() = %+v, %v", d, err)
	}
	if !env.account(t, "u1").Linkage.Matches("Github", "42") {
		t.Error("linkage not stored")
	}
	if cs, _ := env.sessions.ConnectSession(context.Background(), sid); cs != nil {
		t.Error("connect session kept after connecting")
	}
}

func TestReconcile_ConnectSessionTimeout(t *testing.T) {
	caller := testutil.NewAccount("u1", "alice", "alice@example.com")
	env := newTestEnv(t, false, caller)
	env.startConnect(t, caller, "Github")

	env.clock.Advance(301 * time.Second)
	d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: "Github", Caller: caller}, ghIdentity("42", "gh-alice", ""))
	wantReject(t, d, err, login.ReasonTimeout)
	if !strings.Contains(d.Err.Message, "GitHub") {
		t.Errorf("timeout message %q does not name the provider", d.Err.Message)
	}
	if cs, _ := env.sessions.ConnectSession(context.Background(), sid); cs != nil {
		t.Error("expired connect session not deleted")
	}
	if env.account(t, "u1").Linkage.IsLinked() {
		t.Error("account linked after timeout")
	}
}

func TestReconcile_ConnectSessionHijack(t *testing.T) {
	alice := testutil.NewAccount("u1", "alice", "alice@example.com")
	mallory := testutil.NewAccount("u2", "mallory", "mallory@example.com")
	env := newTestEnv(t, false, alice, mallory)
	env.startConnect(t, alice, "Github")

	tests := []struct {
		name   string
		caller *storage.Account
	}{
		{name: "other user", caller: mallory},
		{name: "signed out", caller: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.startConnect(t, alice, "Github")
			d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: "Github", Caller: tt.caller}, ghIdentity("42", "gh", ""))
			wantReject(t, d, err, login.ReasonSecurityViolation)
			if cs, _ := env.sessions.ConnectSession(context.Background(), sid); cs != nil {
				t.Error("hijacked connect session not deleted")
			}
		})
	}
	if env.account(t, "u1").Linkage.IsLinked() || env.account(t, "u2").Linkage.IsLinked() {
		t.Error("hijack linked an account")
	}
}

func TestReconcile_ConnectConflicts(t *testing.T) {
	tests := []struct {
		name       string
		target     *storage.Account
		others     []*storage.Account
		wantReason login.Reason
	}{
		{
			name:       "identity linked elsewhere",
			target:     testutil.NewAccount("u1", "alice", "alice@example.com"),
			others:     []*storage.Account{testutil.NewLinkedAccount("u2", "bob", "bob@example.com", "Github", "42")},
			wantReason: login.ReasonAccountLinkConflict,
		},
		{
			name: "never active target",
			target: func() *storage.Account {
				acc := testutil.NewAccount("u1", "alice", "alice@example.com")
				acc.LastActive = time.Time{}
				return acc
			}(),
			wantReason: login.ReasonUnvettedAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false, append([]*storage.Account{tt.target}, tt.others...)...)
			env.startConnect(t, tt.target, "Github")

			d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: "Github", Caller: tt.target}, ghIdentity("42", "gh", ""))
			wantReject(t, d, err, tt.wantReason)
			if env.account(t, "u1").Linkage.IsLinked() {
				t.Error("target linked despite conflict")
			}
		})
	}
}

func TestReconcile_ConnectSessionForOtherProvider(t *testing.T) {
	caller := testutil.NewLinkedAccount("u1", "alice", "alice@example.com", "Github", "42")
	env := newTestEnv(t, false, caller)
	env.startConnect(t, caller, "Spotify")

	d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: "Github", Caller: caller}, ghIdentity("42", "gh", ""))
	if err != nil || d.Kind != KindLogin {
		t.Fatalf("Reconcile() = %+v, %v, want login", d, err)
	}
	if cs, _ := env.sessions.ConnectSession(context.Background(), sid); cs == nil {
		t.Error("connect session for another provider was removed")
	}
}

func TestPreCheck(t *testing.T) {
	linked := testutil.NewLinkedAccount("u1", "alice", "alice@example.com", "Github", "42")
	unlinked := testutil.NewAccount("u2", "bob", "bob@example.com")

	tests := []struct {
		name       string
		provider   string
		action     login.ConnectAction
		caller     *storage.Account
		wantKind   Kind
		wantReason login.Reason
	}{
		{name: "login", provider: "Github", wantKind: KindProceed},
		{name: "unknown provider", provider: "Myspace", wantKind: KindReject, wantReason: login.ReasonUnknownProvider},
		{name: "disconnect", provider: "Github", action: login.ActionDisconnect, caller: linked, wantKind: KindDisconnect},
		{name: "disconnect other provider", provider: "Spotify", action: login.ActionDisconnect, caller: linked, wantKind: KindReject, wantReason: login.ReasonInvalidRequest},
		{name: "disconnect signed out", provider: "Github", action: login.ActionDisconnect, wantKind: KindReject, wantReason: login.ReasonInvalidRequest},
		{name: "connect", provider: "Github", action: login.ActionConnect, caller: unlinked, wantKind: KindBeginConnect},
		{name: "connect signed out", provider: "Github", action: login.ActionConnect, wantKind: KindReject, wantReason: login.ReasonInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false, linked.Clone(), unlinked.Clone())
			ctx := context.Background()

			d, err := env.reconciler.PreCheck(ctx, Request{SessionID: sid, Provider: tt.provider, Action: tt.action, Caller: tt.caller})
			if err != nil {
				t.Fatalf("PreCheck() error = %v", err)
			}
			if d.Kind != tt.wantKind || d.Reason() != tt.wantReason {
				t.Fatalf("decision = %s/%s, want %s/%s", d.Kind, d.Reason(), tt.wantKind, tt.wantReason)
			}

			switch tt.wantKind {
			case KindDisconnect:
				if env.account(t, "u1").Linkage.IsLinked() {
					t.Error("linkage not cleared")
				}
			case KindBeginConnect:
				cs, err := env.sessions.ConnectSession(ctx, sid)
				if err != nil || cs == nil {
					t.Fatalf("connect session not stored: %v", err)
				}
				if cs.TargetUserID != tt.caller.ID || cs.ProviderName != tt.provider || !cs.CreatedAt.Equal(env.clock.Now()) {
					t.Errorf("connect session = %+v", cs)
				}
			}
		})
	}
}

func TestPreCheck_RejectsStaleConnectSession(t *testing.T) {
	caller := testutil.NewAccount("u1", "alice", "alice@example.com")
	env := newTestEnv(t, false, caller)
	env.startConnect(t, caller, "Github")
	env.clock.Advance(session.ConnectTimeout + time.Second)

	d, err := env.reconciler.PreCheck(context.Background(), Request{SessionID: sid, Provider: "Github", Caller: caller})
	wantReject(t, d, err, login.ReasonTimeout)
}

func TestPreCheck_DisconnectForgetsConnectSession(t *testing.T) {
	caller := testutil.NewLinkedAccount("u1", "alice", "alice@example.com", "Github", "X")
	env := newTestEnv(t, false, caller)
	ctx := context.Background()
	env.startConnect(t, caller, "Github")

	d, err := env.reconciler.PreCheck(ctx, Request{SessionID: sid, Provider: "Github", Action: login.ActionDisconnect, Caller: caller})
	if err != nil || d.Kind != KindDisconnect {
		t.Fatalf("PreCheck(disconnect) = %+v, %v", d, err)
	}
	if cs, _ := env.sessions.ConnectSession(ctx, sid); cs != nil {
		t.Fatalf("connect session kept after disconnect: %+v", cs)
	}

	env.clock.Advance(60 * time.Second)
	d, err = env.reconciler.Reconcile(ctx, Request{SessionID: sid, Provider: "Github", Caller: d.Account}, ghIdentity("Y", "", ""))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if d.Kind == KindConnectExisting {
		t.Fatal("login after disconnect was treated as a connect")
	}
	if env.account(t, "u1").Linkage.IsLinked() {
		t.Errorf("account relinked after disconnect: %+v", env.account(t, "u1").Linkage)
	}
}

func TestReconcile_LinkageFailureKeepsAccountInactive(t *testing.T) {
	boom := errors.New("database is locked")
	acc := testutil.NewAccount("u1", "octo", "octo@example.com")
	acc.LastActive = time.Time{}
	env := newTestEnv(t, false, acc)
	env.accounts.SetLinkageFunc = func(context.Context, string, storage.Linkage) error { return boom }

	_, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: "Github"}, ghIdentity("42", "octocat", "octo@example.com"))
	if !errors.Is(err, boom) {
		t.Fatalf("Reconcile() error = %v, want storage error", err)
	}
	if got := env.account(t, "u1"); got.HasBeenActive() || got.Linkage.IsLinked() {
		t.Errorf("account changed by failed login: %+v", got)
	}
	if n := env.accounts.GetCallCount("SetLastActive"); n != 0 {
		t.Errorf("SetLastActive called %d times", n)
	}

	// the next attempt is still a first-link login
	env.accounts.SetLinkageFunc = nil
	d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: "Github"}, ghIdentity("42", "octocat", "octo@example.com"))
	if err != nil || d.Kind != KindLogin {
		t.Fatalf("Reconcile() = %+v, %v, want login", d, err)
	}
}

func TestReconcile_StorageErrors(t *testing.T) {
	boom := errors.New("database is locked")

	tests := []struct {
		name   string
		inject func(*storagemock.MockAccountStore)
	}{
		{
			name: "provider lookup",
			inject: func(m *storagemock.MockAccountStore) {
				m.FindByProviderIdentityFunc = func(context.Context, string, string) (*storage.Account, error) { return nil, boom }
			},
		},
		{
			name: "email lookup",
			inject: func(m *storagemock.MockAccountStore) {
				m.FindByProviderIdentityFunc = func(context.Context, string, string) (*storage.Account, error) {
					return nil, storage.ErrAccountNotFound
				}
				m.FindByEmailFunc = func(context.Context, string) (*storage.Account, error) { return nil, boom }
			},
		},
		{
			name: "last active update",
			inject: func(m *storagemock.MockAccountStore) {
				m.SetLastActiveFunc = func(context.Context, string, time.Time) error { return boom }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true, testutil.NewLinkedAccount("u1", "octo", "octo@example.com", "Github", "42"))
			tt.inject(env.accounts)

			d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid}, ghIdentity("42", "octocat", "octo@example.com"))
			if !errors.Is(err, boom) {
				t.Fatalf("Reconcile() = %+v, %v, want storage error", d, err)
			}
			if d != nil {
				t.Error("decision returned with storage error")
			}
		})
	}
}

func TestReconcile_MissingIdentity(t *testing.T) {
	env := newTestEnv(t, true)

	d, err := env.reconciler.Reconcile(context.Background(), Request{SessionID: sid, Provider: "Github"}, &providers.Identity{ProviderName: "Github", ProviderUserID: "   "})
	wantReject(t, d, err, login.ReasonIdentityData)
}
