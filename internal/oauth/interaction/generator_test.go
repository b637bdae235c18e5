package interaction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/consent"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/catalog"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/memory"
)

type fixture struct {
	gen      *Generator
	consents *memory.Consents
	audit    *audit.Recorder
	alice    *repository.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := secret.HashBcrypt("pw")
	require.NoError(t, err)
	users := catalog.NewUserService([]repository.User{
		{Subject: "alice", Username: "alice", PasswordHash: hash},
		{Subject: "carol", Username: "carol", PasswordHash: hash, Disabled: true},
	})
	consents := memory.NewConsents()
	rec := audit.NewRecorder()
	return &fixture{
		gen:      NewGenerator(consent.NewService(consents), users, rec, true),
		consents: consents,
		audit:    rec,
		alice: &repository.Principal{
			Subject: "alice", IdentityProvider: repository.LocalIdentityProvider,
			AuthTime: time.Now().Add(-time.Minute), SessionID: "sid-1",
		},
	}
}

func scope(name string, required bool) repository.Scope {
	typ := repository.ScopeTypeResource
	if name == repository.ScopeOpenID || name == repository.ScopeProfile {
		typ = repository.ScopeTypeIdentity
	}
	return repository.Scope{Name: name, Type: typ, Enabled: true, Required: required}
}

func newRequest(client *repository.Client, names ...string) *oauth.ValidatedAuthorizeRequest {
	req := &oauth.ValidatedAuthorizeRequest{
		ClientID:        client.ClientID,
		Client:          client,
		RequestedScopes: names,
	}
	for _, n := range names {
		req.Scopes = append(req.Scopes, scope(n, n == repository.ScopeOpenID))
	}
	return req
}

func consentClient() *repository.Client {
	return &repository.Client{ClientID: "app", Enabled: true, RequireConsent: true, AllowRememberConsent: true}
}

func TestProcess_AnonymousRequiresLogin(t *testing.T) {
	f := newFixture(t)
	req := newRequest(consentClient(), "openid")
	req.LoginHint = "alice"

	resp, err := f.gen.Process(context.Background(), req, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, RequiresLogin, resp.Kind)
	require.NotNil(t, resp.SignIn)
	assert.Equal(t, "alice", resp.SignIn.LoginHint)
	assert.Nil(t, req.Subject)
}

func TestProcess_PromptNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := newRequest(consentClient(), "openid")
	req.PromptModes = []string{oauth.PromptNone}
	resp, err := f.gen.Process(ctx, req, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Error, resp.Kind)
	assert.Equal(t, oauth.CodeLoginRequired, resp.Err.Code)

	req = newRequest(consentClient(), "openid", "read")
	req.PromptModes = []string{oauth.PromptNone}
	resp, err = f.gen.Process(ctx, req, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, Error, resp.Kind)
	assert.Equal(t, oauth.CodeConsentRequired, resp.Err.Code)
}

func TestProcess_PromptLoginIsStripped(t *testing.T) {
	f := newFixture(t)
	req := newRequest(&repository.Client{ClientID: "app"}, "openid")
	req.Raw = map[string][]string{"prompt": {"login"}}
	req.PromptModes = []string{oauth.PromptLogin}

	resp, err := f.gen.Process(context.Background(), req, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, RequiresLogin, resp.Kind)
	assert.Empty(t, req.PromptModes)
	assert.Empty(t, req.Raw.Get("prompt"))
	assert.Equal(t, sectoken.SHA256Base64URL("sid-1"), req.Raw.Get(oauth.ParamReplacedSession))

	// la sesión previa no alcanza aunque prompt ya no esté
	resp, err = f.gen.Process(context.Background(), req, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, RequiresLogin, resp.Kind)

	// segunda pasada, recién autenticado (mismo segundo, sid nuevo)
	fresh := *f.alice
	fresh.SessionID = "sid-2"
	resp, err = f.gen.Process(context.Background(), req, &fresh, nil)
	require.NoError(t, err)
	assert.Equal(t, NoInteraction, resp.Kind)
	assert.Equal(t, "alice", req.Subject.Subject)
	assert.Equal(t, "sid-2", req.SessionID)
}

func TestProcess_PromptLoginAnonymous(t *testing.T) {
	f := newFixture(t)
	req := newRequest(&repository.Client{ClientID: "app"}, "openid")
	req.Raw = map[string][]string{"prompt": {"login"}}
	req.PromptModes = []string{oauth.PromptLogin}

	resp, err := f.gen.Process(context.Background(), req, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, RequiresLogin, resp.Kind)
	assert.Empty(t, req.Raw.Get(oauth.ParamReplacedSession))
}

func TestProcessLogin_Reauthentication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := &repository.Client{ClientID: "app"}

	cases := []struct {
		name   string
		user   *repository.Principal
		mutate func(*oauth.ValidatedAuthorizeRequest)
	}{
		{"inactive user", &repository.Principal{Subject: "carol"}, nil},
		{"idp hint mismatch", f.alice, func(r *oauth.ValidatedAuthorizeRequest) { r.IdPHint = "google" }},
		{"max_age exceeded", f.alice, func(r *oauth.ValidatedAuthorizeRequest) { zero := 0; r.MaxAge = &zero }},
		{"id_token_hint for another user", f.alice, func(r *oauth.ValidatedAuthorizeRequest) { r.SubjectFromIDTokenHint = "bob" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := newRequest(client, "openid")
			if tc.mutate != nil {
				tc.mutate(req)
			}
			resp, err := f.gen.ProcessLogin(ctx, req, tc.user)
			require.NoError(t, err)
			assert.Equal(t, RequiresLogin, resp.Kind)
		})
	}

	req := newRequest(client, "openid")
	hour := 3600
	req.MaxAge = &hour
	req.IdPHint = repository.LocalIdentityProvider
	resp, err := f.gen.ProcessLogin(ctx, req, f.alice)
	require.NoError(t, err)
	assert.Equal(t, NoInteraction, resp.Kind)
}

func TestProcessClientLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	restricted := &repository.Client{ClientID: "app", IdentityProviderRestrictions: []string{"google"}}
	req := newRequest(restricted, "openid")
	req.Subject = f.alice
	resp, err := f.gen.ProcessClientLogin(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, RequiresLogin, resp.Kind)

	req.Subject = &repository.Principal{Subject: "alice", IdentityProvider: "google"}
	resp, err = f.gen.ProcessClientLogin(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, NoInteraction, resp.Kind)

	noLocal := &repository.Client{ClientID: "app", DisableLocalLogin: true}
	req = newRequest(noLocal, "openid")
	req.Subject = f.alice
	resp, err = f.gen.ProcessClientLogin(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, RequiresLogin, resp.Kind)

	f.gen.EnableLocalLogin = false
	req = newRequest(&repository.Client{ClientID: "app"}, "openid")
	req.Subject = f.alice
	resp, err = f.gen.ProcessClientLogin(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, RequiresLogin, resp.Kind)
}

func TestProcessConsent_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := consentClient()

	req := newRequest(client, "openid", "read", "write")
	resp, err := f.gen.Process(ctx, req, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, RequiresConsent, resp.Kind)
	assert.False(t, req.WasConsentShown)

	// aceptó sin elegir nada
	req = newRequest(client, "openid", "read", "write")
	resp, err = f.gen.Process(ctx, req, f.alice, &oauth.ConsentDecision{Granted: true})
	require.NoError(t, err)
	assert.Equal(t, RequiresConsent, resp.Kind)
	assert.Equal(t, MsgNoScopesSelected, resp.ConsentMessageKey)

	// rechazó
	req = newRequest(client, "openid", "read", "write")
	resp, err = f.gen.Process(ctx, req, f.alice, &oauth.ConsentDecision{Granted: false})
	require.NoError(t, err)
	assert.Equal(t, Error, resp.Kind)
	assert.Equal(t, oauth.CodeAccessDenied, resp.Err.Code)

	// aceptó "read" y un scope que no pidió; openid es Required
	req = newRequest(client, "openid", "read", "write")
	resp, err = f.gen.Process(ctx, req, f.alice, &oauth.ConsentDecision{Granted: true, Scopes: []string{"read", "admin"}, RememberConsent: true})
	require.NoError(t, err)
	assert.Equal(t, NoInteraction, resp.Kind)
	assert.Equal(t, []string{"openid", "read"}, req.GrantedScopes)
	assert.Equal(t, []string{"openid", "read"}, req.EffectiveScopes())
	assert.True(t, req.WasConsentShown)

	stored, err := f.consents.Load(ctx, "alice", "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "read"}, stored.Scopes)

	// lo recordado cubre el subset
	req = newRequest(client, "openid", "read")
	resp, err = f.gen.Process(ctx, req, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, NoInteraction, resp.Kind)

	// prompt=consent fuerza la pantalla aunque haya consent guardado
	req = newRequest(client, "openid", "read")
	req.PromptModes = []string{oauth.PromptConsent}
	resp, err = f.gen.Process(ctx, req, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, RequiresConsent, resp.Kind)

	assert.Contains(t, f.audit.Names(), audit.EventConsentGranted)
}

func TestProcessConsent_WithoutRememberClearsStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := consentClient()
	require.NoError(t, f.consents.Update(ctx, &repository.Consent{Subject: "alice", ClientID: "app", Scopes: []string{"read"}}))

	req := newRequest(client, "openid", "read", "write")
	resp, err := f.gen.Process(ctx, req, f.alice, &oauth.ConsentDecision{Granted: true, Scopes: []string{"read", "write"}})
	require.NoError(t, err)
	assert.Equal(t, NoInteraction, resp.Kind)

	_, err = f.consents.Load(ctx, "alice", "app")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProcessConsent_OfflineAccessAlwaysAsks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := consentClient()
	require.NoError(t, f.consents.Update(ctx, &repository.Consent{Subject: "alice", ClientID: "app", Scopes: []string{"offline_access", "openid"}}))

	req := newRequest(client, "offline_access", "openid")
	resp, err := f.gen.Process(ctx, req, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, RequiresConsent, resp.Kind)
}

func TestProcessConsent_ClientWithoutConsent(t *testing.T) {
	f := newFixture(t)
	req := newRequest(&repository.Client{ClientID: "trusted"}, "openid", "offline_access")
	resp, err := f.gen.Process(context.Background(), req, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, NoInteraction, resp.Kind)
	assert.Nil(t, req.GrantedScopes)
	assert.Equal(t, []string{"openid", "offline_access"}, req.EffectiveScopes())
}
