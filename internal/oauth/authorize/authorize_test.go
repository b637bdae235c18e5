package authorize

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/scopes"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secretbox"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/catalog"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/memory"
)

const (
	issuer   = "https://id.example.com"
	callback = "https://app.example.com/cb"
	verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

type fixture struct {
	validator *RequestValidator
	generator *ResponseGenerator
	tokens    *tokens.Service
	hints     *tokens.Validator
	stores    *memory.Stores
	alice     *repository.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := jwt.GenerateEd25519()
	require.NoError(t, err)
	iss := jwt.NewIssuer(issuer, jwt.NewKeystore(key))

	all := append(catalog.StandardScopes(),
		repository.Scope{Name: "api", Type: repository.ScopeTypeResource, Enabled: true},
		repository.Scope{Name: "legacy", Type: repository.ScopeTypeResource, Enabled: false},
	)
	store := catalog.NewStore([]repository.Client{
		{ClientID: "web", Enabled: true, Flow: repository.FlowAuthorizationCode, RedirectURIs: []string{callback}, AllowAccessToAllScopes: true},
		{ClientID: "spa", Enabled: true, Public: true, Flow: repository.FlowAuthorizationCodeWithProofKey, RedirectURIs: []string{callback}, AllowAccessToAllScopes: true},
		{ClientID: "implicit", Enabled: true, Flow: repository.FlowImplicit, RedirectURIs: []string{callback}, AllowAccessToAllScopes: true},
		{ClientID: "hybrid", Enabled: true, Flow: repository.FlowHybrid, RedirectURIs: []string{callback}, AllowAccessToAllScopes: true},
		{ClientID: "narrow", Enabled: true, Flow: repository.FlowAuthorizationCode, RedirectURIs: []string{callback}, AllowedScopes: []string{"openid"}},
		{ClientID: "off", Enabled: false, Flow: repository.FlowAuthorizationCode, RedirectURIs: []string{callback}},
	}, all)

	hash, err := secret.HashBcrypt("pw")
	require.NoError(t, err)
	users := catalog.NewUserService([]repository.User{
		{Subject: "alice", Username: "alice", PasswordHash: hash, Claims: []repository.Claim{{Type: "name", Value: "Alice"}}},
	})
	stores := memory.New()
	ts := tokens.NewService(issuer, iss, stores.Handles, users)
	hints := tokens.NewValidator(issuer, iss, stores.Handles, store, users)

	return &fixture{
		validator: NewRequestValidator(store, scopes.NewValidator(store), hints),
		generator: NewResponseGenerator(stores.Codes, ts),
		tokens:    ts,
		hints:     hints,
		stores:    stores,
		alice: &repository.Principal{
			Subject: "alice", IdentityProvider: repository.LocalIdentityProvider,
			AuthMethods: []string{"pwd"}, AuthTime: time.Now().Add(-time.Minute), SessionID: "sid-1",
		},
	}
}

func params(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func codeParams(extra ...string) url.Values {
	base := []string{"client_id", "web", "redirect_uri", callback, "response_type", "code", "scope", "openid profile", "state", "xyz"}
	return params(append(base, extra...)...)
}

func TestValidate_UserErrorsBeforeRedirectIsTrusted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		p    url.Values
		key  string
	}{
		{"missing client_id", params("redirect_uri", callback, "response_type", "code"), MsgInvalidRequest},
		{"unknown client", params("client_id", "nope", "redirect_uri", callback, "response_type", "code"), MsgUnknownClient},
		{"disabled client", params("client_id", "off", "redirect_uri", callback, "response_type", "code"), MsgUnknownClient},
		{"unregistered redirect", params("client_id", "web", "redirect_uri", "https://evil.example.com/cb", "response_type", "code"), MsgInvalidRedirectURI},
		{"redirect with fragment", params("client_id", "web", "redirect_uri", callback+"#x", "response_type", "code"), MsgInvalidRedirectURI},
		{"redirect with extra query", params("client_id", "web", "redirect_uri", callback+"?a=1", "response_type", "code"), MsgInvalidRedirectURI},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := f.validator.Validate(ctx, tc.p, nil)
			require.Error(t, err)
			assert.Nil(t, req)
			assert.Equal(t, oauth.KindUser, oauth.KindOf(err))
			e, _ := oauth.AsError(err)
			assert.Equal(t, tc.key, e.MessageKey)
		})
	}
}

func TestValidate_ClientErrorsKeepRedirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		p    url.Values
		code string
	}{
		{"missing response_type", params("client_id", "web", "redirect_uri", callback, "scope", "openid", "state", "s"), oauth.CodeUnsupportedResponseType},
		{"unknown response_type", codeParams("response_type", "magic"), oauth.CodeUnsupportedResponseType},
		{"flow not allowed", codeParams("response_type", "token"), oauth.CodeUnauthorizedClient},
		{"tokens in query", params("client_id", "implicit", "redirect_uri", callback, "response_type", "id_token", "scope", "openid", "nonce", "n", "response_mode", "query", "state", "s"), oauth.CodeInvalidRequest},
		{"missing scope", codeParams("scope", ""), oauth.CodeInvalidScope},
		{"unknown scope", codeParams("scope", "openid nope"), oauth.CodeInvalidScope},
		{"disabled scope", codeParams("scope", "openid legacy"), oauth.CodeInvalidScope},
		{"scope not allowed", params("client_id", "narrow", "redirect_uri", callback, "response_type", "code", "scope", "openid profile", "state", "s"), oauth.CodeInvalidScope},
		{"nonce required for implicit", params("client_id", "implicit", "redirect_uri", callback, "response_type", "id_token", "scope", "openid", "state", "s"), oauth.CodeInvalidRequest},
		{"offline_access in implicit", params("client_id", "implicit", "redirect_uri", callback, "response_type", "token", "scope", "api offline_access", "state", "s"), oauth.CodeInvalidScope},
		{"prompt none combined", codeParams("prompt", "none login"), oauth.CodeInvalidRequest},
		{"bad max_age", codeParams("max_age", "-1"), oauth.CodeInvalidRequest},
		{"bad login marker", codeParams(oauth.ParamReplacedSession, "sid-1"), oauth.CodeInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := f.validator.Validate(ctx, tc.p, nil)
			require.Error(t, err)
			require.NotNil(t, req, "client errors keep the partial request for the redirect")
			assert.Equal(t, callback, req.RedirectURI)
			assert.Equal(t, tc.code, oauth.CodeOf(err))
			assert.NotEqual(t, oauth.KindUser, oauth.KindOf(err))
		})
	}
}

func TestValidate_CodeFlow(t *testing.T) {
	f := newFixture(t)
	req, err := f.validator.Validate(context.Background(),
		codeParams("prompt", "login consent", "max_age", "300", "acr_values", "idp:google tenant:acme", "ui_locales", "es"), nil)
	require.NoError(t, err)

	assert.Equal(t, repository.FlowAuthorizationCode, req.Flow)
	assert.Equal(t, oauth.ResponseModeQuery, req.ResponseMode)
	assert.Equal(t, []string{"openid", "profile"}, req.RequestedScopes)
	assert.True(t, req.IsOpenIDRequest)
	assert.False(t, req.AccessTokenRequested)
	assert.Equal(t, "xyz", req.State)
	assert.Equal(t, []string{"consent", "login"}, req.PromptModes)
	require.NotNil(t, req.MaxAge)
	assert.Equal(t, 300, *req.MaxAge)
	assert.Equal(t, "google", req.IdPHint)
	assert.Equal(t, "acme", req.TenantHint)
	assert.Equal(t, "es", req.UILocales)
}

func TestValidate_ResponseTypeIsOrderInsensitive(t *testing.T) {
	f := newFixture(t)
	p := params("client_id", "hybrid", "redirect_uri", callback, "response_type", "token id_token code",
		"scope", "openid api", "nonce", "n", "state", "s")
	req, err := f.validator.Validate(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, oauth.ResponseTypeCodeIDTokenToken, req.ResponseType)
	assert.Equal(t, repository.FlowHybrid, req.Flow)
	assert.Equal(t, oauth.ResponseModeFragment, req.ResponseMode)
	assert.True(t, req.AccessTokenRequested)
}

func TestValidate_PKCE(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := []string{"client_id", "spa", "redirect_uri", callback, "response_type", "code", "scope", "openid", "state", "s"}

	_, err := f.validator.Validate(ctx, params(base...), nil)
	assert.Equal(t, oauth.CodeInvalidRequest, oauth.CodeOf(err))
	assert.Equal(t, oauth.KindValidation, oauth.KindOf(err))

	_, err = f.validator.Validate(ctx, params(append(base, "code_challenge", "short")...), nil)
	assert.Equal(t, oauth.CodeInvalidRequest, oauth.CodeOf(err))

	_, err = f.validator.Validate(ctx, params(append(base, "code_challenge", verifier, "code_challenge_method", "S512")...), nil)
	assert.Equal(t, oauth.CodeInvalidRequest, oauth.CodeOf(err))

	req, err := f.validator.Validate(ctx, params(append(base, "code_challenge", verifier)...), nil)
	require.NoError(t, err)
	assert.Equal(t, repository.FlowAuthorizationCodeWithProofKey, req.Flow)
	assert.Equal(t, oauth.CodeChallengeMethodPlain, req.CodeChallengeMethod)
}

func TestValidate_PromptLoginWithDecision(t *testing.T) {
	f := newFixture(t)
	_, err := f.validator.Validate(context.Background(), codeParams("prompt", "login"), &oauth.ConsentDecision{Granted: true})
	assert.Equal(t, oauth.CodeInvalidRequest, oauth.CodeOf(err))
}

func TestValidate_LoginMarker(t *testing.T) {
	f := newFixture(t)
	marker := sectoken.SHA256Base64URL("sid-1")
	req, err := f.validator.Validate(context.Background(), codeParams(oauth.ParamReplacedSession, marker), nil)
	require.NoError(t, err)
	assert.Equal(t, marker, req.ReplacedSession)
	assert.Equal(t, marker, req.Raw.Get(oauth.ParamReplacedSession))
	assert.True(t, req.IsReplacedSession("sid-1"))
	assert.False(t, req.IsReplacedSession("sid-2"))

	req, err = f.validator.Validate(context.Background(), codeParams(), nil)
	require.NoError(t, err)
	assert.Empty(t, req.ReplacedSession)
	assert.False(t, req.IsReplacedSession("sid-1"))
}

func TestValidate_IDTokenHint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := &repository.Client{ClientID: "web", IdentityTokenLifetime: 5 * time.Minute}

	it, err := f.tokens.CreateIdentityToken(ctx, tokens.CreationRequest{Subject: f.alice, Client: client})
	require.NoError(t, err)
	hint, err := f.tokens.CreateSecurityToken(ctx, it)
	require.NoError(t, err)

	req, err := f.validator.Validate(ctx, codeParams("id_token_hint", hint), nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", req.SubjectFromIDTokenHint)

	// un hint ilegible no rompe el request
	req, err = f.validator.Validate(ctx, codeParams("id_token_hint", "garbage.hint.value"), nil)
	require.NoError(t, err)
	assert.Empty(t, req.SubjectFromIDTokenHint)
}

func TestResumeCodec(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	box, err := secretbox.New(raw)
	require.NoError(t, err)

	c := NewResumeCodec(box, time.Minute)
	p := codeParams("nonce", "n-1")

	sealed, err := c.Seal(p)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "client_id")

	got, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = c.Open(sealed[:len(sealed)-2] + "AA")
	assert.ErrorIs(t, err, ErrResumeInvalid)
	_, err = c.Open("")
	assert.ErrorIs(t, err, ErrResumeInvalid)

	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = c.Open(sealed)
	assert.ErrorIs(t, err, ErrResumeExpired)
}

func TestCreateResponse_CodeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := params("client_id", "spa", "redirect_uri", callback, "response_type", "code", "scope", "openid profile",
		"state", "s-1", "code_challenge", verifier, "code_challenge_method", "plain")
	req, err := f.validator.Validate(ctx, p, nil)
	require.NoError(t, err)
	req.Subject = f.alice
	req.GrantedScopes = []string{"openid"}

	resp, err := f.generator.CreateResponse(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Code)
	assert.Empty(t, resp.AccessToken)
	assert.Empty(t, resp.IdentityToken)
	assert.Equal(t, "s-1", resp.State)
	assert.Equal(t, oauth.ResponseModeQuery, resp.ResponseMode)
	assert.Contains(t, resp.SessionState, ".")

	// el code se guarda bajo el hash del handle, nunca en claro
	_, err = f.stores.Codes.Get(ctx, resp.Code)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	code, err := f.stores.Codes.Get(ctx, sectoken.SHA256Base64URL(resp.Code))
	require.NoError(t, err)
	assert.Equal(t, "spa", code.ClientID)
	assert.Equal(t, "alice", code.Subject)
	assert.Equal(t, "sid-1", code.SessionID)
	assert.Equal(t, []string{"openid"}, code.RequestedScopes)
	assert.Equal(t, callback, code.RedirectURI)
	assert.Equal(t, sectoken.SHA256Base64URL(verifier), code.CodeChallenge)
	assert.NotEqual(t, verifier, code.CodeChallenge)

	v := resp.Params()
	assert.Equal(t, resp.Code, v.Get("code"))
	assert.Equal(t, "s-1", v.Get("state"))
	assert.Empty(t, v.Get("access_token"))
}

func TestCreateResponse_Implicit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := params("client_id", "implicit", "redirect_uri", callback, "response_type", "id_token token",
		"scope", "openid api", "nonce", "n-1", "state", "s")
	req, err := f.validator.Validate(ctx, p, nil)
	require.NoError(t, err)
	req.Subject = f.alice

	resp, err := f.generator.CreateResponse(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, resp.Code)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.IdentityToken)
	assert.Equal(t, "api openid", resp.Scope)
	assert.Equal(t, 3600, resp.AccessTokenLifetime)

	res, err := f.hints.ValidateIdentityToken(ctx, resp.IdentityToken, tokens.IdentityTokenOptions{
		ClientID: "implicit", ValidateLifetime: true, Nonce: "n-1", AccessToken: resp.AccessToken,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Token.SubjectID())

	v := resp.Params()
	assert.Equal(t, "Bearer", v.Get("token_type"))
	assert.Equal(t, "3600", v.Get("expires_in"))
}

func TestCreateResponse_HybridHashesCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := params("client_id", "hybrid", "redirect_uri", callback, "response_type", "code id_token",
		"scope", "openid", "nonce", "n", "state", "s")
	req, err := f.validator.Validate(ctx, p, nil)
	require.NoError(t, err)
	req.Subject = f.alice

	resp, err := f.generator.CreateResponse(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Code)
	require.NotEmpty(t, resp.IdentityToken)
	assert.Empty(t, resp.AccessToken)

	res, err := f.hints.ValidateIdentityToken(ctx, resp.IdentityToken, tokens.IdentityTokenOptions{ClientID: "hybrid", ValidateLifetime: true})
	require.NoError(t, err)
	assert.Equal(t, sectoken.LeftHalfHash(resp.Code), repository.FirstClaim(res.Token.Claims, repository.ClaimCodeHash))
}

func TestCreateResponse_RequiresSubject(t *testing.T) {
	f := newFixture(t)
	req, err := f.validator.Validate(context.Background(), codeParams(), nil)
	require.NoError(t, err)
	_, err = f.generator.CreateResponse(context.Background(), req)
	assert.Equal(t, oauth.KindConfiguration, oauth.KindOf(err))
}

func TestSessionState(t *testing.T) {
	a := SessionState("web", "https://app.example.com:8443/cb?x=1", "sid", "salt")
	b := SessionState("web", "https://app.example.com:8443/other", "sid", "salt")
	assert.Equal(t, a, b, "only the origin of the redirect uri matters")
	assert.True(t, strings.HasSuffix(a, ".salt"))
	assert.NotEqual(t, a, SessionState("web", "https://app.example.com:8443/cb", "other-sid", "salt"))
	assert.Equal(t, "https://app.example.com:8443", Origin("https://app.example.com:8443/cb?x=1"))
}
