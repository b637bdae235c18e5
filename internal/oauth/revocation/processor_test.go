package revocation

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/catalog"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/memory"
)

type fixture struct {
	proc    *Processor
	svc     *tokens.Service
	refresh *tokens.RefreshService
	catalog *catalog.Store
	stores  *memory.Stores
	audit   *audit.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := jwt.GenerateEd25519()
	require.NoError(t, err)
	iss := jwt.NewIssuer("https://id.example.com", jwt.NewKeystore(key))

	store := catalog.NewStore([]repository.Client{
		{ClientID: "ref", Enabled: true, Flow: repository.FlowAuthorizationCode, AllowAccessToAllScopes: true, AccessTokenType: repository.AccessTokenReference},
		{ClientID: "other", Enabled: true, Flow: repository.FlowAuthorizationCode, AllowAccessToAllScopes: true, AccessTokenType: repository.AccessTokenReference},
	}, append(catalog.StandardScopes(), repository.Scope{Name: "api", Type: repository.ScopeTypeResource, Enabled: true}))

	hash, err := secret.HashBcrypt("pw")
	require.NoError(t, err)
	users := catalog.NewUserService([]repository.User{{Subject: "alice", Username: "alice", PasswordHash: hash}})

	stores := memory.New()
	rec := audit.NewRecorder()
	return &fixture{
		proc:    NewProcessor(stores.Handles, stores.Refresh, rec),
		svc:     tokens.NewService("https://id.example.com", iss, stores.Handles, users),
		refresh: tokens.NewRefreshService(stores.Refresh, rec),
		catalog: store,
		stores:  stores,
		audit:   rec,
	}
}

func (f *fixture) client(t *testing.T, id string) *repository.Client {
	t.Helper()
	c, err := f.catalog.FindClientByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

// issue emite un access token de referencia y un refresh token para alice.
func (f *fixture) issue(t *testing.T, clientID string) (access, refresh string) {
	t.Helper()
	ctx := context.Background()
	client := f.client(t, clientID)
	defs, err := f.catalog.FindScopes(ctx, []string{"api", "offline_access"})
	require.NoError(t, err)
	at, err := f.svc.CreateAccessToken(ctx, tokens.CreationRequest{
		Subject: &repository.Principal{Subject: "alice"},
		Client:  client,
		Scopes:  defs,
	})
	require.NoError(t, err)
	access, err = f.svc.CreateSecurityToken(ctx, at)
	require.NoError(t, err)
	refresh, err = f.refresh.Create(ctx, at, client)
	require.NoError(t, err)
	return access, refresh
}

func form(token, hint string) url.Values {
	v := url.Values{"token": {token}}
	if hint != "" {
		v.Set("token_type_hint", hint)
	}
	return v
}

func (f *fixture) handleExists(t *testing.T, handle string) bool {
	_, err := f.stores.Handles.Get(context.Background(), sectoken.SHA256Base64URL(handle))
	return err == nil
}

func (f *fixture) refreshExists(t *testing.T, handle string) bool {
	_, err := f.stores.Refresh.Get(context.Background(), sectoken.SHA256Base64URL(handle))
	return err == nil
}

func TestRevokeAccessToken(t *testing.T) {
	f := newFixture(t)
	access, refresh := f.issue(t, "ref")

	res, err := f.proc.Process(context.Background(), form(access, "access_token"), f.client(t, "ref"))
	require.NoError(t, err)
	assert.True(t, res.Revoked)
	assert.Equal(t, oauth.TokenTypeHintAccessToken, res.TokenType)
	assert.False(t, f.handleExists(t, access))
	assert.True(t, f.refreshExists(t, refresh))
	assert.Contains(t, f.audit.Names(), audit.EventTokenRevoked)
}

func TestRevokeRefreshToken_RevokesChain(t *testing.T) {
	f := newFixture(t)
	access1, refresh1 := f.issue(t, "ref")
	access2, refresh2 := f.issue(t, "ref")
	otherAccess, otherRefresh := f.issue(t, "other")

	res, err := f.proc.Process(context.Background(), form(refresh1, "refresh_token"), f.client(t, "ref"))
	require.NoError(t, err)
	assert.True(t, res.Revoked)
	assert.Equal(t, oauth.TokenTypeHintRefreshToken, res.TokenType)

	assert.False(t, f.refreshExists(t, refresh1))
	assert.False(t, f.refreshExists(t, refresh2))
	assert.False(t, f.handleExists(t, access1))
	assert.False(t, f.handleExists(t, access2))

	// los grants de otro cliente quedan intactos
	assert.True(t, f.refreshExists(t, otherRefresh))
	assert.True(t, f.handleExists(t, otherAccess))
}

func TestRevoke_WithoutHintTriesBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	access, refresh := f.issue(t, "ref")

	res, err := f.proc.Process(ctx, form(refresh, ""), f.client(t, "ref"))
	require.NoError(t, err)
	assert.Equal(t, oauth.TokenTypeHintRefreshToken, res.TokenType)
	assert.False(t, f.handleExists(t, access))

	access, _ = f.issue(t, "ref")
	res, err = f.proc.Process(ctx, form(access, ""), f.client(t, "ref"))
	require.NoError(t, err)
	assert.Equal(t, oauth.TokenTypeHintAccessToken, res.TokenType)
}

func TestRevoke_OtherClientIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	access, refresh := f.issue(t, "ref")

	res, err := f.proc.Process(ctx, form(access, "access_token"), f.client(t, "other"))
	require.NoError(t, err)
	assert.True(t, res.Mismatch)
	assert.False(t, res.Revoked)

	res, err = f.proc.Process(ctx, form(refresh, "refresh_token"), f.client(t, "other"))
	require.NoError(t, err)
	assert.True(t, res.Mismatch)

	assert.True(t, f.handleExists(t, access))
	assert.True(t, f.refreshExists(t, refresh))

	var mismatches int
	for _, e := range f.audit.Events() {
		if e.Name == audit.EventRevocationClientMismatch {
			mismatches++
		}
	}
	assert.Equal(t, 2, mismatches)
}

func TestRevoke_RequestErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.client(t, "ref")

	_, err := f.proc.Process(ctx, url.Values{}, client)
	assert.Equal(t, oauth.CodeInvalidRequest, oauth.CodeOf(err))

	_, err = f.proc.Process(ctx, form("abc", "id_token"), client)
	assert.Equal(t, oauth.CodeUnsupportedTokenType, oauth.CodeOf(err))

	// token desconocido: éxito sin efecto
	res, err := f.proc.Process(ctx, form("unknown", ""), client)
	require.NoError(t, err)
	assert.False(t, res.Revoked)
	assert.Empty(t, res.TokenType)
}
