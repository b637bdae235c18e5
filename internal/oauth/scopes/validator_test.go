package scopes

import (
	"context"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/catalog"
)

func newTestValidator() *Validator {
	scopes := append(catalog.StandardScopes(),
		repository.Scope{Name: "api", Type: repository.ScopeTypeResource, Enabled: true},
		repository.Scope{Name: "legacy", Type: repository.ScopeTypeResource, Enabled: false},
	)
	return NewValidator(catalog.NewStore(nil, scopes))
}

func TestParseScopes(t *testing.T) {
	assert.Nil(t, ParseScopes(""))
	assert.Nil(t, ParseScopes("   \t "))
	assert.Equal(t, []string{"api", "openid", "profile"}, ParseScopes("profile openid  api openid"))
}

func TestAreScopesValid(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	res, err := v.AreScopesValid(ctx, []string{"api", "openid", "offline_access"})
	require.NoError(t, err)
	assert.True(t, res.ContainsOpenIDScopes)
	assert.True(t, res.ContainsResourceScopes)
	assert.True(t, res.ContainsOfflineAccess)
	assert.ElementsMatch(t, []string{"api", "openid", "offline_access"}, res.Names())

	for _, bad := range [][]string{{"unknown"}, {"legacy"}, {"openid", "BAD"}} {
		_, err := v.AreScopesValid(ctx, bad)
		require.Error(t, err, "%v", bad)
		assert.Equal(t, oauth.CodeInvalidScope, oauth.CodeOf(err))
		assert.Equal(t, oauth.KindValidation, oauth.KindOf(err))
	}
}

func TestIsResponseTypeValid(t *testing.T) {
	idOnly := &Result{ContainsOpenIDScopes: true}
	resOnly := &Result{ContainsResourceScopes: true}
	both := &Result{ContainsOpenIDScopes: true, ContainsResourceScopes: true}

	assert.NoError(t, resOnly.IsResponseTypeValid(oauth.ResponseTypeCode))
	assert.NoError(t, resOnly.IsResponseTypeValid(oauth.ResponseTypeToken))
	assert.Error(t, both.IsResponseTypeValid(oauth.ResponseTypeToken))
	assert.NoError(t, idOnly.IsResponseTypeValid(oauth.ResponseTypeIDToken))
	assert.Error(t, both.IsResponseTypeValid(oauth.ResponseTypeIDToken))
	assert.NoError(t, both.IsResponseTypeValid(oauth.ResponseTypeCodeIDTokenToken))
	assert.Error(t, resOnly.IsResponseTypeValid(oauth.ResponseTypeCodeIDToken))
	assert.Error(t, both.IsResponseTypeValid("bogus"))
}

// Para clientes restringidos, AreScopesAllowed es true sii todos los scopes
// pedidos están en AllowedScopes.
func TestAreScopesAllowed_Property(t *testing.T) {
	universe := []string{"openid", "profile", "email", "api", "api:read", "api:write", "offline_access", "admin"}
	rng := rand.New(rand.NewSource(42))

	subset := func() []string {
		var out []string
		for _, s := range universe {
			if rng.Intn(2) == 0 {
				out = append(out, s)
			}
		}
		return out
	}

	for i := 0; i < 500; i++ {
		client := &repository.Client{ClientID: "c", AllowedScopes: subset()}
		requested := subset()

		want := true
		for _, s := range requested {
			if !slices.Contains(client.AllowedScopes, s) {
				want = false
				break
			}
		}
		require.Equal(t, want, AreScopesAllowed(client, requested), "allowed=%v requested=%v", client.AllowedScopes, requested)

		client.AllowAccessToAllScopes = true
		require.True(t, AreScopesAllowed(client, requested))
	}
}
