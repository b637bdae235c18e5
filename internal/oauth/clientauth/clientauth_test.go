package clientauth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/catalog"
)

func postForm(t *testing.T, form url.Values) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/connect/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, r.ParseForm())
	return r
}

func TestParse(t *testing.T) {
	t.Run("basic with url-encoded parts", func(t *testing.T) {
		r := postForm(t, url.Values{})
		raw := url.QueryEscape("my client") + ":" + url.QueryEscape("s3:cr+t")
		r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
		ps, err := Parse(r)
		require.NoError(t, err)
		assert.Equal(t, "my client", ps.ID)
		assert.Equal(t, "s3:cr+t", ps.Credential)
		assert.Equal(t, MethodBasic, ps.Method)
	})
	t.Run("malformed basic", func(t *testing.T) {
		r := postForm(t, url.Values{})
		r.Header.Set("Authorization", "Basic !!!")
		_, err := Parse(r)
		assert.Equal(t, oauth.CodeInvalidClient, oauth.CodeOf(err))
	})
	t.Run("post body", func(t *testing.T) {
		ps, err := Parse(postForm(t, url.Values{"client_id": {"web"}, "client_secret": {"s"}}))
		require.NoError(t, err)
		assert.Equal(t, MethodPost, ps.Method)
	})
	t.Run("certificate", func(t *testing.T) {
		r := postForm(t, url.Values{"client_id": {"svc"}})
		r.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{{Raw: []byte("der")}}}
		ps, err := Parse(r)
		require.NoError(t, err)
		assert.Equal(t, MethodCertificate, ps.Method)
	})
	t.Run("public", func(t *testing.T) {
		ps, err := Parse(postForm(t, url.Values{"client_id": {"spa"}}))
		require.NoError(t, err)
		assert.Equal(t, MethodNone, ps.Method)
	})
	t.Run("nothing", func(t *testing.T) {
		ps, err := Parse(postForm(t, url.Values{}))
		require.NoError(t, err)
		assert.Nil(t, ps)
	})
}

func newAuthenticator(t *testing.T) (*Authenticator, *audit.Recorder) {
	t.Helper()
	hashed, err := secret.Hash(secret.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}, "hashed-secret")
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)

	store := catalog.NewStore([]repository.Client{
		{ClientID: "web", Enabled: true, Flow: repository.FlowAuthorizationCode, ClientSecrets: []repository.Secret{
			{Type: repository.SecretShared, Value: "old", Expiration: &past},
			{Type: repository.SecretHashed, Value: hashed},
		}},
		{ClientID: "plain", Enabled: true, Flow: repository.FlowClientCredentials, ClientSecrets: []repository.Secret{
			{Type: repository.SecretShared, Value: "plain-secret"},
		}},
		{ClientID: "cert", Enabled: true, Flow: repository.FlowClientCredentials, ClientSecrets: []repository.Secret{
			{Type: repository.SecretX509Thumbprint, Value: strings.ToUpper(CertificateThumbprint(&ParsedSecret{Certificate: &x509.Certificate{Raw: []byte("der")}}))},
		}},
		{ClientID: "spa", Enabled: true, Public: true, Flow: repository.FlowAuthorizationCodeWithProofKey},
		{ClientID: "off", Enabled: false, Flow: repository.FlowClientCredentials, ClientSecrets: []repository.Secret{
			{Type: repository.SecretShared, Value: "x"},
		}},
	}, []repository.Scope{
		{Name: "api1", Type: repository.ScopeTypeResource, Enabled: true, ScopeSecrets: []repository.Secret{
			{Type: repository.SecretShared, Value: "api-secret"},
		}},
		{Name: "api2", Type: repository.ScopeTypeResource, Enabled: true},
	})
	rec := audit.NewRecorder()
	return New(store, store, rec), rec
}

func TestAuthenticateClient(t *testing.T) {
	a, rec := newAuthenticator(t)
	ctx := context.Background()

	ok := []*ParsedSecret{
		{ID: "web", Credential: "hashed-secret", Method: MethodBasic},
		{ID: "plain", Credential: "plain-secret", Method: MethodPost},
		{ID: "cert", Certificate: &x509.Certificate{Raw: []byte("der")}, Method: MethodCertificate},
		{ID: "spa", Method: MethodNone},
	}
	for _, ps := range ok {
		c, err := a.AuthenticateClient(ctx, ps)
		require.NoError(t, err, ps.ID)
		assert.Equal(t, ps.ID, c.ClientID)
	}
	assert.Empty(t, rec.Names())

	bad := []*ParsedSecret{
		nil,
		{ID: "web", Credential: "old", Method: MethodBasic},
		{ID: "web", Method: MethodNone},
		{ID: "plain", Credential: "wrong", Method: MethodPost},
		{ID: "cert", Certificate: &x509.Certificate{Raw: []byte("other")}, Method: MethodCertificate},
		{ID: "off", Credential: "x", Method: MethodPost},
		{ID: "ghost", Credential: "x", Method: MethodPost},
	}
	for _, ps := range bad {
		_, err := a.AuthenticateClient(ctx, ps)
		assert.Equal(t, oauth.CodeInvalidClient, oauth.CodeOf(err))
	}
	assert.Len(t, rec.Names(), len(bad)-1)
}

func TestAuthenticateScope(t *testing.T) {
	a, rec := newAuthenticator(t)
	ctx := context.Background()

	sc, err := a.AuthenticateScope(ctx, &ParsedSecret{ID: "api1", Credential: "api-secret", Method: MethodBasic})
	require.NoError(t, err)
	assert.Equal(t, "api1", sc.Name)

	_, err = a.AuthenticateScope(ctx, &ParsedSecret{ID: "api1", Credential: "nope", Method: MethodBasic})
	assert.Equal(t, oauth.CodeInvalidClient, oauth.CodeOf(err))
	_, err = a.AuthenticateScope(ctx, &ParsedSecret{ID: "api2", Credential: "x", Method: MethodBasic})
	assert.Equal(t, oauth.CodeInvalidClient, oauth.CodeOf(err))
	assert.Equal(t, []string{audit.EventScopeAuthFailed, audit.EventScopeAuthFailed}, rec.Names())
}
