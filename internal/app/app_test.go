package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/config"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secretbox"
)

const testCatalog = `
include_standard_scopes: true
scopes:
  - name: api
    display_name: Orders API
    type: resource
    enabled: true
    show_in_discovery_document: true
    secrets:
      - type: shared_secret
        value: api-secret
clients:
  - client_id: web
    client_name: Web App
    enabled: true
    flow: authorization_code
    secrets:
      - type: shared_secret
        value: web-secret
    redirect_uris: ["https://web.example.com/cb"]
    allowed_scopes: [openid, profile, email, api, offline_access]
    access_token_type: reference
    require_consent: true
    allow_remember_consent: true
users:
  - subject: "u1"
    username: alice
    password_hash: "%s"
    claims:
      - {type: name, value: Alice}
      - {type: email, value: alice@example.com}
`

type testEnv struct {
	app    *App
	srv    *httptest.Server
	http   *http.Client
	audit  *audit.Recorder
	issuer string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	hash, err := secret.Hash(secret.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 16}, "pw")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(fmt.Sprintf(testCatalog, hash)), 0o600))

	key, err := secretbox.GenerateKey()
	require.NoError(t, err)
	cfgYAML := fmt.Sprintf(`
app: {env: dev}
issuer: https://idp.test
server: {enable_local_login: true}
storage: {driver: memory}
resume: {key: %q}
rate: {enabled: true, login: {limit: 100, window: 1m}}
catalog: {file: catalog.yaml}
`, key)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	rec := audit.NewRecorder()
	a, err := New(context.Background(), cfg, Options{Audit: rec, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{
		app: a,
		srv: srv,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		audit:  rec,
		issuer: cfg.Issuer,
	}
}

func (e *testEnv) get(t *testing.T, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := e.http.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values, user, pass string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := e.http.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

// location devuelve el Location relativo al servidor de test.
func location(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	u, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return u
}

func TestE2E_CodeFlow_RevokeAndIntrospect(t *testing.T) {
	e := newTestEnv(t)

	authz := url.Values{
		"client_id":     {"web"},
		"redirect_uri":  {"https://web.example.com/cb"},
		"response_type": {"code"},
		"scope":         {"openid profile email api offline_access"},
		"state":         {"xyz"},
		"nonce":         {"n-1"},
	}

	// 1) sin sesión: a login
	loc := location(t, e.get(t, "/connect/authorize?"+authz.Encode(), nil))
	require.Equal(t, "/login", loc.Path)
	resume := loc.Query().Get("resume")
	require.NotEmpty(t, resume)

	page := e.get(t, loc.String(), http.Header{"Accept-Language": {"es"}})
	require.Equal(t, http.StatusOK, page.StatusCode)
	body, _ := io.ReadAll(page.Body)
	assert.Contains(t, string(body), "Iniciar sesión")

	// 2) credenciales inválidas
	bad := e.postForm(t, "/login", url.Values{"resume": {resume}, "username": {"alice"}, "password": {"nope"}}, "", "")
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	// 3) login ok: vuelve a authorize con el mismo resume
	loc = location(t, e.postForm(t, "/login", url.Values{"resume": {resume}, "username": {"alice"}, "password": {"pw"}}, "", ""))
	require.Equal(t, "/connect/authorize", loc.Path)

	// 4) require_consent: a la pantalla de consent
	loc = location(t, e.get(t, loc.String(), nil))
	require.Equal(t, "/connect/consent", loc.Path)
	consentResume := loc.Query().Get("resume")

	page = e.get(t, loc.String(), nil)
	require.Equal(t, http.StatusOK, page.StatusCode)
	body, _ = io.ReadAll(page.Body)
	assert.Contains(t, string(body), "Web App")
	assert.Contains(t, string(body), "Orders API")

	// 5) consent sin scopes: vuelve a la pantalla con mensaje
	loc = location(t, e.postForm(t, "/connect/consent", url.Values{"resume": {consentResume}, "decision": {"allow"}}, "", ""))
	require.Equal(t, "/connect/consent", loc.Path)
	assert.Equal(t, "consent.no_scopes_selected", loc.Query().Get("msg"))

	// 6) consent ok: redirect al cliente con code y state
	loc = location(t, e.postForm(t, "/connect/consent", url.Values{
		"resume":   {consentResume},
		"decision": {"allow"},
		"scopes":   {"openid", "profile", "email", "api", "offline_access"},
	}, "", ""))
	require.Equal(t, "web.example.com", loc.Host)
	assert.Equal(t, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	// 7) canje del code
	resp := e.postForm(t, "/connect/token", url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://web.example.com/cb"},
	}, "web", "web-secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	tok := decodeJSON(t, resp)
	access, _ := tok["access_token"].(string)
	refresh, _ := tok["refresh_token"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEmpty(t, tok["id_token"])
	assert.Equal(t, "Bearer", tok["token_type"])

	// el code es de un solo uso
	reuse := e.postForm(t, "/connect/token", url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://web.example.com/cb"},
	}, "web", "web-secret")
	assert.Equal(t, http.StatusBadRequest, reuse.StatusCode)
	assert.Equal(t, "invalid_grant", decodeJSON(t, reuse)["error"])

	// 8) userinfo
	bearer := http.Header{"Authorization": {"Bearer " + access}}
	ui := e.get(t, "/connect/userinfo", bearer)
	require.Equal(t, http.StatusOK, ui.StatusCode)
	info := decodeJSON(t, ui)
	assert.Equal(t, "u1", info["sub"])
	assert.Equal(t, "Alice", info["name"])
	assert.Equal(t, "alice@example.com", info["email"])

	// 9) introspección antes de revocar
	in := e.postForm(t, "/connect/introspect", url.Values{"token": {access}}, "api", "api-secret")
	require.Equal(t, http.StatusOK, in.StatusCode)
	active := decodeJSON(t, in)
	assert.Equal(t, true, active["active"])
	assert.Equal(t, "api", active["scope"])

	// 10) revocación
	rv := e.postForm(t, "/connect/revocation", url.Values{"token": {access}, "token_type_hint": {"access_token"}}, "web", "web-secret")
	require.Equal(t, http.StatusOK, rv.StatusCode)

	ui = e.get(t, "/connect/userinfo", bearer)
	assert.Equal(t, http.StatusUnauthorized, ui.StatusCode)
	assert.Contains(t, ui.Header.Get("WWW-Authenticate"), `error="invalid_token"`)

	in = e.postForm(t, "/connect/introspect", url.Values{"token": {access}}, "api", "api-secret")
	require.Equal(t, http.StatusOK, in.StatusCode)
	assert.Equal(t, map[string]any{"active": false}, decodeJSON(t, in))

	// 11) refresh sigue vivo hasta que se revoca
	rr := e.postForm(t, "/connect/token", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {refresh}}, "web", "web-secret")
	require.Equal(t, http.StatusOK, rr.StatusCode)
	rotated, _ := decodeJSON(t, rr)["refresh_token"].(string)
	require.NotEmpty(t, rotated)

	rv = e.postForm(t, "/connect/revocation", url.Values{"token": {rotated}}, "web", "web-secret")
	require.Equal(t, http.StatusOK, rv.StatusCode)
	rr = e.postForm(t, "/connect/token", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {rotated}}, "web", "web-secret")
	assert.Equal(t, http.StatusBadRequest, rr.StatusCode)

	names := e.audit.Names()
	assert.Contains(t, names, audit.EventLocalLoginFailed)
	assert.Contains(t, names, audit.EventLocalLoginSucceeded)
	assert.Contains(t, names, audit.EventConsentGranted)
}

func TestE2E_PromptLoginForcesReauthentication(t *testing.T) {
	e := newTestEnv(t)

	authz := url.Values{
		"client_id":     {"web"},
		"redirect_uri":  {"https://web.example.com/cb"},
		"response_type": {"code"},
		"scope":         {"openid profile"},
		"state":         {"s"},
	}

	// sesión previa
	loc := location(t, e.get(t, "/connect/authorize?"+authz.Encode(), nil))
	require.Equal(t, "/login", loc.Path)
	loc = location(t, e.postForm(t, "/login", url.Values{"resume": {loc.Query().Get("resume")}, "username": {"alice"}, "password": {"pw"}}, "", ""))
	loc = location(t, e.get(t, loc.String(), nil))
	require.Equal(t, "/connect/consent", loc.Path)

	// un marcador enviado por el cliente se ignora
	forged := url.Values{}
	for k, v := range authz {
		forged[k] = v
	}
	forged.Set("hj_replaced_sid", "x")
	loc = location(t, e.get(t, "/connect/authorize?"+forged.Encode(), nil))
	assert.Equal(t, "/connect/consent", loc.Path)

	// prompt=login con sesión activa: a login
	authz.Set("prompt", "login")
	loc = location(t, e.get(t, "/connect/authorize?"+authz.Encode(), nil))
	require.Equal(t, "/login", loc.Path)
	resume := loc.Query().Get("resume")
	require.NotEmpty(t, resume)

	// reenviar el resume con la sesión vieja no saltea el login
	loc = location(t, e.get(t, "/connect/authorize?"+url.Values{"resume": {resume}}.Encode(), nil))
	assert.Equal(t, "/login", loc.Path)

	// login fresco: el flujo continúa
	loc = location(t, e.postForm(t, "/login", url.Values{"resume": {resume}, "username": {"alice"}, "password": {"pw"}}, "", ""))
	require.Equal(t, "/connect/authorize", loc.Path)
	loc = location(t, e.get(t, loc.String(), nil))
	assert.Equal(t, "/connect/consent", loc.Path)
}

func TestE2E_AuthorizeErrors(t *testing.T) {
	e := newTestEnv(t)

	// cliente desconocido: página de error, nunca redirect
	resp := e.get(t, "/connect/authorize?client_id=nope&redirect_uri=https://evil.example.com/cb&response_type=code&scope=openid",
		http.Header{"Accept-Language": {"en"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "unknown or disabled")

	// redirect_uri confiable + scope inválido: error al cliente con state
	loc := location(t, e.get(t, "/connect/authorize?"+url.Values{
		"client_id":     {"web"},
		"redirect_uri":  {"https://web.example.com/cb"},
		"response_type": {"code"},
		"scope":         {"openid unknown"},
		"state":         {"s1"},
	}.Encode(), nil))
	assert.Equal(t, "web.example.com", loc.Host)
	assert.Equal(t, "invalid_scope", loc.Query().Get("error"))
	assert.Equal(t, "s1", loc.Query().Get("state"))

	// resume adulterado
	resp = e.get(t, "/login?resume=garbage", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestE2E_TokenEndpointErrors(t *testing.T) {
	e := newTestEnv(t)

	resp := e.postForm(t, "/connect/token", url.Values{"grant_type": {"client_credentials"}}, "web", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")
	assert.Equal(t, "invalid_client", decodeJSON(t, resp)["error"])

	resp = e.postForm(t, "/connect/token", url.Values{"grant_type": {"magic"}}, "web", "web-secret")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unsupported_grant_type", decodeJSON(t, resp)["error"])
}

func TestE2E_DiscoveryJWKSAndHealth(t *testing.T) {
	e := newTestEnv(t)

	resp := e.get(t, "/.well-known/openid-configuration", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decodeJSON(t, resp)
	assert.Equal(t, e.issuer, doc["issuer"])
	assert.Equal(t, e.issuer+"/connect/token", doc["token_endpoint"])
	assert.Contains(t, doc["scopes_supported"], "api")
	assert.Contains(t, doc["grant_types_supported"], "password")

	resp = e.get(t, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jwks := decodeJSON(t, resp)
	keys, _ := jwks["keys"].([]any)
	assert.Len(t, keys, 1)

	resp = e.get(t, "/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeJSON(t, resp)
	assert.Equal(t, "ready", health["status"])

	resp = e.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.get(t, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestE2E_Logout(t *testing.T) {
	e := newTestEnv(t)

	resp := e.get(t, "/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	loc := location(t, e.get(t, "/logout?"+url.Values{
		"client_id":                {"web"},
		"post_logout_redirect_uri": {"https://web.example.com/cb"},
		"state":                    {"bye"},
	}.Encode(), nil))
	assert.Equal(t, "web.example.com", loc.Host)
	assert.Equal(t, "bye", loc.Query().Get("state"))

	resp = e.get(t, "/logout?client_id=web&post_logout_redirect_uri=https://evil.example.com/", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
