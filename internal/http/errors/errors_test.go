package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWriteOAuthError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteOAuthError(rec, oauth.ClientError(oauth.CodeInvalidGrant, "code expired"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := decode(t, rec)
	assert.Equal(t, "invalid_grant", body["error"])
	assert.Equal(t, "code expired", body["error_description"])

	rec = httptest.NewRecorder()
	WriteOAuthError(rec, oauth.ClientError(oauth.CodeInvalidClient, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	rec = httptest.NewRecorder()
	WriteOAuthError(rec, stderrors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]string{"error": "server_error"}, decode(t, rec))

	rec = httptest.NewRecorder()
	WriteOAuthError(rec, oauth.ConfigurationFailure(stderrors.New("no key"), "missing signing key"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "signing")
}

func TestWriteBearerError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteBearerError(rec, oauth.LifecycleFailure(oauth.CodeInvalidToken, "token expired"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer error="invalid_token", error_description="token expired"`, rec.Header().Get("WWW-Authenticate"))

	rec = httptest.NewRecorder()
	WriteBearerError(rec, oauth.ClientError(oauth.CodeInsufficientScope, ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, `Bearer error="insufficient_scope"`, rec.Header().Get("WWW-Authenticate"))
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrRateLimitExceeded.WithDetail("login"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	assert.Equal(t, "login", body["detail"])

	rec = httptest.NewRecorder()
	WriteError(rec, stderrors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
