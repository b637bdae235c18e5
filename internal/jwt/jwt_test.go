package jwt

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) (*Issuer, *SigningKey) {
	t.Helper()
	k, err := GenerateEd25519()
	require.NoError(t, err)
	return NewIssuer("https://id.example.com", NewKeystore(k)), k
}

func TestSignAndParse(t *testing.T) {
	iss, key := newTestIssuer(t)
	now := time.Now()
	tok, err := iss.Sign(context.Background(), jwtv5.MapClaims{
		"iss": iss.Iss,
		"aud": "https://id.example.com/resources",
		"sub": "alice",
		"exp": now.Add(time.Minute).Unix(),
	})
	require.NoError(t, err)

	parsed, _, err := jwtv5.NewParser().ParseUnverified(tok, jwtv5.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, key.KID, parsed.Header["kid"])
	assert.Equal(t, "JWT", parsed.Header["typ"])

	claims, err := iss.Parse(tok, jwtv5.WithAudience("https://id.example.com/resources"))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])

	_, err = iss.Parse(tok, jwtv5.WithAudience("other"))
	assert.ErrorIs(t, err, jwtv5.ErrTokenInvalidAudience)
}

func TestParseRejectsForeignIssuerAndExpired(t *testing.T) {
	iss, _ := newTestIssuer(t)
	ctx := context.Background()

	foreign, err := iss.Sign(ctx, jwtv5.MapClaims{"iss": "https://evil", "exp": time.Now().Add(time.Minute).Unix()})
	require.NoError(t, err)
	_, err = iss.Parse(foreign)
	assert.ErrorIs(t, err, jwtv5.ErrTokenInvalidIssuer)

	expired, err := iss.Sign(ctx, jwtv5.MapClaims{"iss": iss.Iss, "exp": time.Now().Add(-time.Hour).Unix()})
	require.NoError(t, err)
	_, err = iss.Parse(expired)
	assert.ErrorIs(t, err, jwtv5.ErrTokenExpired)
}

func TestRotateKeepsOldKeyVerifiable(t *testing.T) {
	iss, old := newTestIssuer(t)
	ctx := context.Background()
	tok, err := iss.Sign(ctx, jwtv5.MapClaims{"iss": iss.Iss})
	require.NoError(t, err)

	next, err := GenerateEd25519()
	require.NoError(t, err)
	iss.Keys.Rotate(next)

	_, err = iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, []string{next.KID, old.KID}, iss.Keys.KIDs())

	iss.Keys.Retire(old.KID)
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrKIDNotFound)
}

func TestSignWithoutActiveKey(t *testing.T) {
	iss := NewIssuer("x", NewKeystore(nil))
	_, err := iss.Sign(context.Background(), jwtv5.MapClaims{})
	assert.ErrorIs(t, err, ErrNoActiveKey)
}

func TestJWKSPublishesRollover(t *testing.T) {
	a, err := GenerateEd25519()
	require.NoError(t, err)
	b, err := GenerateEd25519()
	require.NoError(t, err)
	ks := NewKeystore(a, b)

	raw, err := ks.JWKS()
	require.NoError(t, err)

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Keys, 2)
	for _, k := range doc.Keys {
		assert.Equal(t, "OKP", k["kty"])
		assert.Equal(t, "Ed25519", k["crv"])
		assert.Equal(t, AlgEdDSA, k["alg"])
		assert.Equal(t, "sig", k["use"])
		assert.NotContains(t, k, "d")
	}
	kids := []any{doc.Keys[0]["kid"], doc.Keys[1]["kid"]}
	assert.ElementsMatch(t, []any{a.KID, b.KID}, kids)
}

func TestPEMRoundTrip(t *testing.T) {
	k, err := GenerateEd25519()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "active.pem")
	require.NoError(t, WritePrivateKeyFile(path, k.Private))

	ks, err := LoadKeystore(KeystoreFiles{ActiveKeyFile: path, RolloverKeyFiles: []string{path}})
	require.NoError(t, err)
	active, err := ks.Active()
	require.NoError(t, err)
	assert.Equal(t, k.KID, active.KID)
	// la rollover duplicada se ignora
	assert.Len(t, ks.KIDs(), 1)

	_, err = ParsePrivateKeyPEM([]byte("nope"))
	assert.ErrorIs(t, err, ErrMalformedPEM)

	_, err = LoadKeystore(KeystoreFiles{})
	assert.ErrorIs(t, err, ErrNoActiveKey)
}
