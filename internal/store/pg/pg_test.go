package pg

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrations "github.com/dropDatabas3/hellojohn-oidc/migrations/postgres"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
)

func TestUpScripts_OrderAndFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b_up.sql":   {Data: []byte("select 2")},
		"0001_a_up.sql":   {Data: []byte("select 1")},
		"0001_a_down.sql": {Data: []byte("select 0")},
		"README.md":       {Data: []byte("x")},
	}
	files, err := upScripts(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a_up.sql", "0002_b_up.sql"}, files)

	embedded, err := upScripts(migrations.PostgresFS)
	require.NoError(t, err)
	assert.Contains(t, embedded, "0001_init_up.sql")
}

func TestMigrationLockID_Stable(t *testing.T) {
	assert.Equal(t, migrationLockID("schema"), migrationLockID("schema"))
	assert.NotEqual(t, migrationLockID("schema"), migrationLockID("other"))
}

// Tests de integración: requieren HJ_TEST_PG_DSN apuntando a una base descartable.
func newStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("HJ_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("HJ_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn, PoolConfig{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	_, err = Migrate(ctx, s.Pool(), migrations.PostgresFS)
	require.NoError(t, err)
	return s
}

func TestIntegration_Migrate_Idempotent(t *testing.T) {
	s := newStore(t)
	n, err := Migrate(context.Background(), s.Pool(), migrations.PostgresFS)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIntegration_CodeConsumeOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := uuid.NewString()
	require.NoError(t, s.Codes.Store(ctx, key, &repository.AuthorizationCode{
		CreationTime: time.Now(), Lifetime: time.Minute, ClientID: "web", Subject: "alice",
		RequestedScopes: []string{"openid"},
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Codes.Consume(ctx, key); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestIntegration_RefreshRotateAndRevoke(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sub := "user-" + uuid.NewString()
	rt := &repository.RefreshToken{
		CreationTime: time.Now(), Lifetime: time.Hour, Version: 1,
		AccessToken: repository.Token{ClientID: "web", Claims: []repository.Claim{{Type: "sub", Value: sub}}},
	}
	old, next := uuid.NewString(), uuid.NewString()
	require.NoError(t, s.Refresh.Store(ctx, old, rt))
	require.NoError(t, s.Refresh.Rotate(ctx, old, next, rt))
	assert.ErrorIs(t, s.Refresh.Rotate(ctx, old, uuid.NewString(), rt), repository.ErrNotFound)

	all, err := s.Refresh.GetAllForSubject(ctx, sub)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Refresh.RevokeForSubjectAndClient(ctx, sub, "web"))
	_, err = s.Refresh.Get(ctx, next)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIntegration_RefreshReplaceAfterRevoke(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sub := "user-" + uuid.NewString()
	rt := &repository.RefreshToken{
		CreationTime: time.Now(), Lifetime: time.Hour, Version: 1,
		AccessToken: repository.Token{ClientID: "web", Claims: []repository.Claim{{Type: "sub", Value: sub}}},
	}
	key := uuid.NewString()
	require.NoError(t, s.Refresh.Store(ctx, key, rt))

	rt.Version = 2
	require.NoError(t, s.Refresh.Replace(ctx, key, rt))
	got, err := s.Refresh.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)

	require.NoError(t, s.Refresh.Remove(ctx, key))
	assert.ErrorIs(t, s.Refresh.Replace(ctx, key, rt), repository.ErrNotFound)
	_, err = s.Refresh.Get(ctx, key)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIntegration_CatalogAndUsers(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := "client-" + uuid.NewString()
	require.NoError(t, s.Catalog.UpsertClient(ctx, &repository.Client{ClientID: id, Enabled: true, Flow: repository.FlowAuthorizationCode}))
	c, err := s.Catalog.FindClientByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, repository.DefaultAccessTokenLifetime, c.AccessTokenLifetime)

	require.NoError(t, s.Catalog.UpsertScope(ctx, &repository.Scope{Name: "zz-" + id, Type: repository.ScopeTypeResource, Enabled: true}))
	found, err := s.Catalog.FindScopes(ctx, []string{"missing", "zz-" + id})
	require.NoError(t, err)
	require.Len(t, found, 1)

	hash, err := secret.HashBcrypt("pw")
	require.NoError(t, err)
	subject := uuid.NewString()
	require.NoError(t, s.Users.UpsertUser(ctx, &repository.User{Subject: subject, Username: "U-" + subject, PasswordHash: hash}))
	p, err := s.Users.AuthenticateLocal(ctx, "u-"+subject, "pw")
	require.NoError(t, err)
	assert.Equal(t, subject, p.Subject)
	_, err = s.Users.AuthenticateLocal(ctx, "u-"+subject, "nope")
	assert.ErrorIs(t, err, repository.ErrInvalidCredentials)

	require.NoError(t, s.Consents.Update(ctx, &repository.Consent{Subject: subject, ClientID: id, Scopes: []string{"openid"}}))
	got, err := s.Consents.Load(ctx, subject, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"openid"}, got.Scopes)
}
