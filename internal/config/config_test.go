package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsAndPaths(t *testing.T) {
	p := writeYAML(t, `
issuer: https://id.example.com
catalog:
  file: catalog.yaml
keys:
  active_key_file: keys/active.pem
rate:
  token:
    limit: 5
    window: 30s
`)
	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, "hj_session", c.Session.CookieName)
	assert.Equal(t, 10*time.Minute, c.Resume.TTL)
	assert.Equal(t, 5, c.Rate.Token.Limit)
	assert.Equal(t, 30*time.Second, c.Rate.Token.Window)
	assert.Equal(t, 10, c.Rate.Login.Limit)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "catalog.yaml"), c.Catalog.File)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "keys", "active.pem"), c.Keys.ActiveKeyFile)
	assert.False(t, c.Keys.GenerateIfMissing)
}

func TestLoad_EnvOverrides(t *testing.T) {
	p := writeYAML(t, "issuer: https://id.example.com\ncatalog:\n  file: /etc/hj/catalog.yaml\n")
	t.Setenv("HJ_SERVER_ADDR", ":9090")
	t.Setenv("HJ_STORAGE_DRIVER", "redis")
	t.Setenv("HJ_REDIS_ADDR", "cache:6379")
	t.Setenv("HJ_SESSION_TTL", "1h")
	t.Setenv("HJ_SESSION_IDLE_TIMEOUT", "15m")
	t.Setenv("HJ_KEYS_ROLLOVER_FILES", "/a.pem, /b.pem,")
	t.Setenv("HJ_AUDIT_AMQP_URL", "amqp://guest:guest@mq:5672/")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.Server.Addr)
	assert.Equal(t, "redis", c.Storage.Driver)
	assert.Equal(t, "cache:6379", c.Redis.Addr)
	assert.Equal(t, time.Hour, c.Session.TTL)
	assert.Equal(t, 15*time.Minute, c.Session.IdleTimeout)
	assert.Equal(t, []string{"/a.pem", "/b.pem"}, c.Keys.RolloverKeyFiles)
	assert.True(t, c.Audit.AMQP.Enabled)
	assert.True(t, c.Keys.GenerateIfMissing)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"missing issuer":     "catalog:\n  file: /c.yaml\n",
		"bad driver":         "issuer: https://id.example.com\ncatalog:\n  file: /c.yaml\nstorage:\n  driver: mongo\n",
		"postgres no dsn":    "issuer: https://id.example.com\ncatalog:\n  file: /c.yaml\nstorage:\n  driver: postgres\n",
		"no catalog":         "issuer: https://id.example.com\n",
		"samesite none":      "issuer: https://id.example.com\ncatalog:\n  file: /c.yaml\nsession:\n  samesite: none\n",
		"prod without keys":  "issuer: https://id.example.com\ncatalog:\n  file: /c.yaml\napp:\n  env: prod\n",
		"amqp without url":   "issuer: https://id.example.com\ncatalog:\n  file: /c.yaml\naudit:\n  amqp:\n    enabled: true\n",
		"catalog db no pg":   "issuer: https://id.example.com\npostgres:\n  catalog_from_db: true\n",
		"bad duration value": "issuer: https://id.example.com\ncatalog:\n  file: /c.yaml\nsession:\n  ttl: soon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ValidationUsesYAMLNames(t *testing.T) {
	_, err := Load(writeYAML(t, "catalog:\n  file: /c.yaml\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer")
}

type fakeSecrets struct {
	out *secretsmanager.GetSecretValueOutput
	err error
}

func (f fakeSecrets) GetSecretValue(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return f.out, f.err
}

func TestApplySecret(t *testing.T) {
	t.Setenv("HJ_RESUME_KEY", "keep")
	t.Setenv("HJ_POSTGRES_DSN", "")

	sm := fakeSecrets{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"HJ_RESUME_KEY":"from-secret","HJ_POSTGRES_DSN":"postgres://x","HJ_REDIS_DB":3}`),
	}}
	n, err := applySecret(context.Background(), sm, "hj/prod", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "keep", os.Getenv("HJ_RESUME_KEY"))
	assert.Equal(t, "postgres://x", os.Getenv("HJ_POSTGRES_DSN"))
	assert.Equal(t, "3", os.Getenv("HJ_REDIS_DB"))
	os.Unsetenv("HJ_REDIS_DB")

	_, err = applySecret(context.Background(), fakeSecrets{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("nope")}}, "x", false)
	assert.Error(t, err)
	_, err = applySecret(context.Background(), fakeSecrets{err: errors.New("denied")}, "x", false)
	assert.Error(t, err)
}
