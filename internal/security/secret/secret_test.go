package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// params baratos para que el test no tarde.
var fast = Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func TestArgon2id_RoundTrip(t *testing.T) {
	h, err := Hash(fast, "s3cr3t")
	require.NoError(t, err)
	assert.True(t, Verify("s3cr3t", h))
	assert.False(t, Verify("otro", h))
}

func TestHash_Empty(t *testing.T) {
	_, err := Hash(fast, "")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestVerify_Bcrypt(t *testing.T) {
	h, err := HashBcrypt("s3cr3t")
	require.NoError(t, err)
	assert.True(t, Verify("s3cr3t", h))
	assert.False(t, Verify("S3cr3t", h))
}

func TestVerify_Sha256(t *testing.T) {
	assert.True(t, Verify("secret", Sha256("secret")))
	assert.False(t, Verify("secret2", Sha256("secret")))
}

func TestVerify_Garbage(t *testing.T) {
	assert.False(t, Verify("x", "not-a-hash"))
	assert.False(t, Verify("x", "$argon2id$broken"))
	assert.False(t, Verify("", Sha256("")))
}
