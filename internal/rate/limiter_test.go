package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	c := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	defer c.Close()

	// ventana larga para no cruzar el borde durante el test
	l := NewRedisLimiter(c, "", 2, time.Hour)
	ctx := context.Background()

	r, err := l.Allow(ctx, "token:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.EqualValues(t, 1, r.Remaining)
	assert.Greater(t, r.WindowTTL, time.Duration(0))

	r, err = l.Allow(ctx, "token:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, r.Allowed)

	r, err = l.Allow(ctx, "token:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Zero(t, r.Remaining)
	assert.Greater(t, r.RetryAfter, time.Duration(0))

	// otra key tiene su propio contador
	r, err = l.Allow(ctx, "token:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(1, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	r, err := l.Allow(ctx, "login:alice")
	require.NoError(t, err)
	assert.True(t, r.Allowed)

	r, err = l.Allow(ctx, "login:alice")
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, time.Minute, r.RetryAfter)

	now = now.Add(time.Minute)
	r, err = l.Allow(ctx, "login:alice")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
}

func TestMultiLimiter_PerRule(t *testing.T) {
	mr := miniredis.RunT(t)
	c := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	defer c.Close()

	for name, m := range map[string]MultiLimiter{
		"redis":  NewMultiRedisLimiter(c, "hj:rl:"),
		"memory": NewMultiMemoryLimiter(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r, err := m.AllowWithLimits(ctx, "k", 1, time.Hour)
			require.NoError(t, err)
			assert.True(t, r.Allowed)
			r, err = m.AllowWithLimits(ctx, "k", 1, time.Hour)
			require.NoError(t, err)
			assert.False(t, r.Allowed)

			// un límite distinto no comparte contador
			r, err = m.AllowWithLimits(ctx, "k", 5, time.Hour)
			require.NoError(t, err)
			assert.True(t, r.Allowed)
		})
	}
}

func TestRule_Enabled(t *testing.T) {
	assert.False(t, Rule{}.Enabled())
	assert.False(t, Rule{Limit: 5}.Enabled())
	assert.True(t, Rule{Limit: 5, Window: time.Second}.Enabled())
}
