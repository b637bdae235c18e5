// Package redis implementa los stores de grants y consents sobre Redis.
// Store, Consume, Rotate y Replace corren como scripts Lua para ser atómicos
// entre nodos.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// GET + DEL en un solo paso.
var consumeScript = rdb.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return false end
redis.call('DEL', KEYS[1])
return v
`)

// indexLua agrega KEYS[member] al set del subject KEYS[set] y estira el TTL
// del set hasta el del miembro más largo. ARGV[2] es el ttl en ms.
func indexLua(set, member int) string {
	return fmt.Sprintf(`
if KEYS[%[1]d] ~= '' then
  redis.call('SADD', KEYS[%[1]d], KEYS[%[2]d])
  local ttl = tonumber(ARGV[2])
  if redis.call('PTTL', KEYS[%[1]d]) < ttl then
    redis.call('PEXPIRE', KEYS[%[1]d], ttl)
  end
end`, set, member)
}

// SET + índice del subject. KEYS: key, índice. ARGV: valor, ttl (ms).
var storeScript = rdb.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])` + indexLua(2, 1) + `
return 1
`)

// CAS: solo escribe newKey si oldKey todavía existía.
// KEYS: old, new, índice del subject. ARGV: valor, ttl (ms).
var rotateScript = rdb.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then return 0 end
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
if KEYS[3] ~= '' then redis.call('SREM', KEYS[3], KEYS[1]) end` + indexLua(3, 2) + `
return 1
`)

// Reescribe KEYS[1] solo si existe; una revocación concurrente gana.
// KEYS: key, índice del subject. ARGV: valor, ttl (ms).
var replaceScript = rdb.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])` + indexLua(2, 1) + `
return 1
`)

// grants es el store genérico: valor JSON con TTL = vida restante del grant,
// más un set por subject para GetAllForSubject / RevokeForSubjectAndClient.
type grants[T any] struct {
	c      *rdb.Client
	prefix string
	now    func() time.Time
}

func newGrants[T any](c *rdb.Client, prefix, kind string) *grants[T] {
	return &grants[T]{c: c, prefix: prefix + kind + ":", now: time.Now}
}

func meta[T any](v *T) repository.Grant { return any(v).(repository.Grant) }

func (g *grants[T]) key(k string) string { return g.prefix + k }

func (g *grants[T]) subjectKey(sub string) string {
	if sub == "" {
		return ""
	}
	return g.prefix + "sub:" + sub
}

func (g *grants[T]) ttl(v *T) time.Duration {
	return meta(v).GrantExpiresAt().Sub(g.now())
}

func (g *grants[T]) encode(v *T) ([]byte, time.Duration, error) {
	ttl := g.ttl(v)
	b, err := json.Marshal(v)
	if err != nil {
		return nil, 0, fmt.Errorf("redis store: encode: %w", err)
	}
	return b, ttl, nil
}

func (g *grants[T]) decode(raw []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("redis store: decode: %w", err)
	}
	return &v, nil
}

func (g *grants[T]) Store(ctx context.Context, key string, value *T) error {
	if key == "" || value == nil {
		return repository.ErrInvalidInput
	}
	b, ttl, err := g.encode(value)
	if err != nil {
		return err
	}
	if ttl < time.Millisecond {
		// ya vencido: no hay nada que guardar
		return nil
	}
	err = storeScript.Run(ctx, g.c,
		[]string{g.key(key), g.subjectKey(meta(value).GrantSubject())},
		string(b), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis store: set: %w", err)
	}
	return nil
}

func (g *grants[T]) Get(ctx context.Context, key string) (*T, error) {
	raw, err := g.c.Get(ctx, g.key(key)).Bytes()
	if errors.Is(err, rdb.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: get: %w", err)
	}
	v, err := g.decode(raw)
	if err != nil {
		return nil, err
	}
	if g.ttl(v) <= 0 {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func (g *grants[T]) Remove(ctx context.Context, key string) error {
	if err := g.c.Del(ctx, g.key(key)).Err(); err != nil {
		return fmt.Errorf("redis store: del: %w", err)
	}
	return nil
}

// members devuelve los grants vivos del subject y limpia del índice los que
// ya expiraron.
func (g *grants[T]) members(ctx context.Context, subject string) (map[string]*T, error) {
	sk := g.subjectKey(subject)
	if sk == "" {
		return nil, nil
	}
	keys, err := g.c.SMembers(ctx, sk).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: smembers: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := g.c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: mget: %w", err)
	}
	out := make(map[string]*T, len(keys))
	var stale []any
	for i, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		v, err := g.decode([]byte(s))
		if err != nil {
			return nil, err
		}
		if g.ttl(v) > 0 {
			out[keys[i]] = v
		}
	}
	if len(stale) > 0 {
		_ = g.c.SRem(ctx, sk, stale...).Err()
	}
	return out, nil
}

func (g *grants[T]) GetAllForSubject(ctx context.Context, subject string) ([]*T, error) {
	m, err := g.members(ctx, subject)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out, nil
}

func (g *grants[T]) RevokeForSubjectAndClient(ctx context.Context, subject, clientID string) error {
	m, err := g.members(ctx, subject)
	if err != nil {
		return err
	}
	var keys []string
	for k, v := range m {
		if meta(v).GrantClientID() == clientID {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	pipe := g.c.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, g.subjectKey(subject), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store: revoke: %w", err)
	}
	return nil
}

// AuthorizationCodes implementa repository.AuthorizationCodeStore.
type AuthorizationCodes struct{ *grants[repository.AuthorizationCode] }

var _ repository.AuthorizationCodeStore = (*AuthorizationCodes)(nil)

func (s *AuthorizationCodes) Consume(ctx context.Context, key string) (*repository.AuthorizationCode, error) {
	raw, err := consumeScript.Run(ctx, s.c, []string{s.key(key)}).Text()
	if errors.Is(err, rdb.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: consume: %w", err)
	}
	v, err := s.decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	if s.ttl(v) <= 0 {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

// RefreshTokens implementa repository.RefreshTokenStore.
type RefreshTokens struct{ *grants[repository.RefreshToken] }

var _ repository.RefreshTokenStore = (*RefreshTokens)(nil)

func (s *RefreshTokens) Rotate(ctx context.Context, oldKey, newKey string, value *repository.RefreshToken) error {
	if newKey == "" || value == nil {
		return repository.ErrInvalidInput
	}
	b, ttl, err := s.encode(value)
	if err != nil {
		return err
	}
	if ttl < time.Millisecond {
		return repository.ErrInvalidInput
	}
	n, err := rotateScript.Run(ctx, s.c,
		[]string{s.key(oldKey), s.key(newKey), s.subjectKey(value.SubjectID())},
		string(b), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis store: rotate: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *RefreshTokens) Replace(ctx context.Context, key string, value *repository.RefreshToken) error {
	if key == "" || value == nil {
		return repository.ErrInvalidInput
	}
	b, ttl, err := s.encode(value)
	if err != nil {
		return err
	}
	if ttl < time.Millisecond {
		return repository.ErrNotFound
	}
	n, err := replaceScript.Run(ctx, s.c,
		[]string{s.key(key), s.subjectKey(value.SubjectID())},
		string(b), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis store: replace: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// TokenHandles implementa repository.TokenHandleStore.
type TokenHandles struct{ *grants[repository.Token] }

var _ repository.TokenHandleStore = (*TokenHandles)(nil)
