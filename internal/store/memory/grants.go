// Package memory implementa los stores de grants y consents en memoria.
// Sirve para dev, tests y despliegues de un solo nodo.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// grants es el store genérico. T debe tener *T implementando repository.Grant.
type grants[T any] struct {
	mu    sync.Mutex
	items map[string]*T
	clone func(*T) *T
	now   func() time.Time
}

func newGrants[T any](clone func(*T) *T) *grants[T] {
	return &grants[T]{
		items: make(map[string]*T),
		clone: clone,
		now:   time.Now,
	}
}

func meta[T any](v *T) repository.Grant { return any(v).(repository.Grant) }

func (g *grants[T]) expired(v *T) bool {
	return !g.now().Before(meta(v).GrantExpiresAt())
}

func (g *grants[T]) Store(ctx context.Context, key string, value *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" || value == nil {
		return repository.ErrInvalidInput
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.items[key] = g.clone(value)
	return nil
}

func (g *grants[T]) Get(ctx context.Context, key string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.items[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if g.expired(v) {
		delete(g.items, key)
		return nil, repository.ErrNotFound
	}
	return g.clone(v), nil
}

func (g *grants[T]) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.items, key)
	return nil
}

func (g *grants[T]) GetAllForSubject(ctx context.Context, subject string) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*T
	for _, v := range g.items {
		if meta(v).GrantSubject() == subject && !g.expired(v) {
			out = append(out, g.clone(v))
		}
	}
	return out, nil
}

func (g *grants[T]) RevokeForSubjectAndClient(ctx context.Context, subject, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range g.items {
		m := meta(v)
		if m.GrantSubject() == subject && m.GrantClientID() == clientID {
			delete(g.items, k)
		}
	}
	return nil
}

// purge elimina los vencidos; retorna cuántos.
func (g *grants[T]) purge() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for k, v := range g.items {
		if g.expired(v) {
			delete(g.items, k)
			n++
		}
	}
	return n
}

// AuthorizationCodes implementa repository.AuthorizationCodeStore.
type AuthorizationCodes struct{ *grants[repository.AuthorizationCode] }

var _ repository.AuthorizationCodeStore = (*AuthorizationCodes)(nil)

func NewAuthorizationCodes() *AuthorizationCodes {
	return &AuthorizationCodes{newGrants(cloneCode)}
}

// Consume hace get+delete bajo el mismo lock.
func (s *AuthorizationCodes) Consume(ctx context.Context, key string) (*repository.AuthorizationCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.items, key)
	if s.expired(v) {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

// RefreshTokens implementa repository.RefreshTokenStore.
type RefreshTokens struct{ *grants[repository.RefreshToken] }

var _ repository.RefreshTokenStore = (*RefreshTokens)(nil)

func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{newGrants(cloneRefresh)}
}

// Rotate es un CAS: si oldKey ya no está, otro request ganó.
func (s *RefreshTokens) Rotate(ctx context.Context, oldKey, newKey string, value *repository.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if newKey == "" || value == nil {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[oldKey]; !ok {
		return repository.ErrNotFound
	}
	delete(s.items, oldKey)
	s.items[newKey] = cloneRefresh(value)
	return nil
}

// Replace solo pisa un token vivo.
func (s *RefreshTokens) Replace(ctx context.Context, key string, value *repository.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" || value == nil {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[key]
	if !ok || s.expired(cur) {
		delete(s.items, key)
		return repository.ErrNotFound
	}
	s.items[key] = cloneRefresh(value)
	return nil
}

// TokenHandles implementa repository.TokenHandleStore.
type TokenHandles struct{ *grants[repository.Token] }

var _ repository.TokenHandleStore = (*TokenHandles)(nil)

func NewTokenHandles() *TokenHandles {
	return &TokenHandles{newGrants((*repository.Token).Clone)}
}

func cloneCode(c *repository.AuthorizationCode) *repository.AuthorizationCode {
	cp := *c
	cp.AuthMethods = slices.Clone(c.AuthMethods)
	cp.RequestedScopes = slices.Clone(c.RequestedScopes)
	return &cp
}

func cloneRefresh(r *repository.RefreshToken) *repository.RefreshToken {
	cp := *r
	cp.AccessToken = *r.AccessToken.Clone()
	return &cp
}
