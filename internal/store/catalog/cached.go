package catalog

import (
	"context"
	"slices"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// Cached decora un ClientStore + ScopeStore lento (ej: pg) con un cache en
// memoria de TTL corto. Las cargas concurrentes de la misma clave se colapsan
// con singleflight. ErrNotFound también se cachea (negative caching).
type Cached struct {
	clients repository.ClientStore
	scopes  repository.ScopeStore
	cache   *gocache.Cache
	sf      singleflight.Group
}

var (
	_ repository.ClientStore = (*Cached)(nil)
	_ repository.ScopeStore  = (*Cached)(nil)
)

type notFound struct{}

// NewCached crea el decorador. ttl <= 0 usa 1 minuto.
func NewCached(clients repository.ClientStore, scopes repository.ScopeStore, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{
		clients: clients,
		scopes:  scopes,
		cache:   gocache.New(ttl, 2*ttl),
	}
}

func (c *Cached) FindClientByID(ctx context.Context, clientID string) (*repository.Client, error) {
	key := "client:" + clientID
	v, err := c.load(key, func() (any, error) {
		cl, err := c.clients.FindClientByID(ctx, clientID)
		if repository.IsNotFound(err) {
			return notFound{}, nil
		}
		if err != nil {
			return nil, err
		}
		return *cl, nil
	})
	if err != nil {
		return nil, err
	}
	cl, ok := v.(repository.Client)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := cloneClient(cl)
	return &cp, nil
}

func (c *Cached) FindScopes(ctx context.Context, names []string) ([]repository.Scope, error) {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	key := "scopes:" + strings.Join(sorted, " ")
	v, err := c.load(key, func() (any, error) {
		return c.scopes.FindScopes(ctx, sorted)
	})
	if err != nil {
		return nil, err
	}
	return cloneScopes(v.([]repository.Scope)), nil
}

func (c *Cached) GetScopes(ctx context.Context, publicOnly bool) ([]repository.Scope, error) {
	key := "all_scopes"
	if publicOnly {
		key = "public_scopes"
	}
	v, err := c.load(key, func() (any, error) {
		return c.scopes.GetScopes(ctx, publicOnly)
	})
	if err != nil {
		return nil, err
	}
	return cloneScopes(v.([]repository.Scope)), nil
}

// Invalidate limpia el cache completo (CLI / recarga de catálogo).
func (c *Cached) Invalidate() {
	c.cache.Flush()
}

func (c *Cached) load(key string, fn func() (any, error)) (any, error) {
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.sf.Do(key, func() (any, error) {
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(key, v)
		return v, nil
	})
	return v, err
}

func cloneScopes(in []repository.Scope) []repository.Scope {
	out := make([]repository.Scope, len(in))
	for i, s := range in {
		out[i] = cloneScope(s)
	}
	return out
}
