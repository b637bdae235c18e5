package catalog

import (
	"context"
	"slices"
	"sort"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// Store es un ClientStore + ScopeStore inmutable en memoria.
// Los valores devueltos son copias: el llamador puede mutarlos sin afectar el catálogo.
type Store struct {
	clients map[string]repository.Client
	scopes  map[string]repository.Scope
}

var (
	_ repository.ClientStore = (*Store)(nil)
	_ repository.ScopeStore  = (*Store)(nil)
)

// NewStore indexa clientes y scopes.
func NewStore(clients []repository.Client, scopes []repository.Scope) *Store {
	s := &Store{
		clients: make(map[string]repository.Client, len(clients)),
		scopes:  make(map[string]repository.Scope, len(scopes)),
	}
	for _, c := range clients {
		c.ApplyDefaults()
		s.clients[c.ClientID] = c
	}
	for _, sc := range scopes {
		s.scopes[sc.Name] = sc
	}
	return s
}

// NewStoreFromCatalog es un atajo para NewStore(c.Clients, c.Scopes).
func NewStoreFromCatalog(c *Catalog) *Store {
	return NewStore(c.Clients, c.Scopes)
}

func (s *Store) FindClientByID(ctx context.Context, clientID string) (*repository.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, ok := s.clients[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := cloneClient(c)
	return &cp, nil
}

func (s *Store) FindScopes(ctx context.Context, names []string) ([]repository.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]repository.Scope, 0, len(names))
	for _, n := range names {
		if sc, ok := s.scopes[n]; ok {
			out = append(out, cloneScope(sc))
		}
	}
	return out, nil
}

func (s *Store) GetScopes(ctx context.Context, publicOnly bool) ([]repository.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]repository.Scope, 0, len(s.scopes))
	for _, sc := range s.scopes {
		if publicOnly && !sc.ShowInDiscoveryDocument {
			continue
		}
		out = append(out, cloneScope(sc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneClient(c repository.Client) repository.Client {
	c.ClientSecrets = slices.Clone(c.ClientSecrets)
	c.RedirectURIs = slices.Clone(c.RedirectURIs)
	c.AllowedScopes = slices.Clone(c.AllowedScopes)
	c.AllowedCustomGrantTypes = slices.Clone(c.AllowedCustomGrantTypes)
	c.IdentityProviderRestrictions = slices.Clone(c.IdentityProviderRestrictions)
	c.Claims = slices.Clone(c.Claims)
	return c
}

func cloneScope(s repository.Scope) repository.Scope {
	s.Claims = slices.Clone(s.Claims)
	s.ScopeSecrets = slices.Clone(s.ScopeSecrets)
	return s
}
