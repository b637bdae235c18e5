package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// Catalog implementa ClientStore y ScopeStore sobre oidc_client/oidc_scope.
// El registro completo vive en data (JSONB).
type Catalog struct{ q querier }

var (
	_ repository.ClientStore = (*Catalog)(nil)
	_ repository.ScopeStore  = (*Catalog)(nil)
)

func (s *Catalog) FindClientByID(ctx context.Context, clientID string) (*repository.Client, error) {
	var raw []byte
	err := s.q.QueryRow(ctx, `SELECT data FROM oidc_client WHERE client_id = $1`, clientID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: find client: %w", err)
	}
	var c repository.Client
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("pg: decode client %s: %w", clientID, err)
	}
	c.ApplyDefaults()
	return &c, nil
}

func (s *Catalog) FindScopes(ctx context.Context, names []string) ([]repository.Scope, error) {
	if len(names) == 0 {
		return []repository.Scope{}, nil
	}
	found, err := s.scopes(ctx, `SELECT data FROM oidc_scope WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	// mismo orden que names
	byName := make(map[string]repository.Scope, len(found))
	for _, sc := range found {
		byName[sc.Name] = sc
	}
	out := make([]repository.Scope, 0, len(found))
	for _, n := range names {
		if sc, ok := byName[n]; ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *Catalog) GetScopes(ctx context.Context, publicOnly bool) ([]repository.Scope, error) {
	if publicOnly {
		return s.scopes(ctx, `SELECT data FROM oidc_scope WHERE show_in_discovery ORDER BY name`)
	}
	return s.scopes(ctx, `SELECT data FROM oidc_scope ORDER BY name`)
}

func (s *Catalog) scopes(ctx context.Context, q string, args ...any) ([]repository.Scope, error) {
	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: query scopes: %w", err)
	}
	defer rows.Close()

	out := []repository.Scope{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("pg: scan scope: %w", err)
		}
		var sc repository.Scope
		if err := json.Unmarshal(raw, &sc); err != nil {
			return nil, fmt.Errorf("pg: decode scope: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpsertClient crea o reemplaza un cliente (importación del catálogo).
func (s *Catalog) UpsertClient(ctx context.Context, c *repository.Client) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("pg: encode client: %w", err)
	}
	const q = `
		INSERT INTO oidc_client (client_id, enabled, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (client_id)
		DO UPDATE SET enabled = EXCLUDED.enabled, data = EXCLUDED.data, updated_at = now()`
	if _, err := s.q.Exec(ctx, q, c.ClientID, c.Enabled, b); err != nil {
		return fmt.Errorf("pg: upsert client: %w", err)
	}
	return nil
}

// UpsertScope crea o reemplaza un scope.
func (s *Catalog) UpsertScope(ctx context.Context, sc *repository.Scope) error {
	b, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("pg: encode scope: %w", err)
	}
	const q = `
		INSERT INTO oidc_scope (name, show_in_discovery, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name)
		DO UPDATE SET show_in_discovery = EXCLUDED.show_in_discovery, data = EXCLUDED.data, updated_at = now()`
	if _, err := s.q.Exec(ctx, q, sc.Name, sc.ShowInDiscoveryDocument, b); err != nil {
		return fmt.Errorf("pg: upsert scope: %w", err)
	}
	return nil
}
