package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

const (
	kindCode    = "code"
	kindRefresh = "refresh"
	kindHandle  = "handle"
)

// grants es el store genérico sobre la tabla oidc_grant.
type grants[T any] struct {
	q    querier
	kind string
	now  func() time.Time
}

func newGrants[T any](q querier, kind string) *grants[T] {
	return &grants[T]{q: q, kind: kind, now: time.Now}
}

func meta[T any](v *T) repository.Grant { return any(v).(repository.Grant) }

func (g *grants[T]) decode(raw []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("pg: decode %s: %w", g.kind, err)
	}
	return &v, nil
}

const upsertGrant = `
	INSERT INTO oidc_grant (kind, key, subject, client_id, expires_at, data)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (kind, key)
	DO UPDATE SET subject = EXCLUDED.subject, client_id = EXCLUDED.client_id,
	              expires_at = EXCLUDED.expires_at, data = EXCLUDED.data`

func (g *grants[T]) insert(ctx context.Context, q querier, key string, value *T) error {
	if key == "" || value == nil {
		return repository.ErrInvalidInput
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("pg: encode %s: %w", g.kind, err)
	}
	m := meta(value)
	if _, err := q.Exec(ctx, upsertGrant, g.kind, key, m.GrantSubject(), m.GrantClientID(), m.GrantExpiresAt().UTC(), b); err != nil {
		return fmt.Errorf("pg: store %s: %w", g.kind, err)
	}
	return nil
}

func (g *grants[T]) Store(ctx context.Context, key string, value *T) error {
	return g.insert(ctx, g.q, key, value)
}

func (g *grants[T]) Get(ctx context.Context, key string) (*T, error) {
	const q = `SELECT data FROM oidc_grant WHERE kind = $1 AND key = $2 AND expires_at > $3`
	var raw []byte
	err := g.q.QueryRow(ctx, q, g.kind, key, g.now().UTC()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get %s: %w", g.kind, err)
	}
	return g.decode(raw)
}

func (g *grants[T]) Remove(ctx context.Context, key string) error {
	if _, err := g.q.Exec(ctx, `DELETE FROM oidc_grant WHERE kind = $1 AND key = $2`, g.kind, key); err != nil {
		return fmt.Errorf("pg: remove %s: %w", g.kind, err)
	}
	return nil
}

func (g *grants[T]) GetAllForSubject(ctx context.Context, subject string) ([]*T, error) {
	const q = `SELECT data FROM oidc_grant WHERE kind = $1 AND subject = $2 AND expires_at > $3 ORDER BY created_at`
	rows, err := g.q.Query(ctx, q, g.kind, subject, g.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("pg: list %s: %w", g.kind, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("pg: scan %s: %w", g.kind, err)
		}
		v, err := g.decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (g *grants[T]) RevokeForSubjectAndClient(ctx context.Context, subject, clientID string) error {
	const q = `DELETE FROM oidc_grant WHERE kind = $1 AND subject = $2 AND client_id = $3`
	if _, err := g.q.Exec(ctx, q, g.kind, subject, clientID); err != nil {
		return fmt.Errorf("pg: revoke %s: %w", g.kind, err)
	}
	return nil
}

// AuthorizationCodes implementa repository.AuthorizationCodeStore.
type AuthorizationCodes struct{ *grants[repository.AuthorizationCode] }

var _ repository.AuthorizationCodeStore = (*AuthorizationCodes)(nil)

// Consume: DELETE ... RETURNING; de dos canjes concurrentes solo uno ve la fila.
func (s *AuthorizationCodes) Consume(ctx context.Context, key string) (*repository.AuthorizationCode, error) {
	const q = `DELETE FROM oidc_grant WHERE kind = $1 AND key = $2 RETURNING data, expires_at`
	var (
		raw []byte
		exp time.Time
	)
	err := s.q.QueryRow(ctx, q, s.kind, key).Scan(&raw, &exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: consume code: %w", err)
	}
	if !s.now().Before(exp) {
		return nil, repository.ErrNotFound
	}
	return s.decode(raw)
}

// RefreshTokens implementa repository.RefreshTokenStore.
type RefreshTokens struct {
	*grants[repository.RefreshToken]
	db txBeginner
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ repository.RefreshTokenStore = (*RefreshTokens)(nil)

// Rotate borra oldKey y guarda newKey en la misma transacción. Si la fila
// vieja ya no estaba, otro request rotó primero.
func (s *RefreshTokens) Rotate(ctx context.Context, oldKey, newKey string, value *repository.RefreshToken) error {
	if newKey == "" || value == nil {
		return repository.ErrInvalidInput
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `DELETE FROM oidc_grant WHERE kind = $1 AND key = $2`, s.kind, oldKey)
		if err != nil {
			return fmt.Errorf("pg: rotate delete: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return s.insert(ctx, tx, newKey, value)
	})
}

// Replace actualiza la fila solo si sigue ahí y no venció; 0 filas es una
// revocación (o expiración) que ganó.
func (s *RefreshTokens) Replace(ctx context.Context, key string, value *repository.RefreshToken) error {
	if key == "" || value == nil {
		return repository.ErrInvalidInput
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("pg: encode %s: %w", s.kind, err)
	}
	const q = `
		UPDATE oidc_grant
		SET subject = $3, client_id = $4, expires_at = $5, data = $6
		WHERE kind = $1 AND key = $2 AND expires_at > $7`
	ct, err := s.q.Exec(ctx, q, s.kind, key, value.SubjectID(), value.ClientID(), value.GrantExpiresAt().UTC(), b, s.now().UTC())
	if err != nil {
		return fmt.Errorf("pg: replace refresh: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// TokenHandles implementa repository.TokenHandleStore.
type TokenHandles struct{ *grants[repository.Token] }

var _ repository.TokenHandleStore = (*TokenHandles)(nil)
