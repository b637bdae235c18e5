package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// Consents implementa repository.ConsentStore sobre oidc_consent.
type Consents struct{ q querier }

var _ repository.ConsentStore = (*Consents)(nil)

func (s *Consents) Load(ctx context.Context, subject, clientID string) (*repository.Consent, error) {
	const q = `SELECT subject, client_id, scopes, updated_at FROM oidc_consent WHERE subject = $1 AND client_id = $2`
	var c repository.Consent
	err := s.q.QueryRow(ctx, q, subject, clientID).Scan(&c.Subject, &c.ClientID, &c.Scopes, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: load consent: %w", err)
	}
	return &c, nil
}

func (s *Consents) LoadAll(ctx context.Context, subject string) ([]repository.Consent, error) {
	const q = `SELECT subject, client_id, scopes, updated_at FROM oidc_consent WHERE subject = $1 ORDER BY client_id`
	rows, err := s.q.Query(ctx, q, subject)
	if err != nil {
		return nil, fmt.Errorf("pg: list consents: %w", err)
	}
	defer rows.Close()

	var out []repository.Consent
	for rows.Next() {
		var c repository.Consent
		if err := rows.Scan(&c.Subject, &c.ClientID, &c.Scopes, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan consent: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Consents) Update(ctx context.Context, c *repository.Consent) error {
	if c == nil || c.Subject == "" || c.ClientID == "" {
		return repository.ErrInvalidInput
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	const q = `
		INSERT INTO oidc_consent (subject, client_id, scopes, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject, client_id)
		DO UPDATE SET scopes = EXCLUDED.scopes, updated_at = EXCLUDED.updated_at`
	scopes := c.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	if _, err := s.q.Exec(ctx, q, c.Subject, c.ClientID, scopes, updated); err != nil {
		return fmt.Errorf("pg: upsert consent: %w", err)
	}
	return nil
}

func (s *Consents) Revoke(ctx context.Context, subject, clientID string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM oidc_consent WHERE subject = $1 AND client_id = $2`, subject, clientID); err != nil {
		return fmt.Errorf("pg: revoke consent: %w", err)
	}
	return nil
}
