package repository

import (
	"context"
	"time"
)

// Consent es el consentimiento recordado de un usuario a un cliente.
type Consent struct {
	Subject   string    `json:"subject"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConsentStore persiste consents recordados.
type ConsentStore interface {
	// Load retorna ErrNotFound si no hay consent para el par.
	Load(ctx context.Context, subject, clientID string) (*Consent, error)

	LoadAll(ctx context.Context, subject string) ([]Consent, error)

	// Update crea o reemplaza el consent del par (subject, client).
	Update(ctx context.Context, consent *Consent) error

	// Revoke es idempotente.
	Revoke(ctx context.Context, subject, clientID string) error
}
