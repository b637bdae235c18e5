// Package consent decide si hace falta mostrar la pantalla de consent y
// persiste el consent recordado.
package consent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

type Service struct {
	Store repository.ConsentStore
	Now   func() time.Time
}

func NewService(store repository.ConsentStore) *Service {
	return &Service{Store: store, Now: time.Now}
}

// RequiresConsent:
//   - cliente sin RequireConsent: nunca;
//   - sin scopes: nunca;
//   - offline_access: siempre;
//   - con AllowRememberConsent: solo si los scopes no están cubiertos por el consent guardado.
func (s *Service) RequiresConsent(ctx context.Context, client *repository.Client, subject *repository.Principal, scopes []string) (bool, error) {
	if client == nil {
		return false, errors.New("consent: nil client")
	}
	if !client.RequireConsent || len(scopes) == 0 {
		return false, nil
	}
	if slices.Contains(scopes, repository.ScopeOfflineAccess) {
		return true, nil
	}
	if !client.AllowRememberConsent || subject.IsAnonymous() {
		return true, nil
	}

	c, err := s.Store.Load(ctx, subject.Subject, client.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("consent: load: %w", err)
	}
	for _, sc := range scopes {
		if !slices.Contains(c.Scopes, sc) {
			return true, nil
		}
	}
	return false, nil
}

// UpdateConsent guarda (o revoca, si scopes está vacío) el consent del par.
// Solo aplica a clientes con AllowRememberConsent.
func (s *Service) UpdateConsent(ctx context.Context, client *repository.Client, subject *repository.Principal, scopes []string) error {
	if client == nil || subject.IsAnonymous() || !client.AllowRememberConsent {
		return nil
	}
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("consent.update"),
		logger.ClientID(client.ClientID), logger.Subject(subject.Subject))

	if len(scopes) == 0 {
		if err := s.Store.Revoke(ctx, subject.Subject, client.ClientID); err != nil {
			return fmt.Errorf("consent: revoke: %w", err)
		}
		log.Debug("consent revoked")
		return nil
	}

	c := &repository.Consent{
		Subject:   subject.Subject,
		ClientID:  client.ClientID,
		Scopes:    slices.Sorted(slices.Values(scopes)),
		UpdatedAt: s.Now().UTC(),
	}
	if err := s.Store.Update(ctx, c); err != nil {
		return fmt.Errorf("consent: update: %w", err)
	}
	log.Debug("consent remembered", logger.Scopes(c.Scopes))
	return nil
}
