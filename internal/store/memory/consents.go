package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

type consentKey struct{ subject, clientID string }

// Consents implementa repository.ConsentStore.
type Consents struct {
	mu    sync.RWMutex
	items map[consentKey]repository.Consent
}

var _ repository.ConsentStore = (*Consents)(nil)

func NewConsents() *Consents {
	return &Consents{items: make(map[consentKey]repository.Consent)}
}

func (s *Consents) Load(ctx context.Context, subject, clientID string) (*repository.Consent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[consentKey{subject, clientID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c.Scopes = slices.Clone(c.Scopes)
	return &c, nil
}

func (s *Consents) LoadAll(ctx context.Context, subject string) ([]repository.Consent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.Consent
	for k, c := range s.items {
		if k.subject == subject {
			c.Scopes = slices.Clone(c.Scopes)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (s *Consents) Update(ctx context.Context, c *repository.Consent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil || c.Subject == "" || c.ClientID == "" {
		return repository.ErrInvalidInput
	}
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[consentKey{c.Subject, c.ClientID}] = cp
	return nil
}

func (s *Consents) Revoke(ctx context.Context, subject, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, consentKey{subject, clientID})
	return nil
}
