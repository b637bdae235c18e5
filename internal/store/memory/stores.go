package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// Stores agrupa todos los stores en memoria.
type Stores struct {
	Codes    *AuthorizationCodes
	Refresh  *RefreshTokens
	Handles  *TokenHandles
	Consents *Consents
}

func New() *Stores {
	return &Stores{
		Codes:    NewAuthorizationCodes(),
		Refresh:  NewRefreshTokens(),
		Handles:  NewTokenHandles(),
		Consents: NewConsents(),
	}
}

// Purge elimina grants vencidos de todos los stores.
func (s *Stores) Purge() int {
	return s.Codes.purge() + s.Refresh.purge() + s.Handles.purge()
}

// RunJanitor purga cada interval hasta que ctx se cancele.
func (s *Stores) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := logger.From(ctx).With(logger.Component("store.memory"))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Purge(); n > 0 {
				log.Debug("expired grants purged", logger.Count(n))
			}
		}
	}
}
