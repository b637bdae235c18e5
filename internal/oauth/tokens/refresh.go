package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

// RefreshService crea y rota refresh tokens según la política del cliente.
type RefreshService struct {
	Store repository.RefreshTokenStore
	Audit audit.Sink
	Now   func() time.Time
}

func NewRefreshService(store repository.RefreshTokenStore, sink audit.Sink) *RefreshService {
	return &RefreshService{Store: store, Audit: audit.OrDefault(sink), Now: time.Now}
}

// Create guarda un refresh token para accessToken y devuelve el handle.
// Lifetime: absoluto o deslizante según el cliente.
func (s *RefreshService) Create(ctx context.Context, accessToken *repository.Token, client *repository.Client) (string, error) {
	lifetime := InitialLifetime(client)
	rt := &repository.RefreshToken{
		CreationTime: s.Now().UTC(),
		Lifetime:     lifetime,
		AccessToken:  *accessToken.Clone(),
		Version:      1,
	}
	handle, err := sectoken.NewHandle()
	if err != nil {
		return "", fmt.Errorf("refresh: handle: %w", err)
	}
	if err := s.Store.Store(ctx, sectoken.SHA256Base64URL(handle), rt); err != nil {
		return "", fmt.Errorf("refresh: store: %w", err)
	}
	logger.From(ctx).Debug("refresh token created",
		logger.Layer("service"), logger.ClientID(client.ClientID), logger.Int("lifetime_s", int(lifetime.Seconds())))
	return handle, nil
}

// InitialLifetime es la vida de un refresh token recién creado. En modo
// deslizante nunca supera el absoluto (si absolute > 0).
func InitialLifetime(client *repository.Client) time.Duration {
	if client.RefreshTokenExpiration != repository.TokenExpirationSliding {
		return client.AbsoluteRefreshTokenLifetime
	}
	return SlidingLifetime(time.Time{}, time.Time{}, client.SlidingRefreshTokenLifetime, client.AbsoluteRefreshTokenLifetime)
}

// SlidingLifetime calcula el nuevo lifetime: lo transcurrido desde la creación
// más la ventana deslizante, con tope en el absoluto (si absolute > 0).
// CreationTime nunca se mueve.
func SlidingLifetime(creation, now time.Time, sliding, absolute time.Duration) time.Duration {
	elapsed := now.Sub(creation)
	if elapsed < 0 {
		elapsed = 0
	}
	next := elapsed + sliding
	if absolute > 0 && next > absolute {
		next = absolute
	}
	return next
}

// Update aplica la política de uso/expiración después de un refresh.
// rt ya trae el access token nuevo. Devuelve el handle vigente (nuevo si
// OneTimeOnly). Si otro request rotó primero, retorna invalid_grant.
func (s *RefreshService) Update(ctx context.Context, handle string, rt *repository.RefreshToken, client *repository.Client) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("refresh.update"), logger.ClientID(client.ClientID))
	oldKey := sectoken.SHA256Base64URL(handle)

	if client.RefreshTokenExpiration == repository.TokenExpirationSliding {
		rt.Lifetime = SlidingLifetime(rt.CreationTime, s.Now(), client.SlidingRefreshTokenLifetime, client.AbsoluteRefreshTokenLifetime)
	}
	rt.Version++

	if client.RefreshTokenUsage != repository.TokenUsageOneTimeOnly {
		if err := s.Store.Replace(ctx, oldKey, rt); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", s.lost(ctx, log, client, rt, "refresh token revoked during refresh")
			}
			return "", fmt.Errorf("refresh: replace: %w", err)
		}
		metrics.RefreshRotations.WithLabelValues("reused").Inc()
		return handle, nil
	}

	next, err := sectoken.NewHandle()
	if err != nil {
		return "", fmt.Errorf("refresh: handle: %w", err)
	}
	if err := s.Store.Rotate(ctx, oldKey, sectoken.SHA256Base64URL(next), rt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", s.lost(ctx, log, client, rt, "refresh token already used")
		}
		return "", fmt.Errorf("refresh: rotate: %w", err)
	}
	metrics.RefreshRotations.WithLabelValues("rotated").Inc()
	return next, nil
}

// lost: el handle desapareció entre la validación y la escritura (otra
// rotación o una revocación).
func (s *RefreshService) lost(ctx context.Context, log *zap.Logger, client *repository.Client, rt *repository.RefreshToken, desc string) error {
	metrics.RefreshRotations.WithLabelValues("conflict").Inc()
	log.Warn("refresh token update lost race", logger.String("reason", desc))
	s.Audit.Emit(ctx, audit.New(audit.EventRefreshRotationConflict, client.ClientID, rt.SubjectID(), nil))
	return oauth.LifecycleFailure(oauth.CodeInvalidGrant, desc)
}
