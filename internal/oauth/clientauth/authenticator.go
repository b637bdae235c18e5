package clientauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
	tokens "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

var errInvalidClient = oauth.ClientError(oauth.CodeInvalidClient, "client authentication failed")

// Authenticator valida credenciales de clientes y scopes.
type Authenticator struct {
	Clients repository.ClientStore
	Scopes  repository.ScopeStore
	Audit   audit.Sink
	Now     func() time.Time
}

func New(clients repository.ClientStore, scopes repository.ScopeStore, sink audit.Sink) *Authenticator {
	return &Authenticator{Clients: clients, Scopes: scopes, Audit: audit.OrDefault(sink), Now: time.Now}
}

// AuthenticateClient retorna el cliente si ps es válido para él.
// Todo fallo es invalid_client, sin detalle.
func (a *Authenticator) AuthenticateClient(ctx context.Context, ps *ParsedSecret) (*repository.Client, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("clientauth.client"))
	if ps == nil || ps.ID == "" {
		return nil, errInvalidClient
	}

	client, err := a.Clients.FindClientByID(ctx, ps.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.fail(ctx, audit.EventClientAuthFailed, ps, "unknown client")
			return nil, errInvalidClient
		}
		return nil, fmt.Errorf("clientauth: find client: %w", err)
	}
	if !client.Enabled {
		a.fail(ctx, audit.EventClientAuthFailed, ps, "client disabled")
		return nil, errInvalidClient
	}

	if ps.Method == MethodNone {
		if !client.Public {
			a.fail(ctx, audit.EventClientAuthFailed, ps, "missing credential")
			return nil, errInvalidClient
		}
		log.Debug("public client", logger.ClientID(client.ClientID))
		return client, nil
	}

	if !ValidateSecret(ps, client.ClientSecrets, a.Now()) {
		a.fail(ctx, audit.EventClientAuthFailed, ps, "invalid credential")
		return nil, errInvalidClient
	}
	log.Debug("client authenticated", logger.ClientID(client.ClientID), logger.String("method", ps.Method))
	return client, nil
}

// AuthenticateScope autentica un scope de recurso (API) con sus ScopeSecrets.
// Se usa en introspección: el "client_id" es el nombre del scope.
func (a *Authenticator) AuthenticateScope(ctx context.Context, ps *ParsedSecret) (*repository.Scope, error) {
	if ps == nil || ps.ID == "" || ps.Method == MethodNone {
		return nil, errInvalidClient
	}
	found, err := a.Scopes.FindScopes(ctx, []string{ps.ID})
	if err != nil {
		return nil, fmt.Errorf("clientauth: find scope: %w", err)
	}
	if len(found) == 0 {
		a.fail(ctx, audit.EventScopeAuthFailed, ps, "unknown scope")
		return nil, errInvalidClient
	}
	sc := found[0]
	if !sc.Enabled || len(sc.ScopeSecrets) == 0 {
		a.fail(ctx, audit.EventScopeAuthFailed, ps, "scope cannot introspect")
		return nil, errInvalidClient
	}
	if !ValidateSecret(ps, sc.ScopeSecrets, a.Now()) {
		a.fail(ctx, audit.EventScopeAuthFailed, ps, "invalid credential")
		return nil, errInvalidClient
	}
	return &sc, nil
}

func (a *Authenticator) fail(ctx context.Context, event string, ps *ParsedSecret, reason string) {
	logger.From(ctx).Info("authentication failed",
		logger.Layer("service"), logger.ClientID(ps.ID), logger.String("reason", reason))
	a.Audit.Emit(ctx, audit.New(event, ps.ID, "", map[string]any{"reason": reason, "method": ps.Method}))
}

// ValidateSecret compara la credencial contra los secrets no vencidos.
func ValidateSecret(ps *ParsedSecret, secrets []repository.Secret, now time.Time) bool {
	for _, s := range secrets {
		if s.Expired(now) {
			continue
		}
		switch s.Type {
		case repository.SecretShared:
			if ps.Credential != "" && tokens.Equal(ps.Credential, s.Value) {
				return true
			}
		case repository.SecretHashed:
			if ps.Credential != "" && secret.Verify(ps.Credential, s.Value) {
				return true
			}
		case repository.SecretX509Thumbprint:
			if ps.Certificate != nil && strings.EqualFold(CertificateThumbprint(ps), s.Value) {
				return true
			}
		}
	}
	return false
}

// CertificateThumbprint es el SHA-256 hex del DER del certificado.
func CertificateThumbprint(ps *ParsedSecret) string {
	if ps == nil || ps.Certificate == nil {
		return ""
	}
	return tokens.SHA256Hex(ps.Certificate.Raw)
}
