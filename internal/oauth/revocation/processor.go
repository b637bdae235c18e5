// Package revocation implementa el endpoint de revocación (RFC 7009).
package revocation

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

// Result describe qué pasó con el token. Para el cliente la respuesta es
// siempre 200 salvo error de request.
type Result struct {
	TokenType string // access_token | refresh_token | "" si no se encontró
	Revoked   bool
	// Mismatch: el token existe pero es de otro cliente; no se toca.
	Mismatch bool
}

// Processor revoca access tokens de referencia y refresh tokens. Los JWT no
// se pueden revocar: mueren por expiración.
type Processor struct {
	Handles repository.TokenHandleStore
	Refresh repository.RefreshTokenStore
	Audit   audit.Sink
}

func NewProcessor(handles repository.TokenHandleStore, refresh repository.RefreshTokenStore, sink audit.Sink) *Processor {
	return &Processor{Handles: handles, Refresh: refresh, Audit: audit.OrDefault(sink)}
}

// Process valida el request y revoca. client ya está autenticado.
func (p *Processor) Process(ctx context.Context, params url.Values, client *repository.Client) (*Result, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("revocation.process"), logger.ClientID(client.ClientID))

	token := params.Get(oauth.ParamToken)
	if token == "" || len(token) > oauth.MaxTokenLength {
		return nil, oauth.ClientError(oauth.CodeInvalidRequest, "token is missing")
	}

	var (
		res *Result
		err error
	)
	switch hint := params.Get(oauth.ParamTokenTypeHint); hint {
	case oauth.TokenTypeHintAccessToken:
		res, err = p.revokeAccessToken(ctx, token, client)
	case oauth.TokenTypeHintRefreshToken:
		res, err = p.revokeRefreshToken(ctx, token, client)
	case "":
		// sin hint: primero access token, después refresh
		res, err = p.revokeAccessToken(ctx, token, client)
		if err == nil && res.TokenType == "" {
			res, err = p.revokeRefreshToken(ctx, token, client)
		}
	default:
		return nil, oauth.ClientError(oauth.CodeUnsupportedTokenType, "unsupported token_type_hint")
	}
	if err != nil {
		return nil, err
	}

	switch {
	case res.Revoked:
		metrics.Revocations.WithLabelValues(res.TokenType, "revoked").Inc()
	case res.Mismatch:
		metrics.Revocations.WithLabelValues(res.TokenType, "client_mismatch").Inc()
	default:
		metrics.Revocations.WithLabelValues("unknown", "not_found").Inc()
	}
	log.Debug("revocation processed", logger.TokenType(res.TokenType), logger.Bool("revoked", res.Revoked))
	return res, nil
}

func (p *Processor) revokeAccessToken(ctx context.Context, handle string, client *repository.Client) (*Result, error) {
	key := sectoken.SHA256Base64URL(handle)
	t, err := p.Handles.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &Result{}, nil
		}
		return nil, fmt.Errorf("revocation: load handle: %w", err)
	}
	res := &Result{TokenType: oauth.TokenTypeHintAccessToken}
	if t.ClientID != client.ClientID {
		p.mismatch(ctx, client, t.ClientID, t.SubjectID(), res.TokenType)
		res.Mismatch = true
		return res, nil
	}
	if err := p.Handles.Remove(ctx, key); err != nil {
		return nil, fmt.Errorf("revocation: remove handle: %w", err)
	}
	res.Revoked = true
	p.Audit.Emit(ctx, audit.New(audit.EventTokenRevoked, client.ClientID, t.SubjectID(), map[string]any{"token_type": res.TokenType}))
	return res, nil
}

// revokeRefreshToken revoca toda la cadena del subject para el cliente:
// refresh tokens y access tokens de referencia.
func (p *Processor) revokeRefreshToken(ctx context.Context, handle string, client *repository.Client) (*Result, error) {
	key := sectoken.SHA256Base64URL(handle)
	rt, err := p.Refresh.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &Result{}, nil
		}
		return nil, fmt.Errorf("revocation: load refresh: %w", err)
	}
	res := &Result{TokenType: oauth.TokenTypeHintRefreshToken}
	sub := rt.SubjectID()
	if rt.ClientID() != client.ClientID {
		p.mismatch(ctx, client, rt.ClientID(), sub, res.TokenType)
		res.Mismatch = true
		return res, nil
	}

	if sub == "" {
		if err := p.Refresh.Remove(ctx, key); err != nil {
			return nil, fmt.Errorf("revocation: remove refresh: %w", err)
		}
	} else {
		if err := p.Refresh.RevokeForSubjectAndClient(ctx, sub, client.ClientID); err != nil {
			return nil, fmt.Errorf("revocation: revoke refresh chain: %w", err)
		}
		if err := p.Handles.RevokeForSubjectAndClient(ctx, sub, client.ClientID); err != nil {
			return nil, fmt.Errorf("revocation: revoke handles: %w", err)
		}
	}
	res.Revoked = true
	p.Audit.Emit(ctx, audit.New(audit.EventTokenRevoked, client.ClientID, sub, map[string]any{"token_type": res.TokenType}))
	return res, nil
}

func (p *Processor) mismatch(ctx context.Context, client *repository.Client, owner, subject, tokenType string) {
	logger.From(ctx).Warn("revocation attempted by another client",
		logger.Layer("service"), logger.ClientID(client.ClientID), logger.String("owner_client_id", owner), logger.TokenType(tokenType))
	p.Audit.Emit(ctx, audit.New(audit.EventRevocationClientMismatch, client.ClientID, subject, map[string]any{
		"owner_client_id": owner,
		"token_type":      tokenType,
	}))
}
