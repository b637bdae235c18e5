// Package introspection implementa el endpoint de introspección. El caller
// es un scope de recurso (API) autenticado con su ScopeSecret.
package introspection

import (
	"context"
	"errors"
	"slices"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/scopes"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

const claimActive = "active"

// Inactive es la respuesta para todo token inválido, vencido o ajeno al caller.
func Inactive() map[string]any { return map[string]any{claimActive: false} }

// AccessTokenValidator es lo que necesita el processor de tokens.Validator.
type AccessTokenValidator interface {
	ValidateAccessToken(ctx context.Context, token, expectedScope string) (*tokens.ValidationResult, error)
}

type Processor struct {
	Tokens AccessTokenValidator
	Audit  audit.Sink
}

func NewProcessor(v AccessTokenValidator, sink audit.Sink) *Processor {
	return &Processor{Tokens: v, Audit: audit.OrDefault(sink)}
}

// Process arma la respuesta para caller (ya autenticado). Solo devuelve
// error para requests malformados o fallas de infraestructura.
func (p *Processor) Process(ctx context.Context, token string, caller *repository.Scope) (map[string]any, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("introspection.process"), logger.String("scope", caller.Name))
	if token == "" {
		return nil, oauth.ClientError(oauth.CodeInvalidRequest, "token is missing")
	}
	if len(token) > oauth.MaxTokenLength {
		return p.inactive(), nil
	}

	res, err := p.Tokens.ValidateAccessToken(ctx, token, "")
	if err != nil {
		var oe *oauth.Error
		if errors.As(err, &oe) {
			log.Debug("introspected token is not valid", logger.ErrorCode(oe.Code))
			return p.inactive(), nil
		}
		return nil, err
	}

	tokenScopes := res.Token.Scopes()
	if !caller.AllowUnrestrictedIntrospection {
		if !slices.Contains(tokenScopes, caller.Name) {
			p.Audit.Emit(ctx, audit.New(audit.EventIntrospectionScopeMissing, res.Token.ClientID, res.Token.SubjectID(), map[string]any{"scope": caller.Name}))
			return p.inactive(), nil
		}
		metrics.Introspections.WithLabelValues("true").Inc()
		return map[string]any{claimActive: true, oauth.ParamScope: caller.Name}, nil
	}

	out := tokens.ClaimsMap(res.Token)
	out[oauth.ParamScope] = scopes.Join(tokenScopes)
	out[claimActive] = true
	metrics.Introspections.WithLabelValues("true").Inc()
	return out, nil
}

func (p *Processor) inactive() map[string]any {
	metrics.Introspections.WithLabelValues("false").Inc()
	return Inactive()
}
