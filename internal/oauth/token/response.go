package token

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/scopes"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// Campos base de la respuesta; los hooks no pueden pisarlos.
var baseFields = []string{
	oauth.ParamAccessToken, oauth.ParamTokenType, oauth.ParamExpiresIn,
	oauth.ParamRefreshToken, oauth.ParamIDToken, oauth.ParamScope,
}

// Response es la respuesta exitosa del token endpoint (RFC 6749 §5.1).
type Response struct {
	AccessToken         string
	AccessTokenLifetime int
	TokenType           string
	RefreshToken        string
	IdentityToken       string
	Scope               string

	// Custom son campos extra de grants custom y hooks.
	Custom map[string]any
}

// Fields arma el cuerpo JSON.
func (r *Response) Fields() map[string]any {
	out := make(map[string]any, 6+len(r.Custom))
	maps.Copy(out, r.Custom)
	out[oauth.ParamAccessToken] = r.AccessToken
	out[oauth.ParamTokenType] = r.TokenType
	out[oauth.ParamExpiresIn] = r.AccessTokenLifetime
	if r.RefreshToken != "" {
		out[oauth.ParamRefreshToken] = r.RefreshToken
	}
	if r.IdentityToken != "" {
		out[oauth.ParamIDToken] = r.IdentityToken
	}
	if r.Scope != "" {
		out[oauth.ParamScope] = r.Scope
	}
	return out
}

func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// ResponseGenerator ejecuta el grant validado y emite los tokens.
type ResponseGenerator struct {
	Tokens  *tokens.Service
	Refresh *tokens.RefreshService
	Hooks   *Hooks
	Audit   audit.Sink
	Now     func() time.Time
}

func NewResponseGenerator(ts *tokens.Service, rs *tokens.RefreshService, hooks *Hooks, sink audit.Sink) *ResponseGenerator {
	return &ResponseGenerator{Tokens: ts, Refresh: rs, Hooks: hooks, Audit: audit.OrDefault(sink), Now: time.Now}
}

// Process despacha por grant_type.
func (g *ResponseGenerator) Process(ctx context.Context, req *oauth.ValidatedTokenRequest) (*Response, error) {
	var (
		resp *Response
		err  error
	)
	switch req.GrantType {
	case oauth.GrantTypeAuthorizationCode:
		resp, err = g.processAuthorizationCode(ctx, req)
	case oauth.GrantTypeRefreshToken:
		resp, err = g.processRefreshToken(ctx, req)
	default:
		resp, err = g.processTokenRequest(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if err := g.applyHooks(ctx, req, resp); err != nil {
		return nil, err
	}
	g.Audit.Emit(ctx, audit.New(audit.EventTokenIssued, req.Client.ClientID, subjectOf(req), map[string]any{
		"grant_type": req.GrantType,
		"refresh":    resp.RefreshToken != "",
		"id_token":   resp.IdentityToken != "",
	}))
	return resp, nil
}

func (g *ResponseGenerator) processAuthorizationCode(ctx context.Context, req *oauth.ValidatedTokenRequest) (*Response, error) {
	resp, at, err := g.createAccessToken(ctx, req, req.Subject, req.ScopeDefinitions)
	if err != nil {
		return nil, err
	}
	if slices.Contains(req.Scopes, repository.ScopeOfflineAccess) {
		if resp.RefreshToken, err = g.Refresh.Create(ctx, at, req.Client); err != nil {
			return nil, err
		}
		g.issued(req, "refresh_token")
	}
	if req.AuthorizationCode.IsOpenID {
		it, err := g.Tokens.CreateIdentityToken(ctx, tokens.CreationRequest{
			Subject:           req.Subject,
			Client:            req.Client,
			Scopes:            req.ScopeDefinitions,
			Nonce:             req.AuthorizationCode.Nonce,
			AccessTokenToHash: resp.AccessToken,
		})
		if err != nil {
			return nil, err
		}
		if resp.IdentityToken, err = g.Tokens.CreateSecurityToken(ctx, it); err != nil {
			return nil, err
		}
		g.issued(req, repository.TokenTypeIdentity)
	}
	return resp, nil
}

// processTokenRequest: client_credentials, password y grants custom.
func (g *ResponseGenerator) processTokenRequest(ctx context.Context, req *oauth.ValidatedTokenRequest) (*Response, error) {
	// antes de emitir nada: un grant custom no puede pisar campos base
	if err := checkBaseFields(req.CustomResponse, "custom grant"); err != nil {
		return nil, err
	}
	resp, at, err := g.createAccessToken(ctx, req, req.Subject, req.ScopeDefinitions)
	if err != nil {
		return nil, err
	}
	if !req.Subject.IsAnonymous() && slices.Contains(req.Scopes, repository.ScopeOfflineAccess) {
		if resp.RefreshToken, err = g.Refresh.Create(ctx, at, req.Client); err != nil {
			return nil, err
		}
		g.issued(req, "refresh_token")
	}
	if len(req.CustomResponse) > 0 {
		resp.Custom = maps.Clone(req.CustomResponse)
	}
	return resp, nil
}

// processRefreshToken re-emite el access token: con claims frescas si el
// cliente lo pide o si es pop; si no, clona las claims anteriores con nuevo
// tiempo de creación. Siempre avanza el refresh token según su política.
func (g *ResponseGenerator) processRefreshToken(ctx context.Context, req *oauth.ValidatedTokenRequest) (*Response, error) {
	client := req.Client
	old := &req.RefreshToken.AccessToken

	var (
		at  *repository.Token
		err error
	)
	if client.UpdateAccessTokenClaimsOnRefresh || req.RequestedTokenType == oauth.TokenTypePoP {
		at, err = g.Tokens.CreateAccessToken(ctx, tokens.CreationRequest{
			Subject:  req.Subject,
			Client:   client,
			Scopes:   req.ScopeDefinitions,
			ProofKey: req.ProofKey,
		})
		if err != nil {
			return nil, err
		}
	} else {
		at = g.cloneAccessToken(old, client)
	}

	serialized, err := g.Tokens.CreateSecurityToken(ctx, at)
	if err != nil {
		return nil, err
	}
	g.issued(req, repository.TokenTypeAccess)

	rt := req.RefreshToken
	rt.AccessToken = *at.Clone()
	handle, err := g.Refresh.Update(ctx, req.RefreshTokenHandle, rt, client)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		AccessToken:         serialized,
		AccessTokenLifetime: int(at.Lifetime.Seconds()),
		TokenType:           req.RequestedTokenType,
		RefreshToken:        handle,
		Scope:               scopes.Join(at.Scopes()),
	}

	if slices.Contains(at.Scopes(), repository.ScopeOpenID) && !req.Subject.IsAnonymous() {
		it, err := g.Tokens.CreateIdentityToken(ctx, tokens.CreationRequest{
			Subject:           req.Subject,
			Client:            client,
			Scopes:            req.ScopeDefinitions,
			AccessTokenToHash: serialized,
		})
		if err != nil {
			return nil, err
		}
		if resp.IdentityToken, err = g.Tokens.CreateSecurityToken(ctx, it); err != nil {
			return nil, err
		}
		g.issued(req, repository.TokenTypeIdentity)
	}
	logger.From(ctx).Debug("access token refreshed",
		logger.Layer("service"), logger.Op("token.refresh"), logger.ClientID(client.ClientID),
		logger.Int("version", rt.Version))
	return resp, nil
}

// cloneAccessToken copia las claims sin volver a pedir el perfil.
func (g *ResponseGenerator) cloneAccessToken(old *repository.Token, client *repository.Client) *repository.Token {
	at := old.Clone()
	at.CreationTime = g.Now().UTC()
	at.Lifetime = client.AccessTokenLifetime
	at.AccessTokenType = client.AccessTokenType
	if client.IncludeJwtID {
		for i := range at.Claims {
			if at.Claims[i].Type == repository.ClaimJwtID {
				at.Claims[i].Value = uuid.NewString()
			}
		}
	}
	return at
}

func (g *ResponseGenerator) createAccessToken(ctx context.Context, req *oauth.ValidatedTokenRequest, sub *repository.Principal, defs []repository.Scope) (*Response, *repository.Token, error) {
	at, err := g.Tokens.CreateAccessToken(ctx, tokens.CreationRequest{
		Subject:  sub,
		Client:   req.Client,
		Scopes:   defs,
		ProofKey: req.ProofKey,
	})
	if err != nil {
		return nil, nil, err
	}
	serialized, err := g.Tokens.CreateSecurityToken(ctx, at)
	if err != nil {
		return nil, nil, err
	}
	g.issued(req, repository.TokenTypeAccess)
	return &Response{
		AccessToken:         serialized,
		AccessTokenLifetime: int(at.Lifetime.Seconds()),
		TokenType:           req.RequestedTokenType,
		Scope:               scopes.Join(at.Scopes()),
	}, at, nil
}

// applyHooks corre los hooks sobre una copia de los campos custom.
func (g *ResponseGenerator) applyHooks(ctx context.Context, req *oauth.ValidatedTokenRequest, resp *Response) error {
	hooks := g.Hooks.For(req.GrantType)
	if len(hooks) == 0 {
		return nil
	}
	custom := maps.Clone(resp.Custom)
	if custom == nil {
		custom = map[string]any{}
	}
	for _, h := range hooks {
		if err := h.ProcessResponse(ctx, req, custom); err != nil {
			return fmt.Errorf("token: response hook: %w", err)
		}
		if err := checkBaseFields(custom, "response hook"); err != nil {
			return err
		}
	}
	resp.Custom = custom
	return nil
}

func checkBaseFields(custom map[string]any, source string) error {
	for _, f := range baseFields {
		if _, ok := custom[f]; ok {
			return oauth.ConfigurationFailure(nil, "%s tried to overwrite %q", source, f)
		}
	}
	return nil
}

func (g *ResponseGenerator) issued(req *oauth.ValidatedTokenRequest, tokenType string) {
	metrics.TokensIssued.WithLabelValues(req.GrantType, tokenType).Inc()
}

func subjectOf(req *oauth.ValidatedTokenRequest) string {
	if req.Subject.IsAnonymous() {
		return ""
	}
	return req.Subject.Subject
}
