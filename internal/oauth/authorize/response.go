package authorize

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/scopes"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

// Response es el resultado de un authorize exitoso. La capa HTTP decide
// cómo entregarlo según ResponseMode (query, fragment, form_post).
type Response struct {
	RedirectURI  string
	ResponseMode string

	Code                string
	AccessToken         string
	AccessTokenLifetime int
	IdentityToken       string
	Scope               string
	State               string
	SessionState        string
}

// Params arma los parámetros de la respuesta.
func (r *Response) Params() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set(oauth.ParamCode, r.Code)
	if r.AccessToken != "" {
		v.Set(oauth.ParamAccessToken, r.AccessToken)
		v.Set(oauth.ParamTokenType, oauth.TokenTypeBearer)
		v.Set(oauth.ParamExpiresIn, strconv.Itoa(r.AccessTokenLifetime))
		set(oauth.ParamScope, r.Scope)
	}
	set(oauth.ParamIDToken, r.IdentityToken)
	set(oauth.ParamState, r.State)
	set(oauth.ParamSessionState, r.SessionState)
	return v
}

// ResponseGenerator emite codes y tokens según el flujo del request.
type ResponseGenerator struct {
	Codes  repository.AuthorizationCodeStore
	Tokens *tokens.Service
	Now    func() time.Time
}

func NewResponseGenerator(codes repository.AuthorizationCodeStore, ts *tokens.Service) *ResponseGenerator {
	return &ResponseGenerator{Codes: codes, Tokens: ts, Now: time.Now}
}

// CreateResponse despacha por flujo. Un flujo desconocido es un error de configuración.
func (g *ResponseGenerator) CreateResponse(ctx context.Context, req *oauth.ValidatedAuthorizeRequest) (*Response, error) {
	if req.Subject.IsAnonymous() {
		return nil, oauth.ConfigurationFailure(nil, "authorize response without subject")
	}
	switch req.Flow {
	case repository.FlowAuthorizationCode, repository.FlowAuthorizationCodeWithProofKey:
		return g.createCodeFlowResponse(ctx, req)
	case repository.FlowImplicit:
		return g.createImplicitFlowResponse(ctx, req, "")
	case repository.FlowHybrid, repository.FlowHybridWithProofKey:
		return g.createHybridFlowResponse(ctx, req)
	}
	return nil, oauth.ConfigurationFailure(nil, "unsupported flow %q", req.Flow)
}

func (g *ResponseGenerator) createCodeFlowResponse(ctx context.Context, req *oauth.ValidatedAuthorizeRequest) (*Response, error) {
	code, err := g.createCode(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		RedirectURI:  req.RedirectURI,
		ResponseMode: req.ResponseMode,
		Code:         code,
		State:        req.State,
	}
	if req.IsOpenIDRequest {
		resp.SessionState = g.sessionState(req)
	}
	return resp, nil
}

func (g *ResponseGenerator) createHybridFlowResponse(ctx context.Context, req *oauth.ValidatedAuthorizeRequest) (*Response, error) {
	code, err := g.createCode(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := g.createImplicitFlowResponse(ctx, req, code)
	if err != nil {
		return nil, err
	}
	resp.Code = code
	return resp, nil
}

// createImplicitFlowResponse emite access y/o id token. code (hybrid) se
// hashea en c_hash.
func (g *ResponseGenerator) createImplicitFlowResponse(ctx context.Context, req *oauth.ValidatedAuthorizeRequest, code string) (*Response, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("authorize.response"), logger.ClientID(req.ClientID))
	types := strings.Fields(req.ResponseType)
	granted := req.EffectiveScopeDefinitions()

	resp := &Response{
		RedirectURI:  req.RedirectURI,
		ResponseMode: req.ResponseMode,
		State:        req.State,
	}

	if slices.Contains(types, oauth.ResponseTypeToken) {
		at, err := g.Tokens.CreateAccessToken(ctx, tokens.CreationRequest{
			Subject: req.Subject,
			Client:  req.Client,
			Scopes:  granted,
		})
		if err != nil {
			return nil, err
		}
		raw, err := g.Tokens.CreateSecurityToken(ctx, at)
		if err != nil {
			return nil, err
		}
		resp.AccessToken = raw
		resp.AccessTokenLifetime = int(at.Lifetime.Seconds())
		resp.Scope = scopes.Join(req.EffectiveScopes())
		metrics.TokensIssued.WithLabelValues(string(req.Flow), repository.TokenTypeAccess).Inc()
	}

	if slices.Contains(types, oauth.ResponseTypeIDToken) {
		it, err := g.Tokens.CreateIdentityToken(ctx, tokens.CreationRequest{
			Subject:                  req.Subject,
			Client:                   req.Client,
			Scopes:                   granted,
			Nonce:                    req.Nonce,
			AccessTokenToHash:        resp.AccessToken,
			AuthorizationCodeToHash:  code,
			IncludeAllIdentityClaims: req.ResponseType == oauth.ResponseTypeIDToken,
		})
		if err != nil {
			return nil, err
		}
		raw, err := g.Tokens.CreateSecurityToken(ctx, it)
		if err != nil {
			return nil, err
		}
		resp.IdentityToken = raw
		metrics.TokensIssued.WithLabelValues(string(req.Flow), repository.TokenTypeIdentity).Inc()
	}

	if req.IsOpenIDRequest {
		resp.SessionState = g.sessionState(req)
	}
	log.Debug("implicit response created", logger.ResponseType(req.ResponseType))
	return resp, nil
}

// createCode guarda el code (hasheado) y devuelve el handle.
func (g *ResponseGenerator) createCode(ctx context.Context, req *oauth.ValidatedAuthorizeRequest) (string, error) {
	sub := req.Subject
	sid := req.SessionID
	if sid == "" {
		sid = sub.SessionID
	}
	code := &repository.AuthorizationCode{
		CreationTime:     g.Now().UTC(),
		Lifetime:         req.Client.AuthorizationCodeLifetime,
		ClientID:         req.ClientID,
		Subject:          sub.Subject,
		SessionID:        sid,
		IdentityProvider: sub.IdentityProvider,
		AuthTime:         sub.AuthTime,
		AuthMethods:      slices.Clone(sub.AuthMethods),
		IsOpenID:         req.IsOpenIDRequest,
		RequestedScopes:  slices.Clone(req.EffectiveScopes()),
		RedirectURI:      req.RedirectURI,
		Nonce:            req.Nonce,
		WasConsentShown:  req.WasConsentShown,
	}
	if req.CodeChallenge != "" {
		code.CodeChallenge = sectoken.SHA256Base64URL(req.CodeChallenge)
		code.CodeChallengeMethod = req.CodeChallengeMethod
	}

	handle, err := sectoken.NewHandle()
	if err != nil {
		return "", fmt.Errorf("authorize: code handle: %w", err)
	}
	if err := g.Codes.Store(ctx, sectoken.SHA256Base64URL(handle), code); err != nil {
		return "", fmt.Errorf("authorize: store code: %w", err)
	}
	metrics.TokensIssued.WithLabelValues(string(req.Flow), "authorization_code").Inc()
	return handle, nil
}

func (g *ResponseGenerator) sessionState(req *oauth.ValidatedAuthorizeRequest) string {
	sid := req.SessionID
	if sid == "" && req.Subject != nil {
		sid = req.Subject.SessionID
	}
	if sid == "" {
		return ""
	}
	salt, err := sectoken.GenerateOpaqueToken(16)
	if err != nil {
		return ""
	}
	return SessionState(req.ClientID, req.RedirectURI, sid, salt)
}

// SessionState = base64url(SHA-256(client_id + origin + session_id + salt)) + "." + salt.
func SessionState(clientID, redirectURI, sessionID, salt string) string {
	return sectoken.SHA256Base64URL(clientID+Origin(redirectURI)+sessionID+salt) + "." + salt
}

// Origin es scheme://host[:port] del redirect_uri.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
