// Package authorize valida requests a /connect/authorize, sella los
// parámetros para retomar el flujo después del login/consent, y genera la
// respuesta (code, tokens) según el flujo.
package authorize

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/scopes"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/validation"
)

// Claves de mensajes de error para el usuario (ver i18n).
const (
	MsgInvalidRequest      = "authorize.invalid_request"
	MsgUnknownClient       = "authorize.unknown_client"
	MsgInvalidRedirectURI  = "authorize.invalid_redirect_uri"
	MsgInvalidResumeToken  = "authorize.invalid_resume_token"
	MsgConfigurationFailed = "authorize.configuration_failed"
)

// sha256 en base64url sin padding
const replacedSessionLength = 43

// Modos de respuesta permitidos por flujo.
var responseModesByFlow = map[repository.Flow][]string{
	repository.FlowAuthorizationCode: {oauth.ResponseModeQuery, oauth.ResponseModeFragment, oauth.ResponseModeFormPost},
	repository.FlowImplicit:          {oauth.ResponseModeFragment, oauth.ResponseModeFormPost},
	repository.FlowHybrid:            {oauth.ResponseModeFragment, oauth.ResponseModeFormPost},
}

// IdentityTokenValidator valida id_token_hint.
type IdentityTokenValidator interface {
	ValidateIdentityToken(ctx context.Context, token string, opts tokens.IdentityTokenOptions) (*tokens.ValidationResult, error)
}

// RequestValidator produce el ValidatedAuthorizeRequest. Stateless.
type RequestValidator struct {
	Clients repository.ClientStore
	Scopes  *scopes.Validator
	Hints   IdentityTokenValidator
}

func NewRequestValidator(clients repository.ClientStore, sv *scopes.Validator, hints IdentityTokenValidator) *RequestValidator {
	return &RequestValidator{Clients: clients, Scopes: sv, Hints: hints}
}

// Validate valida params. Si el error es de KindUser el redirect_uri no es
// confiable y hay que mostrar una página de error; en cualquier otro caso
// el request devuelto trae RedirectURI, State y ResponseMode para redirigir
// el error al cliente.
//
// decision es el consent enviado (si lo hay); prompt=login/select_account
// junto a una decisión es inválido.
func (v *RequestValidator) Validate(ctx context.Context, params url.Values, decision *oauth.ConsentDecision) (*oauth.ValidatedAuthorizeRequest, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("authorize.validate"))

	req := &oauth.ValidatedAuthorizeRequest{Raw: cloneValues(params)}

	// client_id y redirect_uri: hasta validarlos, los errores van al usuario.
	req.ClientID = params.Get(oauth.ParamClientID)
	if req.ClientID == "" || len(req.ClientID) > oauth.MaxClientIDLength {
		return nil, oauth.UserError(oauth.CodeInvalidRequest, MsgInvalidRequest).WithCause(errors.New("client_id missing or too long"))
	}
	redirect := params.Get(oauth.ParamRedirectURI)
	if redirect == "" || len(redirect) > oauth.MaxRedirectURILength || !validation.ValidRedirectURI(redirect) {
		return nil, oauth.UserError(oauth.CodeInvalidRequest, MsgInvalidRedirectURI).WithCause(errors.New("redirect_uri missing or malformed"))
	}

	client, err := v.Clients.FindClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("unknown client", logger.ClientID(req.ClientID))
			return nil, oauth.UserError(oauth.CodeUnauthorizedClient, MsgUnknownClient)
		}
		return nil, fmt.Errorf("authorize: find client: %w", err)
	}
	if !client.Enabled {
		log.Info("disabled client", logger.ClientID(req.ClientID))
		return nil, oauth.UserError(oauth.CodeUnauthorizedClient, MsgUnknownClient)
	}
	if !client.HasRedirectURI(redirect) {
		log.Info("redirect_uri not registered", logger.ClientID(req.ClientID))
		return nil, oauth.UserError(oauth.CodeInvalidRequest, MsgInvalidRedirectURI)
	}
	req.Client = client
	req.RedirectURI = redirect

	// desde acá los errores se redirigen al cliente
	req.State = params.Get(oauth.ParamState)
	if len(req.State) > oauth.MaxStateLength {
		req.State = ""
		return req, oauth.ClientError(oauth.CodeInvalidRequest, "state too long")
	}

	if err := v.validateResponseType(req, params); err != nil {
		return req, err
	}
	if err := v.validatePKCE(req, params); err != nil {
		return req, err
	}
	if err := v.validateScopes(ctx, req, params); err != nil {
		return req, err
	}
	if err := validateOptional(req, params); err != nil {
		return req, err
	}
	if err := v.validateIDTokenHint(ctx, req, params); err != nil {
		return req, err
	}

	if decision != nil && (req.HasPrompt(oauth.PromptLogin) || req.HasPrompt(oauth.PromptSelectAccount)) {
		return req, oauth.ClientError(oauth.CodeInvalidRequest, "prompt=login cannot be combined with a consent decision")
	}

	log.Debug("authorize request valid",
		logger.ClientID(req.ClientID), logger.ResponseType(req.ResponseType), logger.Flow(string(req.Flow)))
	return req, nil
}

func (v *RequestValidator) validateResponseType(req *oauth.ValidatedAuthorizeRequest, params url.Values) error {
	raw := params.Get(oauth.ParamResponseType)
	if raw == "" {
		return oauth.ClientError(oauth.CodeUnsupportedResponseType, "response_type is missing")
	}
	req.ResponseType = oauth.NormalizeResponseType(raw)
	flow, ok := oauth.ResponseTypeToFlow[req.ResponseType]
	if !ok {
		return oauth.ClientError(oauth.CodeUnsupportedResponseType, "unsupported response_type")
	}
	baseFlow := flow

	// el cliente decide si el flujo lleva PKCE
	switch {
	case flow == repository.FlowAuthorizationCode && req.Client.Flow == repository.FlowAuthorizationCodeWithProofKey:
		flow = repository.FlowAuthorizationCodeWithProofKey
	case flow == repository.FlowHybrid && req.Client.Flow == repository.FlowHybridWithProofKey:
		flow = repository.FlowHybridWithProofKey
	}
	if flow != req.Client.Flow {
		return oauth.ClientError(oauth.CodeUnauthorizedClient, "invalid flow for client")
	}
	req.Flow = flow

	mode := params.Get(oauth.ParamResponseMode)
	if mode == "" {
		mode = oauth.ResponseModeFragment
		if baseFlow == repository.FlowAuthorizationCode {
			mode = oauth.ResponseModeQuery
		}
	}
	if !slices.Contains(oauth.SupportedResponseModes, mode) {
		return oauth.ClientError(oauth.CodeInvalidRequest, "unsupported response_mode")
	}
	if !slices.Contains(responseModesByFlow[baseFlow], mode) {
		// tokens nunca viajan en la query
		return oauth.ClientError(oauth.CodeInvalidRequest, "invalid response_mode for flow")
	}
	req.ResponseMode = mode
	req.AccessTokenRequested = slices.Contains(strings.Fields(req.ResponseType), oauth.ResponseTypeToken)
	return nil
}

func (v *RequestValidator) validatePKCE(req *oauth.ValidatedAuthorizeRequest, params url.Values) error {
	if !req.Flow.RequiresProofKey() {
		return nil
	}
	challenge := params.Get(oauth.ParamCodeChallenge)
	if challenge == "" {
		return oauth.ValidationFailure(oauth.CodeInvalidRequest, "code_challenge is missing")
	}
	if len(challenge) < oauth.CodeChallengeMinLength || len(challenge) > oauth.CodeChallengeMaxLength || !validation.ValidCodeVerifier(challenge) {
		return oauth.ValidationFailure(oauth.CodeInvalidRequest, "invalid code_challenge")
	}
	method := params.Get(oauth.ParamCodeChallengeMethod)
	if method == "" {
		method = oauth.CodeChallengeMethodPlain
	}
	if method != oauth.CodeChallengeMethodPlain && method != oauth.CodeChallengeMethodS256 {
		return oauth.ValidationFailure(oauth.CodeInvalidRequest, "transform algorithm not supported")
	}
	req.CodeChallenge = challenge
	req.CodeChallengeMethod = method
	return nil
}

func (v *RequestValidator) validateScopes(ctx context.Context, req *oauth.ValidatedAuthorizeRequest, params url.Values) error {
	raw := params.Get(oauth.ParamScope)
	if len(raw) > oauth.MaxScopeLength {
		return oauth.ClientError(oauth.CodeInvalidScope, "scope too long")
	}
	names := scopes.ParseScopes(raw)
	if len(names) == 0 {
		return oauth.ClientError(oauth.CodeInvalidScope, "scope is missing")
	}
	req.RequestedScopes = names
	req.IsOpenIDRequest = slices.Contains(names, repository.ScopeOpenID)

	hasIDToken := slices.Contains(strings.Fields(req.ResponseType), oauth.ResponseTypeIDToken)
	if hasIDToken && !req.IsOpenIDRequest {
		return oauth.ValidationFailure(oauth.CodeInvalidScope, "response_type id_token requires the openid scope")
	}

	res, err := v.Scopes.AreScopesValid(ctx, names)
	if err != nil {
		return err
	}
	if !scopes.AreScopesAllowed(req.Client, names) {
		return oauth.ValidationFailure(oauth.CodeInvalidScope, "scope not allowed for client")
	}
	if err := res.IsResponseTypeValid(req.ResponseType); err != nil {
		return err
	}
	if res.ContainsOfflineAccess && (req.Flow == repository.FlowImplicit) {
		return oauth.ValidationFailure(oauth.CodeInvalidScope, "offline_access not allowed for implicit flow")
	}
	req.Scopes = res.Scopes
	req.IsResourceRequest = res.ContainsResourceScopes

	// nonce obligatorio para implicit/hybrid con openid
	req.Nonce = params.Get(oauth.ParamNonce)
	if len(req.Nonce) > oauth.MaxNonceLength {
		return oauth.ClientError(oauth.CodeInvalidRequest, "nonce too long")
	}
	if req.IsOpenIDRequest && req.Nonce == "" &&
		(req.Flow == repository.FlowImplicit || req.Flow == repository.FlowHybrid || req.Flow == repository.FlowHybridWithProofKey) {
		return oauth.ClientError(oauth.CodeInvalidRequest, "nonce required")
	}
	return nil
}

func validateOptional(req *oauth.ValidatedAuthorizeRequest, params url.Values) error {
	if p := params.Get(oauth.ParamPrompt); p != "" {
		modes := strings.Fields(p)
		for _, m := range modes {
			if !slices.Contains(oauth.SupportedPromptModes, m) {
				return oauth.ClientError(oauth.CodeInvalidRequest, "unsupported prompt mode")
			}
		}
		if slices.Contains(modes, oauth.PromptNone) && len(modes) > 1 {
			return oauth.ClientError(oauth.CodeInvalidRequest, "prompt=none cannot be combined with other values")
		}
		req.PromptModes = slices.Compact(slices.Sorted(slices.Values(modes)))
	}

	if d := params.Get(oauth.ParamDisplay); d != "" && slices.Contains(oauth.SupportedDisplayModes, d) {
		req.DisplayMode = d
	}

	if ui := params.Get(oauth.ParamUILocales); ui != "" {
		if len(ui) > oauth.MaxUILocalesLength {
			return oauth.ClientError(oauth.CodeInvalidRequest, "ui_locales too long")
		}
		req.UILocales = ui
	}

	if ma := params.Get(oauth.ParamMaxAge); ma != "" {
		n, err := strconv.Atoi(ma)
		if err != nil || n < 0 {
			return oauth.ClientError(oauth.CodeInvalidRequest, "invalid max_age")
		}
		req.MaxAge = &n
	}

	if rs := params.Get(oauth.ParamReplacedSession); rs != "" {
		if len(rs) != replacedSessionLength {
			return oauth.ClientError(oauth.CodeInvalidRequest, "invalid login marker")
		}
		req.ReplacedSession = rs
	}

	if lh := params.Get(oauth.ParamLoginHint); lh != "" {
		if len(lh) > oauth.MaxLoginHintLength {
			return oauth.ClientError(oauth.CodeInvalidRequest, "login_hint too long")
		}
		req.LoginHint = lh
	}

	if acr := params.Get(oauth.ParamAcrValues); acr != "" {
		if len(acr) > oauth.MaxAcrValuesLength {
			return oauth.ClientError(oauth.CodeInvalidRequest, "acr_values too long")
		}
		req.AcrValues = strings.Fields(acr)
		for _, a := range req.AcrValues {
			switch {
			case strings.HasPrefix(a, oauth.AcrIdPPrefix):
				req.IdPHint = strings.TrimPrefix(a, oauth.AcrIdPPrefix)
			case strings.HasPrefix(a, oauth.AcrTenantPrefix):
				req.TenantHint = strings.TrimPrefix(a, oauth.AcrTenantPrefix)
			}
		}
	}
	return nil
}

func (v *RequestValidator) validateIDTokenHint(ctx context.Context, req *oauth.ValidatedAuthorizeRequest, params url.Values) error {
	hint := params.Get(oauth.ParamIDTokenHint)
	if hint == "" {
		return nil
	}
	if len(hint) > oauth.MaxIDTokenHintLength {
		return oauth.ClientError(oauth.CodeInvalidRequest, "id_token_hint too long")
	}
	// un hint inválido se ignora: solo sirve como pista del subject esperado
	res, err := v.Hints.ValidateIdentityToken(ctx, hint, tokens.IdentityTokenOptions{ClientID: req.ClientID})
	if err != nil {
		if oauth.KindOf(err) == 0 {
			return err
		}
		logger.From(ctx).Debug("id_token_hint ignored", logger.ErrorCode(oauth.CodeOf(err)))
		return nil
	}
	req.IDTokenHint = hint
	req.SubjectFromIDTokenHint = res.Token.SubjectID()
	return nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = slices.Clone(vals)
	}
	return out
}
