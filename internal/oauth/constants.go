package oauth

import (
	"slices"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// Grant types.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
	GrantTypeRefreshToken      = "refresh_token"
)

// Response types (forma normalizada: valores ordenados alfabéticamente).
const (
	ResponseTypeCode             = "code"
	ResponseTypeToken            = "token"
	ResponseTypeIDToken          = "id_token"
	ResponseTypeIDTokenToken     = "id_token token"
	ResponseTypeCodeIDToken      = "code id_token"
	ResponseTypeCodeToken        = "code token"
	ResponseTypeCodeIDTokenToken = "code id_token token"
)

// SupportedResponseTypes en el orden publicado en discovery.
var SupportedResponseTypes = []string{
	ResponseTypeCode,
	ResponseTypeToken,
	ResponseTypeIDToken,
	ResponseTypeIDTokenToken,
	ResponseTypeCodeIDToken,
	ResponseTypeCodeToken,
	ResponseTypeCodeIDTokenToken,
}

// ResponseTypeToFlow mapea response_type al flujo base (sin PKCE).
var ResponseTypeToFlow = map[string]repository.Flow{
	ResponseTypeCode:             repository.FlowAuthorizationCode,
	ResponseTypeToken:            repository.FlowImplicit,
	ResponseTypeIDToken:          repository.FlowImplicit,
	ResponseTypeIDTokenToken:     repository.FlowImplicit,
	ResponseTypeCodeIDToken:      repository.FlowHybrid,
	ResponseTypeCodeToken:        repository.FlowHybrid,
	ResponseTypeCodeIDTokenToken: repository.FlowHybrid,
}

// NormalizeResponseType ordena y deduplica los valores de response_type.
// "token id_token" y "id_token token" son equivalentes.
func NormalizeResponseType(s string) string {
	parts := strings.Fields(s)
	slices.Sort(parts)
	return strings.Join(slices.Compact(parts), " ")
}

// Response modes.
const (
	ResponseModeQuery    = "query"
	ResponseModeFragment = "fragment"
	ResponseModeFormPost = "form_post"
)

var SupportedResponseModes = []string{ResponseModeQuery, ResponseModeFragment, ResponseModeFormPost}

// Prompt modes.
const (
	PromptNone          = "none"
	PromptLogin         = "login"
	PromptConsent       = "consent"
	PromptSelectAccount = "select_account"
)

var SupportedPromptModes = []string{PromptNone, PromptLogin, PromptConsent, PromptSelectAccount}

// Display modes.
var SupportedDisplayModes = []string{"page", "popup", "touch", "wap"}

// PKCE.
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
	CodeChallengeMinLength   = 43
	CodeChallengeMaxLength   = 128
)

// token_type_hint de revocación.
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
)

// token_type de la respuesta del token endpoint.
const (
	TokenTypeBearer = "Bearer"
	TokenTypePoP    = "pop"
)

// Prefijos en acr_values.
const (
	AcrIdPPrefix    = "idp:"
	AcrTenantPrefix = "tenant:"
)

// Límites de longitud de input.
const (
	MaxClientIDLength     = 100
	MaxScopeLength        = 300
	MaxRedirectURILength  = 400
	MaxNonceLength        = 300
	MaxStateLength        = 2000
	MaxUILocalesLength    = 100
	MaxLoginHintLength    = 100
	MaxAcrValuesLength    = 300
	MaxCodeLength         = 100
	MaxRefreshTokenLength = 100
	MaxUserNameLength     = 100
	MaxPasswordLength     = 100
	MaxGrantTypeLength    = 100
	MaxIDTokenHintLength  = 4000
	MaxTokenLength        = 4000
	MaxProofKeyLength     = 4000
)

// Nombres de parámetros.
const (
	ParamClientID            = "client_id"
	ParamClientSecret        = "client_secret"
	ParamRedirectURI         = "redirect_uri"
	ParamResponseType        = "response_type"
	ParamResponseMode        = "response_mode"
	ParamScope               = "scope"
	ParamState               = "state"
	ParamNonce               = "nonce"
	ParamPrompt              = "prompt"
	ParamDisplay             = "display"
	ParamMaxAge              = "max_age"
	ParamUILocales           = "ui_locales"
	ParamLoginHint           = "login_hint"
	ParamAcrValues           = "acr_values"
	ParamIDTokenHint         = "id_token_hint"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamGrantType           = "grant_type"
	ParamCode                = "code"
	ParamCodeVerifier        = "code_verifier"
	ParamRefreshToken        = "refresh_token"
	ParamUserName            = "username"
	ParamPassword            = "password"
	ParamToken               = "token"
	ParamTokenTypeHint       = "token_type_hint"
	ParamTokenType           = "token_type"
	ParamProofKey            = "key"
	ParamSessionState        = "session_state"
	ParamAccessToken         = "access_token"
	ParamIDToken             = "id_token"
	ParamExpiresIn           = "expires_in"
	ParamError               = "error"
	ParamErrorDescription    = "error_description"
)
