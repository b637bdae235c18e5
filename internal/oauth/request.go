package oauth

import (
	"net/url"
	"slices"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

// ParamReplacedSession lo agrega el servidor al consumir prompt=login. Viaja
// solo dentro del resume token; authorize lo descarta si llega del cliente.
const ParamReplacedSession = "hj_replaced_sid"

// ValidatedAuthorizeRequest es la proyección validada de un request a /authorize.
// La crea authorize.RequestValidator; solo interaction la modifica (subject y
// resultado del consent).
type ValidatedAuthorizeRequest struct {
	// Raw son los parámetros originales; es lo que se sella en el resume token.
	Raw url.Values

	ClientID     string
	Client       *repository.Client
	RedirectURI  string
	ResponseType string
	ResponseMode string
	Flow         repository.Flow

	State string
	Nonce string

	RequestedScopes      []string
	Scopes               []repository.Scope // definiciones resueltas de RequestedScopes
	IsOpenIDRequest      bool
	IsResourceRequest    bool
	AccessTokenRequested bool

	// GrantedScopes: resultado del consent. Nil hasta que se resuelve la interacción.
	GrantedScopes []string

	CodeChallenge       string
	CodeChallengeMethod string

	PromptModes []string
	DisplayMode string
	UILocales   string
	LoginHint   string
	MaxAge      *int
	AcrValues   []string
	IdPHint     string
	TenantHint  string

	IDTokenHint            string
	SubjectFromIDTokenHint string

	// ReplacedSession es el hash del sid vigente cuando se consumió
	// prompt=login. Esa sesión ya no alcanza para continuar.
	ReplacedSession string

	Subject         *repository.Principal
	SessionID       string
	WasConsentShown bool
}

// HasPrompt indica si prompt incluye mode.
func (r *ValidatedAuthorizeRequest) HasPrompt(mode string) bool {
	return slices.Contains(r.PromptModes, mode)
}

// RemovePrompt quita mode de PromptModes y del Raw, para que la siguiente pasada
// (después del login) no vuelva a pedir interacción.
func (r *ValidatedAuthorizeRequest) RemovePrompt(mode string) {
	r.PromptModes = slices.DeleteFunc(slices.Clone(r.PromptModes), func(p string) bool { return p == mode })
	if r.Raw == nil {
		return
	}
	if len(r.PromptModes) == 0 {
		r.Raw.Del(ParamPrompt)
	} else {
		r.Raw.Set(ParamPrompt, strings.Join(r.PromptModes, " "))
	}
}

// RequireNewSession reemplaza un prompt=login consumido: las pasadas
// siguientes rechazan la sesión sid. Cada login emite un sid nuevo.
func (r *ValidatedAuthorizeRequest) RequireNewSession(sid string) {
	if sid == "" {
		return
	}
	r.ReplacedSession = sectoken.SHA256Base64URL(sid)
	if r.Raw != nil {
		r.Raw.Set(ParamReplacedSession, r.ReplacedSession)
	}
}

// IsReplacedSession indica si sid es la sesión descartada por prompt=login.
func (r *ValidatedAuthorizeRequest) IsReplacedSession(sid string) bool {
	return r.ReplacedSession != "" && sectoken.Equal(r.ReplacedSession, sectoken.SHA256Base64URL(sid))
}

// EffectiveScopes son los scopes otorgados si hubo consent, o los pedidos.
func (r *ValidatedAuthorizeRequest) EffectiveScopes() []string {
	if r.GrantedScopes != nil {
		return r.GrantedScopes
	}
	return r.RequestedScopes
}

// EffectiveScopeDefinitions filtra Scopes por EffectiveScopes.
func (r *ValidatedAuthorizeRequest) EffectiveScopeDefinitions() []repository.Scope {
	names := r.EffectiveScopes()
	out := make([]repository.Scope, 0, len(names))
	for _, s := range r.Scopes {
		if slices.Contains(names, s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// ValidatedTokenRequest es el resultado de token.RequestValidator.
type ValidatedTokenRequest struct {
	Raw       url.Values
	Client    *repository.Client
	GrantType string

	// Scopes validados para client_credentials / password / custom.
	Scopes           []string
	ScopeDefinitions []repository.Scope

	AuthorizationCode       *repository.AuthorizationCode
	AuthorizationCodeHandle string
	CodeVerifier            string

	RefreshToken       *repository.RefreshToken
	RefreshTokenHandle string

	// Subject para password, authorization_code y custom grants.
	Subject  *repository.Principal
	UserName string

	// RequestedTokenType es Bearer o pop; ProofKey es el JWK (JSON) para pop.
	RequestedTokenType string
	ProofKey           string

	// CustomResponse son campos extra que un custom grant quiere en la respuesta.
	CustomResponse map[string]any
}

// ConsentDecision es lo que el usuario envió desde la pantalla de consent.
type ConsentDecision struct {
	Granted         bool     `json:"granted"`
	Scopes          []string `json:"scopes"`
	RememberConsent bool     `json:"remember"`
}
