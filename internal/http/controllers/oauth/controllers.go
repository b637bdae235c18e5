// Package oauth contiene los controllers de los endpoints OAuth2/OIDC:
// authorize, consent, token, revocation e introspection.
package oauth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/i18n"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authorize"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/interaction"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/introspection"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/revocation"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/token"
	"github.com/dropDatabas3/hellojohn-oidc/internal/session"
)

// Rutas públicas del proveedor. Discovery las publica con el issuer adelante.
const (
	AuthorizePath  = "/connect/authorize"
	ConsentPath    = "/connect/consent"
	TokenPath      = "/connect/token"
	RevocationPath = "/connect/revocation"
	IntrospectPath = "/connect/introspect"
	UserInfoPath   = "/connect/userinfo"
	LoginPath      = "/login"
	LogoutPath     = "/logout"
	DiscoveryPath  = "/.well-known/openid-configuration"
	JWKSPath       = "/.well-known/jwks.json"
)

// Deps son los servicios del motor que usan los controllers.
type Deps struct {
	AuthorizeValidator *authorize.RequestValidator
	Interaction        *interaction.Generator
	AuthorizeResponses *authorize.ResponseGenerator
	Resume             *authorize.ResumeCodec
	Sessions           *session.Manager

	ClientAuth     *clientauth.Authenticator
	TokenValidator *token.RequestValidator
	TokenResponses *token.ResponseGenerator

	Revocation    *revocation.Processor
	Introspection *introspection.Processor
}

// Controllers agrupa todos los controllers del dominio OAuth.
type Controllers struct {
	Authorize  *AuthorizeController
	Consent    *ConsentController
	Token      *TokenController
	Revoke     *RevokeController
	Introspect *IntrospectController
}

func NewControllers(d Deps) *Controllers {
	authz := NewAuthorizeController(d.AuthorizeValidator, d.Interaction, d.AuthorizeResponses, d.Resume, d.Sessions)
	return &Controllers{
		Authorize:  authz,
		Consent:    NewConsentController(authz),
		Token:      NewTokenController(d.ClientAuth, d.TokenValidator, d.TokenResponses),
		Revoke:     NewRevokeController(d.ClientAuth, d.Revocation),
		Introspect: NewIntrospectController(d.ClientAuth, d.Introspection),
	}
}

// parseForm exige application/x-www-form-urlencoded en los endpoints POST.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	return r.ParseForm() == nil
}

func acceptLanguage(r *http.Request, uiLocales string) string {
	return i18n.WithUILocales(r.Header.Get("Accept-Language"), uiLocales)
}
