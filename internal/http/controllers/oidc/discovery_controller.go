// Package oidc expone los endpoints OpenID Connect de solo lectura:
// discovery, JWKS y userinfo.
package oidc

import (
	"net/http"
	"slices"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	oauthctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/oauth"
	httperrors "github.com/dropDatabas3/hellojohn-oidc/internal/http/errors"
	"github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/token"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// DiscoveryController sirve /.well-known/openid-configuration.
type DiscoveryController struct {
	issuer           string
	scopes           repository.ScopeStore
	custom           *token.Registry
	enableLocalLogin bool
}

func NewDiscoveryController(issuer string, scopes repository.ScopeStore, custom *token.Registry, enableLocalLogin bool) *DiscoveryController {
	return &DiscoveryController{
		issuer:           strings.TrimRight(issuer, "/"),
		scopes:           scopes,
		custom:           custom,
		enableLocalLogin: enableLocalLogin,
	}
}

func (c *DiscoveryController) Discovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("DiscoveryController.Discovery"))

	list, err := c.scopes.GetScopes(ctx, true)
	if err != nil {
		log.Error("failed to load scopes", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	scopeNames := make([]string, 0, len(list))
	claimSet := map[string]struct{}{repository.ClaimSubject: {}}
	for _, sc := range list {
		scopeNames = append(scopeNames, sc.Name)
		if sc.Type == repository.ScopeTypeIdentity {
			for _, cl := range sc.Claims {
				claimSet[cl.Name] = struct{}{}
			}
		}
	}
	claims := make([]string, 0, len(claimSet))
	for k := range claimSet {
		claims = append(claims, k)
	}
	slices.Sort(claims)

	grants := []string{
		oauth.GrantTypeAuthorizationCode,
		oauth.GrantTypeClientCredentials,
		oauth.GrantTypeRefreshToken,
		"implicit",
	}
	if c.enableLocalLogin {
		grants = append(grants, oauth.GrantTypePassword)
	}
	custom := c.custom.GrantTypes()
	slices.Sort(custom)
	grants = append(grants, custom...)

	doc := map[string]any{
		"issuer":                                c.issuer,
		"jwks_uri":                              c.issuer + oauthctrl.JWKSPath,
		"authorization_endpoint":                c.issuer + oauthctrl.AuthorizePath,
		"token_endpoint":                        c.issuer + oauthctrl.TokenPath,
		"userinfo_endpoint":                     c.issuer + oauthctrl.UserInfoPath,
		"end_session_endpoint":                  c.issuer + oauthctrl.LogoutPath,
		"revocation_endpoint":                   c.issuer + oauthctrl.RevocationPath,
		"introspection_endpoint":                c.issuer + oauthctrl.IntrospectPath,
		"frontchannel_logout_supported":         false,
		"scopes_supported":                      scopeNames,
		"claims_supported":                      claims,
		"grant_types_supported":                 grants,
		"response_types_supported":              oauth.SupportedResponseTypes,
		"response_modes_supported":              oauth.SupportedResponseModes,
		"prompt_values_supported":               oauth.SupportedPromptModes,
		"display_values_supported":              oauth.SupportedDisplayModes,
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{jwt.AlgEdDSA},
		"token_endpoint_auth_methods_supported": []string{clientauth.MethodBasic, clientauth.MethodPost, clientauth.MethodCertificate},
		"code_challenge_methods_supported":      []string{oauth.CodeChallengeMethodPlain, oauth.CodeChallengeMethodS256},
		"request_parameter_supported":           false,
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	writeBody(w, doc)
}
