package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	httperrors "github.com/dropDatabas3/hellojohn-oidc/internal/http/errors"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// AccessTokenValidator es lo que userinfo necesita de tokens.Validator.
type AccessTokenValidator interface {
	ValidateAccessToken(ctx context.Context, token, expectedScope string) (*tokens.ValidationResult, error)
}

// UserInfoController devuelve las claims del usuario para los scopes de
// identidad del access token.
type UserInfoController struct {
	tokens AccessTokenValidator
	scopes repository.ScopeStore
	users  repository.UserService
}

func NewUserInfoController(v AccessTokenValidator, scopes repository.ScopeStore, users repository.UserService) *UserInfoController {
	return &UserInfoController{tokens: v, scopes: scopes, users: users}
}

func (c *UserInfoController) UserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("UserInfoController.UserInfo"))

	raw, err := bearerToken(r)
	if err != nil {
		httperrors.WriteBearerError(w, err)
		return
	}
	res, err := c.tokens.ValidateAccessToken(ctx, raw, repository.ScopeOpenID)
	if err != nil {
		if _, ok := oauth.AsError(err); !ok {
			log.Error("userinfo token validation failed", logger.Err(err))
		}
		httperrors.WriteBearerError(w, err)
		return
	}
	subject := res.Token.SubjectID()
	if subject == "" {
		// client_credentials no tiene usuario
		httperrors.WriteBearerError(w, oauth.LifecycleFailure(oauth.CodeInvalidToken, "token has no subject"))
		return
	}

	defs, err := c.scopes.FindScopes(ctx, res.Token.Scopes())
	if err != nil {
		log.Error("userinfo scope lookup failed", logger.Err(err))
		httperrors.WriteBearerError(w, err)
		return
	}
	claimTypes, all := identityClaimTypes(defs)
	if all {
		claimTypes = nil
	}
	profile, err := c.users.GetProfileData(ctx, subject, claimTypes)
	if errors.Is(err, repository.ErrNotFound) {
		httperrors.WriteBearerError(w, oauth.LifecycleFailure(oauth.CodeInvalidToken, "subject no longer exists"))
		return
	}
	if err != nil {
		log.Error("userinfo profile lookup failed", logger.Subject(subject), logger.Err(err))
		httperrors.WriteBearerError(w, err)
		return
	}

	body := groupClaims(profile)
	body[repository.ClaimSubject] = subject
	log.Debug("userinfo served", logger.Subject(subject), logger.Count(len(body)))
	httperrors.WriteJSON(w, http.StatusOK, body)
}

// bearerToken lee el token del header Authorization o, en POST, del campo
// access_token del body (RFC 6750 2.1 y 2.2).
func bearerToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tok) == "" {
			return "", oauth.ClientError(oauth.CodeInvalidRequest, "malformed authorization header")
		}
		return strings.TrimSpace(tok), nil
	}
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err == nil {
			if tok := r.PostForm.Get(oauth.ParamAccessToken); tok != "" {
				return tok, nil
			}
		}
	}
	return "", oauth.LifecycleFailure(oauth.CodeInvalidToken, "missing access token")
}

// identityClaimTypes junta las claims de los scopes de identidad. all=true si
// alguno pide todas las claims del usuario.
func identityClaimTypes(defs []repository.Scope) (types []string, all bool) {
	for _, sc := range defs {
		if sc.Type != repository.ScopeTypeIdentity {
			continue
		}
		if sc.IncludeAllClaimsForUser {
			return nil, true
		}
		types = append(types, sc.ClaimNames()...)
	}
	if types == nil {
		types = []string{}
	}
	return types, false
}

func groupClaims(claims []repository.Claim) map[string]any {
	out := map[string]any{}
	for _, cl := range claims {
		switch prev := out[cl.Type].(type) {
		case nil:
			out[cl.Type] = cl.Value
		case string:
			out[cl.Type] = []string{prev, cl.Value}
		case []string:
			out[cl.Type] = append(prev, cl.Value)
		}
	}
	return out
}

func writeBody(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
