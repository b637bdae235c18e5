// Package token valida requests al token endpoint y ejecuta el grant.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/scopes"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
	"github.com/dropDatabas3/hellojohn-oidc/internal/validation"
)

// RequestValidator valida el body del token endpoint para un cliente ya
// autenticado. Stateless.
type RequestValidator struct {
	Codes   repository.AuthorizationCodeStore
	Refresh repository.RefreshTokenStore
	Scopes  *scopes.Validator
	Catalog repository.ScopeStore
	Users   repository.UserService
	Custom  *Registry
	Audit   audit.Sink
	Now     func() time.Time
}

func NewRequestValidator(
	codes repository.AuthorizationCodeStore,
	refresh repository.RefreshTokenStore,
	catalog repository.ScopeStore,
	users repository.UserService,
	custom *Registry,
	sink audit.Sink,
) *RequestValidator {
	return &RequestValidator{
		Codes:   codes,
		Refresh: refresh,
		Scopes:  scopes.NewValidator(catalog),
		Catalog: catalog,
		Users:   users,
		Custom:  custom,
		Audit:   audit.OrDefault(sink),
		Now:     time.Now,
	}
}

var (
	errInvalidGrant        = oauth.LifecycleFailure(oauth.CodeInvalidGrant, "invalid grant")
	errUnauthorizedClient  = oauth.ClientError(oauth.CodeUnauthorizedClient, "grant type not allowed for client")
	errUnsupportedGrant    = oauth.ClientError(oauth.CodeUnsupportedGrantType, "unsupported grant_type")
	errPKCEVerification    = oauth.ValidationFailure(oauth.CodeInvalidGrant, "PKCE verification failed")
	errRedirectURIMismatch = oauth.ValidationFailure(oauth.CodeInvalidGrant, "redirect_uri mismatch")
)

// ValidateRequest arma el ValidatedTokenRequest para client (ya autenticado).
func (v *RequestValidator) ValidateRequest(ctx context.Context, params url.Values, client *repository.Client) (*oauth.ValidatedTokenRequest, error) {
	if client == nil {
		return nil, oauth.ClientError(oauth.CodeInvalidClient, "client authentication failed")
	}
	req := &oauth.ValidatedTokenRequest{Raw: params, Client: client}

	grantType := params.Get(oauth.ParamGrantType)
	if grantType == "" || len(grantType) > oauth.MaxGrantTypeLength {
		return nil, errUnsupportedGrant
	}
	req.GrantType = grantType

	if err := validateTokenType(req, params); err != nil {
		return nil, err
	}

	var err error
	switch grantType {
	case oauth.GrantTypeAuthorizationCode:
		err = v.validateAuthorizationCode(ctx, req, params)
	case oauth.GrantTypeRefreshToken:
		err = v.validateRefreshToken(ctx, req, params)
	case oauth.GrantTypeClientCredentials:
		err = v.validateClientCredentials(ctx, req, params)
	case oauth.GrantTypePassword:
		err = v.validatePassword(ctx, req, params)
	default:
		err = v.validateCustom(ctx, req, params)
	}
	if err != nil {
		logger.From(ctx).Info("token request rejected",
			logger.Layer("service"), logger.Op("token.validate"),
			logger.ClientID(client.ClientID), logger.GrantType(grantType), logger.ErrorCode(oauth.CodeOf(err)))
		return nil, err
	}
	return req, nil
}

// validateTokenType: Bearer por defecto; pop exige una clave (JWK).
func validateTokenType(req *oauth.ValidatedTokenRequest, params url.Values) error {
	switch tt := params.Get(oauth.ParamTokenType); tt {
	case "", oauth.TokenTypeBearer:
		req.RequestedTokenType = oauth.TokenTypeBearer
	case oauth.TokenTypePoP:
		key := params.Get(oauth.ParamProofKey)
		if key == "" || len(key) > oauth.MaxProofKeyLength {
			return oauth.ClientError(oauth.CodeInvalidRequest, "proof key missing or too long")
		}
		req.RequestedTokenType = oauth.TokenTypePoP
		req.ProofKey = key
	default:
		return oauth.ClientError(oauth.CodeInvalidRequest, "unsupported token_type")
	}
	return nil
}

func (v *RequestValidator) validateAuthorizationCode(ctx context.Context, req *oauth.ValidatedTokenRequest, params url.Values) error {
	client := req.Client
	if !client.Flow.IssuesCodes() {
		return errUnauthorizedClient
	}
	handle := params.Get(oauth.ParamCode)
	if handle == "" || len(handle) > oauth.MaxCodeLength {
		return oauth.ClientError(oauth.CodeInvalidGrant, "authorization code is missing")
	}

	// Consume: de dos canjes concurrentes solo uno obtiene el code
	code, err := v.Codes.Consume(ctx, sectoken.SHA256Base64URL(handle))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errInvalidGrant.WithCause(errors.New("authorization code not found or already used"))
		}
		return fmt.Errorf("token: consume code: %w", err)
	}
	if !v.Now().Before(code.GrantExpiresAt()) {
		return oauth.LifecycleFailure(oauth.CodeInvalidGrant, "authorization code expired")
	}
	if code.ClientID != client.ClientID {
		v.Audit.Emit(ctx, audit.New(audit.EventCodeClientMismatch, client.ClientID, code.Subject, map[string]any{"code_client_id": code.ClientID}))
		return errInvalidGrant.WithCause(errors.New("authorization code issued to another client"))
	}

	redirect := params.Get(oauth.ParamRedirectURI)
	if redirect != code.RedirectURI {
		v.Audit.Emit(ctx, audit.New(audit.EventCodeRedirectMismatch, client.ClientID, code.Subject, nil))
		return errRedirectURIMismatch
	}
	if len(code.RequestedScopes) == 0 {
		return oauth.ClientError(oauth.CodeInvalidRequest, "authorization code has no scopes")
	}

	if client.Flow.RequiresProofKey() || code.CodeChallenge != "" {
		if err := v.verifyPKCE(ctx, req, code, params.Get(oauth.ParamCodeVerifier)); err != nil {
			return err
		}
	}

	active, err := v.Users.IsActive(ctx, code.Subject)
	if err != nil {
		return fmt.Errorf("token: is active: %w", err)
	}
	if !active {
		return errInvalidGrant.WithCause(errors.New("user is not active"))
	}

	defs, err := v.Catalog.FindScopes(ctx, code.RequestedScopes)
	if err != nil {
		return fmt.Errorf("token: find scopes: %w", err)
	}
	req.AuthorizationCode = code
	req.AuthorizationCodeHandle = handle
	req.Scopes = slices.Clone(code.RequestedScopes)
	req.ScopeDefinitions = defs
	req.Subject = &repository.Principal{
		Subject:          code.Subject,
		IdentityProvider: code.IdentityProvider,
		AuthMethods:      slices.Clone(code.AuthMethods),
		AuthTime:         code.AuthTime,
		SessionID:        code.SessionID,
	}
	return nil
}

// verifyPKCE transforma el verifier con el método guardado y lo compara con
// el challenge (guardado hasheado).
func (v *RequestValidator) verifyPKCE(ctx context.Context, req *oauth.ValidatedTokenRequest, code *repository.AuthorizationCode, verifier string) error {
	fail := func(reason string) error {
		v.Audit.Emit(ctx, audit.New(audit.EventPKCEFailed, req.Client.ClientID, code.Subject, map[string]any{"reason": reason}))
		return errPKCEVerification
	}
	if code.CodeChallenge == "" {
		return fail("code issued without challenge")
	}
	if verifier == "" {
		return fail("missing code_verifier")
	}
	if !validation.ValidCodeVerifier(verifier) {
		return fail("malformed code_verifier")
	}

	var transformed string
	switch code.CodeChallengeMethod {
	case oauth.CodeChallengeMethodS256:
		transformed = oauth2.S256ChallengeFromVerifier(verifier)
	case oauth.CodeChallengeMethodPlain, "":
		transformed = verifier
	default:
		return fail("unsupported challenge method")
	}
	if !sectoken.Equal(sectoken.SHA256Base64URL(transformed), code.CodeChallenge) {
		return fail("challenge mismatch")
	}
	req.CodeVerifier = verifier
	return nil
}

func (v *RequestValidator) validateRefreshToken(ctx context.Context, req *oauth.ValidatedTokenRequest, params url.Values) error {
	client := req.Client
	handle := params.Get(oauth.ParamRefreshToken)
	if handle == "" || len(handle) > oauth.MaxRefreshTokenLength {
		return oauth.ClientError(oauth.CodeInvalidRequest, "refresh_token is missing")
	}
	rt, err := v.Refresh.Get(ctx, sectoken.SHA256Base64URL(handle))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errInvalidGrant.WithCause(errors.New("refresh token not found"))
		}
		return fmt.Errorf("token: load refresh: %w", err)
	}
	if !v.Now().Before(rt.GrantExpiresAt()) {
		if err := v.Refresh.Remove(ctx, sectoken.SHA256Base64URL(handle)); err != nil {
			logger.From(ctx).Warn("expired refresh token cleanup failed",
				logger.Layer("service"), logger.Op("token.validate_refresh"), logger.ClientID(client.ClientID), logger.Err(err))
		}
		return oauth.LifecycleFailure(oauth.CodeInvalidGrant, "refresh token expired")
	}
	if rt.ClientID() != client.ClientID {
		v.Audit.Emit(ctx, audit.New(audit.EventRefreshClientMismatch, client.ClientID, rt.SubjectID(), map[string]any{"token_client_id": rt.ClientID()}))
		return errInvalidGrant.WithCause(errors.New("refresh token issued to another client"))
	}
	if sub := rt.SubjectID(); sub != "" {
		active, err := v.Users.IsActive(ctx, sub)
		if err != nil {
			return fmt.Errorf("token: is active: %w", err)
		}
		if !active {
			return errInvalidGrant.WithCause(errors.New("user is not active"))
		}
		req.Subject = PrincipalFromToken(&rt.AccessToken)
	}

	req.RefreshToken = rt
	req.RefreshTokenHandle = handle
	req.Scopes = rt.Scopes()
	defs, err := v.Catalog.FindScopes(ctx, req.Scopes)
	if err != nil {
		return fmt.Errorf("token: find scopes: %w", err)
	}
	req.ScopeDefinitions = defs
	return nil
}

func (v *RequestValidator) validateClientCredentials(ctx context.Context, req *oauth.ValidatedTokenRequest, params url.Values) error {
	client := req.Client
	if client.Flow != repository.FlowClientCredentials && !client.AllowClientCredentialsOnly {
		return errUnauthorizedClient
	}
	res, err := v.validateRequestedScopes(ctx, req, params, true)
	if err != nil {
		return err
	}
	if res.ContainsOpenIDScopes {
		return oauth.ValidationFailure(oauth.CodeInvalidScope, "identity scopes not allowed for client_credentials")
	}
	if res.ContainsOfflineAccess {
		return oauth.ValidationFailure(oauth.CodeInvalidScope, "offline_access not allowed for client_credentials")
	}
	return nil
}

func (v *RequestValidator) validatePassword(ctx context.Context, req *oauth.ValidatedTokenRequest, params url.Values) error {
	client := req.Client
	if client.Flow != repository.FlowResourceOwner {
		return errUnauthorizedClient
	}
	if _, err := v.validateRequestedScopes(ctx, req, params, true); err != nil {
		return err
	}

	user := params.Get(oauth.ParamUserName)
	pass := params.Get(oauth.ParamPassword)
	if user == "" || len(user) > oauth.MaxUserNameLength || pass == "" || len(pass) > oauth.MaxPasswordLength {
		return oauth.ClientError(oauth.CodeInvalidGrant, "username or password missing")
	}
	p, err := v.Users.AuthenticateLocal(ctx, user, pass)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) || errors.Is(err, repository.ErrNotFound) {
			v.Audit.Emit(ctx, audit.New(audit.EventLocalLoginFailed, client.ClientID, "", map[string]any{"grant_type": oauth.GrantTypePassword}))
			return oauth.ClientError(oauth.CodeInvalidGrant, "invalid username or password")
		}
		return fmt.Errorf("token: authenticate: %w", err)
	}
	req.UserName = user
	req.Subject = p
	return nil
}

func (v *RequestValidator) validateCustom(ctx context.Context, req *oauth.ValidatedTokenRequest, params url.Values) error {
	cv, ok := v.Custom.Find(req.GrantType)
	if !ok {
		return errUnsupportedGrant
	}
	if !req.Client.AllowsCustomGrant(req.GrantType) {
		return errUnauthorizedClient
	}
	if _, err := v.validateRequestedScopes(ctx, req, params, false); err != nil {
		return err
	}
	res, err := cv.Validate(ctx, req)
	if err != nil {
		return fmt.Errorf("token: custom grant %s: %w", req.GrantType, err)
	}
	if res == nil || res.Error != "" {
		desc := "custom grant rejected"
		if res != nil {
			desc = res.Error
		}
		return oauth.ClientError(oauth.CodeInvalidGrant, "%s", desc)
	}
	req.Subject = res.Subject
	req.CustomResponse = res.CustomResponse
	return nil
}

// validateRequestedScopes valida el parámetro scope contra el catálogo y el cliente.
func (v *RequestValidator) validateRequestedScopes(ctx context.Context, req *oauth.ValidatedTokenRequest, params url.Values, required bool) (*scopes.Result, error) {
	raw := params.Get(oauth.ParamScope)
	if len(raw) > oauth.MaxScopeLength {
		return nil, oauth.ClientError(oauth.CodeInvalidScope, "scope too long")
	}
	names := scopes.ParseScopes(raw)
	if len(names) == 0 {
		if required {
			return nil, oauth.ClientError(oauth.CodeInvalidScope, "scope is missing")
		}
		return &scopes.Result{}, nil
	}
	res, err := v.Scopes.AreScopesValid(ctx, names)
	if err != nil {
		return nil, err
	}
	if !scopes.AreScopesAllowed(req.Client, names) {
		return nil, oauth.ValidationFailure(oauth.CodeInvalidScope, "scope not allowed for client")
	}
	req.Scopes = names
	req.ScopeDefinitions = res.Scopes
	return res, nil
}

// PrincipalFromToken reconstruye el principal desde las claims de un access token.
func PrincipalFromToken(t *repository.Token) *repository.Principal {
	sub := t.SubjectID()
	if sub == "" {
		return nil
	}
	p := &repository.Principal{
		Subject:          sub,
		IdentityProvider: repository.FirstClaim(t.Claims, repository.ClaimIdentityProvider),
		AuthMethods:      repository.ClaimValues(t.Claims, repository.ClaimAuthMethod),
		SessionID:        repository.FirstClaim(t.Claims, repository.ClaimSessionID),
	}
	if at := repository.FirstClaim(t.Claims, repository.ClaimAuthTime); at != "" {
		var sec int64
		if _, err := fmt.Sscan(at, &sec); err == nil {
			p.AuthTime = time.Unix(sec, 0).UTC()
		}
	}
	return p
}
