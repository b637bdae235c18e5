package tokens

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

// Parser verifica un JWT emitido por este proveedor (ver jwt.Issuer).
type Parser interface {
	Parse(token string, opts ...jwtv5.ParserOption) (jwtv5.MapClaims, error)
}

// ValidationResult es un token válido ya resuelto.
type ValidationResult struct {
	Token  *repository.Token
	Client *repository.Client
	// ReferenceKey es la clave en el TokenHandleStore, si era de referencia.
	ReferenceKey string
}

// Claims devuelve las claims del token.
func (r *ValidationResult) Claims() []repository.Claim { return r.Token.Claims }

// Validator valida access e identity tokens. Nunca hace panic: todo fallo
// es un *oauth.Error (invalid_token, expired_token, insufficient_scope) o un
// error de infraestructura.
type Validator struct {
	Issuer  string
	Parser  Parser
	Handles repository.TokenHandleStore
	Clients repository.ClientStore
	Users   repository.UserService
	Now     func() time.Time
	// Leeway tolerado en exp/nbf de los JWT.
	Leeway time.Duration
}

func NewValidator(issuer string, parser Parser, handles repository.TokenHandleStore, clients repository.ClientStore, users repository.UserService) *Validator {
	return &Validator{
		Issuer:  issuer,
		Parser:  parser,
		Handles: handles,
		Clients: clients,
		Users:   users,
		Now:     time.Now,
		Leeway:  30 * time.Second,
	}
}

var (
	errInvalidToken = oauth.LifecycleFailure(oauth.CodeInvalidToken, "invalid token")
	errExpiredToken = oauth.LifecycleFailure(oauth.CodeExpiredToken, "token expired")
)

// ValidateAccessToken valida un JWT o handle de referencia. Si expectedScope
// no es vacío, el token tiene que incluirlo.
func (v *Validator) ValidateAccessToken(ctx context.Context, token, expectedScope string) (*ValidationResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("tokens.validate_access"))
	if token == "" || len(token) > oauth.MaxTokenLength {
		return nil, errInvalidToken
	}

	var (
		res *ValidationResult
		err error
	)
	if strings.Contains(token, ".") {
		res, err = v.validateJWT(token, repository.TokenTypeAccess,
			jwtv5.WithAudience(v.Issuer+ResourcesAudienceSuffix))
	} else {
		res, err = v.validateReference(ctx, token)
	}
	if err != nil {
		log.Debug("access token rejected", logger.ErrorCode(oauth.CodeOf(err)))
		return nil, err
	}

	if expectedScope != "" && !slices.Contains(res.Token.Scopes(), expectedScope) {
		return nil, oauth.ValidationFailure(oauth.CodeInsufficientScope, "token lacks required scope")
	}

	if err := v.checkPrincipal(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// IdentityTokenOptions controla validaciones opcionales del id_token.
type IdentityTokenOptions struct {
	// ClientID esperado en aud. Vacío = se toma del propio token (id_token_hint).
	ClientID         string
	ValidateLifetime bool
	Nonce            string
	AccessToken      string // si no es vacío, se verifica at_hash
}

// ValidateIdentityToken valida un id_token emitido por este proveedor.
func (v *Validator) ValidateIdentityToken(ctx context.Context, token string, opts IdentityTokenOptions) (*ValidationResult, error) {
	if token == "" || len(token) > oauth.MaxIDTokenHintLength {
		return nil, errInvalidToken
	}
	popts := []jwtv5.ParserOption{}
	if opts.ClientID != "" {
		popts = append(popts, jwtv5.WithAudience(opts.ClientID))
	}
	if !opts.ValidateLifetime {
		popts = append(popts, jwtv5.WithoutClaimsValidation())
	}
	res, err := v.validateJWT(token, repository.TokenTypeIdentity, popts...)
	if err != nil {
		return nil, err
	}
	// sin validación de claims jwtv5 no chequea aud
	if opts.ClientID != "" && res.Token.Audience != opts.ClientID {
		return nil, errInvalidToken
	}
	if opts.Nonce != "" && repository.FirstClaim(res.Token.Claims, repository.ClaimNonce) != opts.Nonce {
		return nil, errInvalidToken
	}
	if opts.AccessToken != "" {
		if got := repository.FirstClaim(res.Token.Claims, repository.ClaimAccessTokenHash); !sectoken.Equal(got, sectoken.LeftHalfHash(opts.AccessToken)) {
			return nil, errInvalidToken
		}
	}
	if err := v.checkPrincipal(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (v *Validator) validateJWT(token, tokenType string, opts ...jwtv5.ParserOption) (*ValidationResult, error) {
	opts = append(opts, jwtv5.WithLeeway(v.Leeway), jwtv5.WithTimeFunc(v.Now))
	claims, err := v.Parser.Parse(token, opts...)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, errExpiredToken
		}
		return nil, errInvalidToken.WithCause(err)
	}
	if tokenType == repository.TokenTypeAccess {
		if _, ok := claims[repository.ClaimClientID].(string); !ok {
			return nil, errInvalidToken
		}
	}
	return &ValidationResult{Token: FromJWTClaims(claims, tokenType)}, nil
}

func (v *Validator) validateReference(ctx context.Context, handle string) (*ValidationResult, error) {
	key := sectoken.SHA256Base64URL(handle)
	t, err := v.Handles.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errInvalidToken
		}
		return nil, fmt.Errorf("tokens: load handle: %w", err)
	}
	if !v.Now().Before(t.ExpiresAt()) {
		_ = v.Handles.Remove(ctx, key)
		return nil, errExpiredToken
	}
	return &ValidationResult{Token: t, ReferenceKey: key}, nil
}

// checkPrincipal exige cliente existente y habilitado, y subject activo.
func (v *Validator) checkPrincipal(ctx context.Context, res *ValidationResult) error {
	client, err := v.Clients.FindClientByID(ctx, res.Token.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errInvalidToken
		}
		return fmt.Errorf("tokens: find client: %w", err)
	}
	if !client.Enabled {
		return errInvalidToken
	}
	res.Client = client

	if sub := res.Token.SubjectID(); sub != "" {
		active, err := v.Users.IsActive(ctx, sub)
		if err != nil {
			return fmt.Errorf("tokens: is active: %w", err)
		}
		if !active {
			return errInvalidToken
		}
	}
	return nil
}
