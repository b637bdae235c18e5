// Package tokens crea, serializa, valida y refresca access/identity tokens.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

// ResourcesAudienceSuffix se agrega al issuer para la audiencia de access tokens.
const ResourcesAudienceSuffix = "/resources"

// CreationRequest es lo que se necesita para emitir un token.
type CreationRequest struct {
	Subject *repository.Principal // nil para client_credentials
	Client  *repository.Client
	Scopes  []repository.Scope

	// Solo identity token.
	Nonce                    string
	AccessTokenToHash        string
	AuthorizationCodeToHash  string
	IncludeAllIdentityClaims bool

	// ProofKey es un JWK (JSON) para tokens pop; agrega "cnf".
	ProofKey string
}

// Service emite tokens. Es stateless.
type Service struct {
	Issuer  string
	Signer  jwt.Signer
	Handles repository.TokenHandleStore
	Users   repository.UserService
	Now     func() time.Time
}

func NewService(issuer string, signer jwt.Signer, handles repository.TokenHandleStore, users repository.UserService) *Service {
	return &Service{Issuer: issuer, Signer: signer, Handles: handles, Users: users, Now: time.Now}
}

// AccessTokenAudience es <issuer>/resources.
func (s *Service) AccessTokenAudience() string { return s.Issuer + ResourcesAudienceSuffix }

// CreateAccessToken arma el access token (sin serializar).
func (s *Service) CreateAccessToken(ctx context.Context, req CreationRequest) (*repository.Token, error) {
	c := req.Client
	claims := []repository.Claim{{Type: repository.ClaimClientID, Value: c.ClientID}}
	for _, sc := range req.Scopes {
		claims = append(claims, repository.Claim{Type: repository.ClaimScope, Value: sc.Name})
	}

	if !req.Subject.IsAnonymous() {
		claims = append(claims, subjectClaims(req.Subject)...)
		// claims de los scopes de recurso (ej: roles de una API)
		types := claimTypes(req.Scopes, repository.ScopeTypeResource, false)
		if len(types) > 0 {
			profile, err := s.Users.GetProfileData(ctx, req.Subject.Subject, types)
			if err != nil {
				return nil, fmt.Errorf("tokens: profile: %w", err)
			}
			claims = appendProfile(claims, profile)
		}
	}

	if req.Subject.IsAnonymous() || c.AlwaysSendClientClaims {
		for _, cc := range c.Claims {
			claims = append(claims, repository.Claim{Type: c.ClientClaimsPrefix + cc.Type, Value: cc.Value})
		}
	}

	if c.IncludeJwtID {
		claims = append(claims, repository.Claim{Type: repository.ClaimJwtID, Value: uuid.NewString()})
	}

	if req.ProofKey != "" {
		cnf, err := confirmation(req.ProofKey)
		if err != nil {
			return nil, err
		}
		claims = append(claims, repository.Claim{Type: repository.ClaimConfirmation, Value: cnf})
	}

	return &repository.Token{
		Type:            repository.TokenTypeAccess,
		Audience:        s.AccessTokenAudience(),
		Issuer:          s.Issuer,
		CreationTime:    s.Now().UTC(),
		Lifetime:        c.AccessTokenLifetime,
		ClientID:        c.ClientID,
		AccessTokenType: c.AccessTokenType,
		Claims:          claims,
		Version:         1,
	}, nil
}

// CreateIdentityToken arma el id_token. Con IncludeAllIdentityClaims (implicit
// id_token sin access token) incluye todas las claims de los scopes de identidad;
// si no, solo las marcadas AlwaysIncludeInIDToken.
func (s *Service) CreateIdentityToken(ctx context.Context, req CreationRequest) (*repository.Token, error) {
	if req.Subject.IsAnonymous() {
		return nil, oauth.ConfigurationFailure(nil, "identity token requires a subject")
	}
	c := req.Client
	claims := subjectClaims(req.Subject)
	if req.Nonce != "" {
		claims = append(claims, repository.Claim{Type: repository.ClaimNonce, Value: req.Nonce})
	}
	if req.AccessTokenToHash != "" {
		claims = append(claims, repository.Claim{Type: repository.ClaimAccessTokenHash, Value: sectoken.LeftHalfHash(req.AccessTokenToHash)})
	}
	if req.AuthorizationCodeToHash != "" {
		claims = append(claims, repository.Claim{Type: repository.ClaimCodeHash, Value: sectoken.LeftHalfHash(req.AuthorizationCodeToHash)})
	}

	identity := identityScopes(req.Scopes)
	var types []string
	all := false
	if req.IncludeAllIdentityClaims {
		for _, sc := range identity {
			if sc.IncludeAllClaimsForUser {
				all = true
			}
		}
		types = claimTypes(identity, repository.ScopeTypeIdentity, false)
	} else {
		types = claimTypes(identity, repository.ScopeTypeIdentity, true)
	}
	if all || len(types) > 0 {
		if all {
			types = nil
		}
		profile, err := s.Users.GetProfileData(ctx, req.Subject.Subject, types)
		if err != nil {
			return nil, fmt.Errorf("tokens: profile: %w", err)
		}
		claims = appendProfile(claims, profile)
	}

	return &repository.Token{
		Type:         repository.TokenTypeIdentity,
		Audience:     c.ClientID,
		Issuer:       s.Issuer,
		CreationTime: s.Now().UTC(),
		Lifetime:     c.IdentityTokenLifetime,
		ClientID:     c.ClientID,
		Claims:       claims,
		Version:      1,
	}, nil
}

// CreateSecurityToken serializa: JWT firmado, o handle de referencia para
// access tokens de clientes con AccessTokenReference.
func (s *Service) CreateSecurityToken(ctx context.Context, t *repository.Token) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("tokens.serialize"))

	if t.Type == repository.TokenTypeAccess && t.AccessTokenType == repository.AccessTokenReference {
		handle, err := sectoken.NewHandle()
		if err != nil {
			return "", fmt.Errorf("tokens: handle: %w", err)
		}
		if err := s.Handles.Store(ctx, sectoken.SHA256Base64URL(handle), t); err != nil {
			return "", fmt.Errorf("tokens: store handle: %w", err)
		}
		log.Debug("reference token stored", logger.ClientID(t.ClientID))
		return handle, nil
	}

	signed, err := s.Signer.Sign(ctx, ToJWTClaims(t))
	if err != nil {
		if errors.Is(err, jwt.ErrNoActiveKey) {
			return "", oauth.ConfigurationFailure(err, "no signing credential available")
		}
		return "", fmt.Errorf("tokens: sign: %w", err)
	}
	return signed, nil
}

func subjectClaims(p *repository.Principal) []repository.Claim {
	authTime := p.AuthTime
	if authTime.IsZero() {
		authTime = time.Now()
	}
	idp := p.IdentityProvider
	if idp == "" {
		idp = repository.LocalIdentityProvider
	}
	out := []repository.Claim{
		{Type: repository.ClaimSubject, Value: p.Subject},
		{Type: repository.ClaimAuthTime, Value: strconv.FormatInt(authTime.Unix(), 10)},
		{Type: repository.ClaimIdentityProvider, Value: idp},
	}
	for _, m := range p.AuthMethods {
		out = append(out, repository.Claim{Type: repository.ClaimAuthMethod, Value: m})
	}
	if p.SessionID != "" {
		out = append(out, repository.Claim{Type: repository.ClaimSessionID, Value: p.SessionID})
	}
	return out
}

func identityScopes(list []repository.Scope) []repository.Scope {
	var out []repository.Scope
	for _, s := range list {
		if s.Type == repository.ScopeTypeIdentity {
			out = append(out, s)
		}
	}
	return out
}

// claimTypes junta los nombres de claims de los scopes del tipo dado.
func claimTypes(list []repository.Scope, t repository.ScopeType, onlyAlwaysInIDToken bool) []string {
	var out []string
	for _, s := range list {
		if s.Type != t {
			continue
		}
		for _, c := range s.Claims {
			if onlyAlwaysInIDToken && !c.AlwaysIncludeInIDToken {
				continue
			}
			if !slices.Contains(out, c.Name) {
				out = append(out, c.Name)
			}
		}
	}
	return out
}

// appendProfile agrega claims de perfil sin pisar las de protocolo.
func appendProfile(claims, profile []repository.Claim) []repository.Claim {
	for _, c := range profile {
		if isIn(protocolClaims, c.Type) {
			continue
		}
		claims = append(claims, c)
	}
	return claims
}

// confirmation arma {"jwk": <key>}. Solo se publica la parte pública.
func confirmation(key string) (string, error) {
	k, err := jwk.ParseKey([]byte(key))
	if err != nil {
		return "", oauth.ClientError(oauth.CodeInvalidRequest, "invalid proof key")
	}
	pub, err := k.PublicKey()
	if err != nil {
		return "", oauth.ClientError(oauth.CodeInvalidRequest, "invalid proof key")
	}
	b, err := json.Marshal(map[string]any{"jwk": pub})
	if err != nil {
		return "", fmt.Errorf("tokens: cnf: %w", err)
	}
	return string(b), nil
}
