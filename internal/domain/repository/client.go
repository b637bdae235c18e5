package repository

import (
	"context"
	"slices"
	"time"
)

// Flow es el flujo OAuth2/OIDC que un cliente tiene permitido.
type Flow string

const (
	FlowAuthorizationCode             Flow = "authorization_code"
	FlowAuthorizationCodeWithProofKey Flow = "authorization_code_pkce"
	FlowImplicit                      Flow = "implicit"
	FlowHybrid                        Flow = "hybrid"
	FlowHybridWithProofKey            Flow = "hybrid_pkce"
	FlowClientCredentials             Flow = "client_credentials"
	FlowResourceOwner                 Flow = "resource_owner"
	FlowCustom                        Flow = "custom"
)

// RequiresProofKey indica si el flujo exige PKCE.
func (f Flow) RequiresProofKey() bool {
	return f == FlowAuthorizationCodeWithProofKey || f == FlowHybridWithProofKey
}

// IssuesCodes indica si el flujo emite authorization codes.
func (f Flow) IssuesCodes() bool {
	switch f {
	case FlowAuthorizationCode, FlowAuthorizationCodeWithProofKey, FlowHybrid, FlowHybridWithProofKey:
		return true
	}
	return false
}

// TokenUsage: el handle del refresh token se reemplaza en cada uso o se reutiliza.
type TokenUsage string

const (
	TokenUsageOneTimeOnly TokenUsage = "one_time_only"
	TokenUsageReUse       TokenUsage = "reuse"
)

// TokenExpiration: lifetime absoluto o deslizante (con tope absoluto).
type TokenExpiration string

const (
	TokenExpirationAbsolute TokenExpiration = "absolute"
	TokenExpirationSliding  TokenExpiration = "sliding"
)

// AccessTokenType define la representación del access token.
type AccessTokenType string

const (
	AccessTokenJWT       AccessTokenType = "jwt"
	AccessTokenReference AccessTokenType = "reference"
)

// SecretType identifica cómo se valida un Secret.
type SecretType string

const (
	// SecretShared se compara en tiempo constante contra el valor presentado.
	SecretShared SecretType = "shared_secret"
	// SecretHashed guarda un hash (argon2id PHC, bcrypt o sha256/sha512 base64).
	SecretHashed SecretType = "hashed_shared_secret"
	// SecretX509Thumbprint compara el thumbprint SHA-256 (hex) del certificado cliente.
	SecretX509Thumbprint SecretType = "x509_thumbprint"
)

// Secret es una credencial de cliente o de scope.
type Secret struct {
	Type        SecretType `yaml:"type" json:"type" validate:"required,oneof=shared_secret hashed_shared_secret x509_thumbprint"`
	Value       string     `yaml:"value" json:"value" validate:"required"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Expiration  *time.Time `yaml:"expiration,omitempty" json:"expiration,omitempty"`
}

// Expired indica si el secret venció respecto de now.
func (s Secret) Expired(now time.Time) bool {
	return s.Expiration != nil && !now.Before(*s.Expiration)
}

// Client es un relying party registrado. Inmutable durante un request.
type Client struct {
	ClientID   string `yaml:"client_id" json:"client_id" validate:"required,max=100"`
	ClientName string `yaml:"client_name" json:"client_name"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`

	// Public: el cliente no presenta secret (SPA/mobile). Solo tiene sentido con PKCE.
	Public        bool     `yaml:"public" json:"public"`
	ClientSecrets []Secret `yaml:"secrets" json:"secrets" validate:"dive"`

	Flow                       Flow     `yaml:"flow" json:"flow" validate:"required,oneof=authorization_code authorization_code_pkce implicit hybrid hybrid_pkce client_credentials resource_owner custom"`
	AllowClientCredentialsOnly bool     `yaml:"allow_client_credentials_only" json:"allow_client_credentials_only"`
	AllowedCustomGrantTypes    []string `yaml:"allowed_custom_grant_types" json:"allowed_custom_grant_types"`

	// RedirectURIs se comparan exacto, incluyendo query string.
	RedirectURIs []string `yaml:"redirect_uris" json:"redirect_uris" validate:"dive,uri"`

	AllowedScopes          []string `yaml:"allowed_scopes" json:"allowed_scopes"`
	AllowAccessToAllScopes bool     `yaml:"allow_access_to_all_scopes" json:"allow_access_to_all_scopes"`

	AccessTokenType                  AccessTokenType `yaml:"access_token_type" json:"access_token_type" validate:"omitempty,oneof=jwt reference"`
	AccessTokenLifetime              time.Duration   `yaml:"access_token_lifetime" json:"access_token_lifetime" validate:"gte=0"`
	IdentityTokenLifetime            time.Duration   `yaml:"identity_token_lifetime" json:"identity_token_lifetime" validate:"gte=0"`
	AuthorizationCodeLifetime        time.Duration   `yaml:"authorization_code_lifetime" json:"authorization_code_lifetime" validate:"gte=0"`
	AbsoluteRefreshTokenLifetime     time.Duration   `yaml:"absolute_refresh_token_lifetime" json:"absolute_refresh_token_lifetime" validate:"gte=0"`
	SlidingRefreshTokenLifetime      time.Duration   `yaml:"sliding_refresh_token_lifetime" json:"sliding_refresh_token_lifetime" validate:"gte=0"`
	RefreshTokenUsage                TokenUsage      `yaml:"refresh_token_usage" json:"refresh_token_usage" validate:"omitempty,oneof=one_time_only reuse"`
	RefreshTokenExpiration           TokenExpiration `yaml:"refresh_token_expiration" json:"refresh_token_expiration" validate:"omitempty,oneof=absolute sliding"`
	UpdateAccessTokenClaimsOnRefresh bool            `yaml:"update_access_token_claims_on_refresh" json:"update_access_token_claims_on_refresh"`
	IncludeJwtID                     bool            `yaml:"include_jwt_id" json:"include_jwt_id"`

	RequireConsent       bool `yaml:"require_consent" json:"require_consent"`
	AllowRememberConsent bool `yaml:"allow_remember_consent" json:"allow_remember_consent"`

	IdentityProviderRestrictions []string `yaml:"identity_provider_restrictions" json:"identity_provider_restrictions"`
	DisableLocalLogin            bool     `yaml:"disable_local_login" json:"disable_local_login"`

	// Claims propias del cliente (client_credentials).
	Claims                 []Claim `yaml:"claims" json:"claims"`
	AlwaysSendClientClaims bool    `yaml:"always_send_client_claims" json:"always_send_client_claims"`
	ClientClaimsPrefix     string  `yaml:"client_claims_prefix" json:"client_claims_prefix"`
}

// Defaults de lifetimes y políticas.
const (
	DefaultAccessTokenLifetime          = time.Hour
	DefaultIdentityTokenLifetime        = 5 * time.Minute
	DefaultAuthorizationCodeLifetime    = 5 * time.Minute
	DefaultAbsoluteRefreshTokenLifetime = 30 * 24 * time.Hour
	DefaultSlidingRefreshTokenLifetime  = 15 * 24 * time.Hour
	DefaultClientClaimsPrefix           = "client_"
)

// ApplyDefaults completa los campos opcionales que quedaron en cero.
func (c *Client) ApplyDefaults() {
	if c.AccessTokenType == "" {
		c.AccessTokenType = AccessTokenJWT
	}
	if c.AccessTokenLifetime == 0 {
		c.AccessTokenLifetime = DefaultAccessTokenLifetime
	}
	if c.IdentityTokenLifetime == 0 {
		c.IdentityTokenLifetime = DefaultIdentityTokenLifetime
	}
	if c.AuthorizationCodeLifetime == 0 {
		c.AuthorizationCodeLifetime = DefaultAuthorizationCodeLifetime
	}
	if c.AbsoluteRefreshTokenLifetime == 0 {
		c.AbsoluteRefreshTokenLifetime = DefaultAbsoluteRefreshTokenLifetime
	}
	if c.SlidingRefreshTokenLifetime == 0 {
		c.SlidingRefreshTokenLifetime = DefaultSlidingRefreshTokenLifetime
	}
	if c.RefreshTokenUsage == "" {
		c.RefreshTokenUsage = TokenUsageOneTimeOnly
	}
	if c.RefreshTokenExpiration == "" {
		c.RefreshTokenExpiration = TokenExpirationAbsolute
	}
	if c.ClientClaimsPrefix == "" {
		c.ClientClaimsPrefix = DefaultClientClaimsPrefix
	}
}

// HasRedirectURI compara exacto (ordinal), incluyendo query string.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AllowsCustomGrant indica si el cliente puede usar el grant custom dado.
func (c *Client) AllowsCustomGrant(grantType string) bool {
	return c.Flow == FlowCustom && slices.Contains(c.AllowedCustomGrantTypes, grantType)
}

// ClientStore es el catálogo de clientes.
type ClientStore interface {
	// FindClientByID retorna ErrNotFound si el cliente no existe.
	FindClientByID(ctx context.Context, clientID string) (*Client, error)
}
