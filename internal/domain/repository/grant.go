package repository

import (
	"context"
	"slices"
	"time"
)

// Tipos de token (campo Token.Type).
const (
	TokenTypeAccess   = "access_token"
	TokenTypeIdentity = "id_token"
)

// Grant es lo que los stores necesitan saber de una entidad para indexarla.
type Grant interface {
	GrantSubject() string
	GrantClientID() string
	GrantExpiresAt() time.Time
}

// Token es un access o identity token en su forma estructurada.
type Token struct {
	Type            string          `json:"type"`
	Audience        string          `json:"aud"`
	Issuer          string          `json:"iss"`
	CreationTime    time.Time       `json:"created"`
	Lifetime        time.Duration   `json:"lifetime"`
	ClientID        string          `json:"client_id"`
	AccessTokenType AccessTokenType `json:"access_token_type,omitempty"`
	Claims          []Claim         `json:"claims"`
	Version         int             `json:"version"`
}

// SubjectID retorna el "sub" o "" si es un token de cliente.
func (t *Token) SubjectID() string { return FirstClaim(t.Claims, ClaimSubject) }

// Scopes retorna los valores de "scope".
func (t *Token) Scopes() []string { return ClaimValues(t.Claims, ClaimScope) }

// ExpiresAt = CreationTime + Lifetime.
func (t *Token) ExpiresAt() time.Time { return t.CreationTime.Add(t.Lifetime) }

// Clone copia el token sin compartir el slice de claims.
func (t *Token) Clone() *Token {
	cp := *t
	cp.Claims = slices.Clone(t.Claims)
	return &cp
}

func (t *Token) GrantSubject() string      { return t.SubjectID() }
func (t *Token) GrantClientID() string     { return t.ClientID }
func (t *Token) GrantExpiresAt() time.Time { return t.ExpiresAt() }

// AuthorizationCode es la credencial de un solo uso emitida en /authorize.
type AuthorizationCode struct {
	CreationTime time.Time     `json:"created"`
	Lifetime     time.Duration `json:"lifetime"`
	ClientID     string        `json:"client_id"`

	Subject          string    `json:"sub"`
	SessionID        string    `json:"sid,omitempty"`
	IdentityProvider string    `json:"idp,omitempty"`
	AuthTime         time.Time `json:"auth_time"`
	AuthMethods      []string  `json:"amr,omitempty"`

	IsOpenID        bool     `json:"is_openid"`
	RequestedScopes []string `json:"scopes"`
	RedirectURI     string   `json:"redirect_uri"`
	Nonce           string   `json:"nonce,omitempty"`
	WasConsentShown bool     `json:"consent_shown"`

	// CodeChallenge se guarda hasheado (SHA-256 base64url), nunca en claro.
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

func (c *AuthorizationCode) GrantSubject() string      { return c.Subject }
func (c *AuthorizationCode) GrantClientID() string     { return c.ClientID }
func (c *AuthorizationCode) GrantExpiresAt() time.Time { return c.CreationTime.Add(c.Lifetime) }

// RefreshToken liga un snapshot del access token con su política de vida.
type RefreshToken struct {
	CreationTime time.Time     `json:"created"`
	Lifetime     time.Duration `json:"lifetime"`
	AccessToken  Token         `json:"access_token"`
	Version      int           `json:"version"`
}

func (r *RefreshToken) ClientID() string          { return r.AccessToken.ClientID }
func (r *RefreshToken) SubjectID() string         { return r.AccessToken.SubjectID() }
func (r *RefreshToken) Scopes() []string          { return r.AccessToken.Scopes() }
func (r *RefreshToken) GrantSubject() string      { return r.SubjectID() }
func (r *RefreshToken) GrantClientID() string     { return r.ClientID() }
func (r *RefreshToken) GrantExpiresAt() time.Time { return r.CreationTime.Add(r.Lifetime) }

// GrantStore es el contrato común de los stores de grants persistidos.
// Las claves son hashes del handle entregado al cliente.
type GrantStore[T any] interface {
	Store(ctx context.Context, key string, value *T) error

	// Get retorna ErrNotFound si no existe o ya expiró.
	Get(ctx context.Context, key string) (*T, error)

	// Remove es idempotente.
	Remove(ctx context.Context, key string) error

	GetAllForSubject(ctx context.Context, subject string) ([]*T, error)
	RevokeForSubjectAndClient(ctx context.Context, subject, clientID string) error
}

// AuthorizationCodeStore agrega consumo atómico (get + delete).
type AuthorizationCodeStore interface {
	GrantStore[AuthorizationCode]

	// Consume retorna el code y lo elimina en una sola operación.
	// De dos llamadas concurrentes exactamente una obtiene el valor.
	Consume(ctx context.Context, key string) (*AuthorizationCode, error)
}

// RefreshTokenStore agrega escrituras condicionales: ninguna de las dos
// revive un handle revocado o vencido.
type RefreshTokenStore interface {
	GrantStore[RefreshToken]

	// Rotate elimina oldKey y guarda value bajo newKey atómicamente.
	// Retorna ErrNotFound si oldKey ya no existe (otro request rotó primero).
	Rotate(ctx context.Context, oldKey, newKey string, value *RefreshToken) error

	// Replace reescribe key solo si todavía existe y no venció (ReUse).
	// Retorna ErrNotFound si fue revocado entre la lectura y la escritura.
	Replace(ctx context.Context, key string, value *RefreshToken) error
}

// TokenHandleStore guarda access tokens por referencia.
type TokenHandleStore interface {
	GrantStore[Token]
}
