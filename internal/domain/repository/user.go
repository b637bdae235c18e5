package repository

import (
	"context"
	"time"
)

// LocalIdentityProvider es el idp de las sesiones con login local (usuario/password).
const LocalIdentityProvider = "local"

// Principal es el usuario autenticado de la sesión actual.
type Principal struct {
	Subject          string    `json:"sub"`
	Name             string    `json:"name,omitempty"`
	IdentityProvider string    `json:"idp"`
	AuthMethods      []string  `json:"amr,omitempty"`
	AuthTime         time.Time `json:"auth_time"`
	SessionID        string    `json:"sid,omitempty"`
	Claims           []Claim   `json:"claims,omitempty"`
}

// IsAnonymous es true para nil o sin subject.
func (p *Principal) IsAnonymous() bool {
	return p == nil || p.Subject == ""
}

// User es un usuario local del proveedor.
type User struct {
	Subject      string  `yaml:"subject" json:"subject" validate:"required"`
	Username     string  `yaml:"username" json:"username" validate:"required"`
	PasswordHash string  `yaml:"password_hash" json:"-" validate:"required"`
	Disabled     bool    `yaml:"disabled" json:"disabled"`
	Claims       []Claim `yaml:"claims" json:"claims"`
}

// UserService es el colaborador de usuarios y perfil.
type UserService interface {
	// AuthenticateLocal retorna ErrInvalidCredentials si usuario/password no coinciden.
	AuthenticateLocal(ctx context.Context, username, password string) (*Principal, error)

	// GetProfileData retorna las claims del usuario filtradas por claimTypes.
	// claimTypes nil significa "todas".
	GetProfileData(ctx context.Context, subject string, claimTypes []string) ([]Claim, error)

	// IsActive retorna false para usuarios deshabilitados o inexistentes.
	IsActive(ctx context.Context, subject string) (bool, error)
}
