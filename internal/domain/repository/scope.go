package repository

import "context"

// ScopeType distingue scopes de identidad (claims del usuario) y de recurso (APIs).
type ScopeType string

const (
	ScopeTypeIdentity ScopeType = "identity"
	ScopeTypeResource ScopeType = "resource"
)

// Scopes estándar OIDC.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeAddress       = "address"
	ScopePhone         = "phone"
	ScopeOfflineAccess = "offline_access"
)

// ScopeClaim es un claim que se emite cuando el scope es otorgado.
type ScopeClaim struct {
	Name                   string `yaml:"name" json:"name" validate:"required"`
	Description            string `yaml:"description,omitempty" json:"description,omitempty"`
	AlwaysIncludeInIDToken bool   `yaml:"always_include_in_id_token" json:"always_include_in_id_token"`
}

// Scope es un permiso con nombre.
type Scope struct {
	Name        string    `yaml:"name" json:"name" validate:"required,max=200"`
	DisplayName string    `yaml:"display_name" json:"display_name"`
	Description string    `yaml:"description" json:"description"`
	Type        ScopeType `yaml:"type" json:"type" validate:"required,oneof=identity resource"`
	Enabled     bool      `yaml:"enabled" json:"enabled"`

	// Required: el usuario no puede desmarcarlo en la pantalla de consent.
	Required                bool `yaml:"required" json:"required"`
	ShowInDiscoveryDocument bool `yaml:"show_in_discovery_document" json:"show_in_discovery_document"`

	Claims                  []ScopeClaim `yaml:"claims" json:"claims" validate:"dive"`
	IncludeAllClaimsForUser bool         `yaml:"include_all_claims_for_user" json:"include_all_claims_for_user"`

	// Secrets que habilitan al scope (API) a llamar al endpoint de introspección.
	ScopeSecrets                   []Secret `yaml:"secrets" json:"secrets" validate:"dive"`
	AllowUnrestrictedIntrospection bool     `yaml:"allow_unrestricted_introspection" json:"allow_unrestricted_introspection"`
}

// ClaimNames retorna los nombres de claims asociados al scope.
func (s *Scope) ClaimNames() []string {
	out := make([]string, 0, len(s.Claims))
	for _, c := range s.Claims {
		out = append(out, c.Name)
	}
	return out
}

// ScopeStore es el catálogo de scopes.
type ScopeStore interface {
	// FindScopes retorna los scopes conocidos de names. Los desconocidos se omiten.
	FindScopes(ctx context.Context, names []string) ([]Scope, error)

	// GetScopes lista el catálogo; publicOnly filtra por ShowInDiscoveryDocument.
	GetScopes(ctx context.Context, publicOnly bool) ([]Scope, error)
}
