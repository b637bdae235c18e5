// Package scopes valida scopes pedidos contra el catálogo y la política del cliente.
package scopes

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/validation"
)

// ParseScopes parte un string separado por espacios, deduplica y ordena.
// Un input vacío o solo espacios retorna nil ("no se pidieron scopes").
func ParseScopes(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	slices.Sort(fields)
	return slices.Compact(fields)
}

// Join es el inverso de ParseScopes.
func Join(names []string) string {
	return strings.Join(names, " ")
}

// Result es el resultado de resolver scopes válidos contra el catálogo.
type Result struct {
	RequestedScopes        []string
	Scopes                 []repository.Scope
	ContainsOpenIDScopes   bool
	ContainsResourceScopes bool
	ContainsOfflineAccess  bool
}

// Names retorna los nombres resueltos.
func (r *Result) Names() []string {
	out := make([]string, 0, len(r.Scopes))
	for _, s := range r.Scopes {
		out = append(out, s.Name)
	}
	return out
}

// requirement de scopes según response_type.
type requirement int

const (
	reqNone requirement = iota
	reqResourceOnly
	reqIdentityOnly
	reqIdentity
)

var responseTypeRequirement = map[string]requirement{
	oauth.ResponseTypeCode:             reqNone,
	oauth.ResponseTypeToken:            reqResourceOnly,
	oauth.ResponseTypeIDToken:          reqIdentityOnly,
	oauth.ResponseTypeIDTokenToken:     reqIdentity,
	oauth.ResponseTypeCodeIDToken:      reqIdentity,
	oauth.ResponseTypeCodeToken:        reqIdentity,
	oauth.ResponseTypeCodeIDTokenToken: reqIdentity,
}

// IsResponseTypeValid chequea que los scopes sean compatibles con response_type.
// Retorna nil si es válido.
func (r *Result) IsResponseTypeValid(responseType string) error {
	req, ok := responseTypeRequirement[responseType]
	if !ok {
		return oauth.ClientError(oauth.CodeUnsupportedResponseType, "unsupported response_type")
	}
	switch req {
	case reqResourceOnly:
		if r.ContainsOpenIDScopes {
			return oauth.ValidationFailure(oauth.CodeInvalidScope, "token response type must not include identity scopes")
		}
		if !r.ContainsResourceScopes {
			return oauth.ValidationFailure(oauth.CodeInvalidScope, "token response type requires resource scopes")
		}
	case reqIdentityOnly:
		if !r.ContainsOpenIDScopes {
			return oauth.ValidationFailure(oauth.CodeInvalidScope, "id_token response type requires identity scopes")
		}
		if r.ContainsResourceScopes {
			return oauth.ValidationFailure(oauth.CodeInvalidScope, "id_token response type must not include resource scopes")
		}
	case reqIdentity:
		if !r.ContainsOpenIDScopes {
			return oauth.ValidationFailure(oauth.CodeInvalidScope, "response type requires identity scopes")
		}
	}
	return nil
}

// Validator resuelve scopes contra el ScopeStore. Es stateless y reentrante.
type Validator struct {
	store repository.ScopeStore
}

// NewValidator crea un Validator.
func NewValidator(store repository.ScopeStore) *Validator {
	return &Validator{store: store}
}

// AreScopesValid resuelve names; retorna un ValidationFailure(invalid_scope) si
// algún nombre es sintácticamente inválido, desconocido o está deshabilitado.
// Los errores del store se propagan tal cual.
func (v *Validator) AreScopesValid(ctx context.Context, names []string) (*Result, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("scopes.validate"))

	for _, n := range names {
		if !validation.ValidScopeName(n) {
			log.Debug("scope name rejected", logger.String("scope", n))
			return nil, oauth.ValidationFailure(oauth.CodeInvalidScope, "invalid scope name")
		}
	}

	found, err := v.store.FindScopes(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("scopes: find: %w", err)
	}
	byName := make(map[string]repository.Scope, len(found))
	for _, s := range found {
		byName[s.Name] = s
	}

	res := &Result{RequestedScopes: names}
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			log.Info("unknown scope requested", logger.String("scope", n))
			return nil, oauth.ValidationFailure(oauth.CodeInvalidScope, "unknown scope: %s", n)
		}
		if !s.Enabled {
			log.Info("disabled scope requested", logger.String("scope", n))
			return nil, oauth.ValidationFailure(oauth.CodeInvalidScope, "scope disabled: %s", n)
		}
		if s.Name == repository.ScopeOfflineAccess {
			res.ContainsOfflineAccess = true
		}
		switch s.Type {
		case repository.ScopeTypeIdentity:
			res.ContainsOpenIDScopes = true
		case repository.ScopeTypeResource:
			res.ContainsResourceScopes = true
		}
		res.Scopes = append(res.Scopes, s)
	}
	return res, nil
}

// AreScopesAllowed chequea names contra la allow-list del cliente.
func AreScopesAllowed(client *repository.Client, names []string) bool {
	if client.AllowAccessToAllScopes {
		return true
	}
	for _, n := range names {
		if !slices.Contains(client.AllowedScopes, n) {
			return false
		}
	}
	return true
}

// FilterByType retorna los scopes del tipo dado.
func FilterByType(list []repository.Scope, t repository.ScopeType) []repository.Scope {
	var out []repository.Scope
	for _, s := range list {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}
