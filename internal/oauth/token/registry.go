package token

import (
	"context"
	"sync"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
)

// CustomGrantResult es lo que devuelve un grant custom. Error no vacío
// rechaza el request con invalid_grant y esa descripción.
type CustomGrantResult struct {
	Subject        *repository.Principal
	Error          string
	CustomResponse map[string]any
}

// CustomGrantValidator valida un grant_type propio (ej: token exchange).
type CustomGrantValidator interface {
	GrantType() string
	Validate(ctx context.Context, req *oauth.ValidatedTokenRequest) (*CustomGrantResult, error)
}

// Registry indexa los grants custom por grant_type. El primero que se
// registra para un grant_type gana.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]CustomGrantValidator
}

func NewRegistry(validators ...CustomGrantValidator) *Registry {
	r := &Registry{validators: make(map[string]CustomGrantValidator)}
	for _, v := range validators {
		r.Register(v)
	}
	return r
}

// Register devuelve false si ya había uno para ese grant_type.
func (r *Registry) Register(v CustomGrantValidator) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.validators[v.GrantType()]; ok {
		return false
	}
	r.validators[v.GrantType()] = v
	return true
}

func (r *Registry) Find(grantType string) (CustomGrantValidator, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[grantType]
	return v, ok
}

// GrantTypes lista los grants custom registrados (discovery).
func (r *Registry) GrantTypes() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.validators))
	for k := range r.validators {
		out = append(out, k)
	}
	return out
}

// AnyGrantType registra un hook para todos los grants.
const AnyGrantType = "*"

// ResponseHook puede agregar o quitar campos custom de la respuesta del token
// endpoint. Pisar un campo base (access_token, token_type, ...) es un error
// de configuración.
type ResponseHook interface {
	ProcessResponse(ctx context.Context, req *oauth.ValidatedTokenRequest, custom map[string]any) error
}

// ResponseHookFunc adapta una función a ResponseHook.
type ResponseHookFunc func(ctx context.Context, req *oauth.ValidatedTokenRequest, custom map[string]any) error

func (f ResponseHookFunc) ProcessResponse(ctx context.Context, req *oauth.ValidatedTokenRequest, custom map[string]any) error {
	return f(ctx, req, custom)
}

// Hooks agrupa los ResponseHook por grant_type.
type Hooks struct {
	mu    sync.RWMutex
	hooks map[string][]ResponseHook
}

func NewHooks() *Hooks {
	return &Hooks{hooks: make(map[string][]ResponseHook)}
}

// Add registra h para grantType (o AnyGrantType).
func (h *Hooks) Add(grantType string, hook ResponseHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[grantType] = append(h.hooks[grantType], hook)
}

// For devuelve los hooks del wildcard seguidos de los del grant.
func (h *Hooks) For(grantType string) []ResponseHook {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := append([]ResponseHook(nil), h.hooks[AnyGrantType]...)
	if grantType != AnyGrantType {
		out = append(out, h.hooks[grantType]...)
	}
	return out
}
