// Package session guarda el principal autenticado del login local. El
// navegador solo ve un id opaco; en el cache la key es su hash.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/cache"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	sectoken "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

const (
	DefaultCookieName = "hj_session"
	DefaultTTL        = 8 * time.Hour
	keyPrefix         = "session:"
)

type CookieOptions struct {
	Name     string
	Domain   string
	SameSite string
	Secure   bool
}

// Manager crea, lee y destruye sesiones.
//
// TTL es la vida absoluta de la sesión (y el Max-Age de la cookie). Con
// IdleTimeout > 0 la sesión además vence si pasa ese tiempo sin uso; cada
// Load la renueva hasta el tope de TTL.
type Manager struct {
	Cache       cache.Client
	TTL         time.Duration
	IdleTimeout time.Duration
	Cookie      CookieOptions
	Now         func() time.Time
}

// record es lo que se guarda en el cache.
type record struct {
	Principal *repository.Principal `json:"principal"`
	ExpiresAt time.Time             `json:"expires_at"`
}

func NewManager(c cache.Client, ttl time.Duration, cookie CookieOptions) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	return &Manager{Cache: c, TTL: ttl, Cookie: cookie, Now: time.Now}
}

func storageKey(id string) string { return keyPrefix + sectoken.SHA256Base64URL(id) }

// idle es la ventana de inactividad efectiva; 0 si no aplica.
func (m *Manager) idle() time.Duration {
	if m.IdleTimeout <= 0 || m.IdleTimeout >= m.TTL {
		return 0
	}
	return m.IdleTimeout
}

// Create guarda p y escribe la cookie. Si p no trae SessionID se usa el id
// de la cookie; ese es el "sid" de los tokens.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, p *repository.Principal) (string, error) {
	if p.IsAnonymous() {
		return "", fmt.Errorf("session: anonymous principal")
	}
	id, err := sectoken.NewHandle()
	if err != nil {
		return "", fmt.Errorf("session: id: %w", err)
	}
	cp := *p
	if cp.SessionID == "" {
		cp.SessionID = id
	}
	b, err := json.Marshal(&record{Principal: &cp, ExpiresAt: m.Now().Add(m.TTL).UTC()})
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	window := m.TTL
	if idle := m.idle(); idle > 0 {
		window = idle
	}
	if err := m.Cache.Put(ctx, storageKey(id), string(b), window); err != nil {
		return "", fmt.Errorf("session: store: %w", err)
	}
	http.SetCookie(w, buildCookie(m.Cookie, id, m.TTL))
	logger.From(ctx).Debug("session created",
		logger.Layer("session"), logger.Subject(cp.Subject), logger.String("idp", cp.IdentityProvider))
	return cp.SessionID, nil
}

// Load devuelve el principal de la cookie, o nil si no hay sesión válida.
// Con IdleTimeout renueva la ventana de inactividad.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*repository.Principal, error) {
	ck, err := r.Cookie(m.Cookie.Name)
	if err != nil || ck.Value == "" || len(ck.Value) > 256 {
		return nil, nil
	}
	key := storageKey(ck.Value)
	raw, err := m.Cache.Touch(ctx, key, m.idle())
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Principal == nil {
		logger.From(ctx).Warn("discarding corrupt session", logger.Layer("session"), logger.Err(err))
		_ = m.Cache.Delete(ctx, key)
		return nil, nil
	}
	if !m.Now().Before(rec.ExpiresAt) {
		_ = m.Cache.Delete(ctx, key)
		return nil, nil
	}
	return rec.Principal, nil
}

// Destroy borra la sesión y la cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if ck, err := r.Cookie(m.Cookie.Name); err == nil && ck.Value != "" {
		if err := m.Cache.Delete(ctx, storageKey(ck.Value)); err != nil {
			return fmt.Errorf("session: delete: %w", err)
		}
	}
	http.SetCookie(w, buildDeletionCookie(m.Cookie))
	return nil
}
