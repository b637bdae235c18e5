package session

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/session"
)

// Parámetros de logout (OIDC RP-Initiated Logout).
const (
	ParamPostLogoutRedirectURI = "post_logout_redirect_uri"
)

// LogoutController cierra la sesión del proveedor. Solo redirige a
// post_logout_redirect_uri si es un redirect_uri registrado del cliente.
type LogoutController struct {
	sessions *session.Manager
	clients  repository.ClientStore
}

func NewLogoutController(sm *session.Manager, clients repository.ClientStore) *LogoutController {
	return &LogoutController{sessions: sm, clients: clients}
}

func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LogoutController.Logout"))

	var params url.Values
	switch r.Method {
	case http.MethodGet:
		params = r.URL.Query()
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
		_ = r.ParseForm()
		params = r.PostForm
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := c.sessions.Destroy(ctx, w, r); err != nil {
		log.Warn("session destroy failed", logger.Err(err))
	}

	target := params.Get(ParamPostLogoutRedirectURI)
	clientID := params.Get(oauth.ParamClientID)
	if target == "" || clientID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	client, err := c.clients.FindClientByID(ctx, clientID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error("client lookup failed", logger.Err(err))
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !client.Enabled || !client.HasRedirectURI(target) {
		log.Info("post logout redirect rejected", logger.ClientID(clientID))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if state := params.Get(oauth.ParamState); state != "" {
		if u, err := url.Parse(target); err == nil {
			q := u.Query()
			q.Set(oauth.ParamState, state)
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}
