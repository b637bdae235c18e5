// Package session maneja el login local y el logout del proveedor.
package session

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	oauthctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/http/middlewares"
	"github.com/dropDatabas3/hellojohn-oidc/internal/http/views"
	"github.com/dropDatabas3/hellojohn-oidc/internal/i18n"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authorize"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/session"
	"github.com/dropDatabas3/hellojohn-oidc/internal/util"
)

// LoginController muestra el formulario de login local y crea la sesión.
// Después del login vuelve a authorize con el mismo resume token.
type LoginController struct {
	users    repository.UserService
	sessions *session.Manager
	resume   *authorize.ResumeCodec
	audit    audit.Sink
}

func NewLoginController(users repository.UserService, sm *session.Manager, rc *authorize.ResumeCodec, sink audit.Sink) *LoginController {
	return &LoginController{users: users, sessions: sm, resume: rc, audit: audit.OrDefault(sink)}
}

func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resume := r.URL.Query().Get(authorize.ParamResume)
		params, ok := c.open(w, r, resume)
		if !ok {
			return
		}
		c.render(w, r, http.StatusOK, resume, params, params.Get(oauth.ParamLoginHint), "")
	case http.MethodPost:
		c.submit(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (c *LoginController) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.submit"))

	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	if err := r.ParseForm(); err != nil {
		renderError(w, r, "", http.StatusBadRequest, authorize.MsgInvalidRequest)
		return
	}
	resume := r.PostForm.Get(authorize.ParamResume)
	params, ok := c.open(w, r, resume)
	if !ok {
		return
	}

	username := strings.TrimSpace(r.PostForm.Get(oauth.ParamUserName))
	password := r.PostForm.Get(oauth.ParamPassword)
	if username == "" || password == "" || len(username) > oauth.MaxUserNameLength || len(password) > oauth.MaxPasswordLength {
		c.render(w, r, http.StatusBadRequest, resume, params, username, i18n.MsgInvalidCredentials)
		return
	}

	p, err := c.users.AuthenticateLocal(ctx, username, password)
	if errors.Is(err, repository.ErrInvalidCredentials) {
		c.audit.Emit(ctx, audit.New(audit.EventLocalLoginFailed, params.Get(oauth.ParamClientID), "",
			map[string]any{"username": util.MaskIdentifier(username), "ip": middlewares.ClientIP(r)}))
		log.Info("local login failed", logger.String("username", util.MaskIdentifier(username)), logger.ClientIP(middlewares.ClientIP(r)))
		c.render(w, r, http.StatusUnauthorized, resume, params, username, i18n.MsgInvalidCredentials)
		return
	}
	if err != nil {
		log.Error("local login error", logger.Err(err))
		renderError(w, r, params.Get(oauth.ParamUILocales), http.StatusInternalServerError, i18n.MsgGeneric)
		return
	}

	if _, err := c.sessions.Create(ctx, w, p); err != nil {
		log.Error("session create failed", logger.Err(err))
		renderError(w, r, params.Get(oauth.ParamUILocales), http.StatusInternalServerError, i18n.MsgGeneric)
		return
	}
	c.audit.Emit(ctx, audit.New(audit.EventLocalLoginSucceeded, params.Get(oauth.ParamClientID), p.Subject, nil))
	log.Info("local login succeeded", logger.Subject(p.Subject))

	http.Redirect(w, r, oauthctrl.AuthorizePath+"?"+url.Values{authorize.ParamResume: {resume}}.Encode(), http.StatusFound)
}

// open abre el resume token; si falla ya respondió.
func (c *LoginController) open(w http.ResponseWriter, r *http.Request, resume string) (url.Values, bool) {
	params, err := c.resume.Open(resume)
	if err != nil {
		logger.From(r.Context()).Debug("invalid resume token", logger.Layer("controller"), logger.Err(err))
		renderError(w, r, "", http.StatusBadRequest, authorize.MsgInvalidResumeToken)
		return nil, false
	}
	return params, true
}

func (c *LoginController) render(w http.ResponseWriter, r *http.Request, status int, resume string, params url.Values, hint, errKey string) {
	al := acceptLanguage(r, params.Get(oauth.ParamUILocales))
	p := views.LoginPage{
		Action:        oauthctrl.LoginPath,
		Resume:        resume,
		LoginHint:     hint,
		UsernameLabel: i18n.T(al, i18n.MsgUsername),
		PasswordLabel: i18n.T(al, i18n.MsgPassword),
		Submit:        i18n.T(al, i18n.MsgSubmit),
	}
	if errKey != "" {
		p.Error = i18n.T(al, errKey)
	}
	views.RenderLogin(w, r, status, i18n.Lang(al), i18n.T(al, i18n.MsgLoginTitle), p)
}

// RateLimited es el OnLimited del rate limit de /login: pantalla en vez de JSON.
func RateLimited(w http.ResponseWriter, r *http.Request) {
	renderError(w, r, "", http.StatusTooManyRequests, i18n.MsgRateLimited)
}

func renderError(w http.ResponseWriter, r *http.Request, uiLocales string, status int, key string) {
	al := acceptLanguage(r, uiLocales)
	views.RenderError(w, r, status, i18n.Lang(al), i18n.T(al, i18n.MsgErrorTitle), views.ErrorPage{
		Message:   i18n.T(al, key),
		RequestID: middlewares.GetRequestID(r.Context()),
	})
}

func acceptLanguage(r *http.Request, uiLocales string) string {
	return i18n.WithUILocales(r.Header.Get("Accept-Language"), uiLocales)
}
