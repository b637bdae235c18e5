package oauth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/http/middlewares"
	"github.com/dropDatabas3/hellojohn-oidc/internal/http/views"
	"github.com/dropDatabas3/hellojohn-oidc/internal/i18n"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authorize"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/interaction"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/session"
)

// AuthorizeController maneja /connect/authorize. Cada pasada valida el
// request desde cero; login y consent vuelven con el request sellado.
type AuthorizeController struct {
	validator   *authorize.RequestValidator
	interaction *interaction.Generator
	responses   *authorize.ResponseGenerator
	resume      *authorize.ResumeCodec
	sessions    *session.Manager
}

func NewAuthorizeController(v *authorize.RequestValidator, ig *interaction.Generator, rg *authorize.ResponseGenerator, rc *authorize.ResumeCodec, sm *session.Manager) *AuthorizeController {
	return &AuthorizeController{validator: v, interaction: ig, responses: rg, resume: rc, sessions: sm}
}

// Authorize maneja GET y POST /connect/authorize.
func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Vary", "Cookie")

	var params url.Values
	switch r.Method {
	case http.MethodGet:
		params = r.URL.Query()
	case http.MethodPost:
		if !parseForm(w, r) {
			c.userError(w, r, "", oauth.UserError(oauth.CodeInvalidRequest, authorize.MsgInvalidRequest))
			return
		}
		params = r.PostForm
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// el marcador de re-login solo es válido dentro de un resume token
	params.Del(oauth.ParamReplacedSession)
	if token := params.Get(authorize.ParamResume); token != "" {
		opened, err := c.resume.Open(token)
		if err != nil {
			c.userError(w, r, "", oauth.UserError(oauth.CodeInvalidRequest, authorize.MsgInvalidResumeToken).WithCause(err))
			return
		}
		params = opened
	}
	c.process(w, r, params, nil)
}

// process corre validate → interaction → response. decision viene del
// POST de consent.
func (c *AuthorizeController) process(w http.ResponseWriter, r *http.Request, params url.Values, decision *oauth.ConsentDecision) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuthorizeController.process"))

	req, err := c.validator.Validate(ctx, params, decision)
	if err != nil {
		c.fail(w, r, req, err)
		return
	}

	user, err := c.sessions.Load(ctx, r)
	if err != nil {
		log.Error("session load failed", logger.Err(err))
		c.fail(w, r, req, err)
		return
	}

	ir, err := c.interaction.Process(ctx, req, user, decision)
	if err != nil {
		c.fail(w, r, req, err)
		return
	}
	switch ir.Kind {
	case interaction.Error:
		c.fail(w, r, req, ir.Err)
		return
	case interaction.RequiresLogin:
		c.redirectToInteraction(w, r, req, LoginPath, "")
		return
	case interaction.RequiresConsent:
		c.redirectToInteraction(w, r, req, ConsentPath, ir.ConsentMessageKey)
		return
	}

	resp, err := c.responses.CreateResponse(ctx, req)
	if err != nil {
		c.fail(w, r, req, err)
		return
	}
	log.Info("authorize completed", logger.ClientID(req.ClientID), logger.Subject(req.Subject.Subject), logger.ResponseType(req.ResponseType))
	deliver(w, r, resp.RedirectURI, resp.ResponseMode, resp.Params())
}

func (c *AuthorizeController) redirectToInteraction(w http.ResponseWriter, r *http.Request, req *oauth.ValidatedAuthorizeRequest, path, msgKey string) {
	token, err := c.resume.Seal(req.Raw)
	if err != nil {
		c.fail(w, r, req, err)
		return
	}
	q := url.Values{authorize.ParamResume: {token}}
	if msgKey != "" {
		q.Set("msg", msgKey)
	}
	http.Redirect(w, r, path+"?"+q.Encode(), http.StatusFound)
}

// fail decide a quién va el error: pantalla localizada si el redirect_uri
// no es confiable, redirect al cliente si lo es.
func (c *AuthorizeController) fail(w http.ResponseWriter, r *http.Request, req *oauth.ValidatedAuthorizeRequest, err error) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("AuthorizeController.fail"))
	uiLocales := ""
	if req != nil {
		uiLocales = req.UILocales
	}

	oe, ok := oauth.AsError(err)
	if !ok || oe.Kind == oauth.KindConfiguration {
		log.Error("authorize failed", logger.Err(err))
		c.userError(w, r, uiLocales, oauth.UserError(oauth.CodeServerError, authorize.MsgConfigurationFailed).WithCause(err))
		return
	}
	if oe.Kind == oauth.KindUser || req == nil || req.Client == nil || req.RedirectURI == "" {
		c.userError(w, r, uiLocales, oe)
		return
	}

	log.Info("authorize error sent to client", logger.ClientID(req.ClientID), logger.ErrorCode(oe.Code))
	p := url.Values{oauth.ParamError: {oe.Code}}
	if oe.Description != "" {
		p.Set(oauth.ParamErrorDescription, oe.Description)
	}
	if req.State != "" {
		p.Set(oauth.ParamState, req.State)
	}
	mode := req.ResponseMode
	if mode == "" {
		mode = oauth.ResponseModeQuery
		if req.ResponseType != "" && req.ResponseType != oauth.ResponseTypeCode {
			mode = oauth.ResponseModeFragment
		}
	}
	deliver(w, r, req.RedirectURI, mode, p)
}

func (c *AuthorizeController) userError(w http.ResponseWriter, r *http.Request, uiLocales string, oe *oauth.Error) {
	al := acceptLanguage(r, uiLocales)
	key := oe.MessageKey
	if key == "" {
		key = i18n.MsgGeneric
	}
	status := http.StatusBadRequest
	if oe.Code == oauth.CodeServerError {
		status = http.StatusInternalServerError
	}
	logger.From(r.Context()).Info("authorize user error",
		logger.Layer("controller"), logger.ErrorCode(oe.Code), logger.String("message_key", key), logger.Err(oe.Err))
	views.RenderError(w, r, status, i18n.Lang(al), i18n.T(al, i18n.MsgErrorTitle), views.ErrorPage{
		Message:   i18n.T(al, key),
		RequestID: middlewares.GetRequestID(r.Context()),
	})
}

// deliver entrega params al redirect_uri según response_mode.
func deliver(w http.ResponseWriter, r *http.Request, redirectURI, mode string, params url.Values) {
	w.Header().Set("Cache-Control", "no-store")
	switch mode {
	case oauth.ResponseModeFormPost:
		views.RenderFormPost(w, r, redirectURI, params)
	case oauth.ResponseModeFragment:
		http.Redirect(w, r, stripFragment(redirectURI)+"#"+params.Encode(), http.StatusFound)
	default:
		u, err := url.Parse(redirectURI)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		q := u.Query()
		for k, vs := range params {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
	}
}

func stripFragment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

var errNoSession = errors.New("no session")

// currentUser es el principal de la sesión, o error si no hay.
func (c *AuthorizeController) currentUser(r *http.Request) (*repository.Principal, error) {
	p, err := c.sessions.Load(r.Context(), r)
	if err != nil {
		return nil, err
	}
	if p.IsAnonymous() {
		return nil, errNoSession
	}
	return p, nil
}
