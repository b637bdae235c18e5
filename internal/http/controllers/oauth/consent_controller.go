package oauth

import (
	"net/http"
	"net/url"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/views"
	"github.com/dropDatabas3/hellojohn-oidc/internal/i18n"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authorize"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// ConsentController muestra la pantalla de consent y devuelve la decisión
// del usuario al pipeline de authorize.
type ConsentController struct {
	authz *AuthorizeController
}

func NewConsentController(authz *AuthorizeController) *ConsentController {
	return &ConsentController{authz: authz}
}

// Consent maneja GET (pantalla) y POST (decisión) de /connect/consent.
func (c *ConsentController) Consent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.show(w, r, r.URL.Query().Get(authorize.ParamResume), r.URL.Query().Get("msg"))
	case http.MethodPost:
		c.decide(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (c *ConsentController) show(w http.ResponseWriter, r *http.Request, resume, msgKey string) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ConsentController.show"))

	params, err := c.authz.resume.Open(resume)
	if err != nil {
		c.authz.userError(w, r, "", oauth.UserError(oauth.CodeInvalidRequest, authorize.MsgInvalidResumeToken).WithCause(err))
		return
	}
	req, err := c.authz.validator.Validate(ctx, params, nil)
	if err != nil {
		c.authz.fail(w, r, req, err)
		return
	}
	if _, err := c.authz.currentUser(r); err != nil {
		// la sesión venció entre authorize y consent
		log.Debug("consent without session", logger.Err(err))
		http.Redirect(w, r, LoginPath+"?"+url.Values{authorize.ParamResume: {resume}}.Encode(), http.StatusFound)
		return
	}

	al := acceptLanguage(r, req.UILocales)
	name := req.Client.ClientName
	if name == "" {
		name = req.ClientID
	}
	p := views.ConsentPage{
		Action:        ConsentPath,
		Resume:        resume,
		Scopes:        req.Scopes,
		AllowRemember: req.Client.AllowRememberConsent,
		RememberLabel: i18n.T(al, i18n.MsgRemember),
		Allow:         i18n.T(al, i18n.MsgAllow),
		Deny:          i18n.T(al, i18n.MsgDeny),
	}
	status := http.StatusOK
	if msgKey != "" {
		p.Error = i18n.T(al, msgKey)
		status = http.StatusBadRequest
	}
	views.RenderConsent(w, r, status, i18n.Lang(al), i18n.T(al, i18n.MsgConsentTitle, name), p)
}

func (c *ConsentController) decide(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		c.authz.userError(w, r, "", oauth.UserError(oauth.CodeInvalidRequest, authorize.MsgInvalidRequest))
		return
	}
	resume := r.PostForm.Get(authorize.ParamResume)
	params, err := c.authz.resume.Open(resume)
	if err != nil {
		c.authz.userError(w, r, "", oauth.UserError(oauth.CodeInvalidRequest, authorize.MsgInvalidResumeToken).WithCause(err))
		return
	}

	decision := &oauth.ConsentDecision{
		Granted:         r.PostForm.Get("decision") == "allow",
		Scopes:          r.PostForm["scopes"],
		RememberConsent: r.PostForm.Get("remember") == "true",
	}
	if decision.Scopes == nil {
		decision.Scopes = []string{}
	}
	logger.From(r.Context()).Debug("consent decision",
		logger.Layer("controller"), logger.Bool("granted", decision.Granted), logger.Count(len(decision.Scopes)))
	c.authz.process(w, r, params, decision)
}
