// Package interaction decide si un request de authorize ya validado necesita
// login o consent antes de generar la respuesta.
//
// El orden es fijo: ProcessLogin, ProcessClientLogin, ProcessConsent. Cada
// paso puede cortar la pasada; el llamador muestra login/consent y vuelve a
// entrar desde arriba con el resume token.
package interaction

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/consent"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// Kind es el estado resultante de una pasada.
type Kind int

const (
	NoInteraction Kind = iota
	RequiresLogin
	RequiresConsent
	Error
)

func (k Kind) String() string {
	switch k {
	case NoInteraction:
		return "none"
	case RequiresLogin:
		return "login"
	case RequiresConsent:
		return "consent"
	case Error:
		return "error"
	}
	return "unknown"
}

// SignInMessage es lo que la pantalla de login necesita saber del request.
type SignInMessage struct {
	ClientID    string
	IdP         string
	Tenant      string
	LoginHint   string
	DisplayMode string
	UILocales   string
	AcrValues   []string
}

// Response es el resultado de una pasada.
type Response struct {
	Kind Kind

	// Err solo con Kind == Error; se redirige al cliente.
	Err *oauth.Error

	// SignIn solo con Kind == RequiresLogin.
	SignIn *SignInMessage

	// ConsentMessageKey: error a mostrar en la pantalla de consent (i18n).
	ConsentMessageKey string
}

// IsInteraction indica si hay que mostrar una pantalla.
func (r *Response) IsInteraction() bool {
	return r.Kind == RequiresLogin || r.Kind == RequiresConsent
}

// Generator implementa la máquina de estados. Stateless.
type Generator struct {
	Consent *consent.Service
	Users   repository.UserService
	Audit   audit.Sink
	Now     func() time.Time

	// EnableLocalLogin: apagado, una sesión local obliga a re-autenticar con un idp externo.
	EnableLocalLogin bool
}

func NewGenerator(cs *consent.Service, users repository.UserService, sink audit.Sink, enableLocalLogin bool) *Generator {
	return &Generator{Consent: cs, Users: users, Audit: audit.OrDefault(sink), Now: time.Now, EnableLocalLogin: enableLocalLogin}
}

// Process corre los tres pasos en orden.
func (g *Generator) Process(ctx context.Context, req *oauth.ValidatedAuthorizeRequest, user *repository.Principal, decision *oauth.ConsentDecision) (*Response, error) {
	resp, err := g.ProcessLogin(ctx, req, user)
	if err != nil || resp.Kind != NoInteraction {
		return g.record(ctx, req, resp, err)
	}
	resp, err = g.ProcessClientLogin(ctx, req)
	if err != nil || resp.Kind != NoInteraction {
		return g.record(ctx, req, resp, err)
	}
	resp, err = g.ProcessConsent(ctx, req, decision)
	return g.record(ctx, req, resp, err)
}

func (g *Generator) record(ctx context.Context, req *oauth.ValidatedAuthorizeRequest, resp *Response, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	metrics.AuthorizeInteractions.WithLabelValues(resp.Kind.String()).Inc()
	f := []zap.Field{logger.ClientID(req.ClientID), logger.Interaction(resp.Kind.String())}
	if resp.Err != nil {
		f = append(f, logger.ErrorCode(resp.Err.Code))
	}
	logger.From(ctx).Debug("authorize interaction", append(f, logger.Layer("service"), logger.Op("interaction.process"))...)
	return resp, nil
}

// ProcessLogin decide si hace falta autenticar (o re-autenticar) al usuario.
// Con éxito asigna req.Subject.
func (g *Generator) ProcessLogin(ctx context.Context, req *oauth.ValidatedAuthorizeRequest, user *repository.Principal) (*Response, error) {
	if req.HasPrompt(oauth.PromptLogin) || req.HasPrompt(oauth.PromptSelectAccount) {
		// se quita para que la próxima pasada no vuelva a pedir login, pero
		// la sesión actual queda descartada
		req.RemovePrompt(oauth.PromptLogin)
		req.RemovePrompt(oauth.PromptSelectAccount)
		if !user.IsAnonymous() {
			req.RequireNewSession(user.SessionID)
		}
		return g.loginRequired(req), nil
	}

	if user.IsAnonymous() {
		return g.loginRequired(req), nil
	}

	active, err := g.Users.IsActive(ctx, user.Subject)
	if err != nil {
		return nil, err
	}
	if !active {
		return g.loginRequired(req), nil
	}

	if req.IsReplacedSession(user.SessionID) {
		return g.loginRequired(req), nil
	}

	if req.IdPHint != "" && req.IdPHint != identityProvider(user) {
		return g.loginRequired(req), nil
	}

	if req.MaxAge != nil && !user.AuthTime.IsZero() {
		if g.Now().After(user.AuthTime.Add(time.Duration(*req.MaxAge) * time.Second)) {
			return g.loginRequired(req), nil
		}
	}

	if req.SubjectFromIDTokenHint != "" && req.SubjectFromIDTokenHint != user.Subject {
		return g.loginRequired(req), nil
	}

	req.Subject = user
	if req.SessionID == "" {
		req.SessionID = user.SessionID
	}
	return &Response{Kind: NoInteraction}, nil
}

// ProcessClientLogin aplica las restricciones del cliente sobre cómo se autenticó el usuario.
func (g *Generator) ProcessClientLogin(ctx context.Context, req *oauth.ValidatedAuthorizeRequest) (*Response, error) {
	idp := identityProvider(req.Subject)

	if r := req.Client.IdentityProviderRestrictions; len(r) > 0 && !slices.Contains(r, idp) {
		return g.loginRequired(req), nil
	}
	if idp == repository.LocalIdentityProvider && (!g.EnableLocalLogin || req.Client.DisableLocalLogin) {
		return g.loginRequired(req), nil
	}
	return &Response{Kind: NoInteraction}, nil
}

// ProcessConsent evalúa el consent y, si hay decisión, la aplica al request.
func (g *Generator) ProcessConsent(ctx context.Context, req *oauth.ValidatedAuthorizeRequest, decision *oauth.ConsentDecision) (*Response, error) {
	required, err := g.Consent.RequiresConsent(ctx, req.Client, req.Subject, req.RequestedScopes)
	if err != nil {
		return nil, err
	}
	if req.HasPrompt(oauth.PromptConsent) {
		required = true
	}
	if !required {
		return &Response{Kind: NoInteraction}, nil
	}

	if req.HasPrompt(oauth.PromptNone) {
		return errorResponse(oauth.CodeConsentRequired, "consent required"), nil
	}
	if decision == nil {
		return &Response{Kind: RequiresConsent}, nil
	}

	sub := req.Subject.Subject
	if !decision.Granted {
		g.Audit.Emit(ctx, audit.New(audit.EventConsentDenied, req.ClientID, sub, nil))
		return errorResponse(oauth.CodeAccessDenied, "user denied consent"), nil
	}
	if len(decision.Scopes) == 0 {
		return &Response{Kind: RequiresConsent, ConsentMessageKey: MsgNoScopesSelected}, nil
	}

	granted := GrantedScopes(req, decision.Scopes)
	if len(granted) == 0 {
		return &Response{Kind: RequiresConsent, ConsentMessageKey: MsgNoScopesSelected}, nil
	}
	req.GrantedScopes = granted
	req.WasConsentShown = true

	remember := []string(nil)
	if decision.RememberConsent {
		remember = granted
	}
	if err := g.Consent.UpdateConsent(ctx, req.Client, req.Subject, remember); err != nil {
		return nil, err
	}
	g.Audit.Emit(ctx, audit.New(audit.EventConsentGranted, req.ClientID, sub, map[string]any{
		"scopes":   granted,
		"remember": decision.RememberConsent,
	}))
	return &Response{Kind: NoInteraction}, nil
}

// MsgNoScopesSelected es la clave i18n cuando el usuario aceptó sin elegir scopes.
const MsgNoScopesSelected = "consent.no_scopes_selected"

// GrantedScopes intersecta lo elegido con lo pedido y agrega los scopes
// Required que estaban pedidos. El resultado queda ordenado.
func GrantedScopes(req *oauth.ValidatedAuthorizeRequest, selected []string) []string {
	var out []string
	for _, s := range req.Scopes {
		if s.Required || slices.Contains(selected, s.Name) {
			if slices.Contains(req.RequestedScopes, s.Name) {
				out = append(out, s.Name)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (g *Generator) loginRequired(req *oauth.ValidatedAuthorizeRequest) *Response {
	if req.HasPrompt(oauth.PromptNone) {
		return errorResponse(oauth.CodeLoginRequired, "login required")
	}
	return &Response{
		Kind: RequiresLogin,
		SignIn: &SignInMessage{
			ClientID:    req.ClientID,
			IdP:         req.IdPHint,
			Tenant:      req.TenantHint,
			LoginHint:   req.LoginHint,
			DisplayMode: req.DisplayMode,
			UILocales:   req.UILocales,
			AcrValues:   slices.Clone(req.AcrValues),
		},
	}
}

func errorResponse(code, desc string) *Response {
	return &Response{Kind: Error, Err: oauth.ClientError(code, desc)}
}

func identityProvider(p *repository.Principal) string {
	if p == nil || p.IdentityProvider == "" {
		return repository.LocalIdentityProvider
	}
	return p.IdentityProvider
}
