package oauth

import (
	"net/http"

	httperrors "github.com/dropDatabas3/hellojohn-oidc/internal/http/errors"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/introspection"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// IntrospectController maneja POST /connect/introspect (RFC 7662). El que
// llama se autentica como scope de recurso, no como cliente.
type IntrospectController struct {
	clients   *clientauth.Authenticator
	processor *introspection.Processor
}

func NewIntrospectController(ca *clientauth.Authenticator, p *introspection.Processor) *IntrospectController {
	return &IntrospectController{clients: ca, processor: p}
}

func (c *IntrospectController) Introspect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("IntrospectController.Introspect"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !parseForm(w, r) {
		httperrors.WriteOAuthError(w, oauth.ClientError(oauth.CodeInvalidRequest, "expected application/x-www-form-urlencoded body"))
		return
	}
	ps, err := clientauth.Parse(r)
	if err != nil {
		httperrors.WriteOAuthError(w, err)
		return
	}
	caller, err := c.clients.AuthenticateScope(ctx, ps)
	if err != nil {
		httperrors.WriteOAuthError(w, err)
		return
	}

	body, err := c.processor.Process(ctx, r.PostForm.Get(oauth.ParamToken), caller)
	if err != nil {
		if _, ok := oauth.AsError(err); !ok {
			log.Error("introspection failed", logger.Err(err))
		}
		httperrors.WriteOAuthError(w, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, body)
}
