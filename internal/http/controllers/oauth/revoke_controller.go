package oauth

import (
	"net/http"

	httperrors "github.com/dropDatabas3/hellojohn-oidc/internal/http/errors"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/revocation"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// RevokeController maneja POST /connect/revocation (RFC 7009).
type RevokeController struct {
	clients   *clientauth.Authenticator
	processor *revocation.Processor
}

func NewRevokeController(ca *clientauth.Authenticator, p *revocation.Processor) *RevokeController {
	return &RevokeController{clients: ca, processor: p}
}

func (c *RevokeController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("RevokeController.Revoke"))

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
	client, err := c.clients.AuthenticateClient(ctx, ps)
	if err != nil {
		httperrors.WriteOAuthError(w, err)
		return
	}

	res, err := c.processor.Process(ctx, r.PostForm, client)
	if err != nil {
		if _, ok := oauth.AsError(err); !ok {
			log.Error("revocation failed", logger.Err(err))
		}
		httperrors.WriteOAuthError(w, err)
		return
	}
	log.Debug("revocation done", logger.ClientID(client.ClientID), logger.TokenType(res.TokenType), logger.Bool("revoked", res.Revoked))

	// 200 también para tokens desconocidos o ajenos
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}
