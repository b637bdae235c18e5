package oauth

import (
	"net/http"

	httperrors "github.com/dropDatabas3/hellojohn-oidc/internal/http/errors"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/token"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// TokenController maneja POST /connect/token.
type TokenController struct {
	clients   *clientauth.Authenticator
	validator *token.RequestValidator
	responses *token.ResponseGenerator
}

func NewTokenController(ca *clientauth.Authenticator, v *token.RequestValidator, rg *token.ResponseGenerator) *TokenController {
	return &TokenController{clients: ca, validator: v, responses: rg}
}

func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("TokenController.Token"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteOAuthError(w, oauth.ClientError(oauth.CodeInvalidRequest, "method not allowed"))
		return
	}
	if !parseForm(w, r) {
		c.fail(w, r, "", oauth.ClientError(oauth.CodeInvalidRequest, "expected application/x-www-form-urlencoded body"))
		return
	}
	grantType := r.PostForm.Get(oauth.ParamGrantType)

	ps, err := clientauth.Parse(r)
	if err != nil {
		c.fail(w, r, grantType, err)
		return
	}
	client, err := c.clients.AuthenticateClient(ctx, ps)
	if err != nil {
		c.fail(w, r, grantType, err)
		return
	}

	req, err := c.validator.ValidateRequest(ctx, r.PostForm, client)
	if err != nil {
		c.fail(w, r, grantType, err)
		return
	}
	resp, err := c.responses.Process(ctx, req)
	if err != nil {
		c.fail(w, r, grantType, err)
		return
	}

	log.Info("token issued", logger.ClientID(client.ClientID), logger.GrantType(req.GrantType))
	httperrors.WriteJSON(w, http.StatusOK, resp)
}

func (c *TokenController) fail(w http.ResponseWriter, r *http.Request, grantType string, err error) {
	code := oauth.CodeServerError
	if oe, ok := oauth.AsError(err); ok {
		code = oe.Code
	}
	if len(grantType) > oauth.MaxGrantTypeLength {
		grantType = "invalid"
	}
	metrics.TokenRequestFailures.WithLabelValues(grantType, code).Inc()

	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.GrantType(grantType), logger.ErrorCode(code))
	if code == oauth.CodeServerError {
		log.Error("token request failed", logger.Err(err))
	} else {
		log.Info("token request rejected", logger.Err(err))
	}
	httperrors.WriteOAuthError(w, err)
}
