package oidc

import (
	"net/http"

	httperrors "github.com/dropDatabas3/hellojohn-oidc/internal/http/errors"
	"github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// JWKSController publica las claves públicas activas y de rollover.
type JWKSController struct {
	keys *jwt.Keystore
}

func NewJWKSController(ks *jwt.Keystore) *JWKSController {
	return &JWKSController{keys: ks}
}

func (c *JWKSController) JWKS(w http.ResponseWriter, r *http.Request) {
	body, err := c.keys.JWKS()
	if err != nil {
		logger.From(r.Context()).Error("jwks build failed", logger.Layer("controller"), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
