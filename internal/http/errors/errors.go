// Package errors escribe las respuestas de error: AppError para endpoints
// propios y cuerpos RFC 6749 / RFC 6750 para los endpoints OAuth.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe un AppError (o un 500 genérico).
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// WriteJSON responde JSON sin cache (toda respuesta OAuth lleva no-store).
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// OAuthBody arma {error, error_description}. Errores que no son del motor
// salen como server_error sin descripción.
func OAuthBody(err error) (int, map[string]string) {
	oe, ok := oauth.AsError(err)
	if !ok {
		return http.StatusInternalServerError, map[string]string{oauth.ParamError: oauth.CodeServerError}
	}
	body := map[string]string{oauth.ParamError: oe.Code}
	if oe.Description != "" {
		body[oauth.ParamErrorDescription] = oe.Description
	}
	switch {
	case oe.Code == oauth.CodeInvalidClient:
		return http.StatusUnauthorized, body
	case oe.Code == oauth.CodeServerError || oe.Kind == oauth.KindConfiguration:
		return http.StatusInternalServerError, map[string]string{oauth.ParamError: oauth.CodeServerError}
	}
	return http.StatusBadRequest, body
}

// WriteOAuthError escribe el cuerpo RFC 6749 5.2. invalid_client es 401 con
// challenge Basic.
func WriteOAuthError(w http.ResponseWriter, err error) {
	status, body := OAuthBody(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="hellojohn"`)
	}
	WriteJSON(w, status, body)
}

// WriteBearerError responde un error de recurso protegido (RFC 6750 3.1).
func WriteBearerError(w http.ResponseWriter, err error) {
	code := oauth.CodeInvalidToken
	status := http.StatusUnauthorized
	desc := ""
	if oe, ok := oauth.AsError(err); ok {
		desc = oe.Description
		switch oe.Code {
		case oauth.CodeInsufficientScope:
			code, status = oe.Code, http.StatusForbidden
		case oauth.CodeInvalidRequest:
			code, status = oe.Code, http.StatusBadRequest
		case oauth.CodeServerError:
			WriteJSON(w, http.StatusInternalServerError, map[string]string{oauth.ParamError: oauth.CodeServerError})
			return
		}
	} else if err != nil {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{oauth.ParamError: oauth.CodeServerError})
		return
	}

	challenge := fmt.Sprintf(`Bearer error="%s"`, code)
	if desc != "" {
		challenge += fmt.Sprintf(`, error_description="%s"`, strings.ReplaceAll(desc, `"`, `'`))
	}
	w.Header().Set("WWW-Authenticate", challenge)
	WriteJSON(w, status, oauthErrorBody{Error: code, ErrorDescription: desc})
}
