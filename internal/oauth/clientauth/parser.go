// Package clientauth autentica clientes (token, revocación) y scopes
// (introspección) a partir de las credenciales presentadas en el request.
package clientauth

import (
	"crypto/x509"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth"
)

// Método por el que se presentó la credencial.
const (
	MethodBasic       = "client_secret_basic"
	MethodPost        = "client_secret_post"
	MethodCertificate = "tls_client_auth"
	MethodNone        = "none"
)

// ParsedSecret es la credencial extraída del request.
type ParsedSecret struct {
	ID          string
	Credential  string
	Certificate *x509.Certificate
	Method      string
}

// Parse extrae la credencial. Orden: Authorization Basic, body, certificado
// TLS, y por último client_id solo (cliente público).
// r.ParseForm ya tiene que haber sido llamado.
// Retorna (nil, nil) si no hay ninguna credencial.
func Parse(r *http.Request) (*ParsedSecret, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if ps, ok, err := parseBasic(h); ok || err != nil {
			return ps, err
		}
	}

	id := r.PostForm.Get(oauth.ParamClientID)
	if len(id) > oauth.MaxClientIDLength {
		return nil, oauth.ClientError(oauth.CodeInvalidClient, "client_id too long")
	}
	if sec := r.PostForm.Get(oauth.ParamClientSecret); id != "" && sec != "" {
		return &ParsedSecret{ID: id, Credential: sec, Method: MethodPost}, nil
	}

	if id != "" && r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		return &ParsedSecret{ID: id, Certificate: r.TLS.PeerCertificates[0], Method: MethodCertificate}, nil
	}

	if id != "" {
		return &ParsedSecret{ID: id, Method: MethodNone}, nil
	}
	return nil, nil
}

// parseBasic decodifica "Basic base64(urlenc(id):urlenc(secret))" (RFC 6749 2.3.1).
// ok=false si el esquema no es Basic.
func parseBasic(h string) (*ParsedSecret, bool, error) {
	scheme, payload, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "basic") {
		return nil, false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, true, oauth.ClientError(oauth.CodeInvalidClient, "malformed basic credentials")
	}
	rawID, rawSecret, found := strings.Cut(string(raw), ":")
	if !found {
		return nil, true, oauth.ClientError(oauth.CodeInvalidClient, "malformed basic credentials")
	}
	id, err := url.QueryUnescape(rawID)
	if err != nil {
		return nil, true, oauth.ClientError(oauth.CodeInvalidClient, "malformed basic credentials")
	}
	secret, err := url.QueryUnescape(rawSecret)
	if err != nil {
		return nil, true, oauth.ClientError(oauth.CodeInvalidClient, "malformed basic credentials")
	}
	if id == "" || len(id) > oauth.MaxClientIDLength {
		return nil, true, oauth.ClientError(oauth.CodeInvalidClient, "invalid client_id")
	}
	return &ParsedSecret{ID: id, Credential: secret, Method: MethodBasic}, true, nil
}
