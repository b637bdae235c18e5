// Package validation contiene reglas sintácticas de parámetros del protocolo.
package validation

import (
	"net/url"
	"regexp"
)

// Scope name rules:
// - Lowercase only.
// - Start and end with [a-z0-9].
// - Middle chars may include [a-z0-9:_.-].
// - Length 1..64.
//
// Examples valid: openid, offline_access, api:read, orders.write
// Examples invalid: ;hack, BAD, bad space, :leader, trailer:, "", 65+ chars.
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName returns true if the provided scope name matches the allowed pattern.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// RFC 7636 §4.1: code_verifier = 43*128unreserved
var codeVerifierRe = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// ValidCodeVerifier valida charset y longitud de un code_verifier o code_challenge.
func ValidCodeVerifier(v string) bool {
	return codeVerifierRe.MatchString(v)
}

// ValidRedirectURI exige URI absoluta y sin fragment (RFC 6749 §3.1.2).
// Se aceptan schemes custom (apps nativas).
func ValidRedirectURI(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Fragment == "" && (u.Host != "" || u.Opaque != "" || u.Path != "")
}
