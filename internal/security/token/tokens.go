// Package tokens contiene primitivas para handles opacos y hashes de protocolo.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// HandleBytes es la entropía de codes, refresh tokens y reference tokens.
const HandleBytes = 32

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewHandle genera un handle de HandleBytes bytes.
func NewHandle() (string, error) {
	return GenerateOpaqueToken(HandleBytes)
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding.
// Es la clave con la que se guardan los handles en los stores.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SHA256Hex devuelve sha256(input) en hexadecimal.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// LeftHalfHash calcula at_hash / c_hash: mitad izquierda de SHA-256, base64url.
// Válido para algoritmos de firma de 256 bits (EdDSA/Ed25519, RS256, ES256).
func LeftHalfHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

// Equal compara en tiempo constante.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
