// Package secretbox sella payloads con AES-256-GCM.
//
// El formato de salida es base64url(nonce || ciphertext) sin padding, apto para
// viajar en query strings (resume tokens del endpoint de authorize).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nonceSizeGCM      = 12 // 96 bits
	requiredKeyLength = 32 // AES-256
)

// ErrMalformed indica un sobre que no se puede decodificar o autenticar.
var ErrMalformed = errors.New("secretbox: malformed or tampered payload")

// Box cifra y descifra con una clave fija.
type Box struct {
	aead cipher.AEAD
}

// New crea un Box con una clave cruda de 32 bytes.
func New(key []byte) (*Box, error) {
	if len(key) != requiredKeyLength {
		return nil, fmt.Errorf("secretbox: clave inválida: %d bytes (requiere %d)", len(key), requiredKeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// ParseKey acepta la clave en base64 (std o raw), hex (64 chars) o 32 bytes crudos.
func ParseKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(key) == 2*requiredKeyLength {
		if b, err := hex.DecodeString(key); err == nil {
			return b, nil
		}
	}
	if len(key) == requiredKeyLength {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("secretbox: clave inválida (esperado base64/hex de %d bytes)", requiredKeyLength)
}

// GenerateKey devuelve una clave aleatoria en base64 estándar.
func GenerateKey() (string, error) {
	k := make([]byte, requiredKeyLength)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

// Seal cifra plain. aad se autentica pero no se cifra (puede ser nil).
func (b *Box) Seal(plain, aad []byte) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, plain, aad)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open descifra un valor producido por Seal con el mismo aad.
func (b *Box) Open(sealed string, aad []byte) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil || len(raw) <= nonceSizeGCM {
		return nil, ErrMalformed
	}
	pt, err := b.aead.Open(nil, raw[:nonceSizeGCM], raw[nonceSizeGCM:], aad)
	if err != nil {
		return nil, ErrMalformed
	}
	return pt, nil
}
