package jwt

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	// AlgEdDSA es el único algoritmo de firma soportado.
	AlgEdDSA = "EdDSA"

	pemTypePrivate = "PRIVATE KEY"
)

var (
	ErrNoActiveKey  = errors.New("no_active_signing_key")
	ErrKIDNotFound  = errors.New("kid_not_found")
	ErrNotEd25519   = errors.New("key is not ed25519")
	ErrMalformedPEM = errors.New("malformed pem")
)

// SigningKey es una clave Ed25519 con su kid (thumbprint RFC 7638).
type SigningKey struct {
	KID       string
	Private   ed25519.PrivateKey
	Public    ed25519.PublicKey
	NotBefore time.Time
}

// GenerateEd25519 genera un par nuevo y calcula el kid.
func GenerateEd25519() (*SigningKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519: %w", err)
	}
	return newSigningKey(priv, pub)
}

func newSigningKey(priv ed25519.PrivateKey, pub ed25519.PublicKey) (*SigningKey, error) {
	kid, err := Thumbprint(pub)
	if err != nil {
		return nil, err
	}
	return &SigningKey{
		KID:       kid,
		Private:   priv,
		Public:    pub,
		NotBefore: time.Now().UTC(),
	}, nil
}

// Thumbprint devuelve el thumbprint SHA-256 (base64url) de la pubkey.
func Thumbprint(pub ed25519.PublicKey) (string, error) {
	k, err := jwk.FromRaw(pub)
	if err != nil {
		return "", fmt.Errorf("jwk from raw: %w", err)
	}
	tp, err := k.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

// ParsePrivateKeyPEM lee una clave PKCS8 Ed25519.
func ParsePrivateKeyPEM(data []byte) (*SigningKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePrivate {
		return nil, ErrMalformedPEM
	}
	raw, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs8: %w", err)
	}
	priv, ok := raw.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return newSigningKey(priv, priv.Public().(ed25519.PublicKey))
}

// LoadPrivateKeyFile lee un PEM de disco.
func LoadPrivateKeyFile(path string) (*SigningKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	k, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", path, err)
	}
	return k, nil
}

// EncodePrivateKeyPEM serializa la privada como PKCS8.
func EncodePrivateKeyPEM(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal pkcs8: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: der}), nil
}

// WritePrivateKeyFile escribe el PEM con permisos 0600.
// Escritura atómica: tmp → fsync → rename.
func WritePrivateKeyFile(path string, priv ed25519.PrivateKey) error {
	data, err := EncodePrivateKeyPEM(priv)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".key-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// publicJWK arma el JWK público con kid/alg/use.
func publicJWK(k *SigningKey) (jwk.Key, error) {
	key, err := jwk.FromRaw(k.Public)
	if err != nil {
		return nil, fmt.Errorf("jwk from raw: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, k.KID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.EdDSA); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	return key, nil
}
