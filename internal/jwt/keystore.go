package jwt

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Keystore mantiene la clave activa y las de rollover.
// Las de rollover no firman pero se publican en el JWKS para validar
// tokens emitidos antes de una rotación.
type Keystore struct {
	mu       sync.RWMutex
	active   *SigningKey
	rollover []*SigningKey

	jwks []byte // cache, se invalida al rotar
}

// NewKeystore crea el keystore. active puede ser nil (no se podrá firmar).
func NewKeystore(active *SigningKey, rollover ...*SigningKey) *Keystore {
	return &Keystore{active: active, rollover: rollover}
}

// KeystoreFiles describe de dónde cargar las claves.
type KeystoreFiles struct {
	ActiveKeyFile    string
	RolloverKeyFiles []string
	// GenerateIfMissing genera una clave efímera si ActiveKeyFile está vacío (dev).
	GenerateIfMissing bool
}

// LoadKeystore arma el keystore desde PEMs en disco.
func LoadKeystore(files KeystoreFiles) (*Keystore, error) {
	var active *SigningKey
	var err error
	switch {
	case files.ActiveKeyFile != "":
		active, err = LoadPrivateKeyFile(files.ActiveKeyFile)
		if err != nil {
			return nil, err
		}
	case files.GenerateIfMissing:
		active, err = GenerateEd25519()
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoActiveKey
	}

	rollover := make([]*SigningKey, 0, len(files.RolloverKeyFiles))
	for _, p := range files.RolloverKeyFiles {
		k, err := LoadPrivateKeyFile(p)
		if err != nil {
			return nil, err
		}
		if k.KID == active.KID {
			continue
		}
		rollover = append(rollover, k)
	}
	return NewKeystore(active, rollover...), nil
}

// Active devuelve la clave de firma actual.
func (k *Keystore) Active() (*SigningKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.active == nil {
		return nil, ErrNoActiveKey
	}
	return k.active, nil
}

// PublicKeyByKID busca entre activa y rollover.
func (k *Keystore) PublicKeyByKID(kid string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.active != nil && k.active.KID == kid {
		return k.active.Public, nil
	}
	for _, r := range k.rollover {
		if r.KID == kid {
			return r.Public, nil
		}
	}
	return nil, ErrKIDNotFound
}

// Rotate promueve next a activa; la anterior pasa a rollover.
func (k *Keystore) Rotate(next *SigningKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active != nil {
		k.rollover = append([]*SigningKey{k.active}, k.rollover...)
	}
	k.active = next
	k.jwks = nil
}

// Retire saca una clave de rollover del JWKS.
func (k *Keystore) Retire(kid string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := k.rollover[:0]
	for _, r := range k.rollover {
		if r.KID != kid {
			out = append(out, r)
		}
	}
	k.rollover = out
	k.jwks = nil
}

// KIDs lista los kid publicados, activa primero.
func (k *Keystore) KIDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.rollover)+1)
	if k.active != nil {
		out = append(out, k.active.KID)
	}
	for _, r := range k.rollover {
		out = append(out, r.KID)
	}
	return out
}

// JWKS devuelve el documento JWKS (solo públicas) en JSON.
func (k *Keystore) JWKS() ([]byte, error) {
	k.mu.RLock()
	if k.jwks != nil {
		defer k.mu.RUnlock()
		return k.jwks, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.jwks != nil {
		return k.jwks, nil
	}

	set := jwk.NewSet()
	keys := make([]*SigningKey, 0, len(k.rollover)+1)
	if k.active != nil {
		keys = append(keys, k.active)
	}
	keys = append(keys, k.rollover...)
	for _, sk := range keys {
		pk, err := publicJWK(sk)
		if err != nil {
			return nil, err
		}
		if err := set.AddKey(pk); err != nil {
			return nil, fmt.Errorf("jwks add %s: %w", sk.KID, err)
		}
	}
	b, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("jwks marshal: %w", err)
	}
	k.jwks = b
	return b, nil
}
