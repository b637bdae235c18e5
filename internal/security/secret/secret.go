// Package secret hashea y verifica secrets de clientes/scopes y passwords de usuarios.
//
// Formatos aceptados en Verify:
//   - $argon2id$v=19$m=...,t=...,p=...$salt$dk (PHC, el formato que genera Hash)
//   - $2a$ / $2b$ / $2y$ (bcrypt)
//   - sha256 o sha512 del secret en base64 estándar
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Params de argon2id.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

// ErrEmpty se retorna al hashear un valor vacío.
var ErrEmpty = errors.New("secret: empty value")

// Hash devuelve un PHC string argon2id.
func Hash(p Params, plain string) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// HashBcrypt devuelve un hash bcrypt (para catálogos que ya usan ese formato).
func HashBcrypt(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Sha256 devuelve base64(sha256(plain)).
func Sha256(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Verify compara plain contra un hash almacenado en cualquiera de los formatos soportados.
func Verify(plain, stored string) bool {
	if plain == "" || stored == "" {
		return false
	}
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return verifyArgon2id(plain, stored)
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
	}

	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return false
	}
	switch len(raw) {
	case sha256.Size:
		sum := sha256.Sum256([]byte(plain))
		return subtle.ConstantTimeCompare(sum[:], raw) == 1
	case sha512.Size:
		sum := sha512.Sum512([]byte(plain))
		return subtle.ConstantTimeCompare(sum[:], raw) == 1
	}
	return false
}

func verifyArgon2id(plain, phc string) bool {
	// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<dk>
	parts := strings.Split(phc, "$")
	if len(parts) != 6 {
		return false
	}
	var v int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &v); err != nil || v != 19 {
		return false
	}
	var m, t, p int
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	dkStored, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(dkStored) == 0 {
		return false
	}
	key := argon2.IDKey([]byte(plain), salt, uint32(t), uint32(m), uint8(p), uint32(len(dkStored)))
	return subtle.ConstantTimeCompare(key, dkStored) == 1
}
