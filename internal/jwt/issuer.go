package jwt

import (
	"context"
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Signer firma un set de claims con la clave activa.
type Signer interface {
	Sign(ctx context.Context, claims jwtv5.MapClaims) (string, error)
}

// Issuer firma y verifica JWT EdDSA contra un Keystore.
type Issuer struct {
	Iss  string
	Keys *Keystore
}

func NewIssuer(iss string, ks *Keystore) *Issuer {
	return &Issuer{Iss: iss, Keys: ks}
}

// Sign setea header kid/typ y firma con la clave activa.
func (i *Issuer) Sign(ctx context.Context, claims jwtv5.MapClaims) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := i.Keys.Active()
	if err != nil {
		return "", err
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = key.KID
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(key.Private)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return signed, nil
}

// Keyfunc elige la pubkey por 'kid' (activa o rollover).
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			key, err := i.Keys.Active()
			if err != nil {
				return nil, err
			}
			return key.Public, nil
		}
		return i.Keys.PublicKeyByKID(kid)
	}
}

// Parse verifica firma y exp/nbf, y chequea iss. La audiencia la valida el caller
// vía opts (jwtv5.WithAudience).
func (i *Issuer) Parse(token string, opts ...jwtv5.ParserOption) (jwtv5.MapClaims, error) {
	opts = append([]jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{AlgEdDSA}),
		jwtv5.WithIssuer(i.Iss),
	}, opts...)
	claims := jwtv5.MapClaims{}
	tok, err := jwtv5.ParseWithClaims(token, claims, i.Keyfunc(), opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, jwtv5.ErrTokenSignatureInvalid
	}
	return claims, nil
}
