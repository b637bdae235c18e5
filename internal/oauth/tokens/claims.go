package tokens

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// Claims de protocolo que no se copian desde el perfil del usuario.
var protocolClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {},
	repository.ClaimSubject: {}, repository.ClaimClientID: {}, repository.ClaimScope: {},
	repository.ClaimAuthTime: {}, repository.ClaimIdentityProvider: {}, repository.ClaimAuthMethod: {},
	repository.ClaimSessionID: {}, repository.ClaimNonce: {}, repository.ClaimAccessTokenHash: {},
	repository.ClaimCodeHash: {}, repository.ClaimJwtID: {}, repository.ClaimConfirmation: {},
}

// Claims que siempre se serializan como array.
var arrayClaims = map[string]struct{}{
	repository.ClaimScope:      {},
	repository.ClaimAuthMethod: {},
}

// Claims numéricas (epoch seconds).
var numericClaims = map[string]struct{}{
	repository.ClaimAuthTime: {},
}

// Claims JSON (objeto).
var jsonClaims = map[string]struct{}{
	repository.ClaimConfirmation: {},
}

// ToJWTClaims proyecta el token al payload JWT.
func ToJWTClaims(t *repository.Token) jwtv5.MapClaims {
	m := jwtv5.MapClaims{
		"iss": t.Issuer,
		"aud": t.Audience,
		"nbf": t.CreationTime.Unix(),
		"exp": t.ExpiresAt().Unix(),
	}
	if t.Type == repository.TokenTypeIdentity {
		m["iat"] = t.CreationTime.Unix()
	}

	grouped := map[string][]string{}
	order := []string{}
	for _, c := range t.Claims {
		if _, seen := grouped[c.Type]; !seen {
			order = append(order, c.Type)
		}
		grouped[c.Type] = append(grouped[c.Type], c.Value)
	}
	for _, typ := range order {
		vals := grouped[typ]
		switch {
		case isIn(numericClaims, typ):
			if n, err := strconv.ParseInt(vals[0], 10, 64); err == nil {
				m[typ] = n
				continue
			}
			m[typ] = vals[0]
		case isIn(jsonClaims, typ):
			m[typ] = json.RawMessage(vals[0])
		case isIn(arrayClaims, typ) || len(vals) > 1:
			m[typ] = vals
		default:
			m[typ] = vals[0]
		}
	}
	return m
}

// FromJWTClaims reconstruye el token desde un payload JWT verificado.
func FromJWTClaims(m jwtv5.MapClaims, tokenType string) *repository.Token {
	t := &repository.Token{Type: tokenType, Version: 1}
	t.Issuer, _ = m["iss"].(string)
	switch aud := m["aud"].(type) {
	case string:
		t.Audience = aud
	case []any:
		if len(aud) > 0 {
			t.Audience, _ = aud[0].(string)
		}
	}
	nbf := epoch(m["nbf"])
	if nbf.IsZero() {
		nbf = epoch(m["iat"])
	}
	t.CreationTime = nbf
	if exp := epoch(m["exp"]); !exp.IsZero() && !nbf.IsZero() {
		t.Lifetime = exp.Sub(nbf)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "iss", "aud", "exp", "nbf", "iat":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			t.Claims = append(t.Claims, repository.Claim{Type: k, Value: v})
		case float64:
			t.Claims = append(t.Claims, repository.Claim{Type: k, Value: strconv.FormatInt(int64(v), 10)})
		case json.Number:
			t.Claims = append(t.Claims, repository.Claim{Type: k, Value: v.String()})
		case bool:
			t.Claims = append(t.Claims, repository.Claim{Type: k, Value: strconv.FormatBool(v)})
		case []any:
			for _, e := range v {
				t.Claims = append(t.Claims, repository.Claim{Type: k, Value: fmt.Sprint(e)})
			}
		default:
			if b, err := json.Marshal(v); err == nil {
				t.Claims = append(t.Claims, repository.Claim{Type: k, Value: string(b)})
			}
		}
	}
	t.ClientID = repository.FirstClaim(t.Claims, repository.ClaimClientID)
	if t.Type == repository.TokenTypeIdentity && t.ClientID == "" {
		t.ClientID = t.Audience
	}
	return t
}

// ClaimsMap es la vista JSON de las claims (introspección, userinfo).
func ClaimsMap(t *repository.Token) map[string]any {
	m := map[string]any(ToJWTClaims(t))
	if raw, ok := m[repository.ClaimConfirmation].(json.RawMessage); ok {
		var v any
		if json.Unmarshal(raw, &v) == nil {
			m[repository.ClaimConfirmation] = v
		}
	}
	return m
}

func epoch(v any) time.Time {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0).UTC()
	case int64:
		return time.Unix(n, 0).UTC()
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return time.Unix(i, 0).UTC()
		}
	}
	return time.Time{}
}

func isIn(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}
