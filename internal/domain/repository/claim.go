package repository

// Claim es un par tipo/valor. Un mismo tipo puede repetirse (ej: "scope", "amr").
type Claim struct {
	Type  string `yaml:"type" json:"type"`
	Value string `yaml:"value" json:"value"`
}

// Nombres de claims de protocolo.
const (
	ClaimSubject          = "sub"
	ClaimClientID         = "client_id"
	ClaimScope            = "scope"
	ClaimAuthTime         = "auth_time"
	ClaimIdentityProvider = "idp"
	ClaimAuthMethod       = "amr"
	ClaimSessionID        = "sid"
	ClaimNonce            = "nonce"
	ClaimAccessTokenHash  = "at_hash"
	ClaimCodeHash         = "c_hash"
	ClaimJwtID            = "jti"
	ClaimConfirmation     = "cnf"
	ClaimName             = "name"
)

// FirstClaim retorna el primer valor del tipo dado o "".
func FirstClaim(claims []Claim, typ string) string {
	for _, c := range claims {
		if c.Type == typ {
			return c.Value
		}
	}
	return ""
}

// ClaimValues retorna todos los valores del tipo dado.
func ClaimValues(claims []Claim, typ string) []string {
	var out []string
	for _, c := range claims {
		if c.Type == typ {
			out = append(out, c.Value)
		}
	}
	return out
}

// FilterClaims retorna las claims cuyo tipo está en types.
func FilterClaims(claims []Claim, types []string) []Claim {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	var out []Claim
	for _, c := range claims {
		if _, ok := set[c.Type]; ok {
			out = append(out, c)
		}
	}
	return out
}
