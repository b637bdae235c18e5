package session

import (
	"net/http"
	"strings"
	"time"
)

// ParseSameSite acepta lax|strict|none; cualquier otro valor es Lax.
func ParseSameSite(s string) http.SameSite {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func buildCookie(o CookieOptions, value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: ParseSameSite(o.SameSite),
	}
	if strings.TrimSpace(o.Domain) != "" {
		ck.Domain = o.Domain
	}
	if ttl > 0 {
		ck.Expires = time.Now().Add(ttl).UTC()
		ck.MaxAge = int(ttl.Seconds())
	}
	return ck
}

func buildDeletionCookie(o CookieOptions) *http.Cookie {
	ck := buildCookie(o, "", 0)
	ck.Expires = time.Unix(0, 0).UTC()
	ck.MaxAge = -1
	return ck
}
