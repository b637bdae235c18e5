package validation

import (
	"strings"
	"testing"
)

func TestValidScopeName_Valid(t *testing.T) {
	valids := []string{
		"a",
		"openid",
		"offline_access",
		"api:read",
		"orders.write",
		"a_b-c.d:scope2",
		"a" + strings.Repeat("a", 62) + "b",
	}
	for _, v := range valids {
		if !ValidScopeName(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
}

func TestValidScopeName_Invalid(t *testing.T) {
	invalids := []string{
		"",
		":lead",
		"trail:",
		"bad space",
		"UPPER",
		"semicolon;hack",
		strings.Repeat("a", 65),
	}
	for _, v := range invalids {
		if ValidScopeName(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func TestValidCodeVerifier(t *testing.T) {
	if !ValidCodeVerifier(strings.Repeat("a", 43)) {
		t.Fatal("43 chars must be valid")
	}
	if !ValidCodeVerifier("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk") {
		t.Fatal("rfc example must be valid")
	}
	if ValidCodeVerifier(strings.Repeat("a", 42)) {
		t.Fatal("42 chars must be invalid")
	}
	if ValidCodeVerifier(strings.Repeat("a", 129)) {
		t.Fatal("129 chars must be invalid")
	}
	if ValidCodeVerifier(strings.Repeat("a", 42) + "+") {
		t.Fatal("'+' is not unreserved")
	}
}

func TestValidRedirectURI(t *testing.T) {
	for _, v := range []string{"https://app.example.com/cb", "https://app.example.com/cb?x=1", "com.example.app:/oauth2redirect", "http://localhost:3000/callback"} {
		if !ValidRedirectURI(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
	for _, v := range []string{"", "/relative", "https://app.example.com/cb#frag", "not a uri"} {
		if ValidRedirectURI(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}
