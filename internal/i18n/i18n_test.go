package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatch(t *testing.T) {
	assert.Equal(t, language.Spanish, Match("es-AR,es;q=0.9,en;q=0.5"))
	assert.Equal(t, language.English, Match("en-US"))
	assert.Equal(t, language.English, Match("ja"))
	assert.Equal(t, language.English, Match(""))
	assert.Equal(t, language.English, Match(";;;garbage"))
}

func TestT(t *testing.T) {
	assert.Equal(t, "Usuario o contraseña inválidos.", T("es", MsgInvalidCredentials))
	assert.Equal(t, "Invalid username or password.", T("fr", MsgInvalidCredentials))
	assert.Equal(t, "Elegí al menos un permiso para continuar.", T("es-MX", "consent.no_scopes_selected"))
	assert.Equal(t, "Billing quiere acceder a tu cuenta", T("es", MsgConsentTitle, "Billing"))
	assert.Equal(t, "unknown.key", T("es", "unknown.key"))
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	for k := range messages[language.English] {
		_, ok := messages[language.Spanish][k]
		assert.True(t, ok, k)
	}
	assert.Len(t, messages[language.Spanish], len(messages[language.English]))
}
