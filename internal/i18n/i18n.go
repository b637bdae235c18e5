// Package i18n traduce los mensajes que ve el usuario final (pantallas de
// error, login y consent). Los errores para clientes OAuth no pasan por acá.
package i18n

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Claves fuera del motor de protocolo.
const (
	MsgGeneric            = "error.generic"
	MsgInvalidCredentials = "login.invalid_credentials"
	MsgRateLimited        = "login.rate_limited"
	MsgConsentDenied      = "consent.denied"
	MsgLoginTitle         = "login.title"
	MsgConsentTitle       = "consent.title"
	MsgUsername           = "login.username"
	MsgPassword           = "login.password"
	MsgSubmit             = "login.submit"
	MsgRemember           = "consent.remember"
	MsgAllow              = "consent.allow"
	MsgDeny               = "consent.deny"
	MsgErrorTitle         = "error.title"
)

var messages = map[language.Tag]map[string]string{
	language.English: {
		MsgGeneric:                       "Something went wrong. Please try again.",
		MsgInvalidCredentials:            "Invalid username or password.",
		MsgRateLimited:                   "Too many attempts. Try again in a few minutes.",
		MsgConsentDenied:                 "You denied access to the application.",
		MsgLoginTitle:                    "Sign in",
		MsgConsentTitle:                  "%s wants to access your account",
		MsgUsername:                      "Username",
		MsgPassword:                      "Password",
		MsgSubmit:                        "Sign in",
		MsgRemember:                      "Remember my decision",
		MsgAllow:                         "Allow",
		MsgDeny:                          "Deny",
		MsgErrorTitle:                    "Error",
		"authorize.invalid_request":      "The sign-in request is invalid.",
		"authorize.unknown_client":       "The application is unknown or disabled.",
		"authorize.invalid_redirect_uri": "The application sent an invalid return address.",
		"authorize.invalid_resume_token": "Your sign-in took too long. Please start again.",
		"authorize.configuration_failed": "The identity provider is misconfigured.",
		"consent.no_scopes_selected":     "Select at least one permission to continue.",
	},
	language.Spanish: {
		MsgGeneric:                       "Algo salió mal. Intentá de nuevo.",
		MsgInvalidCredentials:            "Usuario o contraseña inválidos.",
		MsgRateLimited:                   "Demasiados intentos. Probá de nuevo en unos minutos.",
		MsgConsentDenied:                 "Rechazaste el acceso a la aplicación.",
		MsgLoginTitle:                    "Iniciar sesión",
		MsgConsentTitle:                  "%s quiere acceder a tu cuenta",
		MsgUsername:                      "Usuario",
		MsgPassword:                      "Contraseña",
		MsgSubmit:                        "Ingresar",
		MsgRemember:                      "Recordar mi decisión",
		MsgAllow:                         "Permitir",
		MsgDeny:                          "Rechazar",
		MsgErrorTitle:                    "Error",
		"authorize.invalid_request":      "La solicitud de inicio de sesión es inválida.",
		"authorize.unknown_client":       "La aplicación no existe o está deshabilitada.",
		"authorize.invalid_redirect_uri": "La aplicación envió una dirección de retorno inválida.",
		"authorize.invalid_resume_token": "El inicio de sesión tardó demasiado. Empezá de nuevo.",
		"authorize.configuration_failed": "El proveedor de identidad está mal configurado.",
		"consent.no_scopes_selected":     "Elegí al menos un permiso para continuar.",
	},
}

// Default es el idioma cuando Accept-Language no matchea.
var Default = language.English

var (
	once      sync.Once
	builder   *catalog.Builder
	matcher   language.Matcher
	supported []language.Tag
)

func load() {
	builder = catalog.NewBuilder(catalog.Fallback(Default))
	supported = []language.Tag{Default}
	for tag, msgs := range messages {
		if tag != Default {
			supported = append(supported, tag)
		}
		for k, v := range msgs {
			_ = builder.SetString(tag, k, v)
		}
	}
	matcher = language.NewMatcher(supported)
}

// Match resuelve el mejor idioma soportado para un header Accept-Language.
func Match(acceptLanguage string) language.Tag {
	once.Do(load)
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return Default
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return Default
	}
	return supported[idx]
}

// T traduce key al idioma de acceptLanguage. Una clave desconocida se
// devuelve tal cual para que se note en pantalla.
func T(acceptLanguage, key string, args ...any) string {
	once.Do(load)
	tag := Match(acceptLanguage)
	if _, ok := messages[Default][key]; !ok {
		if _, ok := messages[tag][key]; !ok {
			return key
		}
	}
	p := message.NewPrinter(tag, message.Catalog(builder))
	return p.Sprintf(key, args...)
}

// WithUILocales antepone ui_locales (OIDC, separado por espacios) a un
// header Accept-Language.
func WithUILocales(acceptLanguage, uiLocales string) string {
	locales := strings.Join(strings.Fields(uiLocales), ",")
	switch {
	case locales == "":
		return acceptLanguage
	case acceptLanguage == "":
		return locales
	}
	return locales + "," + acceptLanguage
}

// Lang es el código base ("en", "es") para el atributo lang del HTML.
func Lang(acceptLanguage string) string {
	base, _ := Match(acceptLanguage).Base()
	return base.String()
}
