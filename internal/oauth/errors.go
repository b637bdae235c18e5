package oauth

import (
	"errors"
	"fmt"
)

// Códigos de error RFC 6749 / OIDC Core / RFC 7009 / RFC 6750.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeInvalidScope            = "invalid_scope"
	CodeAccessDenied            = "access_denied"
	CodeServerError             = "server_error"
	CodeInteractionRequired     = "interaction_required"
	CodeLoginRequired           = "login_required"
	CodeConsentRequired         = "consent_required"
	CodeUnsupportedTokenType    = "unsupported_token_type"
	CodeInvalidToken            = "invalid_token"
	CodeExpiredToken            = "expired_token"
	CodeInsufficientScope       = "insufficient_scope"
)

// ErrorKind clasifica un error según quién tiene la culpa y cómo se expone.
type ErrorKind int

const (
	// KindClient: request malformado o no autorizado. Se devuelve al cliente
	// como cuerpo RFC o como redirect con ?error=.
	KindClient ErrorKind = iota + 1
	// KindUser: se muestra en una página de error (localizada). Solo ocurre en
	// authorize cuando no se puede confiar en el redirect_uri.
	KindUser
	// KindValidation: mismatch de scope, redirect_uri o PKCE.
	KindValidation
	// KindLifecycle: token vencido, consumido, revocado o rotado.
	KindLifecycle
	// KindConfiguration: flujo no soportado, falta credencial de firma. Fatal.
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindClient:
		return "client_error"
	case KindUser:
		return "user_error"
	case KindValidation:
		return "validation_failure"
	case KindLifecycle:
		return "token_lifecycle_failure"
	case KindConfiguration:
		return "configuration_failure"
	}
	return "unknown"
}

// Error es el error del motor de protocolo.
type Error struct {
	Kind        ErrorKind
	Code        string // código RFC expuesto en "error"
	Description string // "error_description"; nunca incluye datos sensibles
	MessageKey  string // clave de localización para errores de usuario
	Err         error  // causa interna, no se expone
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is permite errors.Is(err, &Error{Code: CodeInvalidGrant}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Kind == 0 || t.Kind == e.Kind)
}

// WithCause retorna una copia con la causa interna.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessageKey retorna una copia con la clave de localización.
func (e *Error) WithMessageKey(key string) *Error {
	cp := *e
	cp.MessageKey = key
	return &cp
}

func newError(kind ErrorKind, code, format string, args ...any) *Error {
	desc := format
	if len(args) > 0 {
		desc = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Code: code, Description: desc}
}

// ClientError crea un error de request del cliente.
func ClientError(code, format string, args ...any) *Error {
	return newError(KindClient, code, format, args...)
}

// UserError crea un error para mostrar al usuario; messageKey se traduce con i18n.
func UserError(code, messageKey string) *Error {
	return &Error{Kind: KindUser, Code: code, MessageKey: messageKey}
}

// ValidationFailure crea un error de validación (scope/redirect/PKCE).
func ValidationFailure(code, format string, args ...any) *Error {
	return newError(KindValidation, code, format, args...)
}

// LifecycleFailure crea un error de ciclo de vida de token.
func LifecycleFailure(code, format string, args ...any) *Error {
	return newError(KindLifecycle, code, format, args...)
}

// ConfigurationFailure crea un error fatal de configuración (se expone como server_error).
func ConfigurationFailure(err error, format string, args ...any) *Error {
	e := newError(KindConfiguration, CodeServerError, format, args...)
	e.Err = err
	return e
}

// AsError extrae un *Error de la cadena.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf retorna el kind del error o 0 si no es un *Error.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return 0
}

// CodeOf retorna el código RFC; errores desconocidos son server_error.
func CodeOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return CodeServerError
}
