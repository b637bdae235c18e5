package logger

import (
	"go.uber.org/zap"
)

// =================================================================================
// HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// =================================================================================
// PROTOCOLO OAUTH2 / OIDC
// =================================================================================

// ClientID identifica al cliente OAuth (relying party).
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// Subject es el "sub" del usuario autenticado. Nunca loguear claims completas.
func Subject(v string) zap.Field { return zap.String("subject", v) }

func GrantType(v string) zap.Field { return zap.String("grant_type", v) }
func ResponseType(v string) zap.Field { return zap.String("response_type", v) }
func ResponseMode(v string) zap.Field { return zap.String("response_mode", v) }
func Flow(v string) zap.Field { return zap.String("flow", v) }
func TokenType(v string) zap.Field { return zap.String("token_type", v) }
func Scopes(v []string) zap.Field { return zap.Strings("scopes", v) }
func Interaction(v string) zap.Field { return zap.String("interaction", v) }
func ErrorCode(v string) zap.Field { return zap.String("error_code", v) }

// =================================================================================
// SISTEMA
// =================================================================================

// Component identifica el módulo (store, keystore, audit...).
func Component(v string) zap.Field { return zap.String("component", v) }

// Op es la operación en curso, ej "authorize.validate".
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer es la capa: handler, service, store.
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }
func Count(v int) zap.Field { return zap.Int("count", v) }
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
