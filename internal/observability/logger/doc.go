// Package logger provides the provider-wide Zap logger with context scoping.
//
// # Design Decisions
//
//   - Singleton: una instancia global inicializada con Init() desde el CLI.
//   - Context Scoping: el middleware HTTP inyecta un logger con request_id y path;
//     los servicios del motor OAuth lo recuperan con From(ctx).
//   - Campos de dominio: client_id, subject, grant_type, flow, etc. viven en
//     fields.go para que todos los logs usen las mismas claves.
//
// # Usage
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("token.refresh"))
//	log.Info("refresh token rotated", logger.ClientID(c.ClientID))
package logger
