// Package audit emite eventos de seguridad del proveedor (fallos de
// autenticación de clientes, PKCE inválido, revocaciones ajenas, carreras de
// rotación) hacia uno o más sinks.
package audit

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// Nombres de eventos.
const (
	EventClientAuthFailed          = "client_authentication_failed"
	EventScopeAuthFailed           = "scope_authentication_failed"
	EventCodeClientMismatch        = "authorization_code_client_mismatch"
	EventCodeRedirectMismatch      = "authorization_code_redirect_mismatch"
	EventPKCEFailed                = "pkce_verification_failed"
	EventRefreshClientMismatch     = "refresh_token_client_mismatch"
	EventRefreshRotationConflict   = "refresh_token_rotation_conflict"
	EventRevocationClientMismatch  = "revocation_client_mismatch"
	EventTokenRevoked              = "token_revoked"
	EventTokenIssued               = "token_issued"
	EventConsentGranted            = "consent_granted"
	EventConsentDenied             = "consent_denied"
	EventLocalLoginSucceeded       = "local_login_succeeded"
	EventLocalLoginFailed          = "local_login_failed"
	EventIntrospectionScopeMissing = "introspection_scope_missing"
)

// Event es un evento de auditoría.
type Event struct {
	Name     string         `json:"event"`
	Time     time.Time      `json:"ts"`
	ClientID string         `json:"client_id,omitempty"`
	Subject  string         `json:"subject,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Sink recibe eventos. Emit nunca falla hacia el llamador: un sink que no
// puede entregar loguea y sigue.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// New arma un Event con timestamp UTC.
func New(name, clientID, subject string, fields map[string]any) Event {
	return Event{Name: name, Time: time.Now().UTC(), ClientID: clientID, Subject: subject, Fields: fields}
}

// LogSink escribe los eventos con el logger del contexto.
type LogSink struct{}

func (LogSink) Emit(ctx context.Context, e Event) {
	logger.From(ctx).Info("audit",
		logger.Component("audit"),
		logger.String("event", e.Name),
		logger.ClientID(e.ClientID),
		logger.Subject(e.Subject),
		logger.Any("fields", e.Fields),
	)
}

// Multi reparte el evento a todos los sinks.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}

// OrDefault devuelve s o LogSink si s es nil.
func OrDefault(s Sink) Sink {
	if s == nil {
		return LogSink{}
	}
	return s
}

// Recorder acumula eventos en memoria (tests).
type Recorder struct {
	ch chan Event
}

// NewRecorder crea un Recorder con buffer.
func NewRecorder() *Recorder { return &Recorder{ch: make(chan Event, 128)} }

func (r *Recorder) Emit(_ context.Context, e Event) {
	select {
	case r.ch <- e:
	default:
	}
}

// Events drena los eventos recibidos hasta ahora.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Names retorna solo los nombres (drena).
func (r *Recorder) Names() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Name)
	}
	return out
}
