// Package metrics define las métricas Prometheus del proveedor. Viven en un
// paquete propio para que el motor OAuth y la capa HTTP las compartan sin ciclos.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_tokens_issued_total",
		Help: "Tokens emitidos por grant y tipo (access_token, id_token, refresh_token)",
	}, []string{"grant_type", "token_type"})

	TokenRequestFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_token_request_failures_total",
		Help: "Requests al token endpoint rechazadas por código de error",
	}, []string{"grant_type", "error"})

	AuthorizeInteractions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_authorize_interactions_total",
		Help: "Resultado de la máquina de interacción de /authorize",
	}, []string{"result"}) // none|login|consent|error

	RefreshRotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_refresh_rotations_total",
		Help: "Usos de refresh tokens por resultado",
	}, []string{"result"}) // rotated|reused|conflict

	Revocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_revocations_total",
		Help: "Revocaciones por tipo de token y resultado",
	}, []string{"token_type", "result"}) // revoked|not_found|client_mismatch

	Introspections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_introspections_total",
		Help: "Introspecciones por resultado",
	}, []string{"active"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	HTTPInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Requests en vuelo",
	})
)

// Register registra todas las métricas en reg (o el default si es nil).
// Registrar dos veces no es error.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		TokensIssued, TokenRequestFailures, AuthorizeInteractions, RefreshRotations,
		Revocations, Introspections, HTTPRequestsTotal, HTTPRequestDuration, HTTPInflight,
	} {
		if err := RegisterCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterCollector registra el collector ignorando duplicados.
func RegisterCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}
