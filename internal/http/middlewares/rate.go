package middlewares

import (
	"net/http"
	"strconv"
	"time"

	httperrors "github.com/dropDatabas3/hellojohn-oidc/internal/http/errors"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/rate"
)

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPPathRateKey: IP + path, sin leer el body.
func IPPathRateKey(r *http.Request) string {
	return ClientIP(r) + "|" + r.URL.Path
}

// RateLimitConfig configura un límite para un grupo de rutas.
type RateLimitConfig struct {
	Limiter rate.MultiLimiter
	Rule    rate.Rule
	KeyFunc RateKeyFunc
	// OnLimited escribe la respuesta 429; por defecto AppError JSON.
	OnLimited func(w http.ResponseWriter, r *http.Request)
}

// WithRateLimit aplica un fixed window. Si el limiter falla se deja pasar.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil || !cfg.Rule.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPPathRateKey
	}
	if cfg.OnLimited == nil {
		cfg.OnLimited = func(w http.ResponseWriter, r *http.Request) {
			httperrors.WriteError(w, httperrors.ErrRateLimitExceeded)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := cfg.Limiter.AllowWithLimits(r.Context(), cfg.KeyFunc(r), cfg.Rule.Limit, cfg.Rule.Window)
			if err != nil {
				logger.From(r.Context()).Warn("rate limit error", logger.Component("rate"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			if res.WindowTTL > 0 {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.WindowTTL).Unix(), 10))
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				logger.From(r.Context()).Info("rate limited", logger.Component("rate"), logger.Path(r.URL.Path))
				cfg.OnLimited(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
