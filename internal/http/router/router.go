// Package router arma el http.Handler del proveedor.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	healthctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/health"
	oauthctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/oauth"
	oidcctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/oidc"
	sessionctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/session"
	httperrors "github.com/dropDatabas3/hellojohn-oidc/internal/http/errors"
	mw "github.com/dropDatabas3/hellojohn-oidc/internal/http/middlewares"
	"github.com/dropDatabas3/hellojohn-oidc/internal/rate"
)

// Deps contiene todo lo que necesita el router.
type Deps struct {
	OAuth *oauthctrl.Controllers

	Discovery *oidcctrl.DiscoveryController
	JWKS      *oidcctrl.JWKSController
	UserInfo  *oidcctrl.UserInfoController

	// Login y Logout son nil si el login local está deshabilitado.
	Login  *sessionctrl.LoginController
	Logout *sessionctrl.LogoutController

	Health *healthctrl.HealthController

	// Rate limiting opcional (nil = deshabilitado).
	RateLimiter rate.MultiLimiter
	TokenRule   rate.Rule
	LoginRule   rate.Rule

	// Gatherer para /metrics; nil usa el registry global.
	Gatherer prometheus.Gatherer
}

// New registra todas las rutas.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithRequestID(), mw.WithMetrics(), mw.WithLogging(),
		mw.WithSecurityHeaders())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	registerOIDCRoutes(r, deps)
	registerOAuthRoutes(r, deps)
	registerSessionRoutes(r, deps)

	if deps.Health != nil {
		r.Get("/readyz", deps.Health.Readyz)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

func registerOIDCRoutes(r chi.Router, deps Deps) {
	r.With(mw.WithCacheControl("public, max-age=300")).Get(oauthctrl.DiscoveryPath, deps.Discovery.Discovery)
	// los verificadores cachean; una rotación tarda a lo sumo esto en verse
	r.With(mw.WithCacheControl("public, max-age=600, must-revalidate")).Get(oauthctrl.JWKSPath, deps.JWKS.JWKS)
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Get(oauthctrl.UserInfoPath, deps.UserInfo.UserInfo)
		r.Post(oauthctrl.UserInfoPath, deps.UserInfo.UserInfo)
	})
}

func registerOAuthRoutes(r chi.Router, deps Deps) {
	c := deps.OAuth
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())

		r.Get(oauthctrl.AuthorizePath, c.Authorize.Authorize)
		r.Post(oauthctrl.AuthorizePath, c.Authorize.Authorize)
		r.Get(oauthctrl.ConsentPath, c.Consent.Consent)
		r.Post(oauthctrl.ConsentPath, c.Consent.Consent)

		r.With(mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: deps.RateLimiter,
			Rule:    deps.TokenRule,
			OnLimited: func(w http.ResponseWriter, _ *http.Request) {
				httperrors.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "slow_down",
					"error_description": "too many requests",
				})
			},
		})).Post(oauthctrl.TokenPath, c.Token.Token)

		r.Post(oauthctrl.RevocationPath, c.Revoke.Revoke)
		r.Post(oauthctrl.IntrospectPath, c.Introspect.Introspect)
	})
}

func registerSessionRoutes(r chi.Router, deps Deps) {
	if deps.Logout != nil {
		r.With(mw.WithNoStore()).HandleFunc(oauthctrl.LogoutPath, deps.Logout.Logout)
	}
	if deps.Login == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Get(oauthctrl.LoginPath, deps.Login.Login)
		r.With(mw.WithRateLimit(mw.RateLimitConfig{
			Limiter:   deps.RateLimiter,
			Rule:      deps.LoginRule,
			KeyFunc:   mw.IPPathRateKey,
			OnLimited: sessionctrl.RateLimited,
		})).Post(oauthctrl.LoginPath, deps.Login.Login)
	})
}
