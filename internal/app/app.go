// Package app arma el proveedor: config → stores → motor OAuth → HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/config"
	healthctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/health"
	oauthctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/oauth"
	oidcctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/oidc"
	sessionctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/session"
	"github.com/dropDatabas3/hellojohn-oidc/internal/http/router"
	"github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authorize"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/consent"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/interaction"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/introspection"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/revocation"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/scopes"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/token"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/rate"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secretbox"
	"github.com/dropDatabas3/hellojohn-oidc/internal/session"
)

// Options permite a tests y a la CLI extender el armado.
type Options struct {
	// CustomGrants se registran en el token endpoint.
	CustomGrants []token.CustomGrantValidator
	// Audit reemplaza el sink por defecto (log + AMQP si está configurado).
	Audit audit.Sink
	// Registry para métricas; nil usa el registry global de prometheus.
	Registry *prometheus.Registry
}

// App es el proveedor armado.
type App struct {
	Config  *config.Config
	Handler http.Handler
	Keys    *jwt.Keystore
	// Hooks de respuesta del token endpoint (se pueden agregar antes de Run).
	Hooks *token.Hooks

	stores     *stores
	closeAudit func() error
	closeOnce  sync.Once
}

// New abre los stores y arma el handler. El llamador debe Close.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	log := logger.From(ctx).With(logger.Component("app"), logger.Op("New"))

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}

	keys, err := jwt.LoadKeystore(jwt.KeystoreFiles{
		ActiveKeyFile:     cfg.Keys.ActiveKeyFile,
		RolloverKeyFiles:  cfg.Keys.RolloverKeyFiles,
		GenerateIfMissing: cfg.Keys.GenerateIfMissing,
	})
	if err != nil {
		return nil, fmt.Errorf("app: keystore: %w", err)
	}
	if cfg.Keys.ActiveKeyFile == "" {
		log.Warn("using an ephemeral signing key; tokens will not survive a restart")
	}

	box, err := resumeBox(cfg)
	if err != nil {
		return nil, err
	}

	sink, closeAudit, err := buildAudit(cfg, opts.Audit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = closeAudit()
		}
	}()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	issuer := jwt.NewIssuer(cfg.Issuer, keys)

	// motor
	validator := tokens.NewValidator(cfg.Issuer, issuer, st.handles, st.clients, st.users)
	tokenSvc := tokens.NewService(cfg.Issuer, issuer, st.handles, st.users)
	refreshSvc := tokens.NewRefreshService(st.refresh, sink)
	consents := consent.NewService(st.consents)
	registry := token.NewRegistry(opts.CustomGrants...)
	hooks := token.NewHooks()
	clientAuth := clientauth.New(st.clients, st.scopes, sink)
	resume := authorize.NewResumeCodec(box, cfg.Resume.TTL)
	sessions := session.NewManager(st.sessions, cfg.Session.TTL, session.CookieOptions{
		Name:     cfg.Session.CookieName,
		Domain:   cfg.Session.Domain,
		SameSite: cfg.Session.SameSite,
		Secure:   cfg.Session.Secure,
	})
	sessions.IdleTimeout = cfg.Session.IdleTimeout

	oauthControllers := oauthctrl.NewControllers(oauthctrl.Deps{
		AuthorizeValidator: authorize.NewRequestValidator(st.clients, scopes.NewValidator(st.scopes), validator),
		Interaction:        interaction.NewGenerator(consents, st.users, sink, cfg.Server.EnableLocalLogin),
		AuthorizeResponses: authorize.NewResponseGenerator(st.codes, tokenSvc),
		Resume:             resume,
		Sessions:           sessions,
		ClientAuth:         clientAuth,
		TokenValidator:     token.NewRequestValidator(st.codes, st.refresh, st.scopes, st.users, registry, sink),
		TokenResponses:     token.NewResponseGenerator(tokenSvc, refreshSvc, hooks, sink),
		Revocation:         revocation.NewProcessor(st.handles, st.refresh, sink),
		Introspection:      introspection.NewProcessor(validator, sink),
	})

	deps := router.Deps{
		OAuth:     oauthControllers,
		Discovery: oidcctrl.NewDiscoveryController(cfg.Issuer, st.scopes, registry, cfg.Server.EnableLocalLogin),
		JWKS:      oidcctrl.NewJWKSController(keys),
		UserInfo:  oidcctrl.NewUserInfoController(validator, st.scopes, st.users),
		Logout:    sessionctrl.NewLogoutController(sessions, st.clients),
		Health:    healthctrl.NewHealthController(keys, st.checks...),
		Gatherer:  gatherer,
	}
	if cfg.Server.EnableLocalLogin {
		deps.Login = sessionctrl.NewLoginController(st.users, sessions, resume, sink)
	}
	if st.limiter != nil {
		deps.RateLimiter = st.limiter
		deps.TokenRule = rate.Rule{Limit: cfg.Rate.Token.Limit, Window: cfg.Rate.Token.Window}
		deps.LoginRule = rate.Rule{Limit: cfg.Rate.Login.Limit, Window: cfg.Rate.Login.Window}
	}

	log.Info("app wired",
		logger.String("issuer", cfg.Issuer),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("cache", cfg.Cache.Driver),
		logger.Bool("local_login", cfg.Server.EnableLocalLogin),
		logger.Bool("rate_limit", st.limiter != nil))

	return &App{
		Config:     cfg,
		Handler:    router.New(deps),
		Keys:       keys,
		Hooks:      hooks,
		stores:     st,
		closeAudit: closeAudit,
	}, nil
}

// resumeBox arma el secretbox de los resume tokens. Sin clave (solo dev) se
// genera una efímera.
func resumeBox(cfg *config.Config) (*secretbox.Box, error) {
	raw := cfg.Resume.Key
	if raw == "" {
		k, err := secretbox.GenerateKey()
		if err != nil {
			return nil, err
		}
		logger.L().Warn("resume.key not set; using an ephemeral key")
		raw = k
	}
	key, err := secretbox.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("app: resume.key: %w", err)
	}
	return secretbox.New(key)
}

func buildAudit(cfg *config.Config, override audit.Sink) (audit.Sink, func() error, error) {
	noop := func() error { return nil }
	if override != nil {
		return override, noop, nil
	}
	if !cfg.Audit.AMQP.Enabled {
		return audit.LogSink{}, noop, nil
	}
	amqpSink, err := audit.DialAMQP(audit.AMQPConfig{
		URL:      cfg.Audit.AMQP.URL,
		Exchange: cfg.Audit.AMQP.Exchange,
		Timeout:  cfg.Audit.AMQP.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("app: audit amqp: %w", err)
	}
	return audit.Multi{audit.LogSink{}, amqpSink}, amqpSink.Close, nil
}

// Run sirve HTTP hasta que ctx se cancele y después hace shutdown ordenado.
func (a *App) Run(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("app"), logger.Op("Run"))

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	for _, fn := range a.stores.background {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(bgCtx)
		}()
	}

	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case <-ctx.Done():
		log.Info("shutting down", logger.String("timeout", a.Config.Server.ShutdownTimeout.String()))
		sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			runErr = fmt.Errorf("app: shutdown: %w", err)
		}
	}

	cancel()
	wg.Wait()
	return runErr
}

// Close libera stores y el sink de auditoría (idempotente).
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = errors.Join(a.stores.close(), a.closeAudit())
	})
	return err
}
