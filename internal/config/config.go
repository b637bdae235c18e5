package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RateRule es un límite fixed-window por endpoint.
type RateRule struct {
	Limit  int           `yaml:"limit" validate:"gte=0"`
	Window time.Duration `yaml:"window" validate:"gte=0"`
}

type Config struct {
	App struct {
		// dev | staging | prod
		Env         string `yaml:"env" validate:"omitempty,oneof=dev staging prod"`
		ServiceName string `yaml:"service_name"`
		LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr" validate:"required"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// EnableLocalLogin habilita /login y las pantallas de interacción.
		EnableLocalLogin bool `yaml:"enable_local_login"`
	} `yaml:"server"`

	// Issuer es la URL pública del proveedor (claim iss y base de discovery).
	Issuer string `yaml:"issuer" validate:"required,url"`

	Storage struct {
		// memory | redis | postgres: dónde viven códigos, refresh tokens,
		// handles de referencia y consentimientos.
		Driver string `yaml:"driver" validate:"oneof=memory redis postgres"`
	} `yaml:"storage"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxConns        int32         `yaml:"max_conns" validate:"gte=0"`
		MinConns        int32         `yaml:"min_conns" validate:"gte=0"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		AutoMigrate     bool          `yaml:"auto_migrate"`
		// CatalogFromDB lee clientes, scopes y usuarios de las tablas oidc_*
		// en vez del archivo de catálogo.
		CatalogFromDB bool `yaml:"catalog_from_db"`
	} `yaml:"postgres"`

	Cache struct {
		// memory | redis (sesiones de login)
		Driver string `yaml:"driver" validate:"oneof=memory redis"`
		Prefix string `yaml:"prefix"`
	} `yaml:"cache"`

	Keys struct {
		ActiveKeyFile     string   `yaml:"active_key_file"`
		RolloverKeyFiles  []string `yaml:"rollover_key_files"`
		GenerateIfMissing bool     `yaml:"generate_if_missing"`
	} `yaml:"keys"`

	Session struct {
		CookieName string        `yaml:"cookie_name"`
		Domain     string        `yaml:"domain"`
		SameSite   string        `yaml:"samesite" validate:"omitempty,oneof=lax strict none Lax Strict None"`
		Secure     bool          `yaml:"secure"`
		TTL        time.Duration `yaml:"ttl"`
		// IdleTimeout: vence sin uso antes de TTL; 0 desactiva.
		IdleTimeout time.Duration `yaml:"idle_timeout"`
	} `yaml:"session"`

	Resume struct {
		// Key sella los resume tokens de authorize (base64 o hex de 32 bytes).
		Key string        `yaml:"key"`
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"resume"`

	Rate struct {
		Enabled bool     `yaml:"enabled"`
		Token   RateRule `yaml:"token"`
		Login   RateRule `yaml:"login"`
	} `yaml:"rate"`

	Audit struct {
		AMQP struct {
			Enabled  bool          `yaml:"enabled"`
			URL      string        `yaml:"url" validate:"required_if=Enabled true"`
			Exchange string        `yaml:"exchange"`
			Timeout  time.Duration `yaml:"timeout"`
		} `yaml:"amqp"`
	} `yaml:"audit"`

	Catalog struct {
		File     string        `yaml:"file"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"catalog"`

	// path del YAML, para resolver rutas relativas
	path string
}

// Load lee el .env y el secreto de AWS (si hay), el YAML, aplica defaults,
// overrides HJ_* y valida. path vacío arranca desde defaults + entorno.
func Load(path string) (*Config, error) {
	LoadEnv()

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		c.path = path
	}

	c.applyDefaults()
	c.applyEnvOverrides()
	c.resolvePaths()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.ServiceName == "" {
		c.App.ServiceName = "hellojohn"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "hj:"
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 20
	}
	if c.Postgres.ConnMaxLifetime == 0 {
		c.Postgres.ConnMaxLifetime = time.Hour
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "hj:cache:"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "hj_session"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "lax"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 8 * time.Hour
	}
	if c.Resume.TTL == 0 {
		c.Resume.TTL = 10 * time.Minute
	}
	if c.Rate.Token.Limit == 0 {
		c.Rate.Token.Limit = 60
	}
	if c.Rate.Token.Window == 0 {
		c.Rate.Token.Window = time.Minute
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == 0 {
		c.Rate.Login.Window = time.Minute
	}
	if c.Catalog.CacheTTL == 0 {
		c.Catalog.CacheTTL = 30 * time.Second
	}
	// en dev sin clave configurada se genera una efímera
	if c.Keys.ActiveKeyFile == "" && c.App.Env == "dev" {
		c.Keys.GenerateIfMissing = true
	}
}

// resolvePaths hace relativas al YAML las rutas de catálogo y claves.
func (c *Config) resolvePaths() {
	if c.path == "" {
		return
	}
	base := filepath.Dir(c.path)
	abs := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Clean(filepath.Join(base, p))
	}
	c.Catalog.File = abs(c.Catalog.File)
	c.Keys.ActiveKeyFile = abs(c.Keys.ActiveKeyFile)
	for i, p := range c.Keys.RolloverKeyFiles {
		c.Keys.RolloverKeyFiles[i] = abs(p)
	}
}

// IsProd es true con app.env=prod.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

// Validate aplica los tags validate (errores con nombres yaml) y las reglas
// cruzadas entre secciones.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var errs []error
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.Postgres.DSN) == "" {
		errs = append(errs, errors.New("postgres.dsn is required with storage.driver=postgres"))
	}
	if c.Catalog.File == "" && !(c.Storage.Driver == "postgres" && c.Postgres.CatalogFromDB) {
		errs = append(errs, errors.New("catalog.file is required unless postgres.catalog_from_db is set"))
	}
	if c.Postgres.CatalogFromDB && c.Storage.Driver != "postgres" {
		errs = append(errs, errors.New("postgres.catalog_from_db requires storage.driver=postgres"))
	}
	if c.Server.EnableLocalLogin && strings.TrimSpace(c.Resume.Key) == "" && c.IsProd() {
		errs = append(errs, errors.New("resume.key is required in prod"))
	}
	if c.IsProd() {
		if c.Keys.GenerateIfMissing {
			errs = append(errs, errors.New("keys.generate_if_missing is not allowed in prod"))
		}
		if !c.Session.Secure {
			errs = append(errs, errors.New("session.secure must be true in prod"))
		}
	}
	if strings.EqualFold(c.Session.SameSite, "none") && !c.Session.Secure {
		errs = append(errs, errors.New("session.samesite=none requires session.secure"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
