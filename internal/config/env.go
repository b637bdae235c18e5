package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix antecede a todas las variables de override.
const EnvPrefix = "HJ_"

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa el YAML con variables HJ_*.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvBool("ENABLE_LOCAL_LOGIN"); ok {
		c.Server.EnableLocalLogin = v
	}
	if v, ok := getEnvStr("ISSUER"); ok {
		c.Issuer = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Redis.Prefix = v
	}
	if v, ok := getEnvStr("POSTGRES_DSN"); ok {
		c.Postgres.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Postgres.MaxConns = int32(v)
	}
	if v, ok := getEnvDur("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Postgres.ConnMaxLifetime = v
	}
	if v, ok := getEnvBool("POSTGRES_AUTO_MIGRATE"); ok {
		c.Postgres.AutoMigrate = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Cache.Driver = strings.ToLower(v)
	}

	// KEYS
	if v, ok := getEnvStr("KEYS_ACTIVE_FILE"); ok {
		c.Keys.ActiveKeyFile = v
	}
	if v, ok := getEnvCSV("KEYS_ROLLOVER_FILES"); ok {
		c.Keys.RolloverKeyFiles = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvStr("SESSION_SAMESITE"); ok {
		c.Session.SameSite = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Session.TTL = v
	}
	if v, ok := getEnvDur("SESSION_IDLE_TIMEOUT"); ok {
		c.Session.IdleTimeout = v
	}

	// RESUME
	if v, ok := getEnvStr("RESUME_KEY"); ok {
		c.Resume.Key = v
	}
	if v, ok := getEnvDur("RESUME_TTL"); ok {
		c.Resume.TTL = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_TOKEN_LIMIT"); ok {
		c.Rate.Token.Limit = v
	}
	if v, ok := getEnvDur("RATE_TOKEN_WINDOW"); ok {
		c.Rate.Token.Window = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvDur("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}

	// AUDIT
	if v, ok := getEnvStr("AUDIT_AMQP_URL"); ok {
		c.Audit.AMQP.URL = v
		c.Audit.AMQP.Enabled = true
	}
	if v, ok := getEnvStr("AUDIT_AMQP_EXCHANGE"); ok {
		c.Audit.AMQP.Exchange = v
	}

	// CATALOG
	if v, ok := getEnvStr("CATALOG_FILE"); ok {
		c.Catalog.File = v
	}
	if v, ok := getEnvDur("CATALOG_CACHE_TTL"); ok {
		c.Catalog.CacheTTL = v
	}
}
