package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// DefaultPrefix antecede todas las keys.
const DefaultPrefix = "hj:"

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Connect abre el cliente y verifica la conexión.
func Connect(ctx context.Context, opt Options) (*rdb.Client, error) {
	c := rdb.NewClient(&rdb.Options{Addr: opt.Addr, Password: opt.Password, DB: opt.DB})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis store: ping %s: %w", opt.Addr, err)
	}
	logger.From(ctx).Info("redis ready", logger.Component("store.redis"), logger.String("addr", opt.Addr), logger.Int("db", opt.DB))
	return c, nil
}

// Stores agrupa los stores sobre un mismo cliente.
type Stores struct {
	Codes    *AuthorizationCodes
	Refresh  *RefreshTokens
	Handles  *TokenHandles
	Consents *Consents

	client *rdb.Client
}

func New(c *rdb.Client, prefix string) *Stores {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Stores{
		Codes:    &AuthorizationCodes{newGrants[repository.AuthorizationCode](c, prefix, "code")},
		Refresh:  &RefreshTokens{newGrants[repository.RefreshToken](c, prefix, "refresh")},
		Handles:  &TokenHandles{newGrants[repository.Token](c, prefix, "handle")},
		Consents: &Consents{c: c, prefix: prefix + "consent:"},
		client:   c,
	}
}

func (s *Stores) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Stores) Close() error { return s.client.Close() }

// Consents guarda un hash por subject: field = client_id, valor = JSON.
type Consents struct {
	c      *rdb.Client
	prefix string
}

var _ repository.ConsentStore = (*Consents)(nil)

func (s *Consents) key(subject string) string { return s.prefix + subject }

func (s *Consents) Load(ctx context.Context, subject, clientID string) (*repository.Consent, error) {
	raw, err := s.c.HGet(ctx, s.key(subject), clientID).Bytes()
	if errors.Is(err, rdb.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: hget consent: %w", err)
	}
	var c repository.Consent
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("redis store: decode consent: %w", err)
	}
	return &c, nil
}

func (s *Consents) LoadAll(ctx context.Context, subject string) ([]repository.Consent, error) {
	all, err := s.c.HGetAll(ctx, s.key(subject)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: hgetall consent: %w", err)
	}
	out := make([]repository.Consent, 0, len(all))
	for _, raw := range all {
		var c repository.Consent
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("redis store: decode consent: %w", err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (s *Consents) Update(ctx context.Context, c *repository.Consent) error {
	if c == nil || c.Subject == "" || c.ClientID == "" {
		return repository.ErrInvalidInput
	}
	cp := *c
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("redis store: encode consent: %w", err)
	}
	if err := s.c.HSet(ctx, s.key(c.Subject), c.ClientID, b).Err(); err != nil {
		return fmt.Errorf("redis store: hset consent: %w", err)
	}
	return nil
}

func (s *Consents) Revoke(ctx context.Context, subject, clientID string) error {
	if err := s.c.HDel(ctx, s.key(subject), clientID).Err(); err != nil {
		return fmt.Errorf("redis store: hdel consent: %w", err)
	}
	return nil
}
