package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
)

// UserService implementa repository.UserService sobre oidc_user.
type UserService struct {
	q   querier
	now func() time.Time
}

var _ repository.UserService = (*UserService)(nil)

func NewUserService(q querier) *UserService {
	return &UserService{q: q, now: time.Now}
}

func (s *UserService) byQuery(ctx context.Context, q string, arg string) (*repository.User, error) {
	var (
		u      repository.User
		claims []byte
	)
	err := s.q.QueryRow(ctx, q, arg).Scan(&u.Subject, &u.Username, &u.PasswordHash, &u.Disabled, &claims)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: load user: %w", err)
	}
	if len(claims) > 0 {
		if err := json.Unmarshal(claims, &u.Claims); err != nil {
			return nil, fmt.Errorf("pg: decode user claims: %w", err)
		}
	}
	return &u, nil
}

const userColumns = `subject, username, password_hash, disabled, claims`

func (s *UserService) AuthenticateLocal(ctx context.Context, username, password string) (*repository.Principal, error) {
	u, err := s.byQuery(ctx, `SELECT `+userColumns+` FROM oidc_user WHERE LOWER(username) = LOWER($1)`, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, repository.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.Disabled || !secret.Verify(password, u.PasswordHash) {
		return nil, repository.ErrInvalidCredentials
	}
	return &repository.Principal{
		Subject:          u.Subject,
		Name:             repository.FirstClaim(u.Claims, repository.ClaimName),
		IdentityProvider: repository.LocalIdentityProvider,
		AuthMethods:      []string{"pwd"},
		AuthTime:         s.now().UTC().Truncate(time.Second),
		SessionID:        uuid.NewString(),
	}, nil
}

func (s *UserService) GetProfileData(ctx context.Context, subject string, claimTypes []string) ([]repository.Claim, error) {
	u, err := s.byQuery(ctx, `SELECT `+userColumns+` FROM oidc_user WHERE subject = $1`, subject)
	if err != nil {
		return nil, err
	}
	all := append([]repository.Claim{{Type: repository.ClaimSubject, Value: u.Subject}}, u.Claims...)
	if claimTypes == nil {
		return all, nil
	}
	return repository.FilterClaims(all, claimTypes), nil
}

func (s *UserService) IsActive(ctx context.Context, subject string) (bool, error) {
	var disabled bool
	err := s.q.QueryRow(ctx, `SELECT disabled FROM oidc_user WHERE subject = $1`, subject).Scan(&disabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pg: is active: %w", err)
	}
	return !disabled, nil
}

// UpsertUser crea o reemplaza un usuario local. PasswordHash ya viene hasheado.
func (s *UserService) UpsertUser(ctx context.Context, u *repository.User) error {
	claims, err := json.Marshal(u.Claims)
	if err != nil {
		return fmt.Errorf("pg: encode user claims: %w", err)
	}
	if u.Claims == nil {
		claims = []byte("[]")
	}
	const q = `
		INSERT INTO oidc_user (subject, username, password_hash, disabled, claims)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject)
		DO UPDATE SET username = EXCLUDED.username, password_hash = EXCLUDED.password_hash,
		              disabled = EXCLUDED.disabled, claims = EXCLUDED.claims`
	if _, err := s.q.Exec(ctx, q, u.Subject, u.Username, u.PasswordHash, u.Disabled, claims); err != nil {
		return fmt.Errorf("pg: upsert user: %w", err)
	}
	return nil
}
