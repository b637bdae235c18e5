package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
)

// UserService implementa repository.UserService sobre los usuarios del catálogo.
// Los passwords se verifican con internal/security/secret (argon2id/bcrypt).
type UserService struct {
	bySubject  map[string]repository.User
	byUsername map[string]repository.User
	now        func() time.Time
}

var _ repository.UserService = (*UserService)(nil)

// NewUserService indexa los usuarios por subject y username (case-insensitive).
func NewUserService(users []repository.User) *UserService {
	s := &UserService{
		bySubject:  make(map[string]repository.User, len(users)),
		byUsername: make(map[string]repository.User, len(users)),
		now:        time.Now,
	}
	for _, u := range users {
		s.bySubject[u.Subject] = u
		s.byUsername[strings.ToLower(u.Username)] = u
	}
	return s
}

func (s *UserService) AuthenticateLocal(ctx context.Context, username, password string) (*repository.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, ok := s.byUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok || u.Disabled || !secret.Verify(password, u.PasswordHash) {
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, ok := s.bySubject[subject]
	if !ok {
		return nil, repository.ErrNotFound
	}
	all := append([]repository.Claim{{Type: repository.ClaimSubject, Value: u.Subject}}, u.Claims...)
	if claimTypes == nil {
		return all, nil
	}
	return repository.FilterClaims(all, claimTypes), nil
}

func (s *UserService) IsActive(ctx context.Context, subject string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	u, ok := s.bySubject[subject]
	return ok && !u.Disabled, nil
}
