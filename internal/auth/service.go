package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	limiter Limiter
	logger  *slog.Logger
	compare func(hash, password []byte) error
}

// NewService constructs a new Service. A nil limiter disables throttling.
func NewService(repo Repository, limiter Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, limiter: limiter, logger: logger, compare: bcrypt.CompareHashAndPassword}
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// unknownUserHash is compared against when no user matches, so unknown and
// known usernames cost the same bcrypt work.
func unknownUserHash() []byte {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("cafe-ops-unknown-user"), bcrypt.DefaultCost)
	})
	return dummyHash
}

type credentials struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required"`
}

// Authenticate validates username/password credentials. Once the limiter
// trips, the password is not checked until the window slides.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if err := shared.ValidateStruct(credentials{Username: username, Password: password}); err != nil {
		return nil, fmt.Errorf("%w: please enter both username and password", shared.ErrValidation)
	}
	if s.limiter != nil {
		limited, err := s.limiter.Limited(ctx, username)
		if err != nil {
			s.logger.Error("login limiter unavailable", slog.Any("error", err))
			return nil, shared.Persistence("auth: limiter", err)
		}
		if limited {
			s.logger.Warn("login rate limit reached", slog.String("username", username))
			return nil, fmt.Errorf("%w: please wait before trying again", shared.ErrRateLimited)
		}
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, shared.Persistence("auth: find user", err)
	}
	if err != nil {
		_ = s.compare(unknownUserHash(), []byte(password))
	} else if s.compare([]byte(user.PasswordHash), []byte(password)) == nil {
		s.logger.Info("user logged in", slog.String("username", user.Username), slog.String("role", user.Role))
		return user, nil
	}

	if s.limiter != nil {
		if err := s.limiter.RecordFailure(ctx, username); err != nil {
			s.logger.Warn("record login failure", slog.Any("error", err))
		}
	}
	s.logger.Warn("failed login attempt", slog.String("username", username))
	return nil, shared.ErrInvalidCredentials
}

// Profiles lists users for the login screen.
func (s *Service) Profiles(ctx context.Context) ([]Profile, error) {
	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, shared.Persistence("auth: list users", err)
	}
	return profiles, nil
}

type newUser struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required,min=6"`
	Role     string `validate:"required,oneof=owner staff"`
}

// CreateUser hashes password and stores a new account.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) (*User, error) {
	input := newUser{Username: strings.TrimSpace(username), Password: password, Role: role}
	if err := shared.ValidateStruct(input); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, input.Username, string(hash), role)
	if err != nil {
		return nil, shared.Persistence("auth: create user", err)
	}
	return user, nil
}

// Identity converts a user into the session identity.
func (u *User) Identity() shared.Identity {
	return shared.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}
