package services

import (
	"context"
	"errors"
	"strings"

	"github.com/intprep/apiserver/internal/cache"
	"github.com/intprep/apiserver/internal/store"
	"github.com/intprep/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when a username/password pair does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	cache  cache.UserCache
	logger *zap.Logger
}

// NewUserService builds a UserService. userCache may be nil.
func NewUserService(repo UserRepository, userCache cache.UserCache, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, cache: userCache, logger: logger}
}

// GetByID loads a user, consulting the cache first. Cache failures fall
// through to the repository.
func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	if s.cache != nil {
		user, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("user cache read failed", zap.Int("user_id", id), zap.Error(err))
		} else if ok {
			return user, nil
		}
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, user); err != nil {
			s.logger.Warn("user cache write failed", zap.Int("user_id", id), zap.Error(err))
		}
	}
	return user, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// Register hashes the password and stores a new user with the default role.
// A taken username or email returns store.ErrConflict.
func (s *UserService) Register(ctx context.Context, user types.User, password string) (types.User, error) {
	if _, err := s.repo.GetByUsername(ctx, user.Username); err == nil {
		return types.User{}, store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}
	user.PasswordHash = string(hashed)
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	return s.repo.Create(ctx, user)
}

// Authenticate verifies a username/password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, err
	}
	s.evict(ctx, user.ID)
	return updated, nil
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.evict(ctx, id)
	return nil
}

func (s *UserService) evict(ctx context.Context, id int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("user cache evict failed", zap.Int("user_id", id), zap.Error(err))
	}
}
