package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jjudge-oj/problemgen/internal/store"
	"github.com/jjudge-oj/problemgen/types"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when a username or password is wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// Registration is the input of Register.
type Registration struct {
	Username string
	Email    string
	Name     string
	Password string
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
	cost int
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, cost: bcrypt.DefaultCost}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Register creates an account. A taken username yields store.ErrConflict.
func (s *UserService) Register(ctx context.Context, reg Registration) (types.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return types.User{}, err
	}
	return s.repo.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(reg.Username),
		Email:        strings.TrimSpace(reg.Email),
		Name:         strings.TrimSpace(reg.Name),
		PasswordHash: string(hashed),
	})
}

// Authenticate checks a username and password pair.
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
