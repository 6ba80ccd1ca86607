package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/google/uuid"

	"auth-api/internal/auth"
	"auth-api/internal/domain"
	"auth-api/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	// The message stays vague on purpose; it must not reveal whether the email
	// or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates a missing, malformed, expired or otherwise
	// unusable bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError carries per-field messages for client-fixable input errors.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// RegisterInput holds the registration fields accepted from a client.
type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// AuthService orchestrates registration, login, profile retrieval and logout.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	Profile(ctx context.Context, token string) (*domain.User, error)
	Logout(ctx context.Context, token string) error
}

type authService struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	tokens *auth.TokenManager
}

func NewAuthService(users repository.UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenManager) AuthService {
	return &authService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register validates the input, hashes the password and creates the user.
// No token is issued here; login is a separate explicit step. Nothing is
// written when validation fails.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	fields := make(map[string]string)
	if in.Name == "" {
		fields["name"] = "name is required"
	}
	if in.Email == "" {
		fields["email"] = "email is required"
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		fields["email"] = "email must be a valid email address"
	}
	if in.Password == "" {
		fields["password"] = "password is required"
	} else if in.Password != in.PasswordConfirmation {
		fields["password"] = "password confirmation does not match"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.NewUser(uuid.NewString(), in.Name, in.Email, hash)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, &ValidationError{Fields: map[string]string{
				"email": "email has already been taken",
			}}
		}
		return nil, err
	}

	return user.Public(), nil
}

// Login exchanges credentials for a signed bearer token. An unknown email
// still pays for one bcrypt comparison so its timing matches a wrong
// password, and both cases fail with the same error.
func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.DummyCompare(password)
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Profile verifies the token and loads the account it is bound to. A token
// whose subject no longer exists is treated the same as an invalid token.
func (s *authService) Profile(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: stale token subject", ErrUnauthorized)
		}
		return nil, err
	}

	return user.Public(), nil
}

// Logout confirms the caller held a valid token. Tokens are self-contained
// and not tracked server-side, so there is nothing to revoke; the token
// remains usable until its natural expiry.
func (s *authService) Logout(ctx context.Context, token string) error {
	if _, err := s.tokens.Verify(token); err != nil {
		return fmt.Errorf("%w: %s", ErrUnauthorized, err)
	}
	return nil
}
