package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tasksched/tasksched/internal/domain"
	"github.com/tasksched/tasksched/internal/token"
)

// UserStore defines the identity data access interface consumed by the auth
// services.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, user domain.User) (*domain.User, error)
	UpsertByEmail(ctx context.Context, user domain.User) (*domain.User, error)
}

// AuthService handles password-based registration and login, and backs the
// token validation and principal-info RPCs consumed by the task service.
type AuthService struct {
	users UserStore
	codec *token.Codec
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, codec *token.Codec) *AuthService {
	return &AuthService{users: users, codec: codec}
}

// Register creates a local account and issues a credential for it. The email
// is trimmed and lowercased before storage.
func (s *AuthService) Register(ctx context.Context, name, email, password, confirmPassword string) (*domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	switch {
	case name == "":
		return nil, "", &domain.ValidationError{Field: "name", Message: "name is required"}
	case email == "":
		return nil, "", &domain.ValidationError{Field: "email", Message: "email is required"}
	case len(password) < 6:
		return nil, "", &domain.ValidationError{Field: "password", Message: "password must be at least 6 characters long"}
	case password != confirmPassword:
		return nil, "", &domain.ValidationError{Field: "confirmPassword", Message: "passwords do not match"}
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("check existing email: %w", err)
	}
	if exists {
		return nil, "", &domain.ValidationError{Field: "email", Message: "email is already registered"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Save(ctx, domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Provider:     domain.AuthProviderLocal,
	})
	if err != nil {
		// Lost a concurrent registration race; the unique index is the
		// authority, not the exists check above.
		if errors.Is(err, domain.ErrConflict) {
			return nil, "", &domain.ValidationError{Field: "email", Message: "email is already registered"}
		}
		return nil, "", fmt.Errorf("save user: %w", err)
	}

	signed, err := s.codec.Issue(user.Email, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

// Login verifies a password against the stored hash and issues a fresh
// credential. Accounts created through OAuth hold a sentinel in place of a
// hash, so password login against them always fails here.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", domain.ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("find user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", domain.ErrInvalidCredentials
	}

	signed, err := s.codec.Issue(user.Email, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

// ValidateToken reports whether the credential is signed by this service and
// unexpired.
func (s *AuthService) ValidateToken(tokenString string) bool {
	return s.codec.Validate(tokenString)
}

// PrincipalFromToken validates the credential and resolves its subject to
// the authenticated principal handed to the task service.
func (s *AuthService) PrincipalFromToken(ctx context.Context, tokenString string) (*domain.Principal, error) {
	claims, err := s.codec.Claims(tokenString)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	user, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("find user for principal: %w", err)
	}

	return &domain.Principal{ID: user.ID, Name: user.Name, Email: user.Email}, nil
}
