// Package users provides account registration and password sign-in.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"margin/api/internal/store"
	"margin/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

// Store defines the storage interface for accounts
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	CountUsers(ctx context.Context) (int, error)
}

// Service provides account registration and sign-in
type Service struct {
	store Store
}

// NewService creates a new users service
func NewService(store Store) *Service {
	return &Service{store: store}
}

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError reports a rejected input. Callers match on the type
// to distinguish bad input from credential and storage failures.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// palette tints each account's annotations; assigned round-robin at signup.
var palette = []string{
	"#f59e0b", // amber
	"#10b981", // emerald
	"#3b82f6", // blue
	"#ec4899", // pink
	"#8b5cf6", // violet
	"#14b8a6", // teal
	"#ef4444", // red
	"#84cc16", // lime
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email    string
	Password string
	Name     string
}

// SignUp creates a new account with a palette color and display initials.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if email == "" || req.Password == "" || name == "" {
		return store.User{}, &ValidationError{Reason: "email, password, and name are required"}
	}
	if !strings.Contains(email, "@") {
		return store.User{}, &ValidationError{Reason: "invalid email address"}
	}
	if len(req.Password) < 8 {
		return store.User{}, &ValidationError{Reason: "password must be at least 8 characters"}
	}

	// Check if email already exists
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return store.User{}, fmt.Errorf("count users: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Color:        palette[count%len(palette)],
		Fallback:     initials(name),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates an account. Lookup and compare failures both come
// back as ErrInvalidCredentials so callers cannot probe for registered
// addresses.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return store.User{}, &ValidationError{Reason: "email and password are required"}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	user.PasswordHash = ""
	return user, nil
}

// initials derives the avatar fallback from the display name: first rune of
// the first and last words, uppercased.
func initials(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	first := []rune(fields[0])
	if len(fields) == 1 {
		return strings.ToUpper(string(first[0]))
	}
	last := []rune(fields[len(fields)-1])
	return strings.ToUpper(string(first[0]) + string(last[0]))
}
