package service

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
)

// Login verifies credentials and returns the account. Credential failures
// are indistinguishable from unknown users.
func (s *Service) Login(ctx context.Context, username string, password string) (*domain.UserAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Authentication("username and password are required")
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Authentication("invalid credentials")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, apperr.Authentication("invalid credentials")
	}
	return user, nil
}

func (s *Service) RegisterUser(ctx context.Context, username string, password string, role string) error {
	actor := ActorFromContext(ctx)
	if actor.Role != "admin" {
		return apperr.Authentication("creating users requires the admin role")
	}
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 8 {
		return apperr.Validation(apperr.CodeInvalidInput, "username required and password must be at least 8 characters")
	}
	switch role {
	case "admin", "cashier":
	default:
		return apperr.Validation(apperr.CodeInvalidInput, "role must be admin or cashier")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.System(err, "hash password")
	}

	if err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      role,
		Active:    true,
		CreatedAt: s.now(),
	}); err != nil {
		return err
	}
	s.logAudit(ctx, "user.create", "user", username, role)
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, username string, current string, next string) error {
	if len(next) < 8 {
		return apperr.Validation(apperr.CodeInvalidInput, "password must be at least 8 characters")
	}
	if _, err := s.Login(ctx, username, current); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return apperr.System(err, "hash password")
	}
	if err := s.repo.UpdateUserPassword(ctx, username, string(hash)); err != nil {
		return err
	}
	s.logAudit(ctx, "user.change_password", "user", username, "")
	return nil
}
