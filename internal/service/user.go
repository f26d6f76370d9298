package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/elearning-backend/internal/apperr"
	"github.com/iliyamo/elearning-backend/internal/mail"
	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/queue"
	"github.com/iliyamo/elearning-backend/internal/repository"
	"github.com/iliyamo/elearning-backend/internal/utils"
)

// UserService implements registration, login and profile management.
type UserService struct {
	users      UserStore
	tokens     *TokenService
	mail       MailPublisher
	bcryptCost int
	log        *zap.Logger
}

func NewUserService(users UserStore, tokens *TokenService, mail MailPublisher, bcryptCost int, log *zap.Logger) *UserService {
	return &UserService{users: users, tokens: tokens, mail: mail, bcryptCost: bcryptCost, log: log}
}

// RegisterInput is the payload of POST /registration.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Register checks the address is free, signs an activation token and
// queues the activation mail.  Nothing is persisted until Activate.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (string, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	taken, err := s.users.EmailTaken(ctx, email)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if taken {
		return "", apperr.Conflict("Email already exist")
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return "", apperr.Internal(err)
	}
	pending := model.PendingUser{Name: strings.TrimSpace(in.Name), Email: email, PasswordHash: hash}
	token, code, err := s.tokens.IssueActivationToken(pending)
	if err != nil {
		return "", err
	}

	err = s.mail.PublishMail(ctx, queue.MailEvent{
		To:       email,
		Subject:  "Activate your account",
		Template: mail.TemplateActivation,
		Data:     map[string]any{"name": pending.Name, "activationCode": code},
	})
	if err != nil {
		return "", apperr.Internal(err)
	}
	return token, nil
}

// Activate verifies the code and creates the account.
func (s *UserService) Activate(ctx context.Context, token, code string) error {
	pending, err := s.tokens.VerifyActivation(token, code)
	if err != nil {
		return err
	}
	taken, err := s.users.EmailTaken(ctx, pending.Email)
	if err != nil {
		return apperr.Internal(err)
	}
	if taken {
		return apperr.Conflict("Email already exist")
	}
	u := &model.User{
		Name:         pending.Name,
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		Role:         model.RoleUser,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.Conflict("Email already exist")
		}
		return apperr.Internal(err)
	}
	s.log.Info("user activated", zap.Uint64("user_id", u.ID))
	return nil
}

// Login verifies credentials and opens a session.  Unknown email and wrong
// password fail identically.
func (s *UserService) Login(ctx context.Context, email, password string) (Session, error) {
	invalid := apperr.InvalidCredential("Invalid email or password")
	u, err := s.users.GetByEmailWithPassword(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, invalid
	}
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return Session{}, invalid
	}
	u.PasswordHash = ""
	return s.tokens.IssueSession(ctx, u)
}

// Logout drops the session snapshot.
func (s *UserService) Logout(ctx context.Context, userID uint64) error {
	return s.tokens.RevokeSession(ctx, userID)
}

// GetMe returns the caller's cached snapshot.
func (s *UserService) GetMe(ctx context.Context, userID uint64) (model.User, error) {
	return s.tokens.LoadSession(ctx, userID)
}

// SocialLoginInput is the payload of POST /social-auth.
type SocialLoginInput struct {
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"required"`
	Avatar string `json:"avatar" validate:"omitempty,url"`
}

// SocialLogin finds the account by email or creates a password-less one,
// then opens a session.
func (s *UserService) SocialLogin(ctx context.Context, in SocialLoginInput) (Session, error) {
	u, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		u = model.User{
			Name:   strings.TrimSpace(in.Name),
			Email:  in.Email,
			Role:   model.RoleUser,
			Avatar: model.Asset{URL: in.Avatar},
		}
		err = s.users.Create(ctx, &u)
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent first login.
			u, err = s.users.GetByEmail(ctx, in.Email)
		}
	}
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	return s.tokens.IssueSession(ctx, u)
}

// UpdateProfileInput is the payload of PUT /update-user-info.
type UpdateProfileInput struct {
	Name  string `json:"name" validate:"omitempty,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
}

// UpdateProfile changes name and/or email and refreshes the snapshot.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint64, in UpdateProfileInput) (model.User, error) {
	current, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == current.Email {
		email = ""
	}
	if email != "" {
		taken, err := s.users.EmailTaken(ctx, email)
		if err != nil {
			return model.User{}, apperr.Internal(err)
		}
		if taken {
			return model.User{}, apperr.Conflict("Email already exist")
		}
	}

	if err := s.users.UpdateProfile(ctx, userID, strings.TrimSpace(in.Name), email); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.User{}, apperr.Conflict("Email already exist")
		}
		return model.User{}, apperr.Internal(err)
	}
	return s.reloadSession(ctx, userID)
}

// UpdatePasswordInput is the payload of PUT /update-user-password.
type UpdatePasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// UpdatePassword replaces the password after checking the old one.
// Social accounts have no password and get NotFound "Invalid user".
func (s *UserService) UpdatePassword(ctx context.Context, userID uint64, in UpdatePasswordInput) (model.User, error) {
	u, err := s.users.GetByIDWithPassword(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, apperr.NotFound("Invalid user")
	}
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	if u.PasswordHash == "" {
		return model.User{}, apperr.NotFound("Invalid user")
	}
	if !utils.VerifyPassword(u.PasswordHash, in.OldPassword) {
		return model.User{}, apperr.InvalidCredential("Invalid old password")
	}
	hash, err := utils.HashPassword(in.NewPassword, s.bcryptCost)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return model.User{}, apperr.Internal(err)
	}
	return s.reloadSession(ctx, userID)
}

// reloadSession re-reads the account and rewrites its snapshot.
func (s *UserService) reloadSession(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	if err := s.tokens.StoreSession(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}
