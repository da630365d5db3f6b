package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"energy-billing/internal/middleware"
	"energy-billing/internal/model"
	"energy-billing/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
}

// UpdateUserRequest changes only the fields that are set.
type UpdateUserRequest struct {
	Username string `json:"username" binding:"omitempty,max=100"`
	Role     string `json:"role"`
	Password string `json:"password" binding:"omitempty,min=8"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Role      string `json:"role"`
}

// UserResponse never exposes the password hash.
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TokenIssuer signs access tokens; *middleware.Auth implements it.
type TokenIssuer interface {
	IssueToken(subject, role string, ttl time.Duration) (string, time.Time, error)
}

// --- Interface ---

type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest, actorID string) (UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (TokenResponse, error)
	GetUser(ctx context.Context, id string) (UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest, actorID string) (UserResponse, error)
	DeleteUser(ctx context.Context, id string, actorID string) error
	// EnsureAdmin creates an admin account for email unless one already exists.
	EnsureAdmin(ctx context.Context, email, password string) error
}

type userService struct {
	userRepo  repository.UserRepository
	auditRepo repository.AuditRepository
	tokens    TokenIssuer
	tokenTTL  time.Duration
	log       *zap.Logger
}

func NewUserService(userRepo repository.UserRepository, auditRepo repository.AuditRepository, tokens TokenIssuer, tokenTTL time.Duration, log *zap.Logger) UserService {
	return &userService{userRepo: userRepo, auditRepo: auditRepo, tokens: tokens, tokenTTL: tokenTTL, log: log}
}

// --- Implementation ---

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest, actorID string) (UserResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" {
		return UserResponse{}, invalid("username and email are required")
	}
	if !middleware.IsRole(req.Role) {
		return UserResponse{}, invalid("role must be %s, %s or %s", middleware.RoleAdmin, middleware.RoleOperator, middleware.RoleViewer)
	}

	if err := s.ensureUnique(ctx, username, email); err != nil {
		return UserResponse{}, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return UserResponse{}, err
	}

	user := model.User{Username: username, Email: email, Password: hash, Role: req.Role}
	if err := s.userRepo.Create(ctx, &user); err != nil {
		return UserResponse{}, fmt.Errorf("failed to create user: %w", err)
	}

	writeAuditLog(ctx, s.auditRepo, s.log, actorID, model.ActionCreateUser, user.ID, user.Username, map[string]string{
		"email": user.Email,
		"role":  user.Role,
	})

	return toUserResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (TokenResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenResponse{}, ErrUnauthorized
		}
		return TokenResponse{}, fmt.Errorf("failed to fetch user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return TokenResponse{}, ErrUnauthorized
	}

	token, expiresAt, err := s.tokens.IssueToken(user.ID, user.Role, s.tokenTTL)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Info("User logged in", zap.String("user_id", user.ID), zap.String("role", user.Role))

	return TokenResponse{Token: token, ExpiresAt: expiresAt.UTC().Format(time.RFC3339), Role: user.Role}, nil
}

func (s *userService) GetUser(ctx context.Context, id string) (UserResponse, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return UserResponse{}, err
	}
	return toUserResponse(*user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.userRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	res := make([]UserResponse, 0, len(users))
	for _, u := range users {
		res = append(res, toUserResponse(u))
	}
	return res, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest, actorID string) (UserResponse, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return UserResponse{}, err
	}

	changes := map[string]string{}

	if req.Role != "" && req.Role != user.Role {
		if !middleware.IsRole(req.Role) {
			return UserResponse{}, invalid("unknown role %q", req.Role)
		}
		if user.Role == middleware.RoleAdmin {
			if err := s.ensureAnotherAdmin(ctx); err != nil {
				return UserResponse{}, err
			}
		}
		changes["role"] = user.Role + " -> " + req.Role
		user.Role = req.Role
	}

	if username := strings.TrimSpace(req.Username); username != "" && username != user.Username {
		if _, err := s.userRepo.FindByUsername(ctx, username); err == nil {
			return UserResponse{}, fmt.Errorf("%w: username %s already exists", ErrConflict, username)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return UserResponse{}, fmt.Errorf("failed to check username: %w", err)
		}
		changes["username"] = user.Username + " -> " + username
		user.Username = username
	}

	if req.Password != "" {
		hash, err := hashPassword(req.Password)
		if err != nil {
			return UserResponse{}, err
		}
		user.Password = hash
		changes["password"] = "changed"
	}

	if len(changes) == 0 {
		return toUserResponse(*user), nil
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return UserResponse{}, fmt.Errorf("failed to update user: %w", err)
	}

	writeAuditLog(ctx, s.auditRepo, s.log, actorID, model.ActionUpdateUser, user.ID, user.Username, changes)

	return toUserResponse(*user), nil
}

// DeleteUser removes an account. Callers cannot delete themselves or the last admin.
func (s *userService) DeleteUser(ctx context.Context, id string, actorID string) error {
	if id == actorID {
		return invalid("cannot delete your own account")
	}

	user, err := s.findUser(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == middleware.RoleAdmin {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return err
		}
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	writeAuditLog(ctx, s.auditRepo, s.log, actorID, model.ActionDeleteUser, id, user.Username, map[string]string{"deleted_id": id})

	return nil
}

func (s *userService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to fetch user: %w", err)
	}

	username, _, _ := strings.Cut(email, "@")
	if _, err := s.CreateUser(ctx, CreateUserRequest{
		Username: username,
		Email:    email,
		Password: password,
		Role:     middleware.RoleAdmin,
	}, ""); err != nil {
		return err
	}

	s.log.Info("Bootstrap admin created", zap.String("email", email))
	return nil
}

func (s *userService) ensureUnique(ctx context.Context, username, email string) error {
	if _, err := s.userRepo.FindByUsername(ctx, username); err == nil {
		return fmt.Errorf("%w: username %s already exists", ErrConflict, username)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}

	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return fmt.Errorf("%w: email %s already exists", ErrConflict, email)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}
	return nil
}

func (s *userService) ensureAnotherAdmin(ctx context.Context) error {
	admins, err := s.userRepo.CountByRole(ctx, middleware.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if admins <= 1 {
		return fmt.Errorf("%w: at least one admin account must remain", ErrConflict)
	}
	return nil
}

func (s *userService) findUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user", id)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}

// --- Helpers ---

func hashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", invalid("password must be at least 8 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func toUserResponse(u model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt: u.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
