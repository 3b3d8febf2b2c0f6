package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Users is the persistence needed by Service.
type Users interface {
	Create(ctx context.Context, orgID string, req *CreateUserRequest, passwordHash string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, orgID, id string) (*User, error)
	List(ctx context.Context, orgID string, params database.ListParams) ([]*User, int64, error)
	SetActive(ctx context.Context, orgID, id string, active bool) error
}

// AccessResolver loads the role names and permission codes granted to a user.
type AccessResolver interface {
	UserAccess(ctx context.Context, orgID, userID string) (roles []string, permissions []string, err error)
}

// Service authenticates users and manages accounts.
type Service struct {
	users  Users
	access AccessResolver
	tokens *TokenIssuer
	logger *logging.Logger
}

func NewService(users Users, access AccessResolver, tokens *TokenIssuer, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{users: users, access: access, tokens: tokens, logger: logger}
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := verifyPassword(user.PasswordHash, req.Password); err != nil {
		s.logger.Info("login rejected", "org_id", user.OrgID, "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	profile, err := s.profile(ctx, user)
	if err != nil {
		return nil, err
	}
	token, _, err := s.tokens.Issue(user, profile.Roles, profile.Permissions)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", "org_id", user.OrgID, "user_id", user.ID)
	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
		User:        profile,
	}, nil
}

// Me returns the profile of the signed-in user.
func (s *Service) Me(ctx context.Context, orgID, userID string) (*Profile, error) {
	user, err := s.users.GetByID(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, user)
}

func (s *Service) profile(ctx context.Context, user *User) (*Profile, error) {
	profile := &Profile{User: user, Roles: []string{}, Permissions: []string{}}
	if s.access == nil {
		return profile, nil
	}
	roles, perms, err := s.access.UserAccess(ctx, user.OrgID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth: load access: %w", err)
	}
	if roles != nil {
		profile.Roles = roles
	}
	if perms != nil {
		profile.Permissions = perms
	}
	return profile, nil
}

// CreateUser validates and stores a new account with a hashed password.
func (s *Service) CreateUser(ctx context.Context, orgID string, req *CreateUserRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user, err := s.users.Create(ctx, orgID, req, hash)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", "org_id", orgID, "user_id", user.ID)
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, orgID string, params database.ListParams) ([]*User, int64, error) {
	return s.users.List(ctx, orgID, params)
}

func (s *Service) SetActive(ctx context.Context, orgID, userID string, active bool) error {
	return s.users.SetActive(ctx, orgID, userID, active)
}
