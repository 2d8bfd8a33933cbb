package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/users"
)

// RegisterParams carries the caller-supplied fields of a registration.
// Role, Status, and Avatar fall back to the schema defaults when empty.
type RegisterParams struct {
	Name        string
	Surname     string
	Email       string
	Phone       string
	Username    string
	Password    string
	Role        string
	Permissions []string
	Avatar      string
	Status      string
}

// UserService manages user records: registration, profile updates, and
// soft deletion.
type UserService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	hasher auth.Hasher
	logger logging.Logger
}

// NewUserService constructs a UserService.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, h auth.Hasher, l logging.Logger) *UserService {
	return &UserService{db: db, repos: m, hasher: h, logger: l.With("module", "user_service")}
}

// Register hashes the password, applies creation defaults, and inserts the
// user. A colliding email or username fails with ErrDuplicateIdentity and
// leaves no partial row behind (the insert is a single statement).
func (s *UserService) Register(ctx context.Context, p RegisterParams) (*models.User, error) {

	if p.Username == "" || p.Email == "" || p.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", common.ErrInvalidCredentials)
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err.Error())
		return nil, common.ErrInternal
	}

	user := &models.User{
		Name:         p.Name,
		Surname:      p.Surname,
		Email:        p.Email,
		Phone:        p.Phone,
		Username:     p.Username,
		HashPassword: hash,
		IsActive:     true,
		Role:         p.Role,
		Permissions:  p.Permissions,
		Avatar:       p.Avatar,
		Status:       p.Status,
	}
	if user.Role == "" {
		user.Role = models.DefaultRole
	}
	if user.Permissions == nil {
		user.Permissions = []string{}
	}
	if user.Avatar == "" {
		user.Avatar = models.DefaultAvatar
	}
	if user.Status == "" {
		user.Status = models.DefaultStatus
	}

	created, err := s.repos.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrDuplicateIdentity) || errors.Is(err, common.ErrStorageUnavailable) {
			return nil, err
		}
		s.logger.Error(ctx, "user creation failed", "error", err.Error())
		return nil, common.ErrInternal
	}

	s.logger.Info(ctx, "user registered", "username", created.Username)
	return created, nil
}

// Update applies a partial profile mutation; updated_at is stamped by the
// store. An absent or soft-deleted id fails with ErrNotFound.
func (s *UserService) Update(ctx context.Context, id int64, upd users.Update) error {
	err := s.repos.Users(s.db).UpdateFields(ctx, id, upd)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) ||
			errors.Is(err, common.ErrDuplicateIdentity) ||
			errors.Is(err, common.ErrStorageUnavailable) {
			return err
		}
		s.logger.Error(ctx, "user update failed", "error", err.Error())
		return common.ErrInternal
	}
	return nil
}

// SoftDelete marks the user logically deleted and, in the same transaction,
// revokes every token the user holds (logout everywhere). The row itself is
// never removed.
func (s *UserService) SoftDelete(ctx context.Context, id int64) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if txErr := s.repos.Users(tx).SoftDelete(ctx, id); txErr != nil {
			return txErr
		}
		_, txErr := s.repos.Tokens(tx).DeleteForUser(ctx, id)
		return txErr
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrStorageUnavailable) {
			return err
		}
		s.logger.Error(ctx, "user soft delete failed", "error", err.Error())
		return common.ErrInternal
	}

	s.logger.Info(ctx, "user soft-deleted", "user_id", id)
	return nil
}
