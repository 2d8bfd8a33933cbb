// Package services contains server-side business logic. This file implements
// SessionService, which drives the session lifecycle: login, refresh-token
// rotation, logout, and the periodic expiry sweep.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/token"
	"github.com/sethvargo/go-retry"
)

// TokenPair bundles a short-lived access token and a long-lived refresh
// token, with their expiration instants.
type TokenPair struct {
	AccessToken    string
	RefreshToken   string
	AccessExpires  time.Time
	RefreshExpires time.Time
}

// SessionService composes the credential store, password hasher, and token
// issuer into the session lifecycle operations.
type SessionService struct {
	db                           *sql.DB
	repos                        repomanager.RepositoryManager
	hasher                       auth.Hasher
	issuer                       *token.Issuer
	logger                       logging.Logger
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	sweepInterval                time.Duration

	// decoyHash is verified against on unknown-user logins so the miss path
	// costs roughly as much as a wrong-password one.
	decoyHash string
}

// NewSessionService constructs a SessionService from its collaborators and
// server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, h auth.Hasher, i *token.Issuer, l logging.Logger, cfg *config.Config) (*SessionService, error) {
	decoy, err := h.Hash("decoy")
	if err != nil {
		return nil, err
	}
	return &SessionService{
		db:                           db,
		repos:                        m,
		hasher:                       h,
		issuer:                       i,
		logger:                       l.With("module", "session_service"),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		sweepInterval:                cfg.SweepInterval,
		decoyHash:                    decoy,
	}, nil
}

// issuePair mints a refresh token and an access token carrying its row id,
// all against the given handle (typically a transaction).
func (s *SessionService) issuePair(ctx context.Context, db dbx.DBTX, userID int64) (*TokenPair, error) {
	repo := s.repos.Tokens(db)

	refresh, err := s.issuer.IssueRefresh(ctx, repo, userID, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}

	access, err := s.issuer.IssueAccess(ctx, repo, userID, refresh.ID, s.accessTokenValidityDuration)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:    access.Token,
		RefreshToken:   refresh.Token,
		AccessExpires:  access.Expiration,
		RefreshExpires: refresh.Expiration,
	}, nil
}

// Login verifies the credentials and, on success, transactionally issues a
// token pair, stamps last_active, and refreshes the user's token cache.
//
// Unknown username, wrong password, soft-deleted, and deactivated accounts
// all fail with the same ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, username, password string) (*TokenPair, error) {

	user, err := s.repos.Users(s.db).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.hasher.Verify(password, s.decoyHash)
			return nil, common.ErrInvalidCredentials
		}
		if errors.Is(err, common.ErrStorageUnavailable) {
			return nil, err
		}
		return nil, common.ErrInternal
	}

	if !s.hasher.Verify(password, user.HashPassword) || !user.IsActive {
		return nil, common.ErrInvalidCredentials
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var txErr error
		pair, txErr = s.issuePair(ctx, tx, user.ID)
		if txErr != nil {
			return txErr
		}
		userRepo := s.repos.Users(tx)
		if txErr = userRepo.TouchLastActive(ctx, user.ID); txErr != nil {
			return txErr
		}
		return userRepo.UpdateTokenCache(ctx, user.ID, pair.AccessToken, pair.RefreshToken)
	})
	if err != nil {
		if errors.Is(err, common.ErrStorageUnavailable) {
			return nil, err
		}
		s.logger.Error(ctx, "login transaction failed", "error", err.Error())
		return nil, common.ErrInternal
	}

	s.logger.Info(ctx, "login", "username", username)
	return pair, nil
}

// Refresh rotates a refresh token: inside one transaction the old token is
// revoked and a fresh pair is issued. The old token is single-use; a replay
// fails with ErrTokenUnknown, including the loser of two concurrent calls
// (the transactional delete admits exactly one winner).
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {

	v, err := s.issuer.Verify(ctx, s.repos.Tokens(s.db), refreshToken)
	if err != nil {
		return nil, s.mapTokenErr(ctx, err)
	}
	if v.Kind != token.KindRefresh {
		return nil, common.ErrTokenUnknown
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, txErr := s.repos.Tokens(tx).DeleteByToken(ctx, refreshToken)
		if txErr != nil {
			return txErr
		}
		if n == 0 {
			// Lost the race against a concurrent rotation of the same token.
			return common.ErrTokenUnknown
		}
		pair, txErr = s.issuePair(ctx, tx, v.UserID)
		if txErr != nil {
			return txErr
		}
		userRepo := s.repos.Users(tx)
		if txErr = userRepo.TouchLastActive(ctx, v.UserID); txErr != nil {
			return txErr
		}
		return userRepo.UpdateTokenCache(ctx, v.UserID, pair.AccessToken, pair.RefreshToken)
	})
	if err != nil {
		return nil, s.mapTokenErr(ctx, err)
	}

	return pair, nil
}

// Logout revokes the access token and its paired refresh token and clears
// the user's token cache. It is idempotent: an already-revoked or unknown
// token is not an error.
func (s *SessionService) Logout(ctx context.Context, accessToken string) error {

	v, err := s.issuer.Verify(ctx, s.repos.Tokens(s.db), accessToken)
	if err != nil {
		if errors.Is(err, common.ErrTokenUnknown) || errors.Is(err, common.ErrTokenExpired) {
			return nil
		}
		return s.mapTokenErr(ctx, err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokenRepo := s.repos.Tokens(tx)
		if _, txErr := tokenRepo.DeleteByToken(ctx, accessToken); txErr != nil {
			return txErr
		}
		if v.Kind == token.KindAccess && v.RefreshID != 0 {
			if txErr := tokenRepo.DeleteByID(ctx, v.RefreshID, v.UserID); txErr != nil {
				return txErr
			}
		}
		// Clearing the cache of a since-deleted user is a no-op, not a failure.
		if txErr := s.repos.Users(tx).UpdateTokenCache(ctx, v.UserID, "", ""); txErr != nil && !errors.Is(txErr, common.ErrNotFound) {
			return txErr
		}
		return nil
	})
	if err != nil {
		return s.mapTokenErr(ctx, err)
	}

	s.logger.Info(ctx, "logout", "user_id", v.UserID)
	return nil
}

// SweepExpired removes every token past its expiration and reports how many
// rows went away. Expired tokens are already inert for verification; the
// sweep only reclaims the rows.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	return s.repos.Tokens(s.db).DeleteExpired(ctx, time.Now())
}

// RunSweeper runs SweepExpired on a ticker until ctx is cancelled. Transient
// storage failures are retried with fibonacci backoff; anything else is
// logged and waits for the next tick.
func (s *SessionService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "sweeper started", "interval", s.sweepInterval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweeper stopped")
			return
		case <-ticker.C:
			backoff := retry.WithMaxRetries(3, retry.NewFibonacci(time.Second))
			err := retry.Do(ctx, backoff, func(ctx context.Context) error {
				n, err := s.SweepExpired(ctx)
				if err != nil {
					if errors.Is(err, common.ErrStorageUnavailable) {
						return retry.RetryableError(err)
					}
					return err
				}
				if n > 0 {
					s.logger.Info(ctx, "expired tokens swept", "count", n)
				}
				return nil
			})
			if err != nil {
				s.logger.Error(ctx, "sweep failed", "error", err.Error())
			}
		}
	}
}

// mapTokenErr narrows internal failures to the caller-safe taxonomy, keeping
// the typed token and storage errors intact.
func (s *SessionService) mapTokenErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenUnknown),
		errors.Is(err, common.ErrStorageUnavailable):
		return err
	default:
		s.logger.Error(ctx, "session operation failed", "error", err.Error())
		return common.ErrInternal
	}
}
