// Package token implements the token issuer: minting, verifying, and
// revoking the bearer tokens stored in the users_token table.
//
// Access tokens are HS256 JWTs; refresh tokens are opaque random strings.
// Both kinds are persisted, so revocation takes effect immediately and the
// expiry sweep covers them uniformly. Kind is derived structurally: a stored
// token that validates as one of our JWTs is an access token, anything else
// is a refresh token.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/tokens"
	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates the two token classes.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// refreshTokenBytes is the entropy of an opaque refresh token; hex-encoding
// doubles it to 64 characters on the wire.
const refreshTokenBytes = 32

// Issued describes a freshly minted token: its opaque string, the users_token
// row id, and the expiration instant (now + ttl at mint time).
type Issued struct {
	ID         int64
	Token      string
	Expiration time.Time
}

// Verification is the outcome of a successful Verify call. RefreshID is only
// set for access tokens and names the refresh row issued alongside them.
type Verification struct {
	UserID    int64
	Kind      Kind
	RefreshID int64
}

// Issuer mints and checks tokens. Repositories are passed per call (bound to
// a plain connection or a transaction by the caller), following the same
// pattern the services use for all storage access.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret}
}

// Issue mints a token of the given kind for userID, valid for ttl, and
// persists it. Access tokens issued through this generic entry point carry no
// paired refresh id; login flows use IssueRefresh + IssueAccess instead.
func (i *Issuer) Issue(ctx context.Context, repo tokens.Repository, userID int64, kind Kind, ttl time.Duration) (*Issued, error) {
	switch kind {
	case KindRefresh:
		return i.IssueRefresh(ctx, repo, userID, ttl)
	case KindAccess:
		return i.IssueAccess(ctx, repo, userID, 0, ttl)
	default:
		return nil, fmt.Errorf("unsupported token kind %q", kind)
	}
}

// IssueRefresh mints an opaque refresh token and stores it.
func (i *Issuer) IssueRefresh(ctx context.Context, repo tokens.Repository, userID int64, ttl time.Duration) (*Issued, error) {
	t, err := common.MakeRandHexString(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}

	expiration := time.Now().Add(ttl)
	id, err := repo.Create(ctx, userID, t, expiration)
	if err != nil {
		return nil, err
	}

	return &Issued{ID: id, Token: t, Expiration: expiration}, nil
}

// IssueAccess mints a signed access JWT carrying the paired refresh row id
// and stores it alongside.
func (i *Issuer) IssueAccess(ctx context.Context, repo tokens.Repository, userID, refreshID int64, ttl time.Duration) (*Issued, error) {
	t, err := auth.GenerateAccessToken(userID, refreshID, i.secret, ttl)
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}

	expiration := time.Now().Add(ttl)
	id, err := repo.Create(ctx, userID, t, expiration)
	if err != nil {
		return nil, err
	}

	return &Issued{ID: id, Token: t, Expiration: expiration}, nil
}

// Verify checks a token of either kind.
//
// Access tokens must carry a valid signature, an unexpired exp claim, and a
// live users_token row (a missing row means the token was revoked). Refresh
// tokens must have a live, unexpired row. Failures map to
// common.ErrTokenExpired and common.ErrTokenUnknown.
func (i *Issuer) Verify(ctx context.Context, repo tokens.Repository, tokenString string) (*Verification, error) {

	userID, refreshID, err := auth.ParseAccessToken(tokenString, i.secret)
	switch {
	case err == nil:
		row, err := repo.Find(ctx, tokenString)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, common.ErrTokenUnknown
			}
			return nil, err
		}
		if row.Expiration.Before(time.Now()) {
			return nil, common.ErrTokenExpired
		}
		return &Verification{UserID: userID, Kind: KindAccess, RefreshID: refreshID}, nil

	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		// A structurally valid, correctly signed access token past its exp
		// claim. Reported as expired even after the sweep removed its row.
		return nil, common.ErrTokenExpired

	default:
		// Not one of our JWTs: treat as an opaque refresh token.
		row, err := repo.Find(ctx, tokenString)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, common.ErrTokenUnknown
			}
			return nil, err
		}
		if row.Expiration.Before(time.Now()) {
			return nil, common.ErrTokenExpired
		}
		return &Verification{UserID: row.UserID, Kind: KindRefresh}, nil
	}
}

// Revoke makes a token unusable immediately. Revoking an absent or
// already-revoked token is not an error.
func (i *Issuer) Revoke(ctx context.Context, repo tokens.Repository, tokenString string) error {
	_, err := repo.DeleteByToken(ctx, tokenString)
	return err
}
