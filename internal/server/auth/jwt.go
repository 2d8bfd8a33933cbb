package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by access tokens. RefreshID is the row id of the refresh
// token issued alongside this access token; it is a non-secret surrogate key
// that lets logout revoke the whole pair.
type Claims struct {
	jwt.RegisteredClaims
	RefreshID int64 `json:"rtid"`
}

// GenerateAccessToken mints an HS256-signed JWT for userID expiring after
// validityDuration. The jti claim is a fresh UUID, so every issued token is
// unique even for the same user and instant.
func GenerateAccessToken(userID int64, refreshID int64, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			ID:        uuid.NewString(),
		},
		RefreshID: refreshID,
	})

	return token.SignedString(secretKey)
}

// ParseAccessToken validates the signature and standard claims of an access
// token and returns the user id and the paired refresh row id.
func ParseAccessToken(tokenString string, secretKey []byte) (userID int64, refreshID int64, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, 0, err
	}
	if !token.Valid {
		return 0, 0, jwt.ErrTokenUnverifiable
	}

	userID, err = strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, 0, jwt.ErrTokenInvalidSubject
	}

	return userID, claims.RefreshID, nil
}
