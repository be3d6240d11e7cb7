package auth

import (
	"errors"
	"strconv"
	"time"

	"transport-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTTL    = 24 * time.Hour
	tokenIssuer = "transport-backend"
)

// Claims carry the user id in the subject and the role beside it.
type Claims struct {
	Role models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(secret string, user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

var errMalformedClaims = errors.New("malformed token claims")

// ParseToken verifies an HS256 token and returns who it was issued to.
func ParseToken(secret, raw string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 || !claims.Role.Valid() {
		return Identity{}, errMalformedClaims
	}
	return Identity{UserID: uint(id), Role: claims.Role}, nil
}
