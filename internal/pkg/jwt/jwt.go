package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

const issuer = "propdesk-portal"

// Claims represents the portal credential claims. The registered ID (jti)
// keys the server-side session row.
type Claims struct {
	AccountID   uint   `json:"account_id"`
	Email       string `json:"email"`
	AccountType string `json:"account_type"`
	jwt.RegisteredClaims
}

// TokenID returns the jti claim.
func (c *Claims) TokenID() string {
	return c.ID
}

// Issued describes a signed credential.
type Issued struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// GeneratePortalToken signs a credential valid for lifetime from now.
func GeneratePortalToken(accountID uint, email, accountType, tokenID, secret string, now time.Time, lifetime time.Duration) (*Issued, error) {
	expiresAt := now.Add(lifetime)
	claims := Claims{
		AccountID:   accountID,
		Email:       email,
		AccountType: accountType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(accountID), 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return nil, err
	}

	return &Issued{
		Token:     signed,
		TokenID:   tokenID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidatePortalToken validates a credential against now and returns claims.
func ValidatePortalToken(tokenString, secret string, now time.Time) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.ID != "" {
		return claims, nil
	}

	return nil, ErrTokenInvalid
}
