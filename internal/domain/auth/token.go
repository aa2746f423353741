package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cleancity-server-go/internal/platform/errors"
)

// AuthToken signs and verifies admin-scoped JWT tokens.
type AuthToken struct {
	secretKey []byte
	ttl       time.Duration
}

// NewAuthToken builds a token helper using the provided secret.
func NewAuthToken(secretKey string) *AuthToken {
	return &AuthToken{
		secretKey: []byte(secretKey),
		ttl:       time.Hour,
	}
}

// WithTTL allows customising the expiration duration.
func (at *AuthToken) WithTTL(ttl time.Duration) *AuthToken {
	if ttl > 0 {
		at.ttl = ttl
	}
	return at
}

// GenerateToken issues a JWT for the provided subject.
func (at *AuthToken) GenerateToken(subject string) (string, error) {
	if len(at.secretKey) == 0 {
		return "", errors.New(errors.KindConfig, "auth.generate", "token secret is empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": now.Add(at.ttl).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(at.secretKey)
	if err != nil {
		return "", errors.Wrap(errors.KindPlatform, "auth.generate", "failed to sign token", err)
	}
	return tokenString, nil
}

// VerifyToken validates the JWT and extracts the subject.
func (at *AuthToken) VerifyToken(tokenString string) (string, error) {
	if len(at.secretKey) == 0 {
		return "", errors.New(errors.KindConfig, "auth.verify", "token secret is empty")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return at.secretKey, nil
	})
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "auth.verify", "failed to parse token", err)
	}
	if !token.Valid {
		return "", errors.New(errors.KindTransport, "auth.verify", "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New(errors.KindTransport, "auth.verify", "unexpected claims type")
	}
	subject, _ := claims["sub"].(string)
	if subject == "" {
		return "", errors.New(errors.KindTransport, "auth.verify", "token carries no subject")
	}
	return subject, nil
}
