package jwt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims the service reads from a token.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// JWT provides methods to generate and validate HS256 tokens.
type JWT struct {
	SecretKey string        // Secret key for signing tokens
	Base64    bool          // SecretKey holds base64 encoded key bytes
	Exp       time.Duration // Token expiration duration
}

// Opt configures a JWT.
type Opt func(*JWT)

// WithSecretKey sets the signing secret.
func WithSecretKey(secret string) Opt {
	return func(j *JWT) { j.SecretKey = secret }
}

// WithBase64SecretKey sets a standard base64 encoded signing secret, the
// format the user service stores its key in.
func WithBase64SecretKey(secret string) Opt {
	return func(j *JWT) {
		j.SecretKey = secret
		j.Base64 = true
	}
}

// WithExpiration sets the lifetime of generated tokens.
func WithExpiration(exp time.Duration) Opt {
	return func(j *JWT) { j.Exp = exp }
}

// New creates a new JWT instance
func New(opts ...Opt) *JWT {
	j := &JWT{Exp: time.Hour}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Generate creates a token for the subject with the given roles.
func (j *JWT) Generate(ctx context.Context, subject string, roles ...string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.Exp)),
		},
		Roles: roles,
	}

	key, err := j.key()
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

func (j *JWT) key() ([]byte, error) {
	if !j.Base64 {
		return []byte(j.SecretKey), nil
	}
	key, err := base64.StdEncoding.DecodeString(j.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	return key, nil
}

// GetClaims parses and verifies the token and returns its claims.
func (j *JWT) GetClaims(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.key()
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("subject not found in token")
	}
	return claims, nil
}

// GetTokenFromRequest extracts the token string from the Authorization header
func (j *JWT) GetTokenFromRequest(ctx context.Context, r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header missing")
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}
