package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password
var ErrInvalidCredentials = errors.New("invalid username or password")

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Token is a signed access token and its expiry
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// JWTManager handles JWT token operations
type JWTManager struct {
	secretKey           []byte
	accessTokenDuration time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, accessTokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:           []byte(secretKey),
		accessTokenDuration: accessTokenDuration,
	}
}

// Generate signs an access token for username
func (m *JWTManager) Generate(username string) (*Token, error) {
	now := time.Now()
	expires := now.Add(m.accessTokenDuration)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires}, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// CredentialSource looks up a user's bcrypt hash
type CredentialSource interface {
	PasswordHash(username string) (string, bool)
}

// Authenticate checks username and password against users and issues a token
func (m *JWTManager) Authenticate(users CredentialSource, username, password string) (*Token, error) {
	hash, ok := users.PasswordHash(username)
	if !ok {
		// keep timing equal for unknown users
		VerifyPassword(password, dummyHash)
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(password, hash); err != nil {
		return nil, ErrInvalidCredentials
	}
	return m.Generate(username)
}
