package auth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"
)

// Role is the caller's role on the tutoring platform.
type Role string

const (
	RoleAdmin          Role = "Admin"
	RoleStudent        Role = "Student"
	RoleParent         Role = "Parent"
	RoleTeacher        Role = "Teacher"
	RoleFieldExecutive Role = "FieldExecutive"
)

// TokenTypeAccess is the "typ" claim of access tokens.
const TokenTypeAccess = "access"

var (
	ErrSecretNotConfigured = errors.New("JWT secret not configured")
	ErrInvalidToken        = errors.New("invalid or expired token")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   Role
	// StudentID is set on Student tokens.
	StudentID int64
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

var (
	secretMu  sync.RWMutex
	secretKey []byte
)

func init() {
	_ = godotenv.Load()
	SetSecret(os.Getenv("JWT_SECRET"))
}

// SetSecret replaces the HMAC secret used to sign and verify tokens.
func SetSecret(secret string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = strings.TrimSpace(secret)
	if secret == "" {
		secretKey = nil
		return
	}
	secretKey = []byte(secret)
}

func currentSecret() []byte {
	secretMu.RLock()
	defer secretMu.RUnlock()
	return secretKey
}

// ParseAndValidateToken parses a JWT token string and returns its claims.
// If expectedType is non-empty, the claim "typ" must match it.
func ParseAndValidateToken(tokenStr, expectedType string) (jwt.MapClaims, error) {
	key := currentSecret()
	if key == nil {
		return nil, ErrSecretNotConfigured
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, fmt.Errorf("invalid token type")
		}
	}
	return claims, nil
}

// PrincipalFromToken validates an access token and extracts the caller.
func PrincipalFromToken(tokenStr string) (*Principal, error) {
	claims, err := ParseAndValidateToken(tokenStr, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || role == "" {
		return nil, fmt.Errorf("token missing subject or role")
	}

	p := &Principal{UserID: sub, Role: Role(role)}
	switch v := claims["student_id"].(type) {
	case float64:
		p.StudentID = int64(v)
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.StudentID = id
		}
	}
	return p, nil
}

// IssueToken signs an access token for p valid for ttl.
func IssueToken(p Principal, ttl time.Duration) (string, error) {
	key := currentSecret()
	if key == nil {
		return "", ErrSecretNotConfigured
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  p.UserID,
		"role": string(p.Role),
		"typ":  TokenTypeAccess,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if p.StudentID != 0 {
		claims["student_id"] = p.StudentID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
