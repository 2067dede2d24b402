package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/normalize"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenRevoked is returned by VerifyToken for tokens that were signed out.
var ErrTokenRevoked = errors.New("token revoked")

// JWTManager signs and validates the session tokens handed to clients.
// Several HMAC keys may be configured; new tokens are signed with the
// active one and carry its id in the "kid" header so tokens issued under a
// rotated-out key keep verifying until they expire.
type JWTManager struct {
	keys      map[string]string // kid -> secret
	activeKid string
	duration  time.Duration // how long tokens are valid

	mu       sync.Mutex
	revoked  map[string]time.Time // token id -> expiry
	onRevoke []func(*Claims)
}

// Claims is the custom JWT payload (user id + email).
type Claims struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt and the token id
}

// NewJWTManager returns a manager with a single signing secret.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return NewJWTManagerFromKeys(map[string]string{"": secretKey}, "", duration)
}

// NewJWTManagerFromKeys returns a manager that signs with keys[activeKid]
// and verifies with whichever key the token's kid names.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	cp := make(map[string]string, len(keys))
	for k, v := range keys {
		cp[k] = v
	}
	return &JWTManager{
		keys:      cp,
		activeKid: activeKid,
		duration:  duration,
		revoked:   make(map[string]time.Time),
	}
}

// GenerateToken issues a signed token for a user. The email claim is
// stored normalized.
func (m *JWTManager) GenerateToken(userID, email string) (string, time.Time, error) {
	secret, ok := m.keys[m.activeKid]
	if !ok {
		return "", time.Time{}, fmt.Errorf("no signing key for kid %q", m.activeKid)
	}

	now := time.Now()
	expiresAt := now.Add(m.duration)
	claims := &Claims{
		UserID: userID,
		Email:  normalize.Email(email),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKid != "" {
		token.Header["kid"] = m.activeKid
	}

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Only HMAC; never let the token pick an asymmetric algorithm.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		secret, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}

	m.mu.Lock()
	_, revoked := m.revoked[claims.ID]
	m.mu.Unlock()
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke rejects the token described by claims from now until it would have
// expired anyway.
func (m *JWTManager) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	exp := time.Now().Add(m.duration)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	m.mu.Lock()
	now := time.Now()
	for id, until := range m.revoked {
		if until.Before(now) {
			delete(m.revoked, id)
		}
	}
	m.revoked[claims.ID] = exp
	hooks := append(([]func(*Claims))(nil), m.onRevoke...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(claims)
	}
}

// OnRevoke registers fn to run after every Revoke, once the token already
// fails verification.
func (m *JWTManager) OnRevoke(fn func(*Claims)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRevoke = append(m.onRevoke, fn)
}
