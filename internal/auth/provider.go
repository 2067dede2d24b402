package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/normalize"
	"github.com/google/uuid"
)

// MinPasswordLength mirrors the hosted identity providers' minimum.
const MinPasswordLength = 6

// Identity is a signed-in user and the session token proving it.
type Identity struct {
	UID       string
	Email     string
	Token     string
	ExpiresAt time.Time
}

type tokenContextKey struct{}

// ContextWithToken attaches a bearer token to ctx. CurrentIdentity and
// SignOut act on it.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the token attached by ContextWithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenContextKey{}).(string)
	return t, ok && t != ""
}

// LocalProvider is the identity collaborator backed by an AccountStore and
// JWT session tokens. The "current" identity is whatever token the caller's
// context carries.
type LocalProvider struct {
	accounts AccountStore
	jwt      *JWTManager
}

// NewLocalProvider returns a provider over accounts issuing tokens from jwt.
func NewLocalProvider(accounts AccountStore, jwt *JWTManager) *LocalProvider {
	return &LocalProvider{accounts: accounts, jwt: jwt}
}

// CreateAccount registers email with password and signs the new user in.
func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (Identity, error) {
	email = normalize.Email(email)
	if email == "" {
		return Identity{}, chaterr.NewAuth("create account", errors.New("email is required"))
	}
	if len(password) < MinPasswordLength {
		return Identity{}, chaterr.NewAuth("create account",
			fmt.Errorf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Identity{}, chaterr.NewAuth("create account", err)
	}
	acct := Account{UID: uuid.NewString(), Email: email, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	if err := p.accounts.CreateAccount(ctx, acct); err != nil {
		return Identity{}, chaterr.NewAuth("create account", err)
	}
	log.Infof("created account %s", acct.UID)
	return p.issue(acct)
}

// SignIn checks the credentials and issues a fresh token.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Identity, error) {
	acct, err := p.accounts.AccountByEmail(ctx, normalize.Email(email))
	if chaterr.IsNotFound(err) {
		return Identity{}, chaterr.NewAuth("sign in", errors.New("invalid email or password"))
	}
	if err != nil {
		return Identity{}, chaterr.NewAuth("sign in", err)
	}
	if err := CheckPassword(acct.PasswordHash, password); err != nil {
		return Identity{}, chaterr.NewAuth("sign in", errors.New("invalid email or password"))
	}
	return p.issue(acct)
}

// SignOut revokes the token carried by ctx. Without one it does nothing.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	token, ok := TokenFromContext(ctx)
	if !ok {
		return nil
	}
	claims, err := p.jwt.VerifyToken(token)
	if err != nil {
		return chaterr.NewAuth("sign out", err)
	}
	p.jwt.Revoke(claims)
	return nil
}

// CurrentIdentity resolves the token carried by ctx. A missing, invalid or
// revoked token, or one whose account is gone, is reported as no identity.
func (p *LocalProvider) CurrentIdentity(ctx context.Context) (Identity, bool, error) {
	token, ok := TokenFromContext(ctx)
	if !ok {
		return Identity{}, false, nil
	}
	claims, err := p.jwt.VerifyToken(token)
	if err != nil {
		log.Infof("rejecting session token: %v", err)
		return Identity{}, false, nil
	}
	acct, err := p.accounts.AccountByID(ctx, claims.UserID)
	if chaterr.IsNotFound(err) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, chaterr.NewAuth("current identity", err)
	}

	id := Identity{UID: acct.UID, Email: acct.Email, Token: token}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, true, nil
}

// DeleteAccount removes uid's credentials.
func (p *LocalProvider) DeleteAccount(ctx context.Context, uid string) error {
	return chaterr.NewAuth("delete account", p.accounts.DeleteAccount(ctx, uid))
}

// Verify exposes token verification to transport layers.
func (p *LocalProvider) Verify(token string) (*Claims, error) {
	return p.jwt.VerifyToken(token)
}

func (p *LocalProvider) issue(acct Account) (Identity, error) {
	token, exp, err := p.jwt.GenerateToken(acct.UID, acct.Email)
	if err != nil {
		return Identity{}, chaterr.NewAuth("issue token", err)
	}
	return Identity{UID: acct.UID, Email: acct.Email, Token: token, ExpiresAt: exp}, nil
}
