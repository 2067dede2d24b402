package auth

import (
	"context"
	"errors"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresAccounts keeps credentials in the accounts table.
type PostgresAccounts struct {
	pool *pgxpool.Pool
}

// NewPostgresAccounts returns a PostgresAccounts over pool.
func NewPostgresAccounts(pool *pgxpool.Pool) *PostgresAccounts {
	return &PostgresAccounts{pool: pool}
}

func (p *PostgresAccounts) CreateAccount(ctx context.Context, a Account) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO accounts (uid, email, password, created_at) VALUES ($1, $2, $3, $4)`,
		a.UID, a.Email, a.PasswordHash, a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAccountExists
	}
	return err
}

func (p *PostgresAccounts) AccountByEmail(ctx context.Context, email string) (Account, error) {
	return p.queryOne(ctx, `SELECT uid, email, password, created_at FROM accounts WHERE email = $1`, email)
}

func (p *PostgresAccounts) AccountByID(ctx context.Context, uid string) (Account, error) {
	return p.queryOne(ctx, `SELECT uid, email, password, created_at FROM accounts WHERE uid = $1`, uid)
}

func (p *PostgresAccounts) DeleteAccount(ctx context.Context, uid string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM accounts WHERE uid = $1`, uid)
	return err
}

func (p *PostgresAccounts) queryOne(ctx context.Context, query string, arg string) (Account, error) {
	var a Account
	err := p.pool.QueryRow(ctx, query, arg).Scan(&a.UID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, chaterr.ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}
