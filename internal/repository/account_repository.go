package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/pharmacy-auth/internal/domain"
)

// AccountRepository is the persistence boundary the auth core reads accounts through.
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	// ResetPassword stores a new hash and bumps the token version in one statement.
	// It returns the new version.
	ResetPassword(ctx context.Context, id, passwordHash string) (int, error)
	SetTwoFactor(ctx context.Context, id string, enabled bool) error
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountColumns = `id, email, name, password_hash, role, two_factor_enabled, token_version, created_at, updated_at`

func (r *accountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email)=lower($1)`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *accountRepository) ResetPassword(ctx context.Context, id, passwordHash string) (int, error) {
	const query = `
        UPDATE accounts
        SET password_hash=$1, token_version=token_version+1, updated_at=NOW()
        WHERE id=$2
        RETURNING token_version`

	var version int
	if err := r.pool.QueryRow(ctx, query, passwordHash, id).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (r *accountRepository) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE accounts SET two_factor_enabled=$1, updated_at=NOW() WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, enabled, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.PasswordHash,
		&account.Role,
		&account.TwoFactorEnabled,
		&account.TokenVersion,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}
