package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"shop-api/internal/domain"
)

// maxUpdateAttempts acota los reintentos del compare-and-swap por version.
const maxUpdateAttempts = 5

// AccountRepository define el contrato de persistencia para cuentas.
// Update aplica fn sobre una copia y la guarda solo si nadie modifico la
// cuenta entre la lectura y la escritura; si fn devuelve error no se escribe nada.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByEmailVerificationHash(ctx context.Context, tokenHash string) (domain.Account, error)
	GetByResetHash(ctx context.Context, tokenHash string) (domain.Account, error)
	Update(ctx context.Context, id string, fn func(*domain.Account) error) (domain.Account, error)
	Delete(ctx context.Context, id string) (domain.Account, error)
}

// DBTX es el subconjunto de pgxpool.Pool que usan los repositorios.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DBTX = (*pgxpool.Pool)(nil)

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool DBTX
	now  func() time.Time
}

func NewPgAccountRepository(pool DBTX) *PgAccountRepository {
	return &PgAccountRepository{pool: pool, now: time.Now}
}

// WithClock fija la fuente de tiempo usada para updated_at.
func (r *PgAccountRepository) WithClock(now func() time.Time) *PgAccountRepository {
	if now != nil {
		r.now = now
	}
	return r
}

const accountColumns = `
	id, email, first_name, last_name, password_hash, password_history, password_changed_at,
	is_email_verified, email_verification_token_hash, email_verification_expires_at,
	reset_password_token_hash, reset_password_expires_at, failed_login_count, locked_until,
	is_admin, version, created_at, updated_at
`

func (r *PgAccountRepository) Create(ctx context.Context, account domain.Account) error {
	const query = `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.pool.Exec(ctx, query, accountArgs(account)...)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (r *PgAccountRepository) GetByEmailVerificationHash(ctx context.Context, tokenHash string) (domain.Account, error) {
	if tokenHash == "" {
		return domain.Account{}, domain.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email_verification_token_hash = $1`, tokenHash)
}

func (r *PgAccountRepository) GetByResetHash(ctx context.Context, tokenHash string) (domain.Account, error) {
	if tokenHash == "" {
		return domain.Account{}, domain.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reset_password_token_hash = $1`, tokenHash)
}

func (r *PgAccountRepository) Update(ctx context.Context, id string, fn func(*domain.Account) error) (domain.Account, error) {
	const query = `
		UPDATE accounts SET
			email = $2, first_name = $3, last_name = $4, password_hash = $5, password_history = $6,
			password_changed_at = $7, is_email_verified = $8, email_verification_token_hash = $9,
			email_verification_expires_at = $10, reset_password_token_hash = $11,
			reset_password_expires_at = $12, failed_login_count = $13, locked_until = $14,
			is_admin = $15, version = version + 1, updated_at = $17
		WHERE id = $1 AND version = $16
	`
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return domain.Account{}, err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return domain.Account{}, err
		}
		next.ID = current.ID
		next.UpdatedAt = r.now().UTC()

		tag, err := r.pool.Exec(ctx, query,
			next.ID,
			next.Email,
			next.FirstName,
			next.LastName,
			next.PasswordHash,
			historyArg(next.PasswordHistory),
			next.PasswordChangedAt,
			next.IsEmailVerified,
			nullString(next.EmailVerificationTokenHash),
			next.EmailVerificationExpiresAt,
			nullString(next.ResetPasswordTokenHash),
			next.ResetPasswordExpiresAt,
			next.FailedLoginCount,
			next.LockedUntil,
			next.IsAdmin,
			current.Version,
			next.UpdatedAt,
		)
		if err != nil {
			return domain.Account{}, mapPgError(err)
		}
		if tag.RowsAffected() == 1 {
			next.Version = current.Version + 1
			return next, nil
		}
	}
	return domain.Account{}, &domain.Error{Kind: domain.KindConflict, Message: "concurrent account update"}
}

func (r *PgAccountRepository) Delete(ctx context.Context, id string) (domain.Account, error) {
	const query = `DELETE FROM accounts WHERE id = $1 RETURNING ` + accountColumns
	row := r.pool.QueryRow(ctx, query, id)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (r *PgAccountRepository) getOne(ctx context.Context, query string, arg any) (domain.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, query, arg))
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a          domain.Account
		verifyHash *string
		resetHash  *string
		history    []string
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.FirstName,
		&a.LastName,
		&a.PasswordHash,
		&history,
		&a.PasswordChangedAt,
		&a.IsEmailVerified,
		&verifyHash,
		&a.EmailVerificationExpiresAt,
		&resetHash,
		&a.ResetPasswordExpiresAt,
		&a.FailedLoginCount,
		&a.LockedUntil,
		&a.IsAdmin,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, mapPgError(err)
	}
	if verifyHash != nil {
		a.EmailVerificationTokenHash = *verifyHash
	}
	if resetHash != nil {
		a.ResetPasswordTokenHash = *resetHash
	}
	a.PasswordHistory = history
	return a, nil
}

func accountArgs(a domain.Account) []any {
	return []any{
		a.ID,
		a.Email,
		a.FirstName,
		a.LastName,
		a.PasswordHash,
		historyArg(a.PasswordHistory),
		a.PasswordChangedAt,
		a.IsEmailVerified,
		nullString(a.EmailVerificationTokenHash),
		a.EmailVerificationExpiresAt,
		nullString(a.ResetPasswordTokenHash),
		a.ResetPasswordExpiresAt,
		a.FailedLoginCount,
		a.LockedUntil,
		a.IsAdmin,
		a.Version,
		a.CreatedAt,
		a.UpdatedAt,
	}
}

func historyArg(history []string) []string {
	if history == nil {
		return []string{}
	}
	return history
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// mapPgError traduce errores del driver a errores de dominio.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &domain.Error{Kind: domain.KindConflict, Message: "account already exists", Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.Error{Kind: domain.KindTimeout, Message: "store operation interrupted", Err: err}
	}
	return fmt.Errorf("db error: %w", err)
}
