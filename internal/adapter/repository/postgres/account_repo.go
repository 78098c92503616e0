package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/usecase"
)

const accountColumns = `id, number, owner_id, kind, balance, active, version, created_at, updated_at`

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository. db is usually a
// *pgxpool.Pool.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	conn, err := txConn(tx)
	if err != nil {
		return err
	}

	_, err = conn.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.ID,
		account.Number,
		account.OwnerID,
		string(account.Kind),
		decimalToNumeric(account.Balance),
		account.Active,
		account.Version,
		timeToPgTimestamptz(account.CreatedAt),
		timeToPgTimestamptz(account.UpdatedAt),
	)

	return err
}

// ExistsByNumber reports whether an account number is taken.
func (r *AccountRepository) ExistsByNumber(ctx context.Context, tx usecase.Transaction, number string) (bool, error) {
	conn, err := txConn(tx)
	if err != nil {
		return false, err
	}

	var exists bool
	err = conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE number = $1)`, number).Scan(&exists)

	return exists, err
}

// GetByNumber retrieves an account by its public number.
func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE number = $1`, number)

	return scanAccountRow(row)
}

// GetByNumberForUpdate retrieves an account with a FOR UPDATE lock.
func (r *AccountRepository) GetByNumberForUpdate(ctx context.Context, tx usecase.Transaction, number string) (*domain.Account, error) {
	conn, err := txConn(tx)
	if err != nil {
		return nil, err
	}

	row := conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE number = $1 FOR UPDATE`, number)

	return scanAccountRow(row)
}

// GetByNumbersForUpdate locks several accounts in number order. Missing
// numbers are simply absent from the result.
func (r *AccountRepository) GetByNumbersForUpdate(ctx context.Context, tx usecase.Transaction, numbers []string) ([]*domain.Account, error) {
	conn, err := txConn(tx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE number = ANY($1::text[])
		ORDER BY number
		FOR UPDATE`, numbers)
	if err != nil {
		return nil, err
	}

	return collectAccounts(rows)
}

// UpdateBalance stores a new balance and bumps the version.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error {
	conn, err := txConn(tx)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `
		UPDATE accounts
		SET balance = $2, version = version + 1, updated_at = $3
		WHERE id = $1`,
		id, decimalToNumeric(balance), timeToPgTimestamptz(updatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// SetActive opens or closes an account.
func (r *AccountRepository) SetActive(ctx context.Context, tx usecase.Transaction, id string, active bool, updatedAt time.Time) error {
	conn, err := txConn(tx)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `UPDATE accounts SET active = $2, updated_at = $3 WHERE id = $1`,
		id, active, timeToPgTimestamptz(updatedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// List lists accounts with pagination.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at, number
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectAccounts(rows)
}

// ListByOwner lists a user's accounts with pagination.
func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE owner_id = $1
		ORDER BY created_at, number
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectAccounts(rows)
}

// ListActiveByKind lists every active account of a kind.
func (r *AccountRepository) ListActiveByKind(ctx context.Context, kind domain.AccountKind) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE kind = $1 AND active
		ORDER BY number`, string(kind))
	if err != nil {
		return nil, err
	}

	return collectAccounts(rows)
}

func scanAccountRow(row pgx.Row) (*domain.Account, error) {
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func collectAccounts(rows pgx.Rows) ([]*domain.Account, error) {
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a       domain.Account
		kind    string
		balance pgtype.Numeric
	)

	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.OwnerID,
		&kind,
		&balance,
		&a.Active,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = domain.AccountKind(kind)
	if !a.Kind.IsValid() {
		return nil, fmt.Errorf("account %s: %w: %q", a.Number, domain.ErrInvalidAccountKind, kind)
	}
	a.Balance = numericToDecimal(balance)

	return &a, nil
}
