package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/usecase"
)

const transactionColumns = `id, account_id, kind, amount, fee, resulting_balance, transfer_id, counterparty_number, description, created_at`

const transactionSelectColumns = `seq, ` + transactionColumns

// signedAmountSQL mirrors domain.Transaction.SignedAmount.
const signedAmountSQL = `CASE WHEN kind IN ('deposit', 'transfer_in', 'interest') THEN amount - fee ELSE -(amount + fee) END`

// TransactionRepository implements usecase.TransactionRepository. Rows are
// append-only; ordering uses the seq column assigned on insert.
type TransactionRepository struct {
	db DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a record inside tx.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, record *domain.Transaction) error {
	conn, err := txConn(tx)
	if err != nil {
		return err
	}

	_, err = conn.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID,
		record.AccountID,
		string(record.Kind),
		decimalToNumeric(record.Amount),
		decimalToNumeric(record.Fee),
		decimalToNumeric(record.ResultingBalance),
		nullableText(record.TransferID),
		nullableText(record.CounterpartyNumber),
		record.Description,
		timeToPgTimestamptz(record.CreatedAt),
	)

	return err
}

// ListByAccount lists an account's records, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionSelectColumns+`
		FROM transactions
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectTransactions(rows)
}

// ListByAccountBefore lists records older than beforeSeq, newest first. Rows
// committed after the first page have a higher seq and never shift later pages.
func (r *TransactionRepository) ListByAccountBefore(ctx context.Context, accountID string, beforeSeq int64, limit int) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionSelectColumns+`
		FROM transactions
		WHERE account_id = $1 AND ($2::bigint = 0 OR seq < $2::bigint)
		ORDER BY seq DESC
		LIMIT $3`, accountID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}

	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	defer rows.Close()

	var records []*domain.Transaction
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Summarize aggregates an account's audit trail.
func (r *TransactionRepository) Summarize(ctx context.Context, accountID string) (*usecase.TransactionSummary, error) {
	var (
		count  int64
		net    pgtype.Numeric
		latest pgtype.Numeric
	)

	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(`+signedAmountSQL+`), 0),
			(SELECT resulting_balance FROM transactions WHERE account_id = $1 ORDER BY seq DESC LIMIT 1)
		FROM transactions
		WHERE account_id = $1`, accountID).Scan(&count, &net, &latest)
	if err != nil {
		return nil, err
	}

	summary := &usecase.TransactionSummary{
		Count: count,
		Net:   numericToDecimal(net),
	}
	if latest.Valid {
		b := numericToDecimal(latest)
		summary.LatestBalance = &b
	}

	return summary, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t                     domain.Transaction
		kind                  string
		amount, fee, balance  pgtype.Numeric
		transferID, counterID pgtype.Text
	)

	err := row.Scan(
		&t.Seq,
		&t.ID,
		&t.AccountID,
		&kind,
		&amount,
		&fee,
		&balance,
		&transferID,
		&counterID,
		&t.Description,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = domain.TransactionKind(kind)
	if !t.Kind.IsValid() {
		return nil, fmt.Errorf("transaction %s: unknown kind %q", t.ID, kind)
	}
	t.Amount = numericToDecimal(amount)
	t.Fee = numericToDecimal(fee)
	t.ResultingBalance = numericToDecimal(balance)
	t.TransferID = transferID.String
	t.CounterpartyNumber = counterID.String

	return &t, nil
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	db DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CheckConsistency returns the total of account balances and the signed
// total of every recorded transaction. They are equal in a healthy ledger.
func (r *LedgerRepository) CheckConsistency(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	var totalBalance, totalRecorded pgtype.Numeric

	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(balance), 0) FROM accounts),
			(SELECT COALESCE(SUM(`+signedAmountSQL+`), 0) FROM transactions)`,
	).Scan(&totalBalance, &totalRecorded)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return numericToDecimal(totalBalance), numericToDecimal(totalRecorded), nil
}
