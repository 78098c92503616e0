package usecase

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iho/gobank/internal/domain"
)

// csvHeader is the column layout of exported statements.
var csvHeader = []string{"id", "created_at", "kind", "amount", "fee", "resulting_balance", "counterparty", "description"}

// HistoryUseCase reads the audit trail of an account.
type HistoryUseCase struct {
	accountRepo     AccountRepository
	transactionRepo TransactionRepository
}

// NewHistoryUseCase creates a new HistoryUseCase.
func NewHistoryUseCase(accountRepo AccountRepository, transactionRepo TransactionRepository) *HistoryUseCase {
	return &HistoryUseCase{
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
	}
}

// ListTransactionsInput represents input for listing transactions.
type ListTransactionsInput struct {
	AccountNumber string
	Limit         int
	Offset        int
}

// ListTransactions returns an account's records, newest first.
func (uc *HistoryUseCase) ListTransactions(ctx context.Context, input ListTransactionsInput) ([]*domain.Transaction, error) {
	account, err := uc.visibleAccount(ctx, input.AccountNumber)
	if err != nil {
		return nil, err
	}

	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)

	records, err := uc.transactionRepo.ListByAccount(ctx, account.ID, limit, offset)
	if err != nil {
		return nil, storageError(err)
	}

	return records, nil
}

// ExportCSV writes the account's full history to w, newest first.
func (uc *HistoryUseCase) ExportCSV(ctx context.Context, accountNumber string, w io.Writer) error {
	account, err := uc.visibleAccount(ctx, accountNumber)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	// Keyset paging: records committed during the export sort above the first
	// page and are left out instead of shifting rows between pages.
	var before int64
	for {
		page, err := uc.transactionRepo.ListByAccountBefore(ctx, account.ID, before, domain.MaxPageSize)
		if err != nil {
			return storageError(err)
		}

		for _, t := range page {
			row := []string{
				t.ID,
				t.CreatedAt.UTC().Format(time.RFC3339),
				string(t.Kind),
				t.Amount.StringFixed(2),
				t.Fee.StringFixed(2),
				t.ResultingBalance.StringFixed(2),
				t.CounterpartyNumber,
				csvSafe(t.Description),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}

		if len(page) < domain.MaxPageSize {
			break
		}

		last := page[len(page)-1].Seq
		if last <= 0 || (before != 0 && last >= before) {
			return fmt.Errorf("%w: transaction %s has no usable sequence", domain.ErrPersistence, page[len(page)-1].ID)
		}
		before = last
	}

	cw.Flush()
	return cw.Error()
}

// csvSafe keeps spreadsheet applications from evaluating a free text cell
// as a formula.
func csvSafe(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func (uc *HistoryUseCase) visibleAccount(ctx context.Context, number string) (*domain.Account, error) {
	account, err := uc.accountRepo.GetByNumber(ctx, number)
	if err != nil {
		return nil, storageError(err)
	}

	if err := authorize(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}
