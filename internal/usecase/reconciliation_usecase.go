package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/domain"
)

// ReconciliationUseCase handles balance reconciliation operations
type ReconciliationUseCase struct {
	accountRepo     AccountRepository
	transactionRepo TransactionRepository
	ledgerRepo      LedgerRepository
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	accountRepo AccountRepository,
	transactionRepo TransactionRepository,
	ledgerRepo LedgerRepository,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		ledgerRepo:      ledgerRepo,
	}
}

// ReconciliationResult represents the result of a reconciliation check
type ReconciliationResult struct {
	AccountNumber     string
	StoredBalance     decimal.Decimal
	CalculatedBalance decimal.Decimal
	LatestRecorded    *decimal.Decimal
	TransactionCount  int64
	Difference        decimal.Decimal
	IsReconciled      bool
	LastChecked       time.Time
}

// ReconcileAccount replays an account's audit trail against its stored
// balance. The account reconciles when the signed sum of its records and the
// resulting balance of its newest record both equal the stored balance.
func (uc *ReconciliationUseCase) ReconcileAccount(ctx context.Context, number string) (*ReconciliationResult, error) {
	account, err := uc.accountRepo.GetByNumber(ctx, number)
	if err != nil {
		return nil, storageError(err)
	}

	return uc.reconcile(ctx, account)
}

func (uc *ReconciliationUseCase) reconcile(ctx context.Context, account *domain.Account) (*ReconciliationResult, error) {
	summary, err := uc.transactionRepo.Summarize(ctx, account.ID)
	if err != nil {
		return nil, storageError(err)
	}

	difference := account.Balance.Sub(summary.Net)
	reconciled := difference.IsZero()
	if summary.LatestBalance != nil && !summary.LatestBalance.Equal(account.Balance) {
		reconciled = false
	}

	return &ReconciliationResult{
		AccountNumber:     account.Number,
		StoredBalance:     account.Balance,
		CalculatedBalance: summary.Net,
		LatestRecorded:    summary.LatestBalance,
		TransactionCount:  summary.Count,
		Difference:        difference,
		IsReconciled:      reconciled,
		LastChecked:       time.Now().UTC(),
	}, nil
}

// ReconcileAllAccounts reconciles all accounts in the system
func (uc *ReconciliationUseCase) ReconcileAllAccounts(ctx context.Context) ([]*ReconciliationResult, error) {
	var results []*ReconciliationResult

	for offset := 0; ; offset += scanPageSize {
		accounts, err := uc.accountRepo.List(ctx, scanPageSize, offset)
		if err != nil {
			return nil, storageError(err)
		}

		for _, account := range accounts {
			result, err := uc.reconcile(ctx, account)
			if err != nil {
				return nil, fmt.Errorf("failed to reconcile account %s: %w", account.Number, err)
			}
			results = append(results, result)
		}

		if len(accounts) < scanPageSize {
			break
		}
	}

	return results, nil
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalAccounts      int
	ReconciledAccounts int
	Discrepancies      []*ReconciliationResult
	TotalBalance       decimal.Decimal
	TotalRecorded      decimal.Decimal
	LedgerConsistent   bool
	CheckedAt          time.Time
}

// CheckConsistency reconciles every account and compares the ledger totals.
func (uc *ReconciliationUseCase) CheckConsistency(ctx context.Context) (*ReconciliationReport, error) {
	results, err := uc.ReconcileAllAccounts(ctx)
	if err != nil {
		return nil, err
	}

	totalBalance, totalRecorded, err := uc.ledgerRepo.CheckConsistency(ctx)
	if err != nil {
		return nil, storageError(err)
	}

	report := &ReconciliationReport{
		TotalAccounts: len(results),
		TotalBalance:  totalBalance,
		TotalRecorded: totalRecorded,
		CheckedAt:     time.Now().UTC(),
	}

	for _, result := range results {
		if result.IsReconciled {
			report.ReconciledAccounts++
		} else {
			report.Discrepancies = append(report.Discrepancies, result)
		}
	}

	report.LedgerConsistent = len(report.Discrepancies) == 0 && totalBalance.Equal(totalRecorded)

	return report, nil
}
