package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/domain"
)

// InterestReport summarizes a monthly interest run.
type InterestReport struct {
	AccountsCredited int
	TotalCredited    decimal.Decimal
	Failures         []InterestFailure
	PostedAt         time.Time
}

// InterestFailure is an account that could not be credited.
type InterestFailure struct {
	AccountNumber string
	Err           error
}

// PostMonthlyInterest credits one month of interest to every active savings
// account. Each account is credited in its own storage transaction, so one
// failure does not block the rest.
func (uc *BankingUseCase) PostMonthlyInterest(ctx context.Context) (*InterestReport, error) {
	accounts, err := uc.accountRepo.ListActiveByKind(ctx, domain.AccountKindSavings)
	if err != nil {
		return nil, storageError(err)
	}

	report := &InterestReport{
		TotalCredited: decimal.Zero,
		PostedAt:      time.Now().UTC(),
	}

	for _, candidate := range accounts {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var credited decimal.Decimal
		err := uc.withRetry(ctx, func() error {
			var err error
			credited, err = uc.creditInterest(ctx, candidate.Number)
			return err
		})
		if err != nil {
			report.Failures = append(report.Failures, InterestFailure{AccountNumber: candidate.Number, Err: err})
			continue
		}

		if credited.IsPositive() {
			report.AccountsCredited++
			report.TotalCredited = report.TotalCredited.Add(credited)
		}
	}

	if uc.metrics != nil {
		uc.metrics.InterestCredited.Add(report.TotalCredited.InexactFloat64())
		uc.metrics.Operations.WithLabelValues("interest", "ok").Add(float64(report.AccountsCredited))
		if n := len(report.Failures); n > 0 {
			uc.metrics.Operations.WithLabelValues("interest", "error").Add(float64(n))
		}
	}

	return report, nil
}

func (uc *BankingUseCase) creditInterest(ctx context.Context, number string) (decimal.Decimal, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return decimal.Zero, storageError(err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	account, err := uc.accountRepo.GetByNumberForUpdate(txCtx, tx, number)
	if err != nil {
		return decimal.Zero, storageError(err)
	}

	// Deactivated between listing and locking.
	if !account.Active {
		return decimal.Zero, nil
	}

	interest := account.MonthlyInterest()
	if !interest.IsPositive() {
		return decimal.Zero, nil
	}

	movement, err := account.PlanDeposit(interest)
	if err != nil {
		return decimal.Zero, fmt.Errorf("plan interest for %s: %w", number, err)
	}

	now := time.Now().UTC()
	record, err := uc.apply(txCtx, tx, RecordInput{
		Account:     account,
		Kind:        domain.TransactionInterest,
		Movement:    movement,
		Description: fmt.Sprintf("Monthly interest %s", now.Format("2006-01")),
		At:          now,
	})
	if err != nil {
		return decimal.Zero, err
	}

	event := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   account.ID,
		AggregateType: domain.AggregateTypeAccount,
		EventType:     domain.EventTypeInterestPosted,
		Payload: map[string]any{
			"transaction_id":    record.ID,
			"account_number":    account.Number,
			"amount":            interest.StringFixed(2),
			"resulting_balance": record.ResultingBalance.StringFixed(2),
		},
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return decimal.Zero, storageError(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return decimal.Zero, storageError(err)
	}

	return interest, nil
}

// Err joins all failures of the run, or returns nil.
func (r *InterestReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("account %s: %w", f.AccountNumber, f.Err))
	}
	return errors.Join(errs...)
}
