package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/infrastructure/metrics"
)

// BankingUseCase runs deposits, withdrawals and transfers, one storage
// transaction per operation.
type BankingUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	outboxRepo  OutboxRepository
	recorder    *Recorder
	idGen       IDGenerator
	retrier     Retrier
	metrics     *metrics.Metrics
}

// NewBankingUseCase creates a new BankingUseCase. retrier and metrics may be nil.
func NewBankingUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	transactionRepo TransactionRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	retrier Retrier,
	metrics *metrics.Metrics,
) *BankingUseCase {
	return &BankingUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		outboxRepo:  outboxRepo,
		recorder:    NewRecorder(transactionRepo, idGen),
		idGen:       idGen,
		retrier:     retrier,
		metrics:     metrics,
	}
}

// OperationInput is the input of a single-account operation.
type OperationInput struct {
	AccountNumber string
	Amount        decimal.Decimal
	Description   string
}

// OperationResult is the account after the operation and the record it produced.
type OperationResult struct {
	Account     *domain.Account
	Transaction *domain.Transaction
}

// TransferInput represents input for a transfer between two accounts.
type TransferInput struct {
	FromNumber  string
	ToNumber    string
	Amount      decimal.Decimal
	Description string
}

// Deposit credits an account.
func (uc *BankingUseCase) Deposit(ctx context.Context, input OperationInput) (*OperationResult, error) {
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}

	start := time.Now()
	var result *OperationResult
	err := uc.withRetry(ctx, func() error {
		var err error
		result, err = uc.applySingle(ctx, input, domain.TransactionDeposit)
		return err
	})
	uc.observe("deposit", input.Amount, start, result, err)

	return result, err
}

// Withdraw debits an account, charging the kind's fee.
func (uc *BankingUseCase) Withdraw(ctx context.Context, input OperationInput) (*OperationResult, error) {
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}

	start := time.Now()
	var result *OperationResult
	err := uc.withRetry(ctx, func() error {
		var err error
		result, err = uc.applySingle(ctx, input, domain.TransactionWithdraw)
		return err
	})
	uc.observe("withdraw", input.Amount, start, result, err)

	return result, err
}

func (uc *BankingUseCase) applySingle(ctx context.Context, input OperationInput, kind domain.TransactionKind) (*OperationResult, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, storageError(err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	account, err := uc.accountRepo.GetByNumberForUpdate(txCtx, tx, input.AccountNumber)
	if err != nil {
		return nil, storageError(err)
	}

	if err := authorize(ctx, account); err != nil {
		return nil, err
	}

	if err := account.EnsureActive(); err != nil {
		return nil, err
	}

	var movement domain.Movement
	if kind == domain.TransactionDeposit {
		movement, err = account.PlanDeposit(input.Amount)
	} else {
		movement, err = account.PlanWithdrawal(input.Amount)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record, err := uc.apply(txCtx, tx, RecordInput{
		Account:     account,
		Kind:        kind,
		Movement:    movement,
		Description: input.Description,
		At:          now,
	})
	if err != nil {
		return nil, err
	}

	if err := uc.outboxRepo.Create(txCtx, tx, recordedEvent(uc.idGen, account, record)); err != nil {
		return nil, storageError(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, storageError(err)
	}

	return &OperationResult{Account: account, Transaction: record}, nil
}

// Transfer moves money between two accounts atomically: either both legs
// are applied and recorded, or nothing changes.
func (uc *BankingUseCase) Transfer(ctx context.Context, input TransferInput) (*domain.TransferResult, error) {
	transfer := &domain.Transfer{
		FromNumber:  input.FromNumber,
		ToNumber:    input.ToNumber,
		Amount:      input.Amount,
		Description: input.Description,
	}
	if err := transfer.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var result *domain.TransferResult
	err := uc.withRetry(ctx, func() error {
		var err error
		result, err = uc.transfer(ctx, transfer)
		return err
	})

	var source *OperationResult
	if result != nil {
		source = &OperationResult{Account: result.Source, Transaction: result.Debit}
	}
	uc.observe("transfer", input.Amount, start, source, err)

	return result, err
}

func (uc *BankingUseCase) transfer(ctx context.Context, transfer *domain.Transfer) (*domain.TransferResult, error) {
	// Lock both rows in a stable order so opposing transfers cannot deadlock.
	numbers := []string{transfer.FromNumber, transfer.ToNumber}
	sort.Strings(numbers)

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, storageError(err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	accounts, err := uc.accountRepo.GetByNumbersForUpdate(txCtx, tx, numbers)
	if err != nil {
		return nil, storageError(err)
	}

	byNumber := make(map[string]*domain.Account, len(accounts))
	for _, a := range accounts {
		byNumber[a.Number] = a
	}

	source := byNumber[transfer.FromNumber]
	destination := byNumber[transfer.ToNumber]
	if source == nil || destination == nil {
		return nil, domain.ErrAccountNotFound
	}

	if err := authorize(ctx, source); err != nil {
		return nil, err
	}

	if err := source.EnsureActive(); err != nil {
		return nil, err
	}
	if err := destination.EnsureActive(); err != nil {
		return nil, err
	}

	debit, err := source.PlanWithdrawal(transfer.Amount)
	if err != nil {
		return nil, err
	}

	credit, err := destination.PlanDeposit(transfer.Amount)
	if err != nil {
		return nil, err
	}

	transfer.ID = uc.idGen.Generate()
	now := time.Now().UTC()

	debitRecord, err := uc.apply(txCtx, tx, RecordInput{
		Account:            source,
		Kind:               domain.TransactionTransferOut,
		Movement:           debit,
		TransferID:         transfer.ID,
		CounterpartyNumber: destination.Number,
		Description:        transfer.Description,
		At:                 now,
	})
	if err != nil {
		return nil, err
	}

	creditRecord, err := uc.apply(txCtx, tx, RecordInput{
		Account:            destination,
		Kind:               domain.TransactionTransferIn,
		Movement:           credit,
		TransferID:         transfer.ID,
		CounterpartyNumber: source.Number,
		Description:        transfer.Description,
		At:                 now,
	})
	if err != nil {
		return nil, err
	}

	event := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   transfer.ID,
		AggregateType: domain.AggregateTypeTransfer,
		EventType:     domain.EventTypeTransferCompleted,
		Payload: map[string]any{
			"transfer_id":  transfer.ID,
			"from_account": source.Number,
			"to_account":   destination.Number,
			"amount":       transfer.Amount.StringFixed(2),
			"fee":          debit.Fee.StringFixed(2),
		},
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, storageError(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, storageError(err)
	}

	return &domain.TransferResult{
		TransferID:  transfer.ID,
		Source:      source,
		Destination: destination,
		Debit:       debitRecord,
		Credit:      creditRecord,
	}, nil
}

// apply persists the planned balance, records it, and only then updates the
// in-memory account.
func (uc *BankingUseCase) apply(ctx context.Context, tx Transaction, in RecordInput) (*domain.Transaction, error) {
	return applyMovement(ctx, tx, uc.accountRepo, uc.recorder, in)
}

func applyMovement(ctx context.Context, tx Transaction, accountRepo AccountRepository, recorder *Recorder, in RecordInput) (*domain.Transaction, error) {
	if err := accountRepo.UpdateBalance(ctx, tx, in.Account.ID, in.Movement.NewBalance, in.At); err != nil {
		return nil, storageError(err)
	}

	record, err := recorder.Record(ctx, tx, in)
	if err != nil {
		return nil, err
	}

	in.Account.Apply(in.Movement, in.At)
	return record, nil
}

func (uc *BankingUseCase) withRetry(ctx context.Context, op func() error) error {
	if uc.retrier == nil {
		return op()
	}
	return uc.retrier.Retry(ctx, op)
}

func (uc *BankingUseCase) observe(operation string, amount decimal.Decimal, start time.Time, result *OperationResult, err error) {
	if uc.metrics == nil {
		return
	}

	uc.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		uc.metrics.Operations.WithLabelValues(operation, "error").Inc()
		uc.metrics.OperationErrors.WithLabelValues(operation, errorType(err)).Inc()
		return
	}

	uc.metrics.Operations.WithLabelValues(operation, "ok").Inc()
	uc.metrics.OperationAmount.WithLabelValues(operation).Observe(amount.InexactFloat64())
	if result != nil && result.Transaction != nil && result.Transaction.Fee.IsPositive() {
		uc.metrics.FeesCharged.Add(result.Transaction.Fee.InexactFloat64())
	}
}

func recordedEvent(idGen IDGenerator, account *domain.Account, record *domain.Transaction) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:            idGen.Generate(),
		AggregateID:   account.ID,
		AggregateType: domain.AggregateTypeAccount,
		EventType:     domain.EventTypeTransactionRecorded,
		Payload: map[string]any{
			"transaction_id":    record.ID,
			"account_number":    account.Number,
			"kind":              string(record.Kind),
			"amount":            record.Amount.StringFixed(2),
			"fee":               record.Fee.StringFixed(2),
			"resulting_balance": record.ResultingBalance.StringFixed(2),
		},
		CreatedAt: record.CreatedAt,
	}
}
