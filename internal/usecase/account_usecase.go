package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/infrastructure/metrics"
)

// AccountUseCase handles the account lifecycle.
type AccountUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	outboxRepo  OutboxRepository
	recorder    *Recorder
	idGen       IDGenerator
	numberGen   AccountNumberGenerator
	retrier     Retrier
	metrics     *metrics.Metrics
}

// NewAccountUseCase creates a new AccountUseCase. retrier and metrics may be nil.
func NewAccountUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	transactionRepo TransactionRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	numberGen AccountNumberGenerator,
	retrier Retrier,
	metrics *metrics.Metrics,
) *AccountUseCase {
	return &AccountUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		outboxRepo:  outboxRepo,
		recorder:    NewRecorder(transactionRepo, idGen),
		idGen:       idGen,
		numberGen:   numberGen,
		retrier:     retrier,
		metrics:     metrics,
	}
}

// OpenAccountInput represents input for opening an account.
type OpenAccountInput struct {
	OwnerID        string
	Kind           domain.AccountKind
	InitialDeposit decimal.Decimal
}

// OpenAccount creates an account and books its opening deposit in the same
// storage transaction.
func (uc *AccountUseCase) OpenAccount(ctx context.Context, input OpenAccountInput) (*domain.Account, error) {
	if input.OwnerID == "" {
		if user, ok := domain.UserFromContext(ctx); ok {
			input.OwnerID = user.ID
		}
	}
	if input.OwnerID == "" {
		return nil, domain.ErrUnauthorized
	}

	if err := domain.ValidateOpeningDeposit(input.Kind, input.InitialDeposit); err != nil {
		return nil, err
	}

	var account *domain.Account
	err := uc.withRetry(ctx, func() error {
		var err error
		account, err = uc.open(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AccountsOpened.WithLabelValues(string(account.Kind)).Inc()
	}

	return account, nil
}

// open runs one attempt at creating the account; a retry starts a fresh
// transaction and a fresh number.
func (uc *AccountUseCase) open(ctx context.Context, input OpenAccountInput) (*domain.Account, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, storageError(err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	number, err := uc.allocateNumber(txCtx, tx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:        uc.idGen.Generate(),
		Number:    number,
		OwnerID:   input.OwnerID,
		Kind:      input.Kind,
		Balance:   decimal.Zero,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.accountRepo.Create(txCtx, tx, account); err != nil {
		return nil, storageError(err)
	}

	movement, err := account.PlanDeposit(input.InitialDeposit)
	if err != nil {
		return nil, err
	}

	record, err := applyMovement(txCtx, tx, uc.accountRepo, uc.recorder, RecordInput{
		Account:     account,
		Kind:        domain.TransactionDeposit,
		Movement:    movement,
		Description: "Opening deposit",
		At:          now,
	})
	if err != nil {
		return nil, err
	}

	opened := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   account.ID,
		AggregateType: domain.AggregateTypeAccount,
		EventType:     domain.EventTypeAccountOpened,
		Payload: map[string]any{
			"account_id":      account.ID,
			"account_number":  account.Number,
			"owner_id":        account.OwnerID,
			"kind":            string(account.Kind),
			"initial_deposit": input.InitialDeposit.StringFixed(2),
		},
		CreatedAt: now,
	}
	for _, event := range []*domain.OutboxEvent{opened, recordedEvent(uc.idGen, account, record)} {
		if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
			return nil, storageError(err)
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, storageError(err)
	}

	return account, nil
}

func (uc *AccountUseCase) withRetry(ctx context.Context, op func() error) error {
	if uc.retrier == nil {
		return op()
	}
	return uc.retrier.Retry(ctx, op)
}

func (uc *AccountUseCase) allocateNumber(ctx context.Context, tx Transaction) (string, error) {
	for range maxNumberAttempts {
		number := uc.numberGen.Generate()

		exists, err := uc.accountRepo.ExistsByNumber(ctx, tx, number)
		if err != nil {
			return "", storageError(err)
		}
		if !exists {
			return number, nil
		}
	}

	return "", fmt.Errorf("%w: no free account number after %d attempts", domain.ErrPersistence, maxNumberAttempts)
}

// GetAccount retrieves an account the caller may see.
func (uc *AccountUseCase) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	account, err := uc.accountRepo.GetByNumber(ctx, number)
	if err != nil {
		return nil, storageError(err)
	}

	if err := authorize(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

// ListAccountsInput represents input for listing accounts.
type ListAccountsInput struct {
	Limit  int
	Offset int
}

// ListAccounts lists the caller's accounts, or every account for admins.
func (uc *AccountUseCase) ListAccounts(ctx context.Context, input ListAccountsInput) ([]*domain.Account, error) {
	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)

	var (
		accounts []*domain.Account
		err      error
	)
	if user, ok := domain.UserFromContext(ctx); ok && !user.Role.CanManageAccounts() {
		accounts, err = uc.accountRepo.ListByOwner(ctx, user.ID, limit, offset)
	} else {
		accounts, err = uc.accountRepo.List(ctx, limit, offset)
	}
	if err != nil {
		return nil, storageError(err)
	}

	return accounts, nil
}

// AccountSummary is the dashboard view of a customer's accounts.
type AccountSummary struct {
	Accounts       []*domain.Account
	ActiveAccounts int
	TotalBalance   decimal.Decimal
}

// Summary totals the balances of the caller's active accounts.
func (uc *AccountUseCase) Summary(ctx context.Context) (*AccountSummary, error) {
	user, ok := domain.UserFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	summary := &AccountSummary{TotalBalance: decimal.Zero}
	for offset := 0; ; offset += domain.MaxPageSize {
		page, err := uc.accountRepo.ListByOwner(ctx, user.ID, domain.MaxPageSize, offset)
		if err != nil {
			return nil, storageError(err)
		}

		for _, account := range page {
			summary.Accounts = append(summary.Accounts, account)
			if account.Active {
				summary.ActiveAccounts++
				summary.TotalBalance = summary.TotalBalance.Add(account.Balance)
			}
		}

		if len(page) < domain.MaxPageSize {
			break
		}
	}

	return summary, nil
}

// DeactivateAccount closes an account for further operations. The balance
// and history are kept.
func (uc *AccountUseCase) DeactivateAccount(ctx context.Context, number string) (*domain.Account, error) {
	if user, ok := domain.UserFromContext(ctx); ok && !user.Role.CanManageAccounts() {
		return nil, domain.ErrInsufficientRole
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, storageError(err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	account, err := uc.accountRepo.GetByNumberForUpdate(txCtx, tx, number)
	if err != nil {
		return nil, storageError(err)
	}

	if !account.Active {
		return account, nil
	}

	now := time.Now().UTC()
	if err := uc.accountRepo.SetActive(txCtx, tx, account.ID, false, now); err != nil {
		return nil, storageError(err)
	}

	event := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   account.ID,
		AggregateType: domain.AggregateTypeAccount,
		EventType:     domain.EventTypeAccountDeactivated,
		Payload: map[string]any{
			"account_number": account.Number,
			"balance":        account.Balance.StringFixed(2),
		},
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, storageError(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, storageError(err)
	}

	account.Active = false
	account.UpdatedAt = now

	if uc.metrics != nil {
		uc.metrics.AccountsDeactivated.Inc()
	}

	return account, nil
}
