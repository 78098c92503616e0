package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/infrastructure/metrics"
	"github.com/iho/gobank/internal/usecase"
	"github.com/iho/gobank/internal/usecase/mocks"
)

type bankingFixture struct {
	accounts *mocks.MockAccountRepository
	records  *mocks.MockTransactionRepository
	outbox   *mocks.MockOutboxRepository
	txMgr    *mocks.MockTransactionManager
	uc       *usecase.BankingUseCase
}

func newBankingFixture(t *testing.T, accounts ...*domain.Account) *bankingFixture {
	t.Helper()

	f := &bankingFixture{
		accounts: mocks.NewMockAccountRepository(),
		records:  mocks.NewMockTransactionRepository(),
		outbox:   mocks.NewMockOutboxRepository(),
		txMgr:    mocks.NewMockTransactionManager(),
	}
	f.accounts.Add(accounts...)
	f.uc = usecase.NewBankingUseCase(f.txMgr, f.accounts, f.records, f.outbox, mocks.NewMockIDGenerator(), nil, nil)

	return f
}

func savings(number, balance string) *domain.Account {
	return &domain.Account{
		ID:      "id-" + number,
		Number:  number,
		OwnerID: "owner-1",
		Kind:    domain.AccountKindSavings,
		Balance: decimal.RequireFromString(balance),
		Active:  true,
	}
}

func current(number, balance string) *domain.Account {
	acc := savings(number, balance)
	acc.Kind = domain.AccountKindCurrent
	return acc
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBankingUseCase_Deposit(t *testing.T) {
	f := newBankingFixture(t, savings("100000000001", "500"))

	result, err := f.uc.Deposit(context.Background(), usecase.OperationInput{
		AccountNumber: "100000000001",
		Amount:        amount("250.25"),
		Description:   "salary",
	})
	require.NoError(t, err)

	assert.True(t, result.Account.Balance.Equal(amount("750.25")))
	assert.Equal(t, domain.TransactionDeposit, result.Transaction.Kind)
	assert.True(t, result.Transaction.ResultingBalance.Equal(result.Account.Balance))
	assert.True(t, result.Transaction.Fee.IsZero())

	stored := f.accounts.Snapshot("100000000001")
	assert.True(t, stored.Balance.Equal(amount("750.25")))

	records := f.records.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "salary", records[0].Description)

	events := f.outbox.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeTransactionRecorded, events[0].EventType)
}

func TestBankingUseCase_DepositRejectsInvalidAmount(t *testing.T) {
	for _, raw := range []string{"0", "-5", "1.001"} {
		t.Run(raw, func(t *testing.T) {
			f := newBankingFixture(t, savings("100000000001", "500"))

			_, err := f.uc.Deposit(context.Background(), usecase.OperationInput{
				AccountNumber: "100000000001",
				Amount:        amount(raw),
			})
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
			assert.Empty(t, f.txMgr.Transactions(), "no storage transaction for invalid input")
		})
	}
}

func TestBankingUseCase_Withdraw(t *testing.T) {
	tests := []struct {
		name        string
		account     *domain.Account
		amount      string
		wantBalance string
		wantFee     string
		wantErr     error
	}{
		{name: "savings at minimum rejects one", account: savings("100000000001", "500"), amount: "1", wantErr: domain.ErrLimitExceeded},
		{name: "savings rejects zero", account: savings("100000000001", "500"), amount: "0", wantErr: domain.ErrInvalidAmount},
		{name: "savings down to minimum", account: savings("100000000001", "800"), amount: "300", wantBalance: "500", wantFee: "0"},
		{name: "current into overdraft", account: current("100000000001", "0"), amount: "100", wantBalance: "-110", wantFee: "10"},
		{name: "current past overdraft", account: current("100000000001", "0"), amount: "9991", wantErr: domain.ErrLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBankingFixture(t, tt.account)

			result, err := f.uc.Withdraw(context.Background(), usecase.OperationInput{
				AccountNumber: tt.account.Number,
				Amount:        amount(tt.amount),
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, f.accounts.Snapshot(tt.account.Number).Balance.Equal(tt.account.Balance), "balance must be unchanged")
				assert.Empty(t, f.records.Records())
				return
			}

			require.NoError(t, err)
			assert.True(t, result.Account.Balance.Equal(amount(tt.wantBalance)), "balance %s", result.Account.Balance)
			assert.True(t, result.Transaction.Fee.Equal(amount(tt.wantFee)))
			assert.True(t, result.Transaction.ResultingBalance.Equal(amount(tt.wantBalance)))
			assert.Len(t, f.records.Records(), 1)
		})
	}
}

func TestBankingUseCase_WithdrawUnknownAndInactive(t *testing.T) {
	inactive := savings("100000000002", "900")
	inactive.Active = false
	f := newBankingFixture(t, inactive)

	_, err := f.uc.Withdraw(context.Background(), usecase.OperationInput{AccountNumber: "999999999999", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = f.uc.Withdraw(context.Background(), usecase.OperationInput{AccountNumber: "100000000002", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrAccountInactive)
}

func TestBankingUseCase_Ownership(t *testing.T) {
	f := newBankingFixture(t, savings("100000000001", "1000"))

	stranger := domain.WithUser(context.Background(), &domain.User{ID: "someone-else", Role: domain.RoleCustomer})
	_, err := f.uc.Withdraw(stranger, usecase.OperationInput{AccountNumber: "100000000001", Amount: amount("10")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	owner := domain.WithUser(context.Background(), &domain.User{ID: "owner-1", Role: domain.RoleCustomer})
	_, err = f.uc.Withdraw(owner, usecase.OperationInput{AccountNumber: "100000000001", Amount: amount("10")})
	assert.NoError(t, err)

	admin := domain.WithUser(context.Background(), &domain.User{ID: "root", Role: domain.RoleAdmin})
	_, err = f.uc.Deposit(admin, usecase.OperationInput{AccountNumber: "100000000001", Amount: amount("10")})
	assert.NoError(t, err)
}

func TestBankingUseCase_RecordFailureLeavesNoOrphanBalance(t *testing.T) {
	f := newBankingFixture(t, current("100000000001", "1000"))
	f.records.CreateFunc = func(context.Context, usecase.Transaction, *domain.Transaction) error {
		return errors.New("connection reset")
	}

	_, err := f.uc.Withdraw(context.Background(), usecase.OperationInput{AccountNumber: "100000000001", Amount: amount("100")})
	require.ErrorIs(t, err, domain.ErrPersistence)

	assert.True(t, f.accounts.Snapshot("100000000001").Balance.Equal(amount("1000")))
	assert.Empty(t, f.outbox.Events())

	txs := f.txMgr.Transactions()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].RolledBack)
	assert.False(t, txs[0].Committed)
}

func TestBankingUseCase_CommitFailureIsPersistenceError(t *testing.T) {
	f := newBankingFixture(t, savings("100000000001", "1000"))
	f.txMgr.BeginFunc = func(context.Context) (usecase.Transaction, error) {
		return &mocks.MockTransaction{CommitFunc: func(context.Context) error { return errors.New("commit failed") }}, nil
	}

	_, err := f.uc.Deposit(context.Background(), usecase.OperationInput{AccountNumber: "100000000001", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.True(t, f.accounts.Snapshot("100000000001").Balance.Equal(amount("1000")))
}

func TestBankingUseCase_Transfer(t *testing.T) {
	f := newBankingFixture(t, current("100000000001", "1000"), savings("100000000002", "500"))

	result, err := f.uc.Transfer(context.Background(), usecase.TransferInput{
		FromNumber:  "100000000001",
		ToNumber:    "100000000002",
		Amount:      amount("200"),
		Description: "rent",
	})
	require.NoError(t, err)

	assert.True(t, result.Source.Balance.Equal(amount("790")), "source pays amount plus fee")
	assert.True(t, result.Destination.Balance.Equal(amount("700")))
	assert.Equal(t, result.TransferID, result.Debit.TransferID)
	assert.Equal(t, result.TransferID, result.Credit.TransferID)
	assert.Equal(t, "100000000002", result.Debit.CounterpartyNumber)
	assert.Equal(t, "100000000001", result.Credit.CounterpartyNumber)

	records := f.records.Records()
	require.Len(t, records, 2)
	assert.Equal(t, domain.TransactionTransferOut, records[0].Kind)
	assert.Equal(t, domain.TransactionTransferIn, records[1].Kind)

	assert.True(t, f.accounts.Snapshot("100000000001").Balance.Equal(amount("790")))
	assert.True(t, f.accounts.Snapshot("100000000002").Balance.Equal(amount("700")))

	require.Len(t, f.txMgr.Transactions(), 1, "both legs share one storage transaction")
	events := f.outbox.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeTransferCompleted, events[0].EventType)
}

func TestBankingUseCase_TransferLocksInSortedOrder(t *testing.T) {
	f := newBankingFixture(t, savings("100000000009", "5000"), savings("100000000001", "500"))

	var locked []string
	f.accounts.GetByNumbersForUpdateFunc = func(_ context.Context, _ usecase.Transaction, numbers []string) ([]*domain.Account, error) {
		locked = numbers
		return []*domain.Account{f.accounts.Snapshot(numbers[0]), f.accounts.Snapshot(numbers[1])}, nil
	}

	_, err := f.uc.Transfer(context.Background(), usecase.TransferInput{FromNumber: "100000000009", ToNumber: "100000000001", Amount: amount("10")})
	require.NoError(t, err)
	assert.Equal(t, []string{"100000000001", "100000000009"}, locked)
}

func TestBankingUseCase_TransferFailures(t *testing.T) {
	tests := []struct {
		name    string
		from    *domain.Account
		to      *domain.Account
		input   usecase.TransferInput
		wantErr error
	}{
		{
			name:    "same account",
			from:    savings("100000000001", "1000"),
			to:      savings("100000000002", "1000"),
			input:   usecase.TransferInput{FromNumber: "100000000001", ToNumber: "100000000001", Amount: amount("1")},
			wantErr: domain.ErrSameAccount,
		},
		{
			name:    "invalid amount",
			from:    savings("100000000001", "1000"),
			to:      savings("100000000002", "1000"),
			input:   usecase.TransferInput{FromNumber: "100000000001", ToNumber: "100000000002", Amount: amount("-1")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name: "insufficient funds leaves destination untouched",
			from:    current("100000000001", "150"),
			to:      savings("100000000002", "1000"),
			input:   usecase.TransferInput{FromNumber: "100000000001", ToNumber: "100000000002", Amount: amount("10150")},
			wantErr: domain.ErrLimitExceeded,
		},
		{
			name:    "savings source would breach minimum",
			from:    savings("100000000001", "650"),
			to:      savings("100000000002", "1000"),
			input:   usecase.TransferInput{FromNumber: "100000000001", ToNumber: "100000000002", Amount: amount("200")},
			wantErr: domain.ErrLimitExceeded,
		},
		{
			name: "inactive destination",
			from: savings("100000000001", "5000"),
			to: func() *domain.Account {
				a := savings("100000000002", "1000")
				a.Active = false
				return a
			}(),
			input:   usecase.TransferInput{FromNumber: "100000000001", ToNumber: "100000000002", Amount: amount("1")},
			wantErr: domain.ErrAccountInactive,
		},
		{
			name:    "unknown destination",
			from:    savings("100000000001", "5000"),
			to:      savings("100000000002", "1000"),
			input:   usecase.TransferInput{FromNumber: "100000000001", ToNumber: "100000000003", Amount: amount("1")},
			wantErr: domain.ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBankingFixture(t, tt.from, tt.to)

			_, err := f.uc.Transfer(context.Background(), tt.input)
			require.ErrorIs(t, err, tt.wantErr)

			assert.True(t, f.accounts.Snapshot(tt.from.Number).Balance.Equal(tt.from.Balance))
			assert.True(t, f.accounts.Snapshot(tt.to.Number).Balance.Equal(tt.to.Balance))
			assert.Empty(t, f.records.Records(), "no record on either side")
			assert.Empty(t, f.outbox.Events())
		})
	}
}

func TestBankingUseCase_TransferCreditLegFailureRollsBackDebit(t *testing.T) {
	f := newBankingFixture(t, savings("100000000001", "5000"), savings("100000000002", "500"))

	calls := 0
	f.records.CreateFunc = func(context.Context, usecase.Transaction, *domain.Transaction) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return nil
	}

	_, err := f.uc.Transfer(context.Background(), usecase.TransferInput{FromNumber: "100000000001", ToNumber: "100000000002", Amount: amount("100")})
	require.ErrorIs(t, err, domain.ErrPersistence)

	assert.True(t, f.accounts.Snapshot("100000000001").Balance.Equal(amount("5000")))
	assert.True(t, f.accounts.Snapshot("100000000002").Balance.Equal(amount("500")))
}

func TestBankingUseCase_RetriesWholeOperation(t *testing.T) {
	f := newBankingFixture(t, savings("100000000001", "1000"))

	attempts := 0
	retrier := &mocks.MockRetrier{
		RetryFunc: func(_ context.Context, op func() error) error {
			for {
				attempts++
				err := op()
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && attempts < 3 {
					continue
				}
				return err
			}
		},
	}

	failures := 1
	f.records.CreateFunc = func(context.Context, usecase.Transaction, *domain.Transaction) error {
		if failures > 0 {
			failures--
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	}

	uc := usecase.NewBankingUseCase(f.txMgr, f.accounts, f.records, f.outbox, mocks.NewMockIDGenerator(), retrier, nil)
	result, err := uc.Deposit(context.Background(), usecase.OperationInput{AccountNumber: "100000000001", Amount: amount("50")})
	require.NoError(t, err)

	assert.Equal(t, 2, attempts)
	assert.True(t, result.Account.Balance.Equal(amount("1050")))
	assert.True(t, f.accounts.Snapshot("100000000001").Balance.Equal(amount("1050")), "first attempt rolled back, second applied once")
	assert.Len(t, f.txMgr.Transactions(), 2)
}

func TestBankingUseCase_Metrics(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	f := newBankingFixture(t, current("100000000001", "1000"))
	uc := usecase.NewBankingUseCase(f.txMgr, f.accounts, f.records, f.outbox, mocks.NewMockIDGenerator(), nil, m)

	_, err := uc.Withdraw(context.Background(), usecase.OperationInput{AccountNumber: "100000000001", Amount: amount("100")})
	require.NoError(t, err)
	_, err = uc.Withdraw(context.Background(), usecase.OperationInput{AccountNumber: "100000000001", Amount: amount("20000")})
	require.ErrorIs(t, err, domain.ErrLimitExceeded)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("withdraw", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationErrors.WithLabelValues("withdraw", "limit_exceeded")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.FeesCharged))
}

func TestBankingUseCase_BalanceNeverBelowFloor(t *testing.T) {
	f := newBankingFixture(t, savings("100000000001", "1000"), current("100000000002", "0"))
	ctx := context.Background()

	steps := []struct {
		number string
		op     string
		amount string
	}{
		{"100000000001", "withdraw", "400"},
		{"100000000001", "withdraw", "200"},
		{"100000000001", "deposit", "50"},
		{"100000000001", "withdraw", "60"},
		{"100000000002", "withdraw", "5000"},
		{"100000000002", "withdraw", "4990"},
		{"100000000002", "withdraw", "1"},
		{"100000000002", "deposit", "20"},
	}

	for _, s := range steps {
		in := usecase.OperationInput{AccountNumber: s.number, Amount: amount(s.amount)}
		if s.op == "deposit" {
			_, _ = f.uc.Deposit(ctx, in)
		} else {
			_, _ = f.uc.Withdraw(ctx, in)
		}

		acc := f.accounts.Snapshot(s.number)
		assert.False(t, acc.Balance.LessThan(acc.Floor()), "%s balance %s below floor", s.number, acc.Balance)
	}

	// Every committed record's resulting balance chains to the stored balance.
	for _, number := range []string{"100000000001", "100000000002"} {
		acc := f.accounts.Snapshot(number)
		history, err := f.records.ListByAccount(ctx, acc.ID, 0, 0)
		require.NoError(t, err)
		require.NotEmpty(t, history)
		assert.True(t, history[0].ResultingBalance.Equal(acc.Balance))
	}
}
