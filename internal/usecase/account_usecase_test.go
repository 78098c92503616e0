package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/infrastructure/metrics"
	"github.com/iho/gobank/internal/usecase"
	"github.com/iho/gobank/internal/usecase/mocks"
)

type accountFixture struct {
	accounts *mocks.MockAccountRepository
	records  *mocks.MockTransactionRepository
	outbox   *mocks.MockOutboxRepository
	numbers  *mocks.MockAccountNumberGenerator
	uc       *usecase.AccountUseCase
}

func newAccountFixture(m *metrics.Metrics) *accountFixture {
	f := &accountFixture{
		accounts: mocks.NewMockAccountRepository(),
		records:  mocks.NewMockTransactionRepository(),
		outbox:   mocks.NewMockOutboxRepository(),
		numbers:  mocks.NewMockAccountNumberGenerator(),
	}
	f.uc = usecase.NewAccountUseCase(
		mocks.NewMockTransactionManager(),
		f.accounts,
		f.records,
		f.outbox,
		mocks.NewMockIDGenerator(),
		f.numbers,
		nil,
		m,
	)
	return f
}

func asUser(id string, role domain.Role) context.Context {
	return domain.WithUser(context.Background(), &domain.User{ID: id, Role: role, Active: true})
}

func TestAccountUseCase_OpenAccount(t *testing.T) {
	tests := []struct {
		name        string
		input       usecase.OpenAccountInput
		expectError error
	}{
		{
			name:  "savings with minimum opening deposit",
			input: usecase.OpenAccountInput{Kind: domain.AccountKindSavings, InitialDeposit: decimal.NewFromInt(500)},
		},
		{
			name:  "current with minimum opening deposit",
			input: usecase.OpenAccountInput{Kind: domain.AccountKindCurrent, InitialDeposit: decimal.NewFromInt(1000)},
		},
		{
			name:        "savings below opening deposit",
			input:       usecase.OpenAccountInput{Kind: domain.AccountKindSavings, InitialDeposit: decimal.NewFromInt(499)},
			expectError: domain.ErrOpeningDepositTooLow,
		},
		{
			name:        "current below opening deposit",
			input:       usecase.OpenAccountInput{Kind: domain.AccountKindCurrent, InitialDeposit: decimal.NewFromInt(999)},
			expectError: domain.ErrOpeningDepositTooLow,
		},
		{
			name:        "unknown kind",
			input:       usecase.OpenAccountInput{Kind: "fixed", InitialDeposit: decimal.NewFromInt(5000)},
			expectError: domain.ErrInvalidAccountKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAccountFixture(nil)

			account, err := f.uc.OpenAccount(asUser("user-1", domain.RoleCustomer), tt.input)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Fatalf("expected %v, got %v", tt.expectError, err)
				}
				if len(f.records.Records()) != 0 {
					t.Error("expected no records for rejected account")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if account.OwnerID != "user-1" {
				t.Errorf("expected owner from context, got %q", account.OwnerID)
			}
			if len(account.Number) != domain.AccountNumberLength {
				t.Errorf("expected %d digit number, got %q", domain.AccountNumberLength, account.Number)
			}
			if !account.Balance.Equal(tt.input.InitialDeposit) {
				t.Errorf("expected balance %s, got %s", tt.input.InitialDeposit, account.Balance)
			}

			stored := f.accounts.Snapshot(account.Number)
			if stored == nil || !stored.Balance.Equal(tt.input.InitialDeposit) {
				t.Fatalf("expected stored balance %s, got %+v", tt.input.InitialDeposit, stored)
			}

			records := f.records.Records()
			if len(records) != 1 || records[0].Kind != domain.TransactionDeposit {
				t.Fatalf("expected one opening deposit record, got %+v", records)
			}

			events := f.outbox.Events()
			if len(events) != 2 || events[0].EventType != domain.EventTypeAccountOpened {
				t.Errorf("expected account.opened and transaction.recorded events, got %d", len(events))
			}
		})
	}
}

func TestAccountUseCase_OpenAccountRequiresOwner(t *testing.T) {
	f := newAccountFixture(nil)

	_, err := f.uc.OpenAccount(context.Background(), usecase.OpenAccountInput{
		Kind:           domain.AccountKindSavings,
		InitialDeposit: decimal.NewFromInt(500),
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAccountUseCase_OpenAccountRetriesNumberCollision(t *testing.T) {
	f := newAccountFixture(nil)
	f.accounts.Add(&domain.Account{ID: "existing", Number: "123456789012", Kind: domain.AccountKindSavings, Active: true})
	f.numbers.Numbers = []string{"123456789012", "210987654321"}

	account, err := f.uc.OpenAccount(context.Background(), usecase.OpenAccountInput{
		OwnerID:        "user-1",
		Kind:           domain.AccountKindSavings,
		InitialDeposit: decimal.NewFromInt(600),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Number != "210987654321" {
		t.Errorf("expected second candidate number, got %s", account.Number)
	}
}

func TestAccountUseCase_OpenAccountGivesUpOnCollisions(t *testing.T) {
	f := newAccountFixture(nil)
	f.accounts.ExistsByNumberFunc = func(context.Context, usecase.Transaction, string) (bool, error) {
		return true, nil
	}

	_, err := f.uc.OpenAccount(context.Background(), usecase.OpenAccountInput{
		OwnerID:        "user-1",
		Kind:           domain.AccountKindSavings,
		InitialDeposit: decimal.NewFromInt(600),
	})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestAccountUseCase_OpenAccountRetriesAbortedTransaction(t *testing.T) {
	f := newAccountFixture(nil)
	txMgr := mocks.NewMockTransactionManager()

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
	f.outbox.CreateFunc = func(context.Context, usecase.Transaction, *domain.OutboxEvent) error {
		if failures > 0 {
			failures--
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	}

	uc := usecase.NewAccountUseCase(txMgr, f.accounts, f.records, f.outbox, mocks.NewMockIDGenerator(), f.numbers, retrier, nil)
	account, err := uc.OpenAccount(asUser("user-1", domain.RoleCustomer), usecase.OpenAccountInput{
		Kind:           domain.AccountKindSavings,
		InitialDeposit: decimal.NewFromInt(700),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if attempts != 2 {
		t.Fatalf("expected two attempts, got %d", attempts)
	}
	if len(txMgr.Transactions()) != 2 {
		t.Fatalf("expected a fresh transaction per attempt, got %d", len(txMgr.Transactions()))
	}
	if stored := f.accounts.Snapshot(account.Number); stored == nil || !stored.Balance.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("expected stored balance 700, got %+v", stored)
	}
	if n := len(f.records.Records()); n != 1 {
		t.Fatalf("expected the opening deposit recorded once, got %d", n)
	}
}

func TestAccountUseCase_OpenAccountMetrics(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	f := newAccountFixture(m)

	_, err := f.uc.OpenAccount(asUser("user-1", domain.RoleCustomer), usecase.OpenAccountInput{
		Kind:           domain.AccountKindCurrent,
		InitialDeposit: decimal.NewFromInt(1500),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(m.AccountsOpened.WithLabelValues("current")); got != 1 {
		t.Errorf("expected 1 current account opened, got %v", got)
	}
}

func TestAccountUseCase_GetAccount(t *testing.T) {
	f := newAccountFixture(nil)
	f.accounts.Add(&domain.Account{ID: "acc-1", Number: "100000000001", OwnerID: "user-1", Kind: domain.AccountKindSavings, Balance: decimal.NewFromInt(900), Active: true})

	tests := []struct {
		name        string
		ctx         context.Context
		number      string
		expectError error
	}{
		{name: "owner", ctx: asUser("user-1", domain.RoleCustomer), number: "100000000001"},
		{name: "admin", ctx: asUser("admin-1", domain.RoleAdmin), number: "100000000001"},
		{name: "other customer", ctx: asUser("user-2", domain.RoleCustomer), number: "100000000001", expectError: domain.ErrForbidden},
		{name: "not found", ctx: asUser("user-1", domain.RoleCustomer), number: "999999999999", expectError: domain.ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := f.uc.GetAccount(tt.ctx, tt.number)
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Fatalf("expected %v, got %v", tt.expectError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if account.Number != tt.number {
				t.Errorf("expected %s, got %s", tt.number, account.Number)
			}
		})
	}
}

func TestAccountUseCase_ListAccounts(t *testing.T) {
	f := newAccountFixture(nil)
	f.accounts.Add(
		&domain.Account{ID: "a1", Number: "100000000001", OwnerID: "user-1", Kind: domain.AccountKindSavings, Active: true},
		&domain.Account{ID: "a2", Number: "100000000002", OwnerID: "user-1", Kind: domain.AccountKindCurrent, Active: true},
		&domain.Account{ID: "a3", Number: "100000000003", OwnerID: "user-2", Kind: domain.AccountKindCurrent, Active: true},
	)

	customer, err := f.uc.ListAccounts(asUser("user-1", domain.RoleCustomer), usecase.ListAccountsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(customer) != 2 {
		t.Errorf("expected 2 accounts for customer, got %d", len(customer))
	}

	admin, err := f.uc.ListAccounts(asUser("admin-1", domain.RoleAdmin), usecase.ListAccountsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(admin) != 3 {
		t.Errorf("expected 3 accounts for admin, got %d", len(admin))
	}

	paged, err := f.uc.ListAccounts(asUser("admin-1", domain.RoleAdmin), usecase.ListAccountsInput{Limit: 1, Offset: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paged) != 1 || paged[0].Number != "100000000003" {
		t.Errorf("expected last account on page, got %+v", paged)
	}
}

func TestAccountUseCase_Summary(t *testing.T) {
	f := newAccountFixture(nil)
	f.accounts.Add(
		&domain.Account{ID: "a1", Number: "100000000001", OwnerID: "user-1", Kind: domain.AccountKindSavings, Balance: decimal.NewFromInt(700), Active: true},
		&domain.Account{ID: "a2", Number: "100000000002", OwnerID: "user-1", Kind: domain.AccountKindCurrent, Balance: decimal.NewFromInt(-50), Active: true},
		&domain.Account{ID: "a3", Number: "100000000003", OwnerID: "user-1", Kind: domain.AccountKindCurrent, Balance: decimal.NewFromInt(999), Active: false},
	)

	summary, err := f.uc.Summary(asUser("user-1", domain.RoleCustomer))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.Accounts) != 3 {
		t.Errorf("expected 3 accounts, got %d", len(summary.Accounts))
	}
	if summary.ActiveAccounts != 2 {
		t.Errorf("expected 2 active accounts, got %d", summary.ActiveAccounts)
	}
	if !summary.TotalBalance.Equal(decimal.NewFromInt(650)) {
		t.Errorf("expected total 650, got %s", summary.TotalBalance)
	}

	if _, err := f.uc.Summary(context.Background()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized without user, got %v", err)
	}
}

func TestAccountUseCase_DeactivateAccount(t *testing.T) {
	f := newAccountFixture(nil)
	f.accounts.Add(&domain.Account{ID: "a1", Number: "100000000001", OwnerID: "user-1", Kind: domain.AccountKindSavings, Balance: decimal.NewFromInt(700), Active: true})

	if _, err := f.uc.DeactivateAccount(asUser("user-1", domain.RoleCustomer), "100000000001"); !errors.Is(err, domain.ErrInsufficientRole) {
		t.Fatalf("expected ErrInsufficientRole, got %v", err)
	}

	account, err := f.uc.DeactivateAccount(asUser("admin-1", domain.RoleAdmin), "100000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Active {
		t.Error("expected returned account to be inactive")
	}
	if f.accounts.Snapshot("100000000001").Active {
		t.Error("expected stored account to be inactive")
	}
	if !f.accounts.Snapshot("100000000001").Balance.Equal(decimal.NewFromInt(700)) {
		t.Error("expected balance to be kept")
	}

	// Second call is a no-op.
	if _, err := f.uc.DeactivateAccount(asUser("admin-1", domain.RoleAdmin), "100000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(f.outbox.Events()); n != 1 {
		t.Errorf("expected a single deactivation event, got %d", n)
	}
}
