package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind identifies the product an account was opened as.
type AccountKind string

const (
	AccountKindSavings AccountKind = "savings"
	AccountKindCurrent AccountKind = "current"
)

// Policy holds the limits a kind of account is operated under.
type Policy struct {
	// MinimumBalance is the floor for savings accounts.
	MinimumBalance decimal.Decimal
	// OverdraftLimit is how far below zero a current account may go.
	OverdraftLimit decimal.Decimal
	// WithdrawalFee is deducted on every withdrawal, on top of the amount.
	WithdrawalFee decimal.Decimal
	// WithdrawalCap bounds a single withdrawal. Zero means no cap.
	WithdrawalCap decimal.Decimal
	// OpeningDeposit is the smallest initial deposit accepted when opening.
	OpeningDeposit decimal.Decimal
	// InterestRate is the annual rate credited monthly.
	InterestRate decimal.Decimal
}

var policies = map[AccountKind]Policy{
	AccountKindSavings: {
		MinimumBalance: decimal.NewFromInt(500),
		WithdrawalCap:  decimal.NewFromInt(50000),
		OpeningDeposit: decimal.NewFromInt(500),
		InterestRate:   decimal.RequireFromString("0.04"),
	},
	AccountKindCurrent: {
		OverdraftLimit: decimal.NewFromInt(10000),
		WithdrawalFee:  decimal.NewFromInt(10),
		OpeningDeposit: decimal.NewFromInt(1000),
	},
}

// IsValid reports whether k is a known account kind.
func (k AccountKind) IsValid() bool {
	_, ok := policies[k]
	return ok
}

// Policy returns the limits for k.
func (k AccountKind) Policy() Policy {
	return policies[k]
}

// Floor is the lowest balance an account of kind k may hold.
func (k AccountKind) Floor() decimal.Decimal {
	p := k.Policy()
	if k == AccountKindCurrent {
		return p.OverdraftLimit.Neg()
	}
	return p.MinimumBalance
}

// Account is a customer bank account.
type Account struct {
	ID        string
	Number    string
	OwnerID   string
	Kind      AccountKind
	Balance   decimal.Decimal
	Active    bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Movement describes a planned change to an account balance.
type Movement struct {
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
}

// Floor returns the minimum balance allowed for the account.
func (a *Account) Floor() decimal.Decimal {
	return a.Kind.Floor()
}

// PlanDeposit validates a deposit and returns the resulting movement.
func (a *Account) PlanDeposit(amount decimal.Decimal) (Movement, error) {
	if err := ValidateAmount(amount); err != nil {
		return Movement{}, err
	}

	newBalance := a.Balance.Add(amount)
	if newBalance.GreaterThan(MaxAmount) {
		return Movement{}, fmt.Errorf("%w: balance cannot exceed %s", ErrInvalidAmount, MaxAmount.StringFixed(AmountDecimalPlaces))
	}

	return Movement{
		Amount:          amount,
		Fee:             decimal.Zero,
		PreviousBalance: a.Balance,
		NewBalance:      newBalance,
	}, nil
}

// PlanWithdrawal validates a withdrawal against the kind's floor, fee and cap.
// Landing exactly on the floor is allowed.
func (a *Account) PlanWithdrawal(amount decimal.Decimal) (Movement, error) {
	if err := ValidateAmount(amount); err != nil {
		return Movement{}, err
	}

	policy := a.Kind.Policy()
	if policy.WithdrawalCap.IsPositive() && amount.GreaterThan(policy.WithdrawalCap) {
		return Movement{}, fmt.Errorf("%w: single withdrawal cannot exceed %s", ErrLimitExceeded, policy.WithdrawalCap.StringFixed(2))
	}

	fee := policy.WithdrawalFee
	newBalance := a.Balance.Sub(amount).Sub(fee)
	if newBalance.LessThan(a.Floor()) {
		return Movement{}, fmt.Errorf("%w: balance may not go below %s", ErrLimitExceeded, a.Floor().StringFixed(2))
	}

	return Movement{
		Amount:          amount,
		Fee:             fee,
		PreviousBalance: a.Balance,
		NewBalance:      newBalance,
	}, nil
}

// Apply moves the account to the movement's new balance.
func (a *Account) Apply(m Movement, at time.Time) {
	a.Balance = m.NewBalance
	a.Version++
	a.UpdatedAt = at
}

// EnsureActive returns ErrAccountInactive for closed accounts.
func (a *Account) EnsureActive() error {
	if !a.Active {
		return ErrAccountInactive
	}
	return nil
}

// MonthlyInterest returns the interest a savings account earns this month,
// rounded to cents. Other kinds earn nothing.
func (a *Account) MonthlyInterest() decimal.Decimal {
	rate := a.Kind.Policy().InterestRate
	if !rate.IsPositive() || !a.Balance.IsPositive() {
		return decimal.Zero
	}
	return a.Balance.Mul(rate).Div(decimal.NewFromInt(12)).Round(2)
}
