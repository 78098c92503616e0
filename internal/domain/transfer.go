package domain

import (
	"github.com/shopspring/decimal"
)

// Transfer is a request to move money between two accounts.
type Transfer struct {
	ID          string
	FromNumber  string
	ToNumber    string
	Amount      decimal.Decimal
	Description string
}

// Validate validates transfer request.
func (t *Transfer) Validate() error {
	if t.FromNumber == t.ToNumber {
		return ErrSameAccount
	}

	return ValidateAmount(t.Amount)
}

// TransferResult holds both balances after a completed transfer.
type TransferResult struct {
	TransferID  string
	Source      *Account
	Destination *Account
	Debit       *Transaction
	Credit      *Transaction
}
