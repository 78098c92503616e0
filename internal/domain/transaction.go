package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the type of a balance mutation.
type TransactionKind string

const (
	TransactionDeposit     TransactionKind = "deposit"
	TransactionWithdraw    TransactionKind = "withdraw"
	TransactionTransferIn  TransactionKind = "transfer_in"
	TransactionTransferOut TransactionKind = "transfer_out"
	TransactionInterest    TransactionKind = "interest"
)

// IsCredit reports whether the kind increases the balance.
func (k TransactionKind) IsCredit() bool {
	switch k {
	case TransactionDeposit, TransactionTransferIn, TransactionInterest:
		return true
	default:
		return false
	}
}

// IsValid reports whether k is a known transaction kind.
func (k TransactionKind) IsValid() bool {
	switch k {
	case TransactionDeposit, TransactionWithdraw, TransactionTransferIn, TransactionTransferOut, TransactionInterest:
		return true
	default:
		return false
	}
}

// Transaction is an immutable audit record of one balance mutation.
type Transaction struct {
	ID               string
	AccountID        string
	Kind             TransactionKind
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	ResultingBalance decimal.Decimal
	// TransferID links both legs of a transfer. Empty otherwise.
	TransferID string
	// CounterpartyNumber is the other account's number for transfer legs.
	CounterpartyNumber string
	Description        string
	CreatedAt          time.Time
	// Seq is the storage insertion order, set when a record is read back.
	Seq int64
}

// SignedAmount is the effect the transaction had on the balance, fee included.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Kind.IsCredit() {
		return t.Amount.Sub(t.Fee)
	}
	return t.Amount.Add(t.Fee).Neg()
}
