package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/gobank/internal/domain"
)

// Recorder appends audit records for balance mutations.
type Recorder struct {
	transactionRepo TransactionRepository
	idGen           IDGenerator
}

// NewRecorder creates a new Recorder.
func NewRecorder(transactionRepo TransactionRepository, idGen IDGenerator) *Recorder {
	return &Recorder{
		transactionRepo: transactionRepo,
		idGen:           idGen,
	}
}

// RecordInput describes one applied movement.
type RecordInput struct {
	Account            *domain.Account
	Kind               domain.TransactionKind
	Movement           domain.Movement
	TransferID         string
	CounterpartyNumber string
	Description        string
	At                 time.Time
}

// Record writes exactly one Transaction inside tx. A storage failure is
// reported as domain.ErrPersistence and must abort the caller's transaction.
func (r *Recorder) Record(ctx context.Context, tx Transaction, in RecordInput) (*domain.Transaction, error) {
	record := &domain.Transaction{
		ID:                 r.idGen.Generate(),
		AccountID:          in.Account.ID,
		Kind:               in.Kind,
		Amount:             in.Movement.Amount,
		Fee:                in.Movement.Fee,
		ResultingBalance:   in.Movement.NewBalance,
		TransferID:         in.TransferID,
		CounterpartyNumber: in.CounterpartyNumber,
		Description:        in.Description,
		CreatedAt:          in.At,
	}

	if err := r.transactionRepo.Create(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("%w: record %s on %s: %w", domain.ErrPersistence, in.Kind, in.Account.Number, err)
	}

	return record, nil
}
