package handler

import (
	"context"
	"net/http"

	"github.com/iho/gobank/internal/adapter/http/dto"
	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/usecase"
)

// BankingService defines the rules engine operations exposed over HTTP.
type BankingService interface {
	Deposit(ctx context.Context, input usecase.OperationInput) (*usecase.OperationResult, error)
	Withdraw(ctx context.Context, input usecase.OperationInput) (*usecase.OperationResult, error)
	Transfer(ctx context.Context, input usecase.TransferInput) (*domain.TransferResult, error)
	PostMonthlyInterest(ctx context.Context) (*usecase.InterestReport, error)
}

// BankingHandler handles money movement requests.
type BankingHandler struct {
	bankingUC BankingService
}

// NewBankingHandler creates a new BankingHandler.
func NewBankingHandler(bankingUC BankingService) *BankingHandler {
	return &BankingHandler{bankingUC: bankingUC}
}

// Deposit credits the account in the path.
func (h *BankingHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, h.bankingUC.Deposit)
}

// Withdraw debits the account in the path.
func (h *BankingHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, h.bankingUC.Withdraw)
}

func (h *BankingHandler) single(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, usecase.OperationInput) (*usecase.OperationResult, error),
) {
	number, ok := accountNumberParam(w, r)
	if !ok {
		return
	}

	var req dto.AmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	input, err := req.ToUseCaseInput(number)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := op(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OperationFromUseCase(result))
}

// Transfer moves money from the account in the path.
func (h *BankingHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	number, ok := accountNumberParam(w, r)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	input, err := req.ToUseCaseInput(number)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := h.bankingUC.Transfer(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransferFromDomain(result))
}

// PostInterest runs the monthly interest job. Admin only.
func (h *BankingHandler) PostInterest(w http.ResponseWriter, r *http.Request) {
	report, err := h.bankingUC.PostMonthlyInterest(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InterestReportFromUseCase(report))
}
