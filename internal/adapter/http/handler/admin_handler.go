package handler

import (
	"context"
	"net/http"

	"github.com/iho/gobank/internal/adapter/http/dto"
	"github.com/iho/gobank/internal/usecase"
)

// ReconciliationService defines the audit checks run by operators.
type ReconciliationService interface {
	ReconcileAccount(ctx context.Context, number string) (*usecase.ReconciliationResult, error)
	CheckConsistency(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	reconciliationUC ReconciliationService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(reconciliationUC ReconciliationService) *AdminHandler {
	return &AdminHandler{reconciliationUC: reconciliationUC}
}

// Reconcile checks one account against its audit trail.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	number, ok := accountNumberParam(w, r)
	if !ok {
		return
	}

	result, err := h.reconciliationUC.ReconcileAccount(r.Context(), number)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromUseCase(result))
}

// Consistency reconciles the whole ledger.
func (h *AdminHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciliationUC.CheckConsistency(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ConsistencyFromUseCase(report))
}
