package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/iho/gobank/internal/adapter/http/dto"
	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/usecase"
)

// HistoryService defines the audit trail queries.
type HistoryService interface {
	ListTransactions(ctx context.Context, input usecase.ListTransactionsInput) ([]*domain.Transaction, error)
	ExportCSV(ctx context.Context, accountNumber string, w io.Writer) error
}

// HistoryHandler serves account statements.
type HistoryHandler struct {
	historyUC HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(historyUC HistoryService) *HistoryHandler {
	return &HistoryHandler{historyUC: historyUC}
}

// List returns a page of the account's transactions, newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	number, ok := accountNumberParam(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)

	txs, err := h.historyUC.ListTransactions(r.Context(), usecase.ListTransactionsInput{
		AccountNumber: number,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListTransactionsResponse{
		AccountNumber: number,
		Transactions:  dto.TransactionsFromDomain(txs),
		Limit:         limit,
		Offset:        offset,
	})
}

// ExportCSV streams the full history as a CSV attachment.
func (h *HistoryHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	number, ok := accountNumberParam(w, r)
	if !ok {
		return
	}

	// Buffered so errors can still be reported with a proper status.
	var buf bytes.Buffer
	if err := h.historyUC.ExportCSV(r.Context(), number, &buf); err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transactions_%s.csv"`, number))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
