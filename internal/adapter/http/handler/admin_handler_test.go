package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/adapter/http/dto"
	"github.com/iho/gobank/internal/usecase"
)

type reconciliationStub struct {
	reconcileFn   func(ctx context.Context, number string) (*usecase.ReconciliationResult, error)
	consistencyFn func(ctx context.Context) (*usecase.ReconciliationReport, error)
}

func (s *reconciliationStub) ReconcileAccount(ctx context.Context, number string) (*usecase.ReconciliationResult, error) {
	return s.reconcileFn(ctx, number)
}

func (s *reconciliationStub) CheckConsistency(ctx context.Context) (*usecase.ReconciliationReport, error) {
	return s.consistencyFn(ctx)
}

func TestAdminHandler_Reconcile(t *testing.T) {
	h := NewAdminHandler(&reconciliationStub{
		reconcileFn: func(ctx context.Context, number string) (*usecase.ReconciliationResult, error) {
			return &usecase.ReconciliationResult{
				AccountNumber:     number,
				StoredBalance:     decimal.NewFromInt(630),
				CalculatedBalance: decimal.NewFromInt(630),
				TransactionCount:  3,
				IsReconciled:      true,
			}, nil
		},
	})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/x", nil), "number", "100000000001")
	rec := httptest.NewRecorder()
	h.Reconcile(rec, req)

	var resp dto.ReconciliationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsReconciled || resp.StoredBalance != "630.00" || resp.TransactionCount != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAdminHandler_ConsistencyFailure(t *testing.T) {
	h := NewAdminHandler(&reconciliationStub{
		consistencyFn: func(ctx context.Context) (*usecase.ReconciliationReport, error) {
			return nil, errors.New("db down")
		},
	})

	rec := httptest.NewRecorder()
	h.Consistency(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
