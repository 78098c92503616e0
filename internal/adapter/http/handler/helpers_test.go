package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/iho/gobank/internal/adapter/http/dto"
	"github.com/iho/gobank/internal/domain"
)

// withURLParam attaches a chi route parameter to req.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/accounts?limit=50", nil)
	if got := parseIntQuery(req, "limit", 10); got != 50 {
		t.Fatalf("expected limit=50, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/accounts?limit=invalid", nil)
	if got := parseIntQuery(req, "limit", 10); got != 10 {
		t.Fatalf("expected fallback to default, got %d", got)
	}

	req.URL = &url.URL{RawQuery: ""}
	if got := parseIntQuery(req, "limit", 25); got != 25 {
		t.Fatalf("expected default when missing, got %d", got)
	}
}

func TestPageParamsClamps(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?limit=1000&offset=-4", nil)
	limit, offset := pageParams(req)
	if limit != domain.MaxPageSize || offset != 0 {
		t.Fatalf("expected clamped paging, got %d/%d", limit, offset)
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
		code     string
	}{
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{"limit exceeded", fmt.Errorf("%w: floor", domain.ErrLimitExceeded), http.StatusUnprocessableEntity, "limit_exceeded"},
		{"same account", domain.ErrSameAccount, http.StatusBadRequest, "same_account"},
		{"persistence", fmt.Errorf("%w: conn reset", domain.ErrPersistence), http.StatusInternalServerError, "persistence_error"},
		{"account not found", domain.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
		{"user not found", domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{"inactive", domain.ErrAccountInactive, http.StatusConflict, "account_inactive"},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"insufficient role", domain.ErrInsufficientRole, http.StatusForbidden, "forbidden"},
		{"unauthorized", domain.ErrExpiredToken, http.StatusUnauthorized, "unauthorized"},
		{"bad credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"validation", domain.ErrInvalidPhone, http.StatusBadRequest, "validation_error"},
		{"opening deposit", domain.ErrOpeningDepositTooLow, http.StatusBadRequest, "validation_error"},
		{"request body", dto.ErrValidation, http.StatusBadRequest, "validation_error"},
		{"user exists", domain.ErrUserExists, http.StatusConflict, "user_exists"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
			if got := errorCode(tt.err); got != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestWriteDomainErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	writeDomainError(rec, req, fmt.Errorf("%w: password=hunter2", domain.ErrPersistence))

	resp := decodeError(t, rec)
	if rec.Code != http.StatusInternalServerError || resp.Message != "internal error" {
		t.Fatalf("expected hidden 500, got %d %+v", rec.Code, resp)
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}

	writeJSON(rr, http.StatusCreated, payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if decoded["status"] != "ok" {
		t.Fatalf("expected payload to round-trip, got %+v", decoded)
	}
}

func TestHandlersRejectMalformedAccountNumber(t *testing.T) {
	accounts := NewAccountHandler(&accountServiceStub{})
	banking := NewBankingHandler(&bankingServiceStub{})
	history := NewHistoryHandler(&historyServiceStub{})
	admin := NewAdminHandler(&reconciliationStub{})

	routes := []struct {
		name    string
		body    string
		handler http.HandlerFunc
	}{
		{"get", "", accounts.Get},
		{"deactivate", "", accounts.Deactivate},
		{"deposit", `{"amount":"10"}`, banking.Deposit},
		{"withdraw", `{"amount":"10"}`, banking.Withdraw},
		{"transfer", `{"to_account":"100000000002","amount":"10"}`, banking.Transfer},
		{"history", "", history.List},
		{"export", "", history.ExportCSV},
		{"reconcile", "", admin.Reconcile},
	}

	for _, number := range []string{"12345", "10000000000x", "1000000000011", ""} {
		for _, rt := range routes {
			t.Run(rt.name+"/"+number, func(t *testing.T) {
				req := withURLParam(httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(rt.body)), "number", number)
				rec := httptest.NewRecorder()

				rt.handler(rec, req)

				if rec.Code != http.StatusBadRequest {
					t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
				}
				if resp := decodeError(t, rec); resp.Error != "validation_error" {
					t.Fatalf("expected validation_error, got %+v", resp)
				}
			})
		}
	}
}
