package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/usecase"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	Number    string    `json:"number"`
	Kind      string    `json:"kind"`
	OwnerID   string    `json:"owner_id"`
	Balance   string    `json:"balance"`
	Floor     string    `json:"floor"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		Number:    a.Number,
		Kind:      string(a.Kind),
		OwnerID:   a.OwnerID,
		Balance:   money(a.Balance),
		Floor:     money(a.Floor()),
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// ListAccountsResponse is a page of accounts.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// SummaryResponse is the dashboard view of a customer's accounts.
type SummaryResponse struct {
	Accounts       []*AccountResponse `json:"accounts"`
	ActiveAccounts int                `json:"active_accounts"`
	TotalBalance   string             `json:"total_balance"`
}

// SummaryFromUseCase converts a summary to response.
func SummaryFromUseCase(s *usecase.AccountSummary) *SummaryResponse {
	return &SummaryResponse{
		Accounts:       AccountsFromDomain(s.Accounts),
		ActiveAccounts: s.ActiveAccounts,
		TotalBalance:   money(s.TotalBalance),
	}
}

// TransactionResponse represents an audit record.
type TransactionResponse struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	Amount           string    `json:"amount"`
	Fee              string    `json:"fee"`
	ResultingBalance string    `json:"resulting_balance"`
	TransferID       string    `json:"transfer_id,omitempty"`
	Counterparty     string    `json:"counterparty,omitempty"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TransactionFromDomain converts domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:               t.ID,
		Kind:             string(t.Kind),
		Amount:           money(t.Amount),
		Fee:              money(t.Fee),
		ResultingBalance: money(t.ResultingBalance),
		TransferID:       t.TransferID,
		Counterparty:     t.CounterpartyNumber,
		Description:      t.Description,
		CreatedAt:        t.CreatedAt,
	}
}

// TransactionsFromDomain converts domain transactions to responses.
func TransactionsFromDomain(txs []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(txs))
	for i, t := range txs {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// ListTransactionsResponse is a page of an account's history.
type ListTransactionsResponse struct {
	AccountNumber string                 `json:"account_number"`
	Transactions  []*TransactionResponse `json:"transactions"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
}

// OperationResponse is returned by deposit and withdraw.
type OperationResponse struct {
	Account     *AccountResponse     `json:"account"`
	Transaction *TransactionResponse `json:"transaction"`
}

// OperationFromUseCase converts an operation result to response.
func OperationFromUseCase(r *usecase.OperationResult) *OperationResponse {
	return &OperationResponse{
		Account:     AccountFromDomain(r.Account),
		Transaction: TransactionFromDomain(r.Transaction),
	}
}

// TransferResponse reports both legs of a transfer.
type TransferResponse struct {
	TransferID  string               `json:"transfer_id"`
	Source      *AccountResponse     `json:"source"`
	Destination *AccountResponse     `json:"destination"`
	Debit       *TransactionResponse `json:"debit"`
	Credit      *TransactionResponse `json:"credit"`
}

// TransferFromDomain converts a transfer result to response.
func TransferFromDomain(r *domain.TransferResult) *TransferResponse {
	return &TransferResponse{
		TransferID:  r.TransferID,
		Source:      AccountFromDomain(r.Source),
		Destination: AccountFromDomain(r.Destination),
		Debit:       TransactionFromDomain(r.Debit),
		Credit:      TransactionFromDomain(r.Credit),
	}
}

// UserResponse represents a user without credentials.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserFromDomain converts domain user to response.
func UserFromDomain(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

// LoginResponse carries a bearer token.
type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *UserResponse `json:"user"`
}

// InterestFailureResponse names an account that was not credited.
type InterestFailureResponse struct {
	AccountNumber string `json:"account_number"`
	Error         string `json:"error"`
}

// InterestReportResponse summarizes an interest run.
type InterestReportResponse struct {
	AccountsCredited int                       `json:"accounts_credited"`
	TotalCredited    string                    `json:"total_credited"`
	Failures         []InterestFailureResponse `json:"failures,omitempty"`
	PostedAt         time.Time                 `json:"posted_at"`
}

// InterestReportFromUseCase converts an interest report to response.
func InterestReportFromUseCase(r *usecase.InterestReport) *InterestReportResponse {
	resp := &InterestReportResponse{
		AccountsCredited: r.AccountsCredited,
		TotalCredited:    money(r.TotalCredited),
		PostedAt:         r.PostedAt,
	}
	for _, f := range r.Failures {
		resp.Failures = append(resp.Failures, InterestFailureResponse{
			AccountNumber: f.AccountNumber,
			Error:         f.Err.Error(),
		})
	}
	return resp
}

// ReconciliationResponse is the outcome of reconciling one account.
type ReconciliationResponse struct {
	AccountNumber     string    `json:"account_number"`
	StoredBalance     string    `json:"stored_balance"`
	CalculatedBalance string    `json:"calculated_balance"`
	LatestRecorded    *string   `json:"latest_recorded,omitempty"`
	TransactionCount  int64     `json:"transaction_count"`
	Difference        string    `json:"difference"`
	IsReconciled      bool      `json:"is_reconciled"`
	LastChecked       time.Time `json:"last_checked"`
}

// ReconciliationFromUseCase converts a reconciliation result to response.
func ReconciliationFromUseCase(r *usecase.ReconciliationResult) *ReconciliationResponse {
	resp := &ReconciliationResponse{
		AccountNumber:     r.AccountNumber,
		StoredBalance:     money(r.StoredBalance),
		CalculatedBalance: money(r.CalculatedBalance),
		TransactionCount:  r.TransactionCount,
		Difference:        money(r.Difference),
		IsReconciled:      r.IsReconciled,
		LastChecked:       r.LastChecked,
	}
	if r.LatestRecorded != nil {
		latest := money(*r.LatestRecorded)
		resp.LatestRecorded = &latest
	}
	return resp
}

// ConsistencyResponse is the ledger-wide reconciliation report.
type ConsistencyResponse struct {
	TotalAccounts      int                       `json:"total_accounts"`
	ReconciledAccounts int                       `json:"reconciled_accounts"`
	Discrepancies      []*ReconciliationResponse `json:"discrepancies"`
	TotalBalance       string                    `json:"total_balance"`
	TotalRecorded      string                    `json:"total_recorded"`
	LedgerConsistent   bool                      `json:"ledger_consistent"`
	CheckedAt          time.Time                 `json:"checked_at"`
}

// ConsistencyFromUseCase converts a reconciliation report to response.
func ConsistencyFromUseCase(r *usecase.ReconciliationReport) *ConsistencyResponse {
	resp := &ConsistencyResponse{
		TotalAccounts:      r.TotalAccounts,
		ReconciledAccounts: r.ReconciledAccounts,
		Discrepancies:      make([]*ReconciliationResponse, 0, len(r.Discrepancies)),
		TotalBalance:       money(r.TotalBalance),
		TotalRecorded:      money(r.TotalRecorded),
		LedgerConsistent:   r.LedgerConsistent,
		CheckedAt:          r.CheckedAt,
	}
	for _, d := range r.Discrepancies {
		resp.Discrepancies = append(resp.Discrepancies, ReconciliationFromUseCase(d))
	}
	return resp
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
