package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/usecase"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// ErrValidation wraps request validation failures.
var ErrValidation = errors.New("validation failed")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags on a request and reports every failing field.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func parseAmount(s string) (decimal.Decimal, error) {
	return domain.ParseAmount(s)
}

// RegisterRequest represents a customer sign-up.
type RegisterRequest struct {
	Username       string `json:"username"        validate:"required"`
	Email          string `json:"email"           validate:"required,email"`
	Name           string `json:"name"            validate:"max=100"`
	Password       string `json:"password"        validate:"required"`
	Phone          string `json:"phone"           validate:"required"`
	Address        string `json:"address"         validate:"max=255"`
	DateOfBirth    string `json:"date_of_birth"   validate:"required,datetime=2006-01-02"`
	IdentityProof  string `json:"identity_proof"  validate:"required,oneof=aadhaar pan passport license"`
	IdentityNumber string `json:"identity_number" validate:"required,max=64"`
}

// ToUseCaseInput converts to use case input.
func (r *RegisterRequest) ToUseCaseInput() (usecase.RegisterInput, error) {
	dob, err := time.Parse(DateLayout, r.DateOfBirth)
	if err != nil {
		return usecase.RegisterInput{}, fmt.Errorf("%w: date_of_birth", ErrValidation)
	}

	return usecase.RegisterInput{
		Username: r.Username,
		Email:    r.Email,
		Name:     r.Name,
		Password: r.Password,
		Profile: domain.Profile{
			Phone:          r.Phone,
			Address:        r.Address,
			DateOfBirth:    dob,
			IdentityProof:  domain.IdentityProof(r.IdentityProof),
			IdentityNumber: r.IdentityNumber,
		},
	}, nil
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ToUseCaseInput converts to use case input.
func (r *LoginRequest) ToUseCaseInput() usecase.AuthenticateInput {
	return usecase.AuthenticateInput{Username: r.Username, Password: r.Password}
}

// OpenAccountRequest represents a request to open an account.
type OpenAccountRequest struct {
	Kind           string `json:"kind"            validate:"required,oneof=savings current"`
	InitialDeposit string `json:"initial_deposit" validate:"required"`
}

// ToUseCaseInput converts to use case input. The owner comes from the caller.
func (r *OpenAccountRequest) ToUseCaseInput() (usecase.OpenAccountInput, error) {
	amount, err := parseAmount(r.InitialDeposit)
	if err != nil {
		return usecase.OpenAccountInput{}, err
	}

	return usecase.OpenAccountInput{
		Kind:           domain.AccountKind(r.Kind),
		InitialDeposit: amount,
	}, nil
}

// AmountRequest is the body of deposit and withdraw calls.
type AmountRequest struct {
	Amount      string `json:"amount"      validate:"required"`
	Description string `json:"description" validate:"max=255"`
}

// ToUseCaseInput converts to use case input for the given account.
func (r *AmountRequest) ToUseCaseInput(number string) (usecase.OperationInput, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return usecase.OperationInput{}, err
	}

	return usecase.OperationInput{
		AccountNumber: number,
		Amount:        amount,
		Description:   r.Description,
	}, nil
}

// TransferRequest represents a transfer out of the account in the path.
type TransferRequest struct {
	ToAccount   string `json:"to_account"  validate:"required,len=12,numeric"`
	Amount      string `json:"amount"      validate:"required"`
	Description string `json:"description" validate:"max=255"`
}

// ToUseCaseInput converts to use case input.
func (r *TransferRequest) ToUseCaseInput(from string) (usecase.TransferInput, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return usecase.TransferInput{}, err
	}

	return usecase.TransferInput{
		FromNumber:  from,
		ToNumber:    r.ToAccount,
		Amount:      amount,
		Description: r.Description,
	}, nil
}
