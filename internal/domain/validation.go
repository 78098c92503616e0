package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidEmail         = errors.New("invalid email format")
	ErrPasswordTooWeak      = errors.New("password does not meet requirements")
	ErrInvalidUsername      = errors.New("invalid username")
	ErrInvalidPhone         = errors.New("phone number must contain at least 10 digits")
	ErrUnderage             = errors.New("customer must be at least 18 years old")
	ErrInvalidIdentityProof = errors.New("invalid identity proof")
	ErrInvalidAccountNumber = errors.New("invalid account number")
)

// Validation constants
const (
	AmountDecimalPlaces   = 2
	AccountNumberLength   = 12
	MinPasswordLength     = 8
	MaxPasswordLength     = 128
	MinPhoneDigits        = 10
	MinCustomerAge        = 18
	MinUsernameLength     = 3
	MaxUsernameLength     = 150
	DefaultPageSize       = 20
	MaxPageSize           = 100
	MaxDescriptionLength  = 255
	MaxIdentityNumberSize = 64
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@+-]+$`)
	upperRegex    = regexp.MustCompile(`[A-Z]`)
	lowerRegex    = regexp.MustCompile(`[a-z]`)
	digitRegex    = regexp.MustCompile(`[0-9]`)
	amountRegex   = regexp.MustCompile(`^\d{1,16}(\.\d{1,2})?$`)
)

// MaxAmount is the largest value a NUMERIC(18,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999999999.99")

// Exponent window checked before any arithmetic, so a value like 1e-999999999
// is never rescaled.
const (
	minAmountExponent = -18
	maxAmountExponent = 16
)

// ValidateAmount rejects non-positive amounts, sub-cent precision and values
// too large to store.
func ValidateAmount(amount decimal.Decimal) error {
	if exp := amount.Exponent(); exp < minAmountExponent || exp > maxAmountExponent {
		return fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}

	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: cannot exceed %s", ErrInvalidAmount, MaxAmount.StringFixed(AmountDecimalPlaces))
	}

	if !amount.Equal(amount.Truncate(AmountDecimalPlaces)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, AmountDecimalPlaces)
	}

	return nil
}

// ParseAmount parses a plain decimal string such as "12.50" into an amount:
// up to 16 integer digits and two decimals, no sign or exponent.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !amountRegex.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}

	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	return amount, nil
}

// ValidateAccountNumber checks the 12 digit account number format.
func ValidateAccountNumber(number string) error {
	if len(number) != AccountNumberLength || !isDigits(number) {
		return fmt.Errorf("%w: must be %d digits", ErrInvalidAccountNumber, AccountNumberLength)
	}
	return nil
}

// ValidateEmail validates email format
func ValidateEmail(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}

	return nil
}

// ValidateUsername validates username format
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return fmt.Errorf("%w: must be %d-%d characters", ErrInvalidUsername, MinUsernameLength, MaxUsernameLength)
	}

	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: letters, digits and @/./+/-/_ only", ErrInvalidUsername)
	}

	return nil
}

// ValidatePassword validates password strength
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordTooWeak, MinPasswordLength)
	}

	if len(password) > MaxPasswordLength {
		return fmt.Errorf("%w: must not exceed %d characters", ErrPasswordTooWeak, MaxPasswordLength)
	}

	if !upperRegex.MatchString(password) || !lowerRegex.MatchString(password) || !digitRegex.MatchString(password) {
		return fmt.Errorf("%w: must contain uppercase, lowercase, and numbers", ErrPasswordTooWeak)
	}

	return nil
}

// ValidatePhone requires a digits-only phone number of at least 10 digits.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if len(phone) < MinPhoneDigits || !isDigits(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// ValidateAge checks that someone born on dob is an adult at now.
func ValidateAge(dob, now time.Time) error {
	if dob.IsZero() {
		return fmt.Errorf("%w: date of birth is required", ErrUnderage)
	}

	adult := dob.AddDate(MinCustomerAge, 0, 0)
	if now.Before(adult) {
		return ErrUnderage
	}

	return nil
}

// ValidateProfile validates the KYC fields of a registration.
func ValidateProfile(p Profile, now time.Time) error {
	if err := ValidatePhone(p.Phone); err != nil {
		return err
	}

	if err := ValidateAge(p.DateOfBirth, now); err != nil {
		return err
	}

	if !p.IdentityProof.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidIdentityProof, p.IdentityProof)
	}

	id := strings.TrimSpace(p.IdentityNumber)
	if id == "" || len(id) > MaxIdentityNumberSize {
		return fmt.Errorf("%w: identity number is required", ErrInvalidIdentityProof)
	}

	return nil
}

// ValidateOpeningDeposit checks the initial deposit against the kind's minimum.
func ValidateOpeningDeposit(kind AccountKind, amount decimal.Decimal) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccountKind, kind)
	}

	if err := ValidateAmount(amount); err != nil {
		return err
	}

	minimum := kind.Policy().OpeningDeposit
	if amount.LessThan(minimum) {
		return fmt.Errorf("%w: %s requires at least %s", ErrOpeningDepositTooLow, kind, minimum.StringFixed(2))
	}

	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
