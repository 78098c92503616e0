package domain

import "errors"

var (
	// Rules engine errors
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")
	ErrLimitExceeded = errors.New("operation exceeds account limits")
	ErrSameAccount   = errors.New("cannot transfer to same account")
	ErrPersistence   = errors.New("failed to persist ledger change")

	// Account errors
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountInactive      = errors.New("account is not active")
	ErrInvalidAccountKind   = errors.New("invalid account kind")
	ErrOpeningDepositTooLow = errors.New("initial deposit below minimum for account kind")
	ErrForbidden            = errors.New("not allowed to operate on this account")

	// User errors
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user with this username or email already exists")
	ErrUserInactive = errors.New("user account is inactive")
)
