package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/iho/gobank/internal/domain"
)

// passthrough errors are reported as-is by storageError.
var passthrough = []error{
	domain.ErrAccountNotFound,
	domain.ErrUserNotFound,
	domain.ErrPersistence,
	context.Canceled,
}

// storageError marks infrastructure failures as domain.ErrPersistence while
// keeping the cause in the chain for retry classification.
func storageError(err error) error {
	if err == nil {
		return nil
	}

	for _, target := range passthrough {
		if errors.Is(err, target) {
			return err
		}
	}

	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

// authorize checks that the caller may act on account. Calls without a user
// in context come from trusted internal callers.
func authorize(ctx context.Context, account *domain.Account) error {
	user, ok := domain.UserFromContext(ctx)
	if !ok {
		return nil
	}

	if !user.CanOperate(account) {
		return domain.ErrForbidden
	}

	return nil
}

// errorType gives a stable metric label for err.
func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, domain.ErrSameAccount):
		return "same_account"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAccountInactive):
		return "inactive"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}
