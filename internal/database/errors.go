package database

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgerrcode.SerializationFailure:
			return ErrorClassSerialization
		case pgerrcode.DeadlockDetected:
			return ErrorClassDeadlock
		case pgerrcode.LockNotAvailable:
			return ErrorClassTransient
		case pgerrcode.UniqueViolation, pgerrcode.ForeignKeyViolation,
			pgerrcode.NotNullViolation, pgerrcode.CheckViolation:
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}

// Error kinds. Every business error unwraps to exactly one of these.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrState        = errors.New("illegal state")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// NewError returns an error with message msg that matches kind under errors.Is.
func NewError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrUserNotFound        = NewError(ErrNotFound, "user not found")
	ErrProductNotFound     = NewError(ErrNotFound, "product not found")
	ErrOrderNotFound       = NewError(ErrNotFound, "order not found")
	ErrCouponNotFound      = NewError(ErrNotFound, "coupon not found")
	ErrAccountNotFound     = NewError(ErrNotFound, "bank account not found")
	ErrPaymentNotFound     = NewError(ErrNotFound, "payment not found")
	ErrCartItemNotFound    = NewError(ErrNotFound, "cart item not found")
	ErrCartItemChanged     = NewError(ErrValidation, "cart item changed while ordering")
	ErrInsufficientStock   = NewError(ErrConflict, "insufficient stock")
	ErrInsufficientFunds   = NewError(ErrConflict, "insufficient funds")
	ErrAccountInactive     = NewError(ErrConflict, "bank account inactive")
	ErrAccountExists       = NewError(ErrConflict, "bank account already exists")
	ErrCouponInactive      = NewError(ErrConflict, "coupon is no longer active")
	ErrCouponExpired       = NewError(ErrConflict, "coupon has expired")
	ErrCouponLimitReached  = NewError(ErrConflict, "coupon usage limit reached")
	ErrCouponNewUsersOnly  = NewError(ErrConflict, "coupon is for new users only")
	ErrCouponExists        = NewError(ErrConflict, "coupon code already exists")
	ErrDuplicateRequest    = NewError(ErrConflict, "request with this idempotency key is in progress")
	ErrIllegalTransition   = NewError(ErrState, "illegal order status transition")
	ErrPaymentNotCompleted = NewError(ErrState, "payment is not completed")
	ErrEscrowNotHeld       = NewError(ErrState, "escrow is not held or already released")
)
