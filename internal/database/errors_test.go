package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	pgErr := func(code string) error { return &pq.Error{Code: pq.ErrorCode(code)} }

	tests := []struct {
		name      string
		err       error
		class     ErrorClass
		retryable bool
	}{
		{"nil", nil, ErrorClassPermanent, false},
		{"serialization", pgErr(pgerrcode.SerializationFailure), ErrorClassSerialization, true},
		{"deadlock", pgErr(pgerrcode.DeadlockDetected), ErrorClassDeadlock, true},
		{"wrapped deadlock", fmt.Errorf("update: %w", pgErr(pgerrcode.DeadlockDetected)), ErrorClassDeadlock, true},
		{"lock not available", pgErr(pgerrcode.LockNotAvailable), ErrorClassTransient, true},
		{"unique violation", pgErr(pgerrcode.UniqueViolation), ErrorClassPermanent, false},
		{"check violation", pgErr(pgerrcode.CheckViolation), ErrorClassPermanent, false},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent, false},
		{"business error", ErrInsufficientStock, ErrorClassPermanent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.class, ClassifyError(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: pgerrcode.UniqueViolation})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: pgerrcode.ForeignKeyViolation}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{ErrOrderNotFound, ErrNotFound},
		{ErrInsufficientFunds, ErrConflict},
		{ErrCouponLimitReached, ErrConflict},
		{ErrIllegalTransition, ErrState},
		{ErrEscrowNotHeld, ErrState},
		{NewError(ErrForbidden, "no"), ErrForbidden},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, tt.err, tt.kind, tt.err.Error())
		assert.ErrorIs(t, fmt.Errorf("wrapped: %w", tt.err), tt.kind)
	}

	err := NewError(ErrValidation, "quantity must be positive")
	assert.Equal(t, "quantity must be positive", err.Error())
	assert.NotErrorIs(t, err, ErrConflict)
}
