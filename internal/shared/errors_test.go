package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{nil, ""},
		{fmt.Errorf("%w: no session", ErrUnauthorized), KindUnauthorized},
		{fmt.Errorf("%w: not the creator", ErrForbidden), KindForbidden},
		{fmt.Errorf("load quotation: %w", ErrNotFound), KindNotFound},
		{fmt.Errorf("%w: quantity must be positive", ErrValidation), KindValidation},
		{fmt.Errorf("%w: APPROVED -> APPROVED", ErrInvalidTransition), KindInvalidTransition},
		{ErrNumberGenerationFailed, KindNumberGenerationFailed},
		{ErrIdempotencyConflict, KindDuplicateRequest},
		{fmt.Errorf("%w: insert quotation", ErrPersistence), KindPersistence},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, ErrorKind(tc.err), "error %v", tc.err)
	}
}

func TestIsDomainError(t *testing.T) {
	assert.True(t, IsDomainError(fmt.Errorf("wrap: %w", ErrForbidden)))
	assert.False(t, IsDomainError(errors.New("connection reset")))
	assert.False(t, IsDomainError(nil))
}
