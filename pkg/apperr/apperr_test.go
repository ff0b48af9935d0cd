package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{Invalid(map[string]string{"phone": "bad"}), http.StatusUnprocessableEntity},
		{fmt.Errorf("checkout: %w", ErrUnauthorized), http.StatusUnauthorized},
		{fmt.Errorf("admin: %w", ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("menu: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("order: %w", ErrInvalidTransition), http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Status(tc.err), "%v", tc.err)
	}
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := Invalid(map[string]string{"phone": "phone is short", "cart": "cart is empty"})
	assert.Equal(t, "validation failed: cart is empty; phone is short", err.Error())
	assert.ErrorIs(t, fmt.Errorf("wrap: %w", err), ErrValidation)
}
