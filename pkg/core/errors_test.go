package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	tests := []struct {
		name  string
		err   error
		is    func(error) bool
		text  string
		cause error
	}{
		{
			name:  "connection",
			err:   ErrConnection("postgres", cause, "cannot reach %s", "db:5432"),
			is:    IsConnection,
			text:  "postgres connection failed: cannot reach db:5432: dial tcp: refused",
			cause: cause,
		},
		{
			name: "validation",
			err:  ErrValidation("unknown operator %q", "~"),
			is:   IsValidation,
			text: `unknown operator "~"`,
		},
		{
			name: "validation problems",
			err:  ErrValidationProblems("invalid pipeline", []string{"a", "b"}),
			is:   IsValidation,
			text: "invalid pipeline: a; b",
		},
		{
			name: "not found",
			err:  ErrNotFound("data source not found: %s", "shop"),
			is:   IsNotFound,
			text: "data source not found: shop",
		},
		{
			name:  "execution",
			err:   ErrExecution(cause, "query failed"),
			is:    IsExecution,
			text:  "query failed: dial tcp: refused",
			cause: cause,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.err.Error())

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.is(wrapped))
			if tt.cause != nil {
				assert.ErrorIs(t, wrapped, tt.cause)
			}
		})
	}

	assert.False(t, IsNotFound(ErrValidation("x")))
	assert.False(t, IsConnection(cause))
}
