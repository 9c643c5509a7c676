package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Categorize(nil))
	})

	t.Run("wrapped categorized error is found", func(t *testing.T) {
		inner := NewDatabaseError("delete expired alerts", context.DeadlineExceeded)
		wrapped := fmt.Errorf("sweep: %w", inner)

		got := Categorize(wrapped)
		assert.Same(t, inner, got)
		assert.Equal(t, CategoryDatabase, got.Category)
	})

	t.Run("plain error becomes system error", func(t *testing.T) {
		got := Categorize(errors.New("boom"))
		assert.Equal(t, CategorySystem, got.Category)
		assert.Equal(t, "INTERNAL_ERROR", got.Code)
	})
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "config", err: NewConfigError("DATABASE_URL", "required"), want: true},
		{name: "database", err: NewDatabaseError("commit", errors.New("conn reset")), want: true},
		{name: "missing user", err: NewMissingReferenceError("user", 7), want: false},
		{name: "smtp", err: NewNotificationError("send", errors.New("535 auth failed")), want: false},
		{name: "probe", err: NewProbeError("https://cdn/x.png", errors.New("404")), want: false},
		{name: "uncategorized", err: errors.New("boom"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestMissingReferenceIsNotFound(t *testing.T) {
	err := fmt.Errorf("notify alert 3: %w", NewMissingReferenceError("product", 11))
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "product not found: 11")
}
