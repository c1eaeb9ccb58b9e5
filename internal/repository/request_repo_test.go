package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"spendflow/internal/model"
)

func TestFormatRequestID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "PR-2025-001", FormatRequestID(model.RequestTypePurchase, 2025, 1))
	assert.Equal(t, "PROJ-2025-042", FormatRequestID(model.RequestTypeProject, 2025, 42))
	// Width widens past 999 instead of wrapping.
	assert.Equal(t, "PR-2025-1000", FormatRequestID(model.RequestTypePurchase, 2025, 1000))
}

func TestIsNumericRef(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNumericRef("42"))
	assert.False(t, IsNumericRef(""))
	assert.False(t, IsNumericRef("PR-2025-001"))
	assert.False(t, IsNumericRef("12a"))
}
