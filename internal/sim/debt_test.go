package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebtStage(t *testing.T) {
	// Default five-day enforcement window.
	assert.Equal(t, "none", debtStage(0, 5))
	assert.Equal(t, "none", debtStage(2, 5))
	assert.Equal(t, "warning", debtStage(3, 5))
	assert.Equal(t, "final_warning", debtStage(4, 5))
	assert.Equal(t, "enforce", debtStage(5, 5))
	assert.Equal(t, "enforce", debtStage(12, 5))

	// The whole schedule shifts with the configured enforcement day.
	assert.Equal(t, "none", debtStage(4, 7))
	assert.Equal(t, "warning", debtStage(5, 7))
	assert.Equal(t, "final_warning", debtStage(6, 7))
	assert.Equal(t, "enforce", debtStage(7, 7))

	// An aggressive one-day window skips straight to enforcement.
	assert.Equal(t, "none", debtStage(0, 1))
	assert.Equal(t, "enforce", debtStage(1, 1))
}
