package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRegistryCoversDailyOrder(t *testing.T) {
	s := &Service{}
	jobs := s.Jobs()

	require.Len(t, jobs, len(dailyOrder), "every registered job runs daily")
	for _, name := range dailyOrder {
		assert.Contains(t, jobs, name)
	}
}

func TestRunJobUnknownName(t *testing.T) {
	s := &Service{}
	_, err := s.RunJob(context.Background(), "defragment_moon", Trigger{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestJobNamesIsACopy(t *testing.T) {
	names := JobNames()
	require.NotEmpty(t, names)
	names[0] = "mutated"
	assert.NotEqual(t, "mutated", JobNames()[0])
}
