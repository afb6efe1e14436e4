package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryCAS_SucceedsAfterTransientConflicts(t *testing.T) {
	attempts := 0
	err := RetryCAS(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return ErrConflict
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryCAS_GivesUpAfterFiveAttempts(t *testing.T) {
	attempts := 0
	err := RetryCAS(context.Background(), func() error {
		attempts++
		return ErrConflict
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.GreaterOrEqual(t, attempts, 5)
	assert.LessOrEqual(t, attempts, 6)
}

func TestRetryCAS_PermanentErrorStopsImmediately(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")
	err := RetryCAS(context.Background(), func() error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}
