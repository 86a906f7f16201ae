package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	hibiki "github.com/hibiki-ai/hibiki-go/pkg/core"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "ErrStoreUnavailable",
			err:      hibiki.ErrStoreUnavailable,
			expected: "memory store unavailable",
		},
		{
			name:     "ErrMalformedMemoryRecord",
			err:      hibiki.ErrMalformedMemoryRecord,
			expected: "malformed memory record",
		},
		{
			name:     "ErrPlanningFailed",
			err:      hibiki.ErrPlanningFailed,
			expected: "planning failed",
		},
		{
			name:     "ErrResponseFailed",
			err:      hibiki.ErrResponseFailed,
			expected: "response failed",
		},
		{
			name:     "ErrMemoryWriteFailed",
			err:      hibiki.ErrMemoryWriteFailed,
			expected: "memory write failed",
		},
		{
			name:     "ErrInvalidConfig",
			err:      hibiki.ErrInvalidConfig,
			expected: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestMemoryError(t *testing.T) {
	originalErr := errors.New("original error")
	memErr := hibiki.NewMemoryError("test_operation", originalErr)

	assert.Error(t, memErr)
	assert.Equal(t, "hibiki: test_operation: original error", memErr.Error())

	var target *hibiki.MemoryError
	if assert.True(t, errors.As(memErr, &target)) {
		assert.Equal(t, "test_operation", target.Op)
		assert.Equal(t, originalErr, target.Err)
	}

	assert.Equal(t, originalErr, errors.Unwrap(memErr))
	assert.Nil(t, hibiki.NewMemoryError("noop", nil))
}

func TestStageError(t *testing.T) {
	err := &hibiki.StageError{
		Stage: hibiki.StagePlanning,
		Kind:  hibiki.ErrPlanningFailed,
		Err:   context.DeadlineExceeded,
	}

	assert.Equal(t, "hibiki: planning: planning failed: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, hibiki.ErrPlanningFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, hibiki.ErrResponseFailed)

	wrapped := fmt.Errorf("handler: %w", err)
	var stageErr *hibiki.StageError
	if assert.True(t, errors.As(wrapped, &stageErr)) {
		assert.Equal(t, hibiki.StagePlanning, stageErr.Stage)
	}
}

func TestKindName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&hibiki.StageError{Stage: hibiki.StageRetrieval, Kind: hibiki.ErrStoreUnavailable, Err: errBackend}, "store_unavailable"},
		{&hibiki.StageError{Stage: hibiki.StagePlanning, Kind: hibiki.ErrPlanningFailed, Err: errBackend}, "planning_failed"},
		{&hibiki.StageError{Stage: hibiki.StageResponse, Kind: hibiki.ErrResponseFailed, Err: errBackend}, "response_failed"},
		{&hibiki.StageError{Stage: hibiki.StageResponse, Kind: hibiki.ErrMemoryWriteFailed, Err: errBackend}, "memory_write_failed"},
		{&hibiki.StageError{Stage: hibiki.StageResponse, Kind: hibiki.ErrMemoryWriteFailed, Err: fmt.Errorf("%w: disk full", hibiki.ErrStoreUnavailable)}, "memory_write_failed"},
		{hibiki.NewMemoryError("Run", hibiki.ErrInvalidInput), "invalid_input"},
		{errBackend, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, hibiki.KindName(tt.err))
		})
	}
}
