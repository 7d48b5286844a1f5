package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// retryingTx replays fn once before committing, like a serialization retry.
type retryingTx struct {
	attempts int
}

func (r *retryingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i < r.attempts; i++ {
		err = fn(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func TestHooksRunOnceAfterCommit(t *testing.T) {
	u := NewUoW(&retryingTx{attempts: 2})

	calls := 0
	err := u.Do(context.Background(), func(ctx context.Context, after func(AfterCommit)) error {
		after(func(context.Context) { calls++ })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestHooksSkippedOnFailure(t *testing.T) {
	u := NewUoW(&retryingTx{attempts: 1})
	boom := errors.New("boom")

	called := false
	err := u.Do(context.Background(), func(ctx context.Context, after func(AfterCommit)) error {
		after(func(context.Context) { called = true })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}
