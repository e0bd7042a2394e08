package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_DeliversInOrder(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue(4)

	first := ingestJob()
	second := ingestJob()
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	assert.Equal(t, first.ResourceID, (<-q.Jobs()).ResourceID)
	assert.Equal(t, second.ResourceID, (<-q.Jobs()).ResourceID)
}

func TestInMemoryQueue_EnqueueHonorsContextWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemoryQueue(1)
	require.NoError(t, q.Enqueue(ctx, ingestJob()))

	cancel()
	err := q.Enqueue(ctx, ingestJob())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryQueue_CloseIsIdempotent(t *testing.T) {
	q := NewInMemoryQueue(1)

	q.Close()
	q.Close()

	_, ok := <-q.Jobs()
	assert.False(t, ok, "a closed queue delivers no more jobs")
}

func TestInMemoryQueue_ZeroSizeFallsBackToDefault(t *testing.T) {
	q := NewInMemoryQueue(0)
	assert.Equal(t, DefaultQueueSize, cap(q.Jobs()))
}
