package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestQueueOverflowCountsDrops(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.TryPublish(Event{}))
	require.NoError(t, q.TryPublish(Event{}))
	assert.ErrorIs(t, q.TryPublish(Event{}), ErrQueueFull)

	assert.Equal(t, 2, q.Depth())
	assert.Equal(t, 2, q.Cap())
	assert.Equal(t, uint64(2), q.Published())
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestQueueDrainsAfterClose(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.TryPublish(Event{Header: schema.EventHeader{Seq: uint64(i + 1)}}))
	}
	q.Close()
	assert.ErrorIs(t, q.TryPublish(Event{}), ErrQueueClosed)

	var seqs []uint64
	q.Run(context.Background(), func(e Event) {
		seqs = append(seqs, e.Header.Seq)
	})
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}
