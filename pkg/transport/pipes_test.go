package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/parmap/pkg/types"
)

func newPipePair(t *testing.T) Pair[int, string] {
	t.Helper()
	pair, err := Pipes[int, string]()(0)
	require.NoError(t, err)
	return pair
}

func TestPipePair_Roundtrip(t *testing.T) {
	ctx := context.Background()
	pair := newPipePair(t)
	defer pair.Close()

	chunk := types.Chunk[int]{Items: []types.WorkItem[int]{
		{Seq: 4, Payload: 40},
		{Seq: 5, Payload: 50},
	}}
	require.NoError(t, pair.SendWork(ctx, chunk))

	got, err := pair.RecvWork(ctx)
	require.NoError(t, err)
	assert.Equal(t, chunk, got)

	results := types.ResultChunk[string]{Items: []types.ResultItem[string]{
		{Seq: 4, Worker: 0, Value: "forty"},
		{Seq: 5, Worker: 0, Err: &types.ErrorEnvelope{
			Worker:  0,
			Kind:    "transport.testError",
			Message: "bad value",
			Trace:   "goroutine 1 [running]:\n",
		}},
	}}
	require.NoError(t, pair.SendResults(ctx, results))

	back, err := pair.RecvResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, results, back)
}

func TestPipePair_MultipleChunksPreserveOrder(t *testing.T) {
	ctx := context.Background()
	pair := newPipePair(t)
	defer pair.Close()

	for i := 0; i < 5; i++ {
		chunk := types.Chunk[int]{Items: []types.WorkItem[int]{{Seq: int64(i), Payload: i}}}
		require.NoError(t, pair.SendWork(ctx, chunk))
	}

	for i := 0; i < 5; i++ {
		chunk, err := pair.RecvWork(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(i), chunk.Items[0].Seq)
	}
}

func TestPipePair_CloseSendDrainsThenEOF(t *testing.T) {
	ctx := context.Background()
	pair := newPipePair(t)
	defer pair.Close()

	require.NoError(t, pair.SendWork(ctx, types.Chunk[int]{Items: []types.WorkItem[int]{{Seq: 0, Payload: 9}}}))
	require.NoError(t, pair.CloseSend())

	chunk, err := pair.RecvWork(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, chunk.Items[0].Payload)

	_, err = pair.RecvWork(ctx)
	assert.ErrorIs(t, err, types.ErrChannelClosed)
}

func TestPipePair_CloseWakesBlockedReceiver(t *testing.T) {
	pair := newPipePair(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := pair.RecvResults(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, pair.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, types.ErrChannelClosed)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken by Close")
	}
}

func TestPipePair_SendAfterClose(t *testing.T) {
	pair := newPipePair(t)
	require.NoError(t, pair.Close())

	err := pair.SendWork(context.Background(), types.Chunk[int]{})
	assert.ErrorIs(t, err, types.ErrChannelClosed)

	err = pair.SendResults(context.Background(), types.ResultChunk[string]{})
	assert.ErrorIs(t, err, types.ErrChannelClosed)
}

func TestPipePair_CloseIdempotent(t *testing.T) {
	pair := newPipePair(t)

	assert.NoError(t, pair.Close())
	assert.NoError(t, pair.Close())
	assert.NoError(t, pair.CloseSend())
	assert.NoError(t, pair.CloseResults())
}
