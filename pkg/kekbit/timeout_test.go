package kekbit_test

import (
	"testing"
	"time"

	"github.com/calvinalkan/kekbit/pkg/kekbit"

	"github.com/stretchr/testify/require"
)

func newTimeoutChannel(t *testing.T, channelID, timeoutMillis uint64) (*kekbit.ShmWriter, *kekbit.TimeoutReader) {
	t.Helper()

	root := t.TempDir()
	meta := kekbit.NewMetadata(100, channelID, 20_000, 1000, timeoutMillis, kekbit.Millis)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	reader, err := kekbit.OpenChannel(root, channelID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	return writer, kekbit.WithTimeout(reader)
}

func Test_TimeoutReader_Latches_Timeout_When_Producer_Goes_Silent(t *testing.T) {
	t.Parallel()

	writer, reader := newTimeoutChannel(t, 30, 50)

	_, err := writer.Write([]byte("Just a bad day"))
	require.NoError(t, err)

	iter := reader.TryIter()

	record, ok := iter.Next()
	require.True(t, ok)
	require.Equal(t, "Just a bad day", string(record))

	// Nothing yet: this poll arms the inactivity deadline.
	_, ok = iter.Next()
	require.False(t, ok)
	require.NoError(t, iter.Exhausted())

	time.Sleep(60 * time.Millisecond)

	_, readErr := reader.TryRead()
	require.Error(t, readErr)
	require.ErrorIs(t, readErr, kekbit.ErrTimeout)

	var timeoutErr *kekbit.TimeoutError

	require.ErrorAs(t, readErr, &timeoutErr)
	require.NotZero(t, timeoutErr.Deadline)

	// Latched: iteration is over for good.
	_, ok = iter.Next()
	require.False(t, ok)
	require.ErrorIs(t, iter.Exhausted(), kekbit.ErrTimeout)

	_, again := reader.TryRead()
	require.ErrorIs(t, again, kekbit.ErrTimeout)
}

func Test_TimeoutReader_Resets_Deadline_When_Record_Arrives(t *testing.T) {
	t.Parallel()

	writer, reader := newTimeoutChannel(t, 31, 80)

	// Arm the deadline.
	record, err := reader.TryRead()
	require.NoError(t, err)
	require.Nil(t, record)

	time.Sleep(50 * time.Millisecond)

	_, err = writer.Write([]byte("still here"))
	require.NoError(t, err)

	record, err = reader.TryRead()
	require.NoError(t, err)
	require.Equal(t, "still here", string(record))

	// The old deadline has passed by now, but activity disarmed it.
	time.Sleep(50 * time.Millisecond)

	record, err = reader.TryRead()
	require.NoError(t, err)
	require.Nil(t, record)
	require.NoError(t, reader.Exhausted())
}

func Test_TimeoutReader_Counts_Heartbeats_As_Producer_Activity(t *testing.T) {
	t.Parallel()

	writer, reader := newTimeoutChannel(t, 32, 80)

	// Arm the deadline.
	_, err := reader.TryRead()
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = writer.Heartbeat()
	require.NoError(t, err)

	// The heartbeat surfaces nothing but must disarm the deadline.
	record, readErr := reader.TryRead()
	require.NoError(t, readErr)
	require.Nil(t, record)

	time.Sleep(50 * time.Millisecond)

	_, readErr = reader.TryRead()
	require.NoError(t, readErr)
	require.NoError(t, reader.Exhausted())
}

func Test_TimeoutReader_Passes_Through_Inner_Exhaustion(t *testing.T) {
	t.Parallel()

	writer, reader := newTimeoutChannel(t, 33, 50)

	require.NoError(t, writer.Close())

	_, readErr := reader.TryRead()
	require.ErrorIs(t, readErr, kekbit.ErrClosed)
	require.ErrorIs(t, reader.Exhausted(), kekbit.ErrClosed)
}
