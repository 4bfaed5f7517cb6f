package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBufferedStream_SelectorFilters(t *testing.T) {
	ss := NewBufferedStream[int, int]("s1", 4, func(v int) (int, bool) {
		return v * 2, v%2 == 0
	})

	require.NoError(t, ss.Notify(1, time.Second))
	require.NoError(t, ss.Notify(2, time.Second))

	select {
	case got := <-ss.Channel():
		require.Equal(t, 4, got)
	default:
		t.Fatal("expected a forwarded event")
	}

	select {
	case got := <-ss.Channel():
		t.Fatalf("unexpected event: %v", got)
	default:
	}
}

func TestBufferedStream_CloseIsIdempotent(t *testing.T) {
	ss := NewBufferedStream[int, int]("s1", 1, func(v int) (int, bool) {
		return v, true
	})

	ss.Close()
	ss.Close()

	require.Error(t, ss.Notify(1, time.Second))

	_, ok := <-ss.Channel()
	require.False(t, ok)
}

func TestBufferedStream_NotifyTimeoutClosesStream(t *testing.T) {
	ss := NewBufferedStream[int, int]("s1", 1, func(v int) (int, bool) {
		return v, true
	})

	require.NoError(t, ss.Notify(1, 10*time.Millisecond))
	require.Error(t, ss.Notify(2, 10*time.Millisecond))

	// The stream closed itself, but the buffered event is still readable.
	got, ok := <-ss.Channel()
	require.True(t, ok)
	require.Equal(t, 1, got)

	_, ok = <-ss.Channel()
	require.False(t, ok)
}

func TestBufferedStream_ID(t *testing.T) {
	ss := NewBufferedStream[int, int]("watcher-1", 1, func(v int) (int, bool) {
		return v, true
	})
	require.Equal(t, "watcher-1", ss.ID())
}
