package retry

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func fast() *backoff.Backoff {
	return &backoff.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond}
}

func always(error) bool { return true }

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), 5, fast(), always, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, xerrors.New("not yet")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 3, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), 3, fast(), always, func() (struct{}, error) {
		calls++
		return struct{}{}, xerrors.Errorf("attempt %d", calls)
	})
	require.EqualError(t, err, "attempt 3")
	require.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := xerrors.New("bad password")
	calls := 0
	_, err := Retry(context.Background(), 5, fast(), func(err error) bool { return !errors.Is(err, permanent) }, func() (int, error) {
		calls++
		return 0, permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &backoff.Backoff{Min: time.Hour, Max: time.Hour}

	calls := 0
	_, err := Retry(ctx, 5, slow, always, func() (int, error) {
		calls++
		cancel()
		return 0, xerrors.New("down")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestErrorIsIn(t *testing.T) {
	err := xerrors.Errorf("opening: %w", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist})
	require.True(t, ErrorIsIn(err, []error{&fs.PathError{}}))
	require.False(t, ErrorIsIn(xerrors.New("plain"), []error{&fs.PathError{}}))
}
