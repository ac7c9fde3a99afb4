package retry

import (
	"context"
	"errors"
	"reflect"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/jpillora/backoff"
)

var log = logging.Logger("retry")

// DefaultBackoff doubles from 100ms up to 10s with jitter.
func DefaultBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}

// ErrorIsIn reports whether err matches, via errors.As, the concrete type of
// any of the given sample errors. Samples must be pointers.
func ErrorIsIn(err error, errorTypes []error) bool {
	for _, etype := range errorTypes {
		tmp := reflect.New(reflect.ValueOf(etype).Type()).Interface()
		if errors.As(err, tmp) {
			return true
		}
	}
	return false
}

// Retry calls f up to attempts times, sleeping per b between calls, for as
// long as retryable accepts the returned error. The last error is returned
// when attempts run out; a cancelled context returns its error.
func Retry[T any](ctx context.Context, attempts int, b *backoff.Backoff, retryable func(error) bool, f func() (T, error)) (result T, err error) {
	if b == nil {
		b = DefaultBackoff()
	}
	b.Reset()

	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := b.Duration()
			log.Infow("retrying after error", "attempt", i+1, "wait", wait, "err", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}

		result, err = f()
		if err == nil || retryable == nil || !retryable(err) {
			return result, err
		}
	}
	log.Errorw("giving up", "attempts", attempts, "err", err)
	return result, err
}
