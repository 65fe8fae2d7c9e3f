package dmx820

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

// OpenRetry opens the board at index, trying again with an exponential
// backoff for at most window when the driver refuses.  The driver tends to
// refuse for a short while after another process closed the board.
//
// A board that does not exist is not retried.  window <= 0 tries once.
func OpenRetry(ctx context.Context, drv Driver, index int, window time.Duration) (Board, error) {
	if window <= 0 {
		return drv.Open(index)
	}
	var brd Board
	op := func() error {
		b, err := drv.Open(index)
		if err != nil {
			if errors.Is(err, ErrNoBoard) || errors.Is(err, ErrNoDriver) {
				return backoff.Permanent(err)
			}
			return err
		}
		brd = b
		return nil
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      window,
		Clock:               backoff.SystemClock}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, err
	}
	return brd, nil
}
