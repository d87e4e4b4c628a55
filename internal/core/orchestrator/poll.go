package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrPollExhausted is returned by Poll when the attempt bound is reached
// before the condition holds.
var ErrPollExhausted = errors.New("condition not met within attempt bound")

var errNotYet = errors.New("not yet")

// Condition is evaluated by Poll. A non-nil error stops polling immediately.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond every interval until it reports true. maxAttempts bounds
// the number of evaluations; zero or less means unbounded, in which case only
// ctx can end the wait.
func Poll(ctx context.Context, interval time.Duration, maxAttempts int, cond Condition) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	b := retry.NewConstant(interval)
	if maxAttempts > 0 {
		b = retry.WithMaxRetries(uint64(maxAttempts-1), b)
	}

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errNotYet)
		}
		return nil
	})
	if errors.Is(err, errNotYet) {
		return ErrPollExhausted
	}
	return err
}
