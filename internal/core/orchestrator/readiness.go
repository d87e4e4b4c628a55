package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Phase names a step of the readiness protocol.
type Phase string

const (
	PhaseUp1  Phase = "up-1"
	PhaseDown Phase = "down"
	PhaseUp2  Phase = "up-2"
)

// Check reports whether a service currently answers. An error aborts the
// wait; a plain "not answering" must be reported as false.
type Check func(ctx context.Context) (bool, error)

// Detector waits for a service that comes up, restarts once during its
// initialization and then stays up. Answering once is not enough: the
// service must be seen going down and coming back.
//
// The down phase is best-effort. If the check never fails within
// DownAttempts, the wait continues with up-2 anyway.
type Detector struct {
	Interval     time.Duration
	DownAttempts int
	Log          zerolog.Logger

	// OnPhase, when set, is called as each phase begins.
	OnPhase func(Phase)
}

// Wait runs up-1, down and up-2 in order. Only ctx bounds the up phases.
func (d Detector) Wait(ctx context.Context, check Check) error {
	up := func(ctx context.Context) (bool, error) { return check(ctx) }
	down := func(ctx context.Context) (bool, error) {
		ok, err := check(ctx)
		return !ok, err
	}

	d.enter(PhaseUp1)
	if err := Poll(ctx, d.Interval, 0, up); err != nil {
		return fmt.Errorf("readiness phase %s: %w", PhaseUp1, err)
	}

	d.enter(PhaseDown)
	err := Poll(ctx, d.Interval, d.DownAttempts, down)
	switch {
	case errors.Is(err, ErrPollExhausted):
		d.Log.Debug().Int("attempts", d.DownAttempts).Msg("service never went down, continuing")
	case err != nil:
		return fmt.Errorf("readiness phase %s: %w", PhaseDown, err)
	}

	d.enter(PhaseUp2)
	if err := Poll(ctx, d.Interval, 0, up); err != nil {
		return fmt.Errorf("readiness phase %s: %w", PhaseUp2, err)
	}
	return nil
}

func (d Detector) enter(p Phase) {
	d.Log.Debug().Str("phase", string(p)).Msg("waiting for readiness")
	if d.OnPhase != nil {
		d.OnPhase(p)
	}
}
