// Package backoff computes bounded exponential delays and sleeps on them
// without outliving a context.
package backoff

import (
	"context"
	"math"
	"time"
)

// Policy describes an exponential schedule: Initial, Initial*Multiplier, ...
// capped at Max.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// New returns a doubling policy.
func New(initial, max time.Duration) Policy {
	return Policy{Initial: initial, Max: max, Multiplier: 2}
}

// Delay returns the wait before retry n, where n=1 is the first retry.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	initial := p.Initial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(initial) * math.Pow(mult, float64(n-1))
	if p.Max > 0 && d > float64(p.Max) {
		return p.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter
// case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SleepOrWake is Sleep that also returns early, with nil, when wake fires.
func SleepOrWake(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	case <-t.C:
		return nil
	}
}
