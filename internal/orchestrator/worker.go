package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/backoff"
	"github.com/zulandar/dripyard/internal/claim"
	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/proxypool"
)

// report is what a worker tells its session's supervisor after each
// attempt.
type report struct {
	faucetID string
	outcome  claim.Outcome
}

// launch starts one worker per faucet plus the supervisor, and returns
// once every worker goroutine is running.
func (o *Orchestrator) launch(ctx context.Context, r *run) {
	reports := make(chan report, len(r.faucets))
	var workers, ready sync.WaitGroup
	for _, f := range r.faucets {
		workers.Add(1)
		ready.Add(1)
		go func() {
			defer workers.Done()
			ready.Done()
			o.work(ctx, r.id, f, reports)
		}()
	}
	go func() {
		workers.Wait()
		close(reports)
	}()
	go o.supervise(r, reports)
	ready.Wait()
}

// work is the claim loop for one (session, faucet) pair. Attempts within
// the loop never overlap. It returns when ctx is cancelled or the faucet
// fails permanently.
func (o *Orchestrator) work(ctx context.Context, sessionID string, f models.Faucet, reports chan<- report) {
	log := o.log.With().Str("session", sessionID).Str("faucet", f.ID).Logger()
	o.metrics.WorkerStarted()
	defer o.metrics.WorkerStopped()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("worker panicked")
			reports <- report{faucetID: f.ID, outcome: claim.Permanent(fmt.Sprintf("worker panic: %v", p))}
		}
	}()

	for {
		if wait := o.cooldown.Wait(sessionID, f.ID, o.now()); wait > 0 {
			log.Debug().Dur("wait", wait).Msg("waiting for cooldown")
			if err := backoff.Sleep(ctx, wait); err != nil {
				return
			}
		}

		outcome, ok := o.cycle(ctx, log, sessionID, f, reports)
		if !ok || outcome.Kind == claim.KindPermanent {
			return
		}
	}
}

// cycle runs one claim cycle: an attempt plus bounded retries of
// transient failures. ok is false when ctx was cancelled.
func (o *Orchestrator) cycle(ctx context.Context, log zerolog.Logger, sessionID string, f models.Faucet, reports chan<- report) (claim.Outcome, bool) {
	cooldown := f.Cooldown()

	for n := 1; ; n++ {
		outcome, ok := o.attempt(ctx, sessionID, f, n)
		if !ok {
			return outcome, false
		}
		reports <- report{faucetID: f.ID, outcome: outcome}
		if ctx.Err() != nil {
			return outcome, false
		}

		switch outcome.Kind {
		case claim.KindSuccess:
			o.cooldown.MarkClaimed(sessionID, f.ID, cooldown, o.now())
			log.Info().Int64("sats", outcome.Sats).Msg("claim succeeded")
			return outcome, true

		case claim.KindNoPayout:
			wait := outcome.RetryAfter
			if wait <= 0 {
				wait = o.noPayoutWait
			}
			if wait <= 0 {
				wait = cooldown
			}
			o.cooldown.Defer(sessionID, f.ID, o.now().Add(wait))
			log.Info().Str("reason", outcome.Reason).Dur("wait", wait).Msg("faucet declined payout")
			return outcome, true

		case claim.KindPermanent:
			log.Warn().Str("reason", outcome.Reason).Msg("faucet failed permanently, taking it out of rotation")
			return outcome, true
		}

		if n >= o.maxAttempts {
			wait := o.retry.Delay(n)
			o.cooldown.Defer(sessionID, f.ID, o.now().Add(wait))
			log.Warn().Str("reason", outcome.Reason).Int("attempts", n).Dur("wait", wait).Msg("giving up on this cycle")
			return outcome, true
		}
		log.Debug().Str("reason", outcome.Reason).Int("attempt", n).Msg("transient failure, retrying")
		if err := backoff.Sleep(ctx, o.retry.Delay(n)); err != nil {
			return outcome, false
		}
	}
}

// attempt checks out a proxy, runs one claim and records it. The proxy is
// released on every path out, including panics in the claimer.
func (o *Orchestrator) attempt(ctx context.Context, sessionID string, f models.Faucet, n int) (outcome claim.Outcome, ok bool) {
	px, err := o.checkoutProxy(ctx)
	if err != nil {
		return claim.Outcome{}, false
	}

	result := proxypool.ResultOK
	defer func() {
		if err := o.pool.Release(px.ID, result); err != nil {
			o.log.Error().Err(err).Str("proxy", px.ID).Msg("release proxy")
		}
	}()

	start := o.now()
	outcome = o.claimer.Attempt(ctx, f, px)
	if outcome.Kind == claim.KindTransient && outcome.Infra {
		result = proxypool.ResultFailed
	}

	// A cancelled attempt is still recorded, so bookkeeping must not share
	// the cancelled context.
	rec := models.ClaimAttempt{
		SessionID:  sessionID,
		FaucetID:   f.ID,
		ProxyID:    px.ID,
		Attempt:    n,
		Outcome:    outcome.Kind.String(),
		Reason:     outcome.Reason,
		AmountSats: outcome.Sats,
		DurationMs: o.now().Sub(start).Milliseconds(),
	}
	if err := o.ledger.RecordAttempt(context.WithoutCancel(ctx), rec); err != nil {
		o.log.Error().Err(err).Str("session", sessionID).Str("faucet", f.ID).Msg("record attempt")
	}
	o.metrics.ObserveAttempt(rec.Outcome, outcome.Sats)
	return outcome, true
}

// checkoutProxy blocks until a proxy is available or ctx is done. Waits
// back off exponentially and end early when the pool signals a release.
func (o *Orchestrator) checkoutProxy(ctx context.Context) (proxypool.Proxy, error) {
	for n := 1; ; n++ {
		wake := o.pool.Wait()
		px, err := o.pool.Checkout()
		if err == nil {
			return px, nil
		}
		if !errors.Is(err, proxypool.ErrPoolExhausted) {
			return proxypool.Proxy{}, err
		}
		if n == 1 {
			o.log.Debug().Msg("proxy pool exhausted, waiting")
		}
		if err := backoff.SleepOrWake(ctx, o.checkout.Delay(n), wake); err != nil {
			return proxypool.Proxy{}, err
		}
	}
}
