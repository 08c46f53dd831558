// Package claim performs single claim attempts against a faucet through a
// checked-out proxy. Page automation and CAPTCHA solving sit behind the
// Driver and Solver interfaces.
package claim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/logger"
	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/proxypool"
)

// ErrProxy marks driver errors caused by the egress proxy (connect
// failures, proxy auth, upstream refusals). Drivers wrap with it.
var ErrProxy = errors.New("claim: proxy fault")

// Challenge describes a CAPTCHA found on a page.
type Challenge struct {
	Kind     string `json:"type"` // recaptcha, hcaptcha, image
	SiteKey  string `json:"site_key,omitempty"`
	PageURL  string `json:"page_url"`
	ImageURL string `json:"image_url,omitempty"`
	Field    string `json:"-"` // form field that receives the token
}

// Page is one loaded faucet page.
type Page interface {
	Has(ctx context.Context, selector string) (bool, error)
	Challenge(ctx context.Context, selector string) (Challenge, error)
	Fill(ctx context.Context, field, value string) error
	Click(ctx context.Context, selector string) error
	Text(ctx context.Context) (string, error)
	Close() error
}

// Driver opens pages through a proxy.
type Driver interface {
	Open(ctx context.Context, targetURL, proxyURL string) (Page, error)
}

// Solver answers CAPTCHA challenges.
type Solver interface {
	Solve(ctx context.Context, ch Challenge) (string, error)
}

// SolverError is returned by solvers that could not produce a token.
type SolverError struct {
	Reason string
	Err    error
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("claim: solver: %s: %v", e.Reason, e.Err)
	}
	return "claim: solver: " + e.Reason
}

func (e *SolverError) Unwrap() error { return e.Err }

// ExecutorOpts configures an Executor.
type ExecutorOpts struct {
	Driver  Driver
	Solver  Solver // may be nil; faucets that show a CAPTCHA then fail permanently
	Timeout time.Duration
}

// Executor runs claim attempts. It holds no per-attempt state and is safe
// for concurrent use.
type Executor struct {
	driver  Driver
	solver  Solver
	timeout time.Duration
	log     zerolog.Logger
}

// NewExecutor returns an Executor.
func NewExecutor(opts ExecutorOpts) *Executor {
	return &Executor{
		driver:  opts.Driver,
		solver:  opts.Solver,
		timeout: opts.Timeout,
		log:     logger.WithComponent("executor"),
	}
}

// Attempt performs one claim cycle: load the faucet through px, solve the
// CAPTCHA when one is configured and present, submit the claim and parse
// the payout. Faucet-side declines are NoPayout, never failures.
func (e *Executor) Attempt(ctx context.Context, f models.Faucet, px proxypool.Proxy) Outcome {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	page, err := e.driver.Open(ctx, f.URL, px.URL)
	if err != nil {
		return failure(ctx, "open page", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			e.log.Debug().Err(err).Str("faucet", f.ID).Msg("close page")
		}
	}()

	found, err := page.Has(ctx, f.ClaimSelector)
	if err != nil {
		return failure(ctx, "find claim element", err)
	}
	if !found {
		return Permanent(fmt.Sprintf("claim selector %q not found", f.ClaimSelector))
	}

	if f.CaptchaSelector != "" {
		present, err := page.Has(ctx, f.CaptchaSelector)
		if err != nil {
			return failure(ctx, "find captcha", err)
		}
		if present {
			if out, ok := e.solve(ctx, page, f); !ok {
				return out
			}
		}
	}

	if err := page.Click(ctx, f.ClaimSelector); err != nil {
		return failure(ctx, "submit claim", err)
	}
	text, err := page.Text(ctx)
	if err != nil {
		return failure(ctx, "read result", err)
	}

	wait, _ := ParseWait(text)
	if Declined(text) {
		return NoPayout("claim declined", wait)
	}
	if sats, ok := ParseAmount(text); ok {
		return Success(sats)
	}
	return NoPayout("no payout on result page", wait)
}

// solve fills the CAPTCHA answer. ok is false when the attempt must stop
// with the returned outcome.
func (e *Executor) solve(ctx context.Context, page Page, f models.Faucet) (Outcome, bool) {
	ch, err := page.Challenge(ctx, f.CaptchaSelector)
	if err != nil {
		return failure(ctx, "read captcha", err), false
	}
	if e.solver == nil {
		return Permanent("captcha present but no solver is configured"), false
	}
	if ch.PageURL == "" {
		ch.PageURL = f.URL
	}

	token, err := e.solver.Solve(ctx, ch)
	if err != nil {
		if ctx.Err() != nil {
			return Transient("cancelled", false), false
		}
		return Transient(err.Error(), false), false
	}
	if err := page.Fill(ctx, ch.Field, token); err != nil {
		return failure(ctx, "fill captcha", err), false
	}
	return Outcome{}, true
}

// failure classifies a driver error as a transient outcome. A plain
// cancellation is not the proxy's fault; a network error that surfaced
// while the context was being cancelled still is.
func failure(ctx context.Context, step string, err error) Outcome {
	if errors.Is(ctx.Err(), context.Canceled) {
		if errors.Is(err, context.Canceled) {
			return Transient("cancelled during "+step, false)
		}
		return Transient(fmt.Sprintf("cancelled during %s: %v", step, err), IsInfra(err))
	}
	return Transient(fmt.Sprintf("%s: %v", step, err), IsInfra(err))
}

// IsInfra reports whether err points at the network path rather than the
// faucet.
func IsInfra(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProxy) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset")
}
