// Package orchestrator owns claiming sessions. Each session runs one
// worker goroutine per faucet and a supervisor that collects worker
// reports and drives the session's lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/backoff"
	"github.com/zulandar/dripyard/internal/claim"
	"github.com/zulandar/dripyard/internal/cooldown"
	"github.com/zulandar/dripyard/internal/faucet"
	"github.com/zulandar/dripyard/internal/ledger"
	"github.com/zulandar/dripyard/internal/logger"
	"github.com/zulandar/dripyard/internal/metrics"
	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/notify"
	"github.com/zulandar/dripyard/internal/proxypool"
	"gorm.io/gorm"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("orchestrator: session not found")
	// ErrTooManySessions is returned when the concurrent session cap is hit.
	ErrTooManySessions = errors.New("orchestrator: too many active sessions")
	// ErrInvalidFaucets is returned when a start request names faucets
	// that are unknown or disabled, or when nothing is left to claim.
	ErrInvalidFaucets = errors.New("orchestrator: invalid faucets")
	// ErrShuttingDown is returned by Start after Shutdown.
	ErrShuttingDown = errors.New("orchestrator: shutting down")
)

// Claimer runs one claim attempt. *claim.Executor implements it.
type Claimer interface {
	Attempt(ctx context.Context, f models.Faucet, px proxypool.Proxy) claim.Outcome
}

// Opts configures an Orchestrator.
type Opts struct {
	DB       *gorm.DB
	Registry *faucet.Registry
	Pool     *proxypool.Pool
	Claimer  Claimer
	Ledger   *ledger.Ledger
	Cooldown *cooldown.Scheduler
	Metrics  *metrics.Metrics
	Notifier *notify.Dispatcher

	MaxSessions int // 0 means unlimited
	MaxAttempts int // transient retries per cycle
	Retry       backoff.Policy
	Checkout    backoff.Policy
	// NoPayoutWait is how long a worker waits after a faucet declines
	// without saying when to come back. Zero uses the faucet's cooldown.
	NoPayoutWait time.Duration
}

// Orchestrator starts, tracks and stops sessions.
type Orchestrator struct {
	db       *gorm.DB
	registry *faucet.Registry
	pool     *proxypool.Pool
	claimer  Claimer
	ledger   *ledger.Ledger
	cooldown *cooldown.Scheduler
	metrics  *metrics.Metrics
	notifier *notify.Dispatcher
	log      zerolog.Logger

	maxSessions  int
	maxAttempts  int
	retry        backoff.Policy
	checkout     backoff.Policy
	noPayoutWait time.Duration
	now          func() time.Time

	// root parents every session context so sessions outlive the request
	// that started them.
	root       context.Context
	rootCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*run
	closed   bool
}

// run is the in-memory half of a live session.
type run struct {
	id      string
	faucets []models.Faucet
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns an Orchestrator.
func New(opts Opts) *Orchestrator {
	if opts.Cooldown == nil {
		opts.Cooldown = cooldown.New()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.New(opts.DB)
	}
	root, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		db:           opts.DB,
		registry:     opts.Registry,
		pool:         opts.Pool,
		claimer:      opts.Claimer,
		ledger:       opts.Ledger,
		cooldown:     opts.Cooldown,
		metrics:      opts.Metrics,
		notifier:     opts.Notifier,
		log:          logger.WithComponent("orchestrator"),
		maxSessions:  opts.MaxSessions,
		maxAttempts:  opts.MaxAttempts,
		retry:        opts.Retry,
		checkout:     opts.Checkout,
		noPayoutWait: opts.NoPayoutWait,
		now:          time.Now,
		root:         root,
		rootCancel:   cancel,
		sessions:     make(map[string]*run),
	}
}

// Start creates a session over faucetIDs and launches its workers. An
// empty list selects every enabled faucet.
func (o *Orchestrator) Start(ctx context.Context, faucetIDs []string) (*models.Session, error) {
	found, missing, err := o.registry.Enabled(ctx, faucetIDs)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve faucets: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: unknown or disabled: %s", ErrInvalidFaucets, strings.Join(missing, ", "))
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: no enabled faucets", ErrInvalidFaucets)
	}

	runCtx, cancel := context.WithCancel(o.root)
	r := &run{id: uuid.NewString(), faucets: found, cancel: cancel, done: make(chan struct{})}

	// Reserve the slot before touching the database so concurrent starts
	// cannot overshoot the cap.
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return nil, ErrShuttingDown
	}
	if o.maxSessions > 0 && len(o.sessions) >= o.maxSessions {
		o.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, o.maxSessions)
	}
	o.sessions[r.id] = r
	o.mu.Unlock()

	sess := models.Session{ID: r.id, Status: models.SessionStarting}
	for _, f := range found {
		sess.Faucets = append(sess.Faucets, models.SessionFaucet{
			SessionID: r.id,
			FaucetID:  f.ID,
			State:     models.SessionFaucetActive,
		})
	}
	if err := o.db.WithContext(ctx).Create(&sess).Error; err != nil {
		cancel()
		o.forget(r.id)
		close(r.done)
		return nil, fmt.Errorf("orchestrator: create session: %w", err)
	}
	o.metrics.ObserveSession(models.SessionStarting)

	o.launch(runCtx, r)

	running, err := o.setStatus(ctx, r.id, models.SessionRunning, models.SessionStarting)
	if err != nil {
		o.log.Error().Err(err).Str("session", r.id).Msg("mark session running")
	}
	if running {
		o.metrics.ObserveSession(models.SessionRunning)
	}
	o.log.Info().Str("session", r.id).Int("faucets", len(found)).Msg("session started")

	return o.Get(ctx, r.id)
}

// Stop cancels a session's workers, waits for in-flight attempts to finish
// and marks it stopped. Stopping a finished session is a no-op.
func (o *Orchestrator) Stop(ctx context.Context, id string) (*models.Session, error) {
	o.mu.Lock()
	r := o.sessions[id]
	o.mu.Unlock()

	if r == nil {
		sess, err := o.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if isActive(sess.Status) {
			// Left behind by an earlier process; nothing is running it.
			if err := o.finish(ctx, id); err != nil {
				return nil, err
			}
			return o.Get(ctx, id)
		}
		return sess, nil
	}

	if _, err := o.setStatus(ctx, id, models.SessionStopping, models.SessionStarting, models.SessionRunning); err != nil {
		return nil, err
	}
	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("orchestrator: stop %s: %w", id, ctx.Err())
	}
	return o.Get(ctx, id)
}

// Get returns a session with its per-faucet states.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := o.db.WithContext(ctx).Preload("Faucets", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id ASC")
	}).Where("id = ?", id).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: get session %s: %w", id, err)
	}
	return &sess, nil
}

// List returns every session, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]models.Session, error) {
	var out []models.Session
	if err := o.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("orchestrator: list sessions: %w", err)
	}
	return out, nil
}

// Active returns the number of sessions with live workers.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// Shutdown stops every live session and refuses new ones. It returns once
// all workers have exited or ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	runs := make([]*run, 0, len(o.sessions))
	for _, r := range o.sessions {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	for _, r := range runs {
		if _, err := o.setStatus(ctx, r.id, models.SessionStopping, models.SessionStarting, models.SessionRunning); err != nil {
			o.log.Error().Err(err).Str("session", r.id).Msg("mark session stopping")
		}
	}
	o.rootCancel()

	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return fmt.Errorf("orchestrator: shutdown: %w", ctx.Err())
		}
	}
	o.log.Info().Int("sessions", len(runs)).Msg("orchestrator shut down")
	return nil
}

// RecoverOrphans marks sessions left non-terminal by a previous process as
// stopped. Call it before starting new sessions.
func (o *Orchestrator) RecoverOrphans(ctx context.Context) (int64, error) {
	o.mu.Lock()
	live := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		live = append(live, id)
	}
	o.mu.Unlock()

	now := o.now()
	q := o.db.WithContext(ctx).Model(&models.Session{}).Where("status IN ?", models.ActiveSessionStatuses)
	if len(live) > 0 {
		q = q.Where("id NOT IN ?", live)
	}
	result := q.Updates(map[string]interface{}{
		"status":     models.SessionStopped,
		"stopped_at": now,
		"updated_at": now,
	})
	if result.Error != nil {
		return 0, fmt.Errorf("orchestrator: recover orphans: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		o.log.Warn().Int64("count", result.RowsAffected).Msg("stopped sessions orphaned by a previous run")
	}
	return result.RowsAffected, nil
}

// setStatus moves a session to status if it is currently in one of from.
// It reports whether the row changed.
func (o *Orchestrator) setStatus(ctx context.Context, id, status string, from ...string) (bool, error) {
	updates := map[string]interface{}{"status": status, "updated_at": o.now()}
	if status == models.SessionStopped || status == models.SessionError {
		updates["stopped_at"] = o.now()
	}
	result := o.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("orchestrator: set session %s %s: %w", id, status, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	delete(o.sessions, id)
	o.mu.Unlock()
}

func isActive(status string) bool {
	for _, s := range models.ActiveSessionStatuses {
		if s == status {
			return true
		}
	}
	return false
}
