// Package withdrawal validates, allocates and pays out withdrawal requests
// against the earnings ledger.
package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/ledger"
	"github.com/zulandar/dripyard/internal/logger"
	"github.com/zulandar/dripyard/internal/metrics"
	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/notify"
	"gorm.io/gorm"
)

var (
	// ErrInvalidRequest is returned for empty sources, non-positive amounts
	// and malformed wallet addresses.
	ErrInvalidRequest = errors.New("withdrawal: invalid request")
	// ErrInsufficientBalance is returned when the sources cannot cover the
	// requested amount.
	ErrInsufficientBalance = errors.New("withdrawal: insufficient balance")
	// ErrNotFound is returned for unknown withdrawal ids.
	ErrNotFound = errors.New("withdrawal: not found")
)

// Reason recorded on withdrawals that were processing when the process
// stopped.
const reasonInterrupted = "interrupted"

const (
	defaultQueueSize     = 64
	defaultSweepInterval = time.Minute
)

// Opts configures a Service.
type Opts struct {
	Payout        Payout // nil leaves requests pending
	Notifier      *notify.Dispatcher
	Metrics       *metrics.Metrics
	QueueSize     int
	SweepInterval time.Duration
}

// Service owns the withdrawals table.
type Service struct {
	db       *gorm.DB
	log      zerolog.Logger
	payout   Payout
	notifier *notify.Dispatcher
	metrics  *metrics.Metrics
	queue    chan string
	sweep    time.Duration
}

// New returns a Service backed by gdb.
func New(gdb *gorm.DB, opts Opts) *Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	return &Service{
		db:       gdb,
		log:      logger.WithComponent("withdrawal"),
		payout:   opts.Payout,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		queue:    make(chan string, opts.QueueSize),
		sweep:    opts.SweepInterval,
	}
}

// Request checks the balance of sources, allocates sats greedily in the
// order the sources are given and creates a pending withdrawal, all in one
// transaction.
func (s *Service) Request(ctx context.Context, wallet string, sats int64, sources []string) (*models.Withdrawal, error) {
	sources = ledger.Dedupe(sources)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: at least one faucet source is required", ErrInvalidRequest)
	}
	if sats <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if err := ValidateAddress(wallet); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("withdrawal: encode sources: %w", err)
	}
	w := models.Withdrawal{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		AmountSats:    sats,
		Sources:       string(encoded),
		Status:        models.WithdrawalPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bal, err := ledger.BalanceTx(tx, sources, true)
		if err != nil {
			return err
		}
		if bal.Available < sats {
			return fmt.Errorf("%w: requested %s BTC, available %s BTC", ErrInsufficientBalance,
				ledger.BTC(sats).StringFixed(8), ledger.BTC(bal.Available).StringFixed(8))
		}

		w.Allocations = allocate(w.ID, bal.Sources, sats)
		if err := tx.Create(&w).Error; err != nil {
			return fmt.Errorf("withdrawal: create %s: %w", w.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("withdrawal", w.ID).Int64("sats", sats).Strs("sources", sources).Msg("withdrawal requested")
	s.metrics.ObserveWithdrawal(models.WithdrawalPending)
	s.enqueue(w.ID)
	return &w, nil
}

// allocate draws sats from each source in turn until the amount is covered.
func allocate(withdrawalID string, sources []ledger.SourceBalance, sats int64) []models.WithdrawalAllocation {
	var out []models.WithdrawalAllocation
	remaining := sats
	for _, src := range sources {
		if remaining == 0 {
			break
		}
		take := min(src.Available, remaining)
		if take <= 0 {
			continue
		}
		out = append(out, models.WithdrawalAllocation{
			WithdrawalID: withdrawalID,
			FaucetID:     src.FaucetID,
			AmountSats:   take,
		})
		remaining -= take
	}
	return out
}

// List returns every withdrawal, newest first.
func (s *Service) List(ctx context.Context) ([]models.Withdrawal, error) {
	var out []models.Withdrawal
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("withdrawal: list: %w", err)
	}
	return out, nil
}

// Get returns one withdrawal with its allocations.
func (s *Service) Get(ctx context.Context, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := s.db.WithContext(ctx).Preload("Allocations").Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("withdrawal: get %s: %w", id, err)
	}
	return &w, nil
}

// SourcesOf decodes the faucet sources stored on w.
func SourcesOf(w models.Withdrawal) []string {
	var out []string
	if err := json.Unmarshal([]byte(w.Sources), &out); err != nil {
		return nil
	}
	return out
}
