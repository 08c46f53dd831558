package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/dripyard/internal/ledger"
	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/notify"
)

// enqueue hands id to the processor without blocking. Anything dropped
// here is picked up by the next sweep.
func (s *Service) enqueue(id string) {
	if s.payout == nil {
		return
	}
	select {
	case s.queue <- id:
	default:
		s.log.Warn().Str("withdrawal", id).Msg("payout queue full, deferring to sweep")
	}
}

// Run processes withdrawals until ctx is cancelled. On start it fails
// requests left processing by a previous run and re-enqueues pending ones.
// Without a Payout, requests stay pending.
func (s *Service) Run(ctx context.Context) error {
	n, err := s.failInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Warn().Int64("count", n).Msg("failed withdrawals interrupted mid-payout")
	}

	if s.payout == nil {
		s.log.Warn().Msg("no payout configured, withdrawals stay pending")
		<-ctx.Done()
		return nil
	}

	if err := s.sweepPending(ctx); err != nil {
		s.log.Error().Err(err).Msg("sweep pending withdrawals")
	}

	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-s.queue:
			s.process(ctx, id)
		case <-ticker.C:
			if err := s.sweepPending(ctx); err != nil {
				s.log.Error().Err(err).Msg("sweep pending withdrawals")
			}
		}
	}
}

func (s *Service) failInterrupted(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("status = ?", models.WithdrawalProcessing).
		Updates(map[string]interface{}{
			"status":     models.WithdrawalFailed,
			"reason":     reasonInterrupted,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("withdrawal: fail interrupted: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Service) sweepPending(ctx context.Context) error {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("status = ?", models.WithdrawalPending).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("withdrawal: list pending: %w", err)
	}
	for _, id := range ids {
		s.enqueue(id)
	}
	return nil
}

// transition moves id from one status to another only if it is still in
// from. It reports whether this caller won the transition.
func (s *Service) transition(ctx context.Context, id, from, to string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to, "updated_at": time.Now()}
	for k, v := range extra {
		updates[k] = v
	}
	result := s.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("withdrawal: %s -> %s for %s: %w", from, to, id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// process pays one pending withdrawal.
func (s *Service) process(ctx context.Context, id string) {
	log := s.log.With().Str("withdrawal", id).Logger()

	won, err := s.transition(ctx, id, models.WithdrawalPending, models.WithdrawalProcessing, nil)
	if err != nil {
		log.Error().Err(err).Msg("claim withdrawal for processing")
		return
	}
	if !won {
		return
	}
	s.metrics.ObserveWithdrawal(models.WithdrawalProcessing)

	w, err := s.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("load withdrawal")
		return
	}

	txRef, payErr := s.payout.Pay(ctx, *w)

	// The outcome is recorded even if shutdown cancelled ctx mid-payout.
	bg := context.WithoutCancel(ctx)
	status, extra := models.WithdrawalCompleted, map[string]interface{}{"tx_ref": txRef, "reason": ""}
	if payErr != nil {
		reason := payErr.Error()
		if ctx.Err() != nil {
			reason = reasonInterrupted
		}
		status, extra = models.WithdrawalFailed, map[string]interface{}{"reason": reason}
	}

	if _, err := s.transition(bg, id, models.WithdrawalProcessing, status, extra); err != nil {
		log.Error().Err(err).Msg("record payout result")
		return
	}
	s.metrics.ObserveWithdrawal(status)

	if payErr != nil {
		log.Error().Err(payErr).Msg("payout failed")
	} else {
		log.Info().Str("tx_ref", txRef).Int64("sats", w.AmountSats).Msg("payout completed")
	}
	s.notifier.Send(bg, resultEvent(*w, status, txRef, payErr))
}

func resultEvent(w models.Withdrawal, status, txRef string, payErr error) notify.Event {
	evt := notify.Event{
		Fields: []notify.Field{
			notify.Fieldf("ID", "%s", w.ID),
			notify.Fieldf("Amount", "%s BTC", ledger.BTC(w.AmountSats).StringFixed(8)),
			notify.Fieldf("Wallet", "%s", w.WalletAddress),
		},
	}
	if status == models.WithdrawalCompleted {
		evt.Kind = notify.KindWithdrawalCompleted
		evt.Title = "Withdrawal completed"
		evt.Severity = notify.SeveritySuccess
		if txRef != "" {
			evt.Fields = append(evt.Fields, notify.Fieldf("Tx", "%s", txRef))
		}
		return evt
	}
	evt.Kind = notify.KindWithdrawalFailed
	evt.Title = "Withdrawal failed"
	evt.Severity = notify.SeverityError
	if payErr != nil {
		evt.Body = payErr.Error()
	}
	return evt
}
