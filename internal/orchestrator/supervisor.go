package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/zulandar/dripyard/internal/claim"
	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/notify"
)

// supervise consumes worker reports for one session until every worker has
// exited, then settles the session's final state.
func (o *Orchestrator) supervise(r *run, reports <-chan report) {
	ctx := context.Background()
	log := o.log.With().Str("session", r.id).Logger()
	inactive := make(map[string]string, len(r.faucets))
	var attempts, failures int
	errored := false

	for rep := range reports {
		attempts++
		if rep.outcome.Kind != claim.KindPermanent {
			continue
		}
		failures++
		if _, seen := inactive[rep.faucetID]; seen {
			continue
		}
		inactive[rep.faucetID] = rep.outcome.Reason
		if err := o.deactivate(ctx, r.id, rep.faucetID, rep.outcome.Reason); err != nil {
			log.Error().Err(err).Str("faucet", rep.faucetID).Msg("mark faucet inactive")
		}

		if len(inactive) == len(r.faucets) {
			changed, err := o.setStatus(ctx, r.id, models.SessionError, models.SessionStarting, models.SessionRunning)
			if err != nil {
				log.Error().Err(err).Msg("mark session error")
			}
			if changed {
				errored = true
				o.metrics.ObserveSession(models.SessionError)
				log.Error().Int("faucets", len(r.faucets)).Msg("every faucet failed permanently, session in error")
				o.notifier.Send(ctx, sessionErrorEvent(r.id, inactive))
			}
		}
	}

	if !errored {
		if err := o.finish(ctx, r.id); err != nil {
			log.Error().Err(err).Msg("mark session stopped")
		}
	}
	o.cooldown.Forget(r.id)
	o.forget(r.id)
	log.Info().Int("attempts", attempts).Int("permanent_failures", failures).Msg("session finished")
	close(r.done)
}

// finish marks a session stopped from any non-terminal state.
func (o *Orchestrator) finish(ctx context.Context, id string) error {
	changed, err := o.setStatus(ctx, id, models.SessionStopped, models.ActiveSessionStatuses...)
	if err != nil {
		return err
	}
	if changed {
		o.metrics.ObserveSession(models.SessionStopped)
		o.log.Info().Str("session", id).Msg("session stopped")
	}
	return nil
}

func (o *Orchestrator) deactivate(ctx context.Context, sessionID, faucetID, reason string) error {
	err := o.db.WithContext(ctx).Model(&models.SessionFaucet{}).
		Where("session_id = ? AND faucet_id = ?", sessionID, faucetID).
		Updates(map[string]interface{}{
			"state":      models.SessionFaucetInactive,
			"reason":     reason,
			"updated_at": o.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("orchestrator: deactivate %s in %s: %w", faucetID, sessionID, err)
	}
	return nil
}

func sessionErrorEvent(sessionID string, reasons map[string]string) notify.Event {
	evt := notify.Event{
		Kind:     notify.KindSessionError,
		Title:    "Session " + sessionID + " stopped: every faucet failed",
		Severity: notify.SeverityError,
		Fields:   []notify.Field{notify.Fieldf("Session", "%s", sessionID)},
	}
	for _, faucetID := range slices.Sorted(maps.Keys(reasons)) {
		evt.Fields = append(evt.Fields, notify.Field{Name: faucetID, Value: reasons[faucetID]})
	}
	return evt
}
