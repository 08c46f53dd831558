// Package notify delivers operator-facing events (withdrawal results,
// sessions that fell into error) to chat platforms.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/logger"
)

// Severity values understood by every adapter.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Event kinds.
const (
	KindWithdrawalCompleted = "withdrawal.completed"
	KindWithdrawalFailed    = "withdrawal.failed"
	KindSessionError        = "session.error"
)

// Event is one notification.
type Event struct {
	Kind     string
	Title    string
	Body     string
	Severity string
	Fields   []Field
}

// Field is a key-value pair rendered alongside the event body.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Notifier sends events somewhere.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Color returns the sidebar color hint for a severity.
func Color(severity string) string {
	switch severity {
	case SeveritySuccess:
		return "#36a64f"
	case SeverityWarning:
		return "#daa038"
	case SeverityError:
		return "#d00000"
	default:
		return "#439fe0"
	}
}

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to several notifiers. Every target is tried even
// when an earlier one fails.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher wraps a Notifier so delivery failures are logged and never
// returned to the caller.
type Dispatcher struct {
	target Notifier
	log    zerolog.Logger
}

// NewDispatcher returns a Dispatcher for target. A nil target yields a
// dispatcher that drops everything.
func NewDispatcher(target Notifier) *Dispatcher {
	if target == nil {
		target = Nop{}
	}
	return &Dispatcher{target: target, log: logger.WithComponent("notify")}
}

// Send delivers evt, logging any failure.
func (d *Dispatcher) Send(ctx context.Context, evt Event) {
	if d == nil {
		return
	}
	if err := d.target.Notify(ctx, evt); err != nil {
		d.log.Warn().Err(err).Str("kind", evt.Kind).Msg("notification not delivered")
	}
}

// Fieldf builds a Field with a formatted value.
func Fieldf(name, format string, args ...any) Field {
	return Field{Name: name, Value: fmt.Sprintf(format, args...), Short: true}
}
