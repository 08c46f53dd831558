package claim

import (
	"fmt"
	"time"

	"github.com/zulandar/dripyard/internal/models"
)

// Kind classifies the result of one claim attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindNoPayout
	KindTransient
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return models.OutcomeSuccess
	case KindNoPayout:
		return models.OutcomeNoPayout
	case KindTransient:
		return models.OutcomeTransient
	case KindPermanent:
		return models.OutcomePermanent
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is what Attempt returns. Infra is set when the proxy is to blame
// and should be released as failed.
type Outcome struct {
	Kind   Kind
	Sats   int64
	Reason string
	Infra  bool

	// RetryAfter is the wait a faucet asked for when declining, if any.
	RetryAfter time.Duration
}

// Success is a paid claim.
func Success(sats int64) Outcome {
	return Outcome{Kind: KindSuccess, Sats: sats}
}

// NoPayout is a faucet-side decline.
func NoPayout(reason string, retryAfter time.Duration) Outcome {
	return Outcome{Kind: KindNoPayout, Reason: reason, RetryAfter: retryAfter}
}

// Transient is a retryable failure.
func Transient(reason string, infra bool) Outcome {
	return Outcome{Kind: KindTransient, Reason: reason, Infra: infra}
}

// Permanent means the faucet is structurally broken.
func Permanent(reason string) Outcome {
	return Outcome{Kind: KindPermanent, Reason: reason}
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindSuccess:
		return fmt.Sprintf("success(%d sats)", o.Sats)
	case KindNoPayout:
		return "no_payout"
	default:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	}
}
