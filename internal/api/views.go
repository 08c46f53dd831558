package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/zulandar/dripyard/internal/ledger"
	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/stats"
	"github.com/zulandar/dripyard/internal/withdrawal"
)

// btcAmount is a BTC value that encodes as a bare JSON number.
type btcAmount struct {
	decimal.Decimal
}

func btc(sats int64) btcAmount {
	return btcAmount{ledger.BTC(sats)}
}

// MarshalJSON implements json.Marshaler.
func (a btcAmount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

type faucetView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	ClaimSelector   string `json:"claim_selector"`
	CaptchaSelector string `json:"captcha_selector"`
	CooldownMinutes int    `json:"cooldown_minutes"`
	Enabled         bool   `json:"enabled"`
	Builtin         bool   `json:"builtin"`
}

func newFaucetView(f models.Faucet) faucetView {
	return faucetView{
		ID:              f.ID,
		Name:            f.Name,
		URL:             f.URL,
		ClaimSelector:   f.ClaimSelector,
		CaptchaSelector: f.CaptchaSelector,
		CooldownMinutes: f.CooldownMinutes,
		Enabled:         f.Enabled,
		Builtin:         f.Builtin,
	}
}

type sessionFaucetView struct {
	FaucetID string `json:"faucet_id"`
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
}

type sessionView struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	TotalClaims   int64               `json:"total_claims"`
	TotalEarnings btcAmount           `json:"total_earnings"`
	ErrorCount    int64               `json:"error_count"`
	LastError     string              `json:"last_error,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	StoppedAt     *time.Time          `json:"stopped_at,omitempty"`
	Faucets       []sessionFaucetView `json:"faucets,omitempty"`
}

func newSessionView(s models.Session) sessionView {
	v := sessionView{
		ID:            s.ID,
		Status:        s.Status,
		TotalClaims:   s.TotalClaims,
		TotalEarnings: btc(s.TotalEarnedSats),
		ErrorCount:    s.ErrorCount,
		LastError:     s.LastError,
		StartedAt:     s.CreatedAt,
		StoppedAt:     s.StoppedAt,
	}
	for _, f := range s.Faucets {
		v.Faucets = append(v.Faucets, sessionFaucetView{FaucetID: f.FaucetID, State: f.State, Reason: f.Reason})
	}
	return v
}

type allocationView struct {
	FaucetID string    `json:"faucet_id"`
	Amount   btcAmount `json:"amount"`
}

type withdrawalView struct {
	ID            string           `json:"id"`
	WalletAddress string           `json:"wallet_address"`
	Amount        btcAmount        `json:"amount"`
	FaucetSources []string         `json:"faucet_sources"`
	Status        string           `json:"status"`
	Reason        string           `json:"reason,omitempty"`
	TxRef         string           `json:"tx_ref,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	Allocations   []allocationView `json:"allocations,omitempty"`
}

func newWithdrawalView(w models.Withdrawal) withdrawalView {
	v := withdrawalView{
		ID:            w.ID,
		WalletAddress: w.WalletAddress,
		Amount:        btc(w.AmountSats),
		FaucetSources: withdrawal.SourcesOf(w),
		Status:        w.Status,
		Reason:        w.Reason,
		TxRef:         w.TxRef,
		CreatedAt:     w.CreatedAt,
	}
	for _, a := range w.Allocations {
		v.Allocations = append(v.Allocations, allocationView{FaucetID: a.FaucetID, Amount: btc(a.AmountSats)})
	}
	return v
}

// statsView keeps the dashboard's original keys and adds the detail
// behind them.
type statsView struct {
	ActiveSessions     int64     `json:"active_sessions"`
	TotalClaims        int64     `json:"total_claims"`
	TotalEarnings      btcAmount `json:"total_earnings"`
	ProxyCount         int       `json:"proxy_count"`
	FaucetCount        int64     `json:"faucet_count"`
	SuccessRate        float64   `json:"success_rate"`
	TotalSessions      int64     `json:"total_sessions"`
	TotalAttempts      int64     `json:"total_attempts"`
	EnabledFaucets     int64     `json:"enabled_faucets"`
	PendingWithdrawals int64     `json:"pending_withdrawals"`
	HealthyProxies     int       `json:"healthy_proxies"`
	ProxiesInUse       int       `json:"proxies_in_use"`
	TakenAt            time.Time `json:"taken_at"`
}

func newStatsView(s stats.Snapshot) statsView {
	return statsView{
		ActiveSessions:     s.ActiveSessions,
		TotalClaims:        s.TotalClaims,
		TotalEarnings:      btc(s.TotalEarnedSats),
		ProxyCount:         s.Proxies.Total,
		FaucetCount:        s.FaucetCount,
		SuccessRate:        s.SuccessRate,
		TotalSessions:      s.TotalSessions,
		TotalAttempts:      s.TotalAttempts,
		EnabledFaucets:     s.EnabledFaucets,
		PendingWithdrawals: s.PendingWithdrawals,
		HealthyProxies:     s.Proxies.Healthy,
		ProxiesInUse:       s.Proxies.InUse,
		TakenAt:            s.TakenAt,
	}
}
