package withdrawal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/ledger"
	"github.com/zulandar/dripyard/internal/logger"
	"github.com/zulandar/dripyard/internal/models"
)

// Payout executes a withdrawal against an external service and returns its
// transaction reference.
type Payout interface {
	Pay(ctx context.Context, w models.Withdrawal) (string, error)
}

// Webhook is a Payout that POSTs the withdrawal as JSON to a URL. Any 2xx
// response counts as paid; the body may carry {"tx_ref": "..."}. A 2xx body
// that cannot be read or decoded is logged and the payout still counts.
type Webhook struct {
	URL    string
	Client *http.Client
	Log    zerolog.Logger
}

// NewWebhook returns a Webhook with its own HTTP client.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
		Log:    logger.WithComponent("payout"),
	}
}

type payoutRequest struct {
	ID            string   `json:"id"`
	WalletAddress string   `json:"wallet_address"`
	Amount        string   `json:"amount"`
	AmountSats    int64    `json:"amount_sats"`
	Sources       []string `json:"faucet_sources"`
}

type payoutResponse struct {
	TxRef string `json:"tx_ref"`
	Error string `json:"error"`
}

// Pay implements Payout.
func (h *Webhook) Pay(ctx context.Context, w models.Withdrawal) (string, error) {
	body, err := json.Marshal(payoutRequest{
		ID:            w.ID,
		WalletAddress: w.WalletAddress,
		Amount:        ledger.BTC(w.AmountSats).StringFixed(8),
		AmountSats:    w.AmountSats,
		Sources:       SourcesOf(w),
	})
	if err != nil {
		return "", fmt.Errorf("withdrawal: encode payout: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("withdrawal: build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", w.ID)

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("withdrawal: payout request: %w", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out payoutResponse
	var decodeErr error
	if readErr == nil && len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, &out)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if msg == "" {
			msg = string(bytes.TrimSpace(raw))
		}
		return "", fmt.Errorf("withdrawal: payout rejected: %s: %s", resp.Status, msg)
	}
	if readErr != nil {
		h.Log.Warn().Err(readErr).Str("withdrawal", w.ID).Msg("read payout response")
	} else if decodeErr != nil {
		h.Log.Warn().Err(decodeErr).Str("withdrawal", w.ID).Str("body", string(raw)).Msg("decode payout response")
	}
	return out.TxRef, nil
}
