// Package remotesolver is a claim.Solver backed by an external solving
// service speaking JSON over HTTP.
package remotesolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zulandar/dripyard/internal/claim"
)

// Client posts challenges to Endpoint and returns the token it answers with.
type Client struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

// New returns a Client with the given request timeout.
func New(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{Endpoint: endpoint, APIKey: apiKey, HTTP: &http.Client{Timeout: timeout}}
}

type solveResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Solve implements claim.Solver. Every failure is a *claim.SolverError.
func (c *Client) Solve(ctx context.Context, ch claim.Challenge) (string, error) {
	payload, err := json.Marshal(ch)
	if err != nil {
		return "", &claim.SolverError{Reason: "encode challenge", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &claim.SolverError{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &claim.SolverError{Reason: "request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &claim.SolverError{Reason: "read response", Err: err}
	}

	var out solveResponse
	if err := json.Unmarshal(body, &out); err != nil && resp.StatusCode == http.StatusOK {
		return "", &claim.SolverError{Reason: "decode response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		if out.Error != "" {
			reason += ": " + out.Error
		}
		return "", &claim.SolverError{Reason: reason}
	}
	if out.Error != "" {
		return "", &claim.SolverError{Reason: out.Error}
	}
	if out.Token == "" {
		return "", &claim.SolverError{Reason: "empty token"}
	}
	return out.Token, nil
}
