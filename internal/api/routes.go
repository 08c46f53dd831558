package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/zulandar/dripyard/internal/faucet"
	"github.com/zulandar/dripyard/internal/ledger"
	"github.com/zulandar/dripyard/internal/metrics"
	"github.com/zulandar/dripyard/internal/models"
)

// registerRoutes sets up every API route on the gin router.
func registerRoutes(router *gin.Engine, d Deps) {
	api := router.Group("/api")

	api.GET("/health", handleHealth(d))
	api.GET("/stats", handleStats(d))
	api.GET("/events", handleEvents(d))

	api.GET("/faucets", handleFaucetList(d))
	api.POST("/faucets", handleFaucetAdd(d))
	api.GET("/faucets/:id", handleFaucetGet(d))
	api.POST("/faucets/:id/enable", handleFaucetToggle(d, true))
	api.POST("/faucets/:id/disable", handleFaucetToggle(d, false))

	api.GET("/sessions", handleSessionList(d))
	api.POST("/sessions/start", handleSessionStart(d))
	api.GET("/sessions/:id", handleSessionGet(d))
	api.POST("/sessions/:id/stop", handleSessionStop(d))

	api.GET("/proxies", handleProxyList(d))
	api.POST("/proxies/refresh", handleProxyRefresh(d))
	api.POST("/proxies/recheck", handleProxyRecheck(d))

	api.GET("/withdrawals", handleWithdrawalList(d))
	api.POST("/withdrawals/request", handleWithdrawalRequest(d))
	api.GET("/withdrawals/:id", handleWithdrawalGet(d))

	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(d.Metrics)))
	}
}

func handleHealth(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "healthy",
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"active_sessions": d.Orchestrator.Active(),
			"proxy_count":     d.Pool.Len(),
		})
	}
}

func handleStats(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := d.Stats.Snapshot(c.Request.Context())
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, newStatsView(snap))
	}
}

// Faucets.

func handleFaucetList(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		faucets, err := d.Registry.List(c.Request.Context())
		if err != nil {
			abortWith(c, err)
			return
		}
		out := make([]faucetView, 0, len(faucets))
		for _, f := range faucets {
			out = append(out, newFaucetView(f))
		}
		c.JSON(http.StatusOK, out)
	}
}

type faucetRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	ClaimSelector   string `json:"claim_selector"`
	CaptchaSelector string `json:"captcha_selector"`
	CooldownMinutes *int   `json:"cooldown_minutes"`
	Enabled         *bool  `json:"enabled"`
}

func handleFaucetAdd(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req faucetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid faucet: "+err.Error())
			return
		}
		f := models.Faucet{
			ID:              req.ID,
			Name:            req.Name,
			URL:             req.URL,
			ClaimSelector:   req.ClaimSelector,
			CaptchaSelector: req.CaptchaSelector,
			CooldownMinutes: faucet.DefaultCooldownMinutes,
			Enabled:         true,
		}
		if req.CooldownMinutes != nil {
			f.CooldownMinutes = *req.CooldownMinutes
		}
		if req.Enabled != nil {
			f.Enabled = *req.Enabled
		}

		created, err := d.Registry.Add(c.Request.Context(), f)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Faucet added successfully", "faucet": newFaucetView(*created)})
	}
}

func handleFaucetGet(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := d.Registry.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, newFaucetView(*f))
	}
}

func handleFaucetToggle(d Deps, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := d.Registry.SetEnabled(c.Request.Context(), c.Param("id"), enabled)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, newFaucetView(*f))
	}
}

// Sessions.

func handleSessionList(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := d.Orchestrator.List(c.Request.Context())
		if err != nil {
			abortWith(c, err)
			return
		}
		out := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, newSessionView(s))
		}
		c.JSON(http.StatusOK, out)
	}
}

// parseFaucetIDs accepts a bare JSON array, {"faucet_ids": [...]} or an
// empty body, which selects every enabled faucet.
func parseFaucetIDs(body []byte) ([]string, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, true
	}
	var ids []string
	if body[0] == '[' {
		if err := json.Unmarshal(body, &ids); err != nil {
			return nil, false
		}
		return ids, true
	}
	var wrapped struct {
		FaucetIDs []string `json:"faucet_ids"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, false
	}
	return wrapped.FaucetIDs, true
}

func handleSessionStart(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			badRequest(c, "read body: "+err.Error())
			return
		}
		ids, ok := parseFaucetIDs(body)
		if !ok {
			badRequest(c, "body must be a JSON array of faucet ids or {\"faucet_ids\": [...]}")
			return
		}

		sess, err := d.Orchestrator.Start(c.Request.Context(), ids)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Session started", "session_id": sess.ID, "session": newSessionView(*sess)})
	}
}

func handleSessionGet(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := d.Orchestrator.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, newSessionView(*sess))
	}
}

func handleSessionStop(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := d.Orchestrator.Stop(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Session stopped", "session": newSessionView(*sess)})
	}
}

// Proxies.

func handleProxyList(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, d.Pool.Snapshot())
	}
}

func handleProxyRefresh(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := d.Pool.Refresh(c.Request.Context())
		if err != nil {
			c.Error(err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"detail": err.Error(), "count": n})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Proxies refreshed", "count": n})
	}
}

func handleProxyRecheck(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		promoted, err := d.Pool.Recheck(c.Request.Context())
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Proxies rechecked", "promoted": promoted, "count": d.Pool.Len()})
	}
}

// Withdrawals.

func handleWithdrawalList(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := d.Withdrawals.List(c.Request.Context())
		if err != nil {
			abortWith(c, err)
			return
		}
		out := make([]withdrawalView, 0, len(list))
		for _, w := range list {
			out = append(out, newWithdrawalView(w))
		}
		c.JSON(http.StatusOK, out)
	}
}

type withdrawalRequest struct {
	WalletAddress string          `json:"wallet_address"`
	Amount        decimal.Decimal `json:"amount"`
	FaucetSources []string        `json:"faucet_sources"`
}

func handleWithdrawalRequest(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req withdrawalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid withdrawal request: "+err.Error())
			return
		}
		sats, err := ledger.SatsFromBTC(req.Amount)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		w, err := d.Withdrawals.Request(c.Request.Context(), req.WalletAddress, sats, req.FaucetSources)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Withdrawal requested", "withdrawal_id": w.ID, "withdrawal": newWithdrawalView(*w)})
	}
}

func handleWithdrawalGet(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := d.Withdrawals.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, newWithdrawalView(*w))
	}
}
