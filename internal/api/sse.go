package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultEventInterval = 3 * time.Second
	heartbeatInterval    = 15 * time.Second
)

// handleEvents streams a stats snapshot on connect and then every
// EventInterval until the client goes away.
func handleEvents(d Deps) gin.HandlerFunc {
	interval := d.EventInterval
	if interval <= 0 {
		interval = defaultEventInterval
	}

	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		push := func() {
			snap, err := d.Stats.Snapshot(ctx)
			if err != nil {
				if ctx.Err() == nil {
					writeSSE(c.Writer, "error", map[string]string{"detail": "stats unavailable"})
					c.Writer.Flush()
				}
				return
			}
			writeSSE(c.Writer, "stats", newStatsView(snap))
			c.Writer.Flush()
		}
		push()

		ticker := time.NewTicker(interval)
		heartbeat := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				push()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
}
