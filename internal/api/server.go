// Package api serves the dashboard's REST API.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zulandar/dripyard/internal/faucet"
	"github.com/zulandar/dripyard/internal/logger"
	"github.com/zulandar/dripyard/internal/orchestrator"
	"github.com/zulandar/dripyard/internal/proxypool"
	"github.com/zulandar/dripyard/internal/stats"
	"github.com/zulandar/dripyard/internal/withdrawal"
)

// Deps are the services behind the API.
type Deps struct {
	Registry     *faucet.Registry
	Orchestrator *orchestrator.Orchestrator
	Pool         *proxypool.Pool
	Withdrawals  *withdrawal.Service
	Stats        *stats.Aggregator
	Metrics      *prometheus.Registry // nil disables /metrics

	// EventInterval is how often /api/events pushes a stats snapshot.
	EventInterval time.Duration
}

func (d Deps) validate() error {
	var missing []string
	if d.Registry == nil {
		missing = append(missing, "registry")
	}
	if d.Orchestrator == nil {
		missing = append(missing, "orchestrator")
	}
	if d.Pool == nil {
		missing = append(missing, "pool")
	}
	if d.Withdrawals == nil {
		missing = append(missing, "withdrawals")
	}
	if d.Stats == nil {
		missing = append(missing, "stats")
	}
	if len(missing) > 0 {
		return fmt.Errorf("api: missing dependencies: %v", missing)
	}
	return nil
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Deps
	Port        int
	CORSOrigins []string
	Out         io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps, corsOrigins []string) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger.WithComponent("api")), cors(corsOrigins))
	registerRoutes(router, deps)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8001
	}
	router, err := NewRouter(opts.Deps, opts.CORSOrigins)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
