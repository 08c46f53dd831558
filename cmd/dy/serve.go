package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/dripyard/internal/api"
	"github.com/zulandar/dripyard/internal/backoff"
	"github.com/zulandar/dripyard/internal/claim"
	"github.com/zulandar/dripyard/internal/claim/htmldriver"
	"github.com/zulandar/dripyard/internal/claim/remotesolver"
	"github.com/zulandar/dripyard/internal/config"
	"github.com/zulandar/dripyard/internal/cooldown"
	"github.com/zulandar/dripyard/internal/db"
	"github.com/zulandar/dripyard/internal/faucet"
	"github.com/zulandar/dripyard/internal/ledger"
	"github.com/zulandar/dripyard/internal/logger"
	"github.com/zulandar/dripyard/internal/metrics"
	"github.com/zulandar/dripyard/internal/notify"
	"github.com/zulandar/dripyard/internal/notify/discord"
	"github.com/zulandar/dripyard/internal/notify/slack"
	"github.com/zulandar/dripyard/internal/orchestrator"
	"github.com/zulandar/dripyard/internal/proxypool"
	"github.com/zulandar/dripyard/internal/stats"
	"github.com/zulandar/dripyard/internal/withdrawal"
)

// shutdownTimeout bounds how long serve waits for sessions to wind down.
const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the claiming engine and its REST API",
		Long: `Connects to the database, recovers sessions orphaned by a previous run,
starts proxy pool maintenance, the withdrawal processor and the REST API.
SIGINT or SIGTERM stops every session gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Dripyard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	log := logger.WithComponent("serve")
	if port > 0 {
		cfg.API.Port = port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := faucet.NewRegistry(gormDB)
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if _, err := registry.Seed(ctx, faucet.Builtin()); err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	pool := newPool(cfg.Proxies)
	metrics.RegisterPool(reg, pool)
	if n, err := pool.Refresh(ctx); err != nil {
		log.Warn().Err(err).Int("proxies", n).Msg("initial proxy refresh failed")
	}
	maint, err := proxypool.StartMaintenance(pool, cfg.Proxies.RefreshCron, cfg.Proxies.RecheckCron)
	if err != nil {
		return err
	}
	defer maint.Stop()

	dispatcher := notify.NewDispatcher(newNotifier(cfg.Notify))

	var payout withdrawal.Payout
	if cfg.Payout.WebhookURL != "" {
		payout = withdrawal.NewWebhook(cfg.Payout.WebhookURL, cfg.Payout.Timeout.Duration)
	}
	withdrawals := withdrawal.New(gormDB, withdrawal.Opts{
		Payout:   payout,
		Notifier: dispatcher,
		Metrics:  m,
	})

	orch := orchestrator.New(orchestrator.Opts{
		DB:           gormDB,
		Registry:     registry,
		Pool:         pool,
		Claimer:      newExecutor(cfg),
		Ledger:       ledger.New(gormDB),
		Cooldown:     cooldown.New(),
		Metrics:      m,
		Notifier:     dispatcher,
		MaxSessions:  cfg.Sessions.MaxConcurrent,
		MaxAttempts:  cfg.Sessions.ClaimRetry.MaxAttempts,
		Retry:        backoff.New(cfg.Sessions.ClaimRetry.InitialDelay.Duration, cfg.Sessions.ClaimRetry.MaxDelay.Duration),
		Checkout:     backoff.New(cfg.Sessions.CheckoutBackoff.Initial.Duration, cfg.Sessions.CheckoutBackoff.Max.Duration),
		NoPayoutWait: cfg.Sessions.NoPayoutWait.Duration,
	})
	if _, err := orch.RecoverOrphans(ctx); err != nil {
		return err
	}

	withdrawalsDone := make(chan error, 1)
	go func() { withdrawalsDone <- withdrawals.Run(ctx) }()

	apiErr := api.Start(ctx, api.StartOpts{
		Deps: api.Deps{
			Registry:     registry,
			Orchestrator: orch,
			Pool:         pool,
			Withdrawals:  withdrawals,
			Stats:        stats.New(gormDB, pool),
			Metrics:      reg,
		},
		Port:        cfg.API.Port,
		CORSOrigins: cfg.API.CORSOrigins,
		Out:         cmd.OutOrStdout(),
	})
	// The API only returns early on a listen error; stop everything else too.
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	shutdownErr := orch.Shutdown(shutdownCtx)
	runErr := <-withdrawalsDone

	log.Info().Msg("dripyard stopped")
	return errors.Join(apiErr, shutdownErr, runErr)
}

func newPool(cfg config.ProxiesConfig) *proxypool.Pool {
	var prober proxypool.Prober
	if cfg.ProbeTarget != "" {
		prober = &proxypool.NetProber{Target: cfg.ProbeTarget, Timeout: cfg.ProbeTimeout.Duration}
	}
	return proxypool.New(proxypool.Options{
		FailureThreshold: cfg.FailureThreshold,
		Sources:          proxypool.SourcesFromConfig(cfg, nil),
		Prober:           prober,
		ProbeConcurrency: cfg.ProbeConcurrency,
	})
}

func newExecutor(cfg *config.Config) *claim.Executor {
	opts := claim.ExecutorOpts{
		Driver:  htmldriver.New(),
		Timeout: cfg.Sessions.AttemptTimeout.Duration,
	}
	if cfg.Captcha.Endpoint != "" {
		opts.Solver = remotesolver.New(cfg.Captcha.Endpoint, cfg.Captcha.APIKey, cfg.Captcha.Timeout.Duration)
	}
	return claim.NewExecutor(opts)
}

// newNotifier builds a notifier for every configured chat target. Targets
// that fail to initialize are logged and skipped.
func newNotifier(cfg config.NotifyConfig) notify.Notifier {
	log := logger.WithComponent("notify")
	var targets notify.Multi
	if cfg.Slack.ChannelID != "" {
		n, err := slack.New(slack.Opts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			log.Error().Err(err).Msg("slack notifier disabled")
		} else {
			targets = append(targets, n)
		}
	}
	if cfg.Discord.ChannelID != "" {
		n, err := discord.New(discord.Opts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			log.Error().Err(err).Msg("discord notifier disabled")
		} else {
			targets = append(targets, n)
		}
	}
	switch len(targets) {
	case 0:
		return notify.Nop{}
	case 1:
		return targets[0]
	}
	return targets
}
